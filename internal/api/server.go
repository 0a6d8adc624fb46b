package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mentorhub/internal/gate"
	"mentorhub/internal/notify"
	"mentorhub/pkg/interfaces"
	"mentorhub/pkg/types"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityResolver turns a raw credential into a full identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*types.Identity, error)
}

// StatsSource reports live connection statistics for the health endpoint.
// The presence registry satisfies this.
type StatsSource interface {
	Stats() map[string]int
}

// Server is the REST surface next to the WebSocket endpoint: transcript
// access for clients that reconnect or paginate, bulk read receipts, and the
// admin notification dispatch hook. Every chat route passes the same access
// gate as a room join, so the transcript cannot leak outside the session
// window or to non-participants.
type Server struct {
	resolver   IdentityResolver
	accessGate *gate.Gate
	store      interfaces.MessageStore
	dispatcher *notify.Dispatcher
	db         interfaces.Database
	stats      StatsSource
	router     chi.Router
	startedAt  time.Time
}

// NewServer wires the REST routes.
func NewServer(resolver IdentityResolver, accessGate *gate.Gate, store interfaces.MessageStore, dispatcher *notify.Dispatcher, db interfaces.Database, stats StatsSource) *Server {
	s := &Server{
		resolver:   resolver,
		accessGate: accessGate,
		store:      store,
		dispatcher: dispatcher,
		db:         db,
		stats:      stats,
		startedAt:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(s.jsonMiddleware)

	r.Get("/health", s.healthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/chat/{sessionID}", func(r chi.Router) {
			r.Get("/history", s.getHistory)
			r.Get("/session", s.getSession)
			r.Post("/read-all", s.readAll)
		})

		r.Post("/notifications/dispatch", s.dispatchNotification)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request/response shapes.

type ErrorResponse struct {
	Error   string        `json:"error"`
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message"`
	Window  *types.Window `json:"window,omitempty"`
}

type SessionResponse struct {
	Session *types.Session `json:"session"`
	Window  types.Window   `json:"window"`
}

type ReadAllResponse struct {
	Marked int `json:"marked"`
}

type DispatchRequest struct {
	Audience        string                  `json:"audience"`
	TargetProfileID string                  `json:"targetProfileId,omitempty"`
	Event           types.NotificationEvent `json:"event"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
	UptimeSecs  int64          `json:"uptimeSeconds"`
}

// authMiddleware resolves the bearer credential and stashes the identity in
// the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			s.sendError(w, http.StatusUnauthorized, "", "missing Authorization header")
			return
		}
		identity, err := s.resolver.Resolve(r.Context(), token)
		if err != nil {
			if errors.Is(err, interfaces.ErrInvalidCredential) {
				s.sendError(w, http.StatusUnauthorized, "", "invalid credential")
			} else {
				log.Printf("Identity resolution failed: %v", err)
				s.sendError(w, http.StatusInternalServerError, "", "failed to resolve identity")
			}
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, *identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerIdentity(r *http.Request) types.Identity {
	identity, _ := r.Context().Value(identityKey).(types.Identity)
	return identity
}

// checkAccess runs the session gate and writes the HTTP error on denial.
// Returns false when the response has already been written.
func (s *Server) checkAccess(w http.ResponseWriter, r *http.Request, sessionID string) (gate.Decision, bool) {
	decision, err := s.accessGate.Check(r.Context(), sessionID, callerIdentity(r))
	if err != nil {
		log.Printf("Access check failed: session=%s: %v", sessionID, err)
		s.sendError(w, http.StatusInternalServerError, "", "access check failed")
		return gate.Decision{}, false
	}
	if !decision.Admitted {
		status := http.StatusForbidden
		if decision.Reason == gate.ReasonSessionNotFound {
			status = http.StatusNotFound
		}
		s.writeJSON(w, status, ErrorResponse{
			Error:   http.StatusText(status),
			Code:    string(decision.Reason),
			Message: decision.Message(),
			Window:  decision.Window,
		})
		return decision, false
	}
	return decision, true
}

// GET /api/chat/{sessionID}/history?page=&limit=
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := s.checkAccess(w, r, sessionID); !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.store.History(r.Context(), sessionID, page, limit)
	if err != nil {
		log.Printf("History load failed: session=%s: %v", sessionID, err)
		s.sendError(w, http.StatusInternalServerError, "", "failed to load history")
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// GET /api/chat/{sessionID}/session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	decision, ok := s.checkAccess(w, r, sessionID)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, SessionResponse{
		Session: decision.Session,
		Window:  *decision.Window,
	})
}

// POST /api/chat/{sessionID}/read-all
func (s *Server) readAll(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, ok := s.checkAccess(w, r, sessionID); !ok {
		return
	}

	marked, err := s.store.MarkAllRead(r.Context(), sessionID, callerIdentity(r).AccountID)
	if err != nil {
		log.Printf("Read-all failed: session=%s: %v", sessionID, err)
		s.sendError(w, http.StatusInternalServerError, "", "failed to mark messages read")
		return
	}
	s.writeJSON(w, http.StatusOK, ReadAllResponse{Marked: marked})
}

// POST /api/notifications/dispatch — admin only.
func (s *Server) dispatchNotification(w http.ResponseWriter, r *http.Request) {
	if callerIdentity(r).Role != types.RoleAdmin {
		s.sendError(w, http.StatusForbidden, "", "only admins may dispatch notifications")
		return
	}

	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "", "invalid JSON body")
		return
	}
	if req.Audience != "admins" && req.TargetProfileID == "" {
		s.sendError(w, http.StatusBadRequest, "", "targetProfileId is required for this audience")
		return
	}

	delivery, err := s.dispatcher.Dispatch(r.Context(), req.Audience, req.TargetProfileID, req.Event)
	if err != nil {
		if errors.Is(err, notify.ErrUnknownAudience) {
			s.sendError(w, http.StatusBadRequest, "", err.Error())
		} else {
			log.Printf("Dispatch failed: audience=%s: %v", req.Audience, err)
			s.sendError(w, http.StatusInternalServerError, "", "failed to dispatch notification")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, delivery)
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.db.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = "error: " + err.Error()
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.stats.Stats(),
		UptimeSecs:  int64(time.Since(s.startedAt).Seconds()),
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, response)
}

func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
