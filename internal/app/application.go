package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"mentorhub/internal/api"
	"mentorhub/internal/chat"
	"mentorhub/internal/config"
	"mentorhub/internal/database"
	"mentorhub/internal/gate"
	"mentorhub/internal/identity"
	"mentorhub/internal/notify"
	"mentorhub/internal/presence"
	"mentorhub/internal/router"
	"mentorhub/internal/websocket"
	pkgdatabase "mentorhub/pkg/database"
)

// Application wires every component and owns the process lifecycle.
// Initialization follows dependency order:
// Database → Gate → Presence → Router → Chat → Dispatcher → Identity → API/WS → HTTP.
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	registry   *presence.Registry
	dispatcher *notify.Dispatcher
	limiter    *websocket.RateLimiter
	httpServer *http.Server
	stopCh     chan struct{}
}

// NewApplication builds the full component graph from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	accessGate := gate.NewGate(dbManager, nil, nil)
	registry := presence.NewRegistry()
	messageRouter := router.NewRouter(accessGate, registry)

	messageStore, err := chat.NewStore(dbManager, nil)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize message store: %w", err)
	}

	dispatcher, err := notify.NewDispatcher(messageRouter, 64)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize notification dispatcher: %w", err)
	}

	verifier, err := identity.NewJWTVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize credential verifier: %w", err)
	}
	resolver := identity.NewResolver(verifier, dbManager)

	limiter := websocket.NewRateLimiter()
	apiServer := api.NewServer(resolver, accessGate, messageStore, dispatcher, dbManager, registry)
	wsHandler := websocket.NewHandler(resolver, messageRouter, registry, messageStore, limiter, websocket.Tuning{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		registry:   registry,
		dispatcher: dispatcher,
		limiter:    limiter,
		httpServer: httpServer,
		stopCh:     make(chan struct{}),
	}, nil
}

// Database exposes the persistence layer for seed fixtures.
func (app *Application) Database() *database.Manager {
	return app.dbManager
}

// Start launches background workers and the HTTP listener.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting mentorhub on %s", app.httpServer.Addr)

	app.dispatcher.Start()

	// Evict stale rate limiter entries while the server runs.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				app.limiter.Cleanup()
			case <-app.stopCh:
				return
			}
		}
	}()

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.dispatcher.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("mentorhub started")
		return nil
	case <-ctx.Done():
		app.dispatcher.Stop()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP → dispatcher → database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down mentorhub")

	close(app.stopCh)

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.dispatcher.Stop()

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("mentorhub shutdown complete")
	return nil
}

// GetAddr returns the listen address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
