package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mentorhub/pkg/types"
)

const (
	defaultBufferSize   = 100
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Tuning carries the connection timing knobs from configuration. Zero values
// fall back to the package defaults, so Tuning{} is always usable.
type Tuning struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

func (t Tuning) withDefaults() Tuning {
	if t.PingInterval <= 0 {
		t.PingInterval = defaultPingInterval
	}
	if t.ReadTimeout <= 0 {
		t.ReadTimeout = defaultReadTimeout
	}
	if t.WriteTimeout <= 0 {
		t.WriteTimeout = defaultWriteTimeout
	}
	if t.BufferSize <= 0 {
		t.BufferSize = defaultBufferSize
	}
	return t
}

// Connection wraps one upgraded WebSocket and implements
// interfaces.Connection. All writes go through a single writer goroutine so
// concurrent broadcasts never interleave frames. The identity is fixed at
// handshake time and never changes for the connection's lifetime.
type Connection struct {
	id       string
	identity types.Identity

	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// NewConnection wraps an upgraded socket for the given resolved identity and
// starts the writer goroutine.
func NewConnection(conn *websocket.Conn, identity types.Identity, tuning Tuning) *Connection {
	tuning = tuning.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		identity:     identity,
		conn:         conn,
		writeCh:      make(chan []byte, tuning.BufferSize),
		writeTimeout: tuning.WriteTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Connection) GetID() string {
	return c.id
}

func (c *Connection) GetIdentity() types.Identity {
	return c.identity
}

// Context is cancelled when the connection closes.
func (c *Connection) Context() context.Context {
	return c.ctx
}

func (c *Connection) writeLoop() {
	defer func() {
		for len(c.writeCh) > 0 {
			<-c.writeCh
		}
		close(c.writeCh)
	}()

	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a payload for the writer goroutine. It blocks at most
// the write timeout when the buffer is full.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears the socket down exactly once. Safe to call concurrently.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
