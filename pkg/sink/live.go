package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ibrandiay/chronicle/pkg/chronicle"
)

// LiveConfig holds live sink configuration.
type LiveConfig struct {
	Addr   string // listen address, default 127.0.0.1:9876
	Logger zerolog.Logger
}

// liveEvent is the JSON message pushed to connected clients.
type liveEvent struct {
	Type          string              `json:"type"` // session|time|record
	Seq           int64               `json:"seq"`
	Timestamp     int64               `json:"timestamp"`
	ApplicationID string              `json:"application_id,omitempty"`
	Time          *chronicle.TimeCell `json:"time,omitempty"`
	Path          string              `json:"path,omitempty"`
	Record        *chronicle.Record   `json:"record,omitempty"`
}

// Live pushes every record to websocket clients over a local HTTP server, so
// an external viewer can follow the session as it happens. The server only
// starts when the session asks for a viewer; without one the sink drops
// records silently. /metrics serves the Prometheus registry.
type Live struct {
	cfg      LiveConfig
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	server   *http.Server
	listener net.Listener
	seq      atomic.Int64
	app      string

	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	// writeMu serializes websocket writes: the greeting is written from the
	// HTTP handler goroutine while broadcasts come from the logging call.
	writeMu sync.Mutex
}

// NewLive creates a live sink.
func NewLive(cfg LiveConfig) *Live {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9876"
	}
	return &Live{
		cfg:    cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local viewer connections only
			},
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// Init starts the broadcast server when a viewer was requested. A listen
// failure aborts the session.
func (l *Live) Init(applicationID string, spawnViewer bool) error {
	l.app = applicationID

	if !spawnViewer {
		return nil
	}

	listener, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.cfg.Addr, err)
	}
	l.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", l.handleWS)
	mux.Handle("/metrics", MetricsHandler())

	l.server = &http.Server{Handler: mux}

	go func() {
		if err := l.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			l.logger.Error().Err(err).Msg("live sink server stopped")
		}
	}()

	l.logger.Info().
		Str("addr", listener.Addr().String()).
		Str("app", applicationID).
		Msg("live sink listening")
	return nil
}

// Addr returns the actual listen address, or "" when no server is running.
func (l *Live) Addr() string {
	if l.listener == nil {
		return ""
	}
	return l.listener.Addr().String()
}

// Persist returns ErrPersistUnsupported; combine with a Stream sink through
// Multi to record a broadcast session.
func (l *Live) Persist(path string) error {
	return ErrPersistUnsupported
}

// SetTime broadcasts a timeline update.
func (l *Live) SetTime(timeline string, cell chronicle.TimeCell) {
	l.broadcast(liveEvent{Type: "time", Time: &cell})
}

// Log broadcasts one record.
func (l *Live) Log(path string, rec chronicle.Record) error {
	l.broadcast(liveEvent{Type: "record", Path: path, Record: &rec})
	return nil
}

// Close disconnects clients and shuts the server down.
func (l *Live) Close() error {
	l.mu.Lock()
	for conn := range l.clients {
		conn.Close()
	}
	l.clients = make(map[*websocket.Conn]bool)
	l.mu.Unlock()

	if l.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}

func (l *Live) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	l.mu.Lock()
	l.clients[conn] = true
	clientCount := len(l.clients)
	l.mu.Unlock()

	l.logger.Debug().Int("clients", clientCount).Msg("viewer connected")

	// Greet the client with the session identity.
	l.send(conn, liveEvent{
		Type:          "session",
		Seq:           l.seq.Add(1),
		Timestamp:     time.Now().UnixMilli(),
		ApplicationID: l.app,
	})

	// Reader loop: clients don't send data, but reading is how we notice a
	// disconnect.
	go func() {
		defer l.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (l *Live) broadcast(event liveEvent) {
	event.Seq = l.seq.Add(1)
	event.Timestamp = time.Now().UnixMilli()

	l.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(l.clients))
	for conn := range l.clients {
		conns = append(conns, conn)
	}
	l.mu.Unlock()

	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal live event")
		return
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			l.drop(conn)
		}
	}
}

func (l *Live) send(conn *websocket.Conn, event liveEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		l.drop(conn)
	}
}

func (l *Live) drop(conn *websocket.Conn) {
	l.mu.Lock()
	if _, ok := l.clients[conn]; ok {
		delete(l.clients, conn)
		conn.Close()
	}
	l.mu.Unlock()
}
