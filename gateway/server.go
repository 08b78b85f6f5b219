package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/annotation"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/metric"
)

// HTTPHandler is implemented by transports that mount on a shared mux.
type HTTPHandler interface {
	RegisterHTTPHandlers(prefix string, mux *http.ServeMux)
}

// EngineFactory builds the engine for a new connection.
type EngineFactory func() (*annotation.Engine, error)

// Server runs one Session per websocket connection. All sessions share one
// gesture lock, so engines built over a shared comment store never write to
// it concurrently.
type Server struct {
	cfg      Config
	factory  EngineFactory
	upgrader websocket.Upgrader
	opts     []Option
	logger   *slog.Logger
	metrics  *metric.Metrics
	gestures sync.Mutex

	mu      sync.Mutex
	clients map[*websocket.Conn]*client
	closed  bool
	wg      sync.WaitGroup
}

// client holds one connection and its session
type client struct {
	conn       *websocket.Conn
	session    *Session
	limiter    *rate.Limiter
	writeMutex sync.Mutex // gorilla/websocket does not allow concurrent writers
	closeOnce  sync.Once
}

var _ HTTPHandler = (*Server)(nil)

// NewServer creates a websocket gesture server. An invalid cfg is replaced
// field by field with defaults.
func NewServer(cfg Config, factory EngineFactory, opts ...Option) *Server {
	if err := cfg.Validate(); err != nil {
		def := DefaultConfig()
		if cfg.ReadTimeout <= 0 || cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.ReadTimeout {
			cfg.ReadTimeout, cfg.PingInterval = def.ReadTimeout, def.PingInterval
		}
		if cfg.WriteTimeout <= 0 {
			cfg.WriteTimeout = def.WriteTimeout
		}
		if cfg.MaxMessageSize <= 0 || cfg.MaxMessageSize > 100*1024*1024 {
			cfg.MaxMessageSize = def.MaxMessageSize
		}
		if cfg.GestureRate < 0 || cfg.GestureBurst < 0 {
			cfg.GestureRate, cfg.GestureBurst = def.GestureRate, def.GestureBurst
		}
	}

	o := applyOptions(opts)
	s := &Server{
		cfg:     cfg,
		factory: factory,
		upgrader: websocket.Upgrader{
			// The renderer is served from another origin during development
			CheckOrigin:     func(_ *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:  o.logger,
		metrics: o.metrics,
		clients: make(map[*websocket.Conn]*client),
	}
	s.opts = append(append([]Option(nil), opts...), WithLock(&s.gestures))
	return s
}

// RegisterHTTPHandlers mounts the websocket endpoint at prefix.
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.Handle(prefix, s)
}

// Clients returns the number of open connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP upgrades the request and serves gestures until the connection
// closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	engine, err := s.factory()
	if err != nil {
		s.logger.Error("Failed to build engine", "error", err)
		status := http.StatusInternalServerError
		if errors.IsInvalid(err) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.logger.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, session: NewSession(engine, s.opts...), limiter: s.cfg.limiter()}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[conn] = c
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.RecordSessionOpened()
	s.logger.Info("Session opened", "session", c.session.ID(), "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	go s.pingClient(ctx, c)
	s.handleClient(ctx, c)
	cancel()
}

// handleClient reads gestures and writes replies until the connection fails,
// the peer closes or the session hits a fatal error.
func (s *Server) handleClient(ctx context.Context, c *client) {
	defer s.wg.Done()
	defer s.removeClient(c)

	c.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Connection lost", "session", c.session.ID(), "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		var reply Reply
		var g Gesture
		if err := json.Unmarshal(data, &g); err != nil {
			reply = Reply{
				Session: c.session.ID(),
				Class:   errors.ErrorInvalid.String(),
				Error:   fmt.Sprintf("decode gesture: %v", err),
			}
		} else if !c.limiter.Allow() {
			reply = Reply{
				ID:      g.ID,
				Session: c.session.ID(),
				Type:    g.Type,
				Class:   errors.ErrorTransient.String(),
				Error:   errors.ErrRateLimited.Error(),
			}
			s.metrics.RecordGesture(g.Type, "rate_limited", 0)
		} else {
			reply = c.session.Handle(ctx, g)
		}

		if err := s.send(c, reply); err != nil {
			s.logger.Debug("Failed to send reply", "session", c.session.ID(), "error", err)
			return
		}

		if reply.Class == errors.ErrorFatal.String() {
			s.closeWith(c, websocket.ClosePolicyViolation, "annotation state out of sync")
			return
		}
	}
}

func (s *Server) send(c *client, reply Reply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return errors.WrapFatal(err, "Server", "send", "encode reply")
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) closeWith(c *client, code int, text string) {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
}

// pingClient keeps the read deadline of an idle renderer alive.
func (s *Server) pingClient(ctx context.Context, c *client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMutex.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
			c.writeMutex.Unlock()
			if err != nil {
				s.removeClient(c)
				return
			}
		}
	}
}

// removeClient closes the connection once.
func (s *Server) removeClient(c *client) {
	c.closeOnce.Do(func() {
		s.mu.Lock()
		delete(s.clients, c.conn)
		s.mu.Unlock()

		s.metrics.RecordSessionClosed()
		s.logger.Info("Session closed", "session", c.session.ID())
		_ = c.conn.Close()
	})
}

// Close disconnects every client and waits for their handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.closeWith(c, websocket.CloseGoingAway, "server shutting down")
		s.removeClient(c)
	}
	s.wg.Wait()
	return nil
}
