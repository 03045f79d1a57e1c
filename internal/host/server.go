package host

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chaz8081/speechbridge/internal/bridge"
	"github.com/chaz8081/speechbridge/internal/config"
)

const (
	writeTimeout = 10 * time.Second
	stopTimeout  = 5 * time.Second
)

// Server accepts command channel connections.
type Server struct {
	cfg        config.HostConfig
	dispatcher *Dispatcher
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	wg sync.WaitGroup
}

// NewServer creates a Server. A nil gatherer disables /metrics.
func NewServer(cfg config.HostConfig, d *Dispatcher, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		gatherer:   gatherer,
		logger:     logger.With("component", "host"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	s.upgrader.CheckOrigin = s.checkOrigin
	return s
}

// Handler returns the HTTP routes: /bridge, /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", s.serveBridge)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down and waits for
// open connections to release their sessions.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("host listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by Shutdown; they end
	// through the cancelled base context.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown", "error", err)
	}
	s.wg.Wait()
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(allowed), "/"), origin) {
			return true
		}
	}
	return false
}

func (s *Server) serveBridge(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorBody{
			Code:    CodeNotAuthorized,
			Message: (&bridge.Error{Kind: bridge.KindNotAuthorized}).Message(),
		})
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		logger: s.logger,
	}
	c.logger = s.logger.With("conn", c.id)
	c.logger.Info("client connected", "remote", r.RemoteAddr)
	s.handle(r.Context(), c)
}

// handle reads requests until the connection ends, then stops the sessions
// the connection started and waits for its requests to finish.
func (s *Server) handle(ctx context.Context, c *conn) {
	ctx, cancel := context.WithCancel(ctx)
	var reqs sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = c.ws.Close()
	}()

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read ended", "error", err)
			}
			break
		}
		var req Request
		if err := json.Unmarshal(msg, &req); err != nil || req.ID == "" || req.Action == "" {
			_ = c.send(Reply{ID: req.ID, Status: "error", Error: &ErrorBody{
				Code:    CodeInvalidRequest,
				Message: "request must be a JSON object with id and action",
			}})
			continue
		}
		reqs.Add(1)
		go func() {
			defer reqs.Done()
			s.dispatcher.Dispatch(ctx, req, c.send, c.track)
		}()
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	c.stopSessions(stopCtx)
	stopCancel()
	reqs.Wait()
	c.logger.Info("client disconnected")
}

// conn is one client connection.
type conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	sessions []*bridge.Session
}

func (c *conn) send(r Reply) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(r)
}

func (c *conn) track(s *bridge.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, s)
}

func (c *conn) stopSessions(ctx context.Context) {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = nil
	c.mu.Unlock()

	for _, s := range sessions {
		select {
		case <-s.Done():
			continue
		default:
		}
		c.logger.Info("stopping session owned by closed connection", "session", s.ID)
		if _, err := s.Stop(ctx); err != nil {
			c.logger.Debug("owned session ended", "session", s.ID, "error", err)
		}
	}
}
