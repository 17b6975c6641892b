package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kelindar/event"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/critforge/sessiond/internal/app/logger/logging"
	"github.com/critforge/sessiond/internal/dice"
	"github.com/critforge/sessiond/internal/metrics"
	"github.com/critforge/sessiond/internal/rules"
	"github.com/critforge/sessiond/internal/store"
	"github.com/critforge/sessiond/internal/wire"
)

func init() {
	metrics.InitGateway()
}

// Server owns the websocket endpoint and everything behind it: the
// connection registry, the session registry, the frame router and the
// snapshot writer.
type Server struct {
	Config   *Config
	Conns    *ConnRegistry
	Sessions *SessionRegistry
	Router   *Router

	bus      *event.Dispatcher
	snapshot *SnapshotWriter
}

func NewServer(validator TokenValidator, sink store.SnapshotStore, opts ...Option) *Server {
	config := DefaultConfig()
	for _, fn := range opts {
		if err := fn(config); err != nil {
			panic("failed to initialize config: " + err.Error())
		}
	}

	var adjudicator rules.Adjudicator
	if config.RulesEngineAddr != "" {
		adjudicator = rules.NewClient(config.RulesEngineAddr)
	} else {
		adjudicator = rules.Passthrough{}
	}

	bus := event.NewDispatcher()
	conns := NewConnRegistry(config.MaxConnsPerUser)
	sessions := NewSessionRegistry(conns, bus, config.TurnTimeout)
	conns.SetDisconnectFunc(sessions.handleDisconnect)

	return &Server{
		Config:   config,
		Conns:    conns,
		Sessions: sessions,
		Router:   NewRouter(conns, sessions, validator, adjudicator, dice.NewLocalRoller(time.Now().UnixNano())),
		bus:      bus,
		snapshot: NewSnapshotWriter(sessions, sink),
	}
}

func (s *Server) HttpRouter() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)

	{ // Set up meta routes (readiness, liveness, metrics etc.)
		mux.Group(func(meta chi.Router) {
			meta.Use(cors.New(cors.Options{
				AllowedOrigins:   s.Config.CORSAllowedOrigins,
				AllowCredentials: false,
				AllowedMethods:   []string{http.MethodGet},
				AllowedHeaders:   []string{"Content-Type"},
				MaxAge:           7200,
			}).Handler)

			meta.Get("/_health", s.HandleHealth)
			meta.Get("/_metrics", promhttp.Handler().ServeHTTP)
		})
	}

	{ // Set up the websocket route
		ws := chi.NewRouter()
		ws.Use(middleware.Timeout(24 * time.Hour))
		ws.Mount("/", http.HandlerFunc(s.HandleWebSocket))

		mux.Mount("/ws", ws)
	}

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUpgradeRequired)
		renderJSON(w, r, map[string]string{
			"error": "connect over the websocket endpoint /ws",
		})
	})

	return mux
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	total, authenticated := s.Conns.Stats()

	renderJSON(w, r, map[string]any{
		"status":         "OK",
		"version":        s.Config.Version,
		"connections":    total,
		"authenticated":  authenticated,
		"activeSessions": s.Sessions.ActiveCount(),
	})
}

// HandleWebSocket admits one socket and runs its read loop until the peer
// goes away. The global capacity check happens before the upgrade; a full
// server answers with a plain 503.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	total, _ := s.Conns.Stats()
	if s.Config.MaxConnections > 0 && total >= s.Config.MaxConnections {
		metrics.ConnectionsRejected.WithLabelValues("server_full").Inc()
		w.WriteHeader(http.StatusServiceUnavailable)
		renderJSON(w, r, map[string]string{"error": "server is at capacity"})
		return
	}

	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wire.Subprotocol},
	})
	if err != nil {
		slog.Error("Could not accept the connection",
			"origin", r.Header.Get("Origin"),
			logging.Error(err))
		return
	}
	sock.SetReadLimit(s.Config.MaxFrameBytes)

	connID := s.Conns.Register(sock)
	slog.Info("Accepted a new connection", "connId", connID, "remoteAddr", r.RemoteAddr)

	defer func() {
		s.Conns.Remove(connID)
		_ = sock.CloseNow()
		slog.Info("Closed the connection", "connId", connID)
	}()

	ctx := context.WithoutCancel(r.Context())
	for {
		typ, frame, err := sock.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			slog.Debug("Read loop ended", "connId", connID, logging.Error(err))
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		s.Router.HandleFrame(ctx, connID, frame)
	}
}

// sweepStale walks the registry on a ticker and evicts connections that
// have gone silent for longer than the heartbeat window.
func (s *Server) sweepStale(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, id := range s.Conns.Stale(s.Config.HeartbeatWindow) {
				slog.Info("Evicting a stale connection", "connId", id)
				metrics.ConnectionsEvicted.Inc()
				s.Conns.CloseWith(id, websocket.StatusGoingAway, "heartbeat timed out")
				s.Conns.Remove(id)
			}
		}
	}
}

func (s *Server) Handlers() (start GracefulFunc, shutdown GracefulFunc) {
	httpServer := &http.Server{
		Addr:        s.Config.BindAddr,
		Handler:     s.HttpRouter(),
		ReadTimeout: 0, // websocket connections hold the request open
		IdleTimeout: 120 * time.Second,
	}

	background, stopBackground := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(background)

	start = func(ctx context.Context) error {
		slog.Info("Configured gateway server", "addr", s.Config.BindAddr)

		group.Go(func() error { return s.sweepStale(groupCtx) })
		group.Go(func() error {
			s.snapshot.Start(groupCtx, s.bus)
			return nil
		})

		return httpServer.ListenAndServe()
	}

	shutdown = func(ctx context.Context) error {
		slog.Info("Started shutting down the gateway server")

		s.Sessions.Shutdown()
		s.Conns.ShutdownAll()

		stopBackground()
		if err := group.Wait(); err != nil {
			slog.Warn("Background worker failed", logging.Error(err))
		}
		s.snapshot.Flush(ctx)

		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("Failed shutting down the gateway server", logging.Error(err))
			return err
		}
		slog.Info("Successfully shut down the gateway server")
		return nil
	}

	return start, shutdown
}

type GracefulFunc func(context.Context) error

func (s *Server) Graceful(ctx context.Context, start GracefulFunc, shutdown GracefulFunc) error {
	var (
		stopChan = make(chan os.Signal, 1)
		errChan  = make(chan error, 1)
	)

	// Set up the graceful shutdown handler (traps SIGINT and SIGTERM)
	go func() {
		signal.Notify(stopChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-stopChan:
		case <-ctx.Done():
		}

		timer, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := shutdown(timer); err != nil {
			errChan <- err
			return
		}

		errChan <- nil
	}()

	// Start the server
	if err := start(ctx); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-errChan
}
