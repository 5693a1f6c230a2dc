// ABOUTME: Gateway composition root wiring registries, broadcast, dispatch,
// ABOUTME: and liveness; owns the HTTP server and the Start/Shutdown lifecycle.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relayforge/relay/internal/auth"
	"github.com/relayforge/relay/internal/backend"
	"github.com/relayforge/relay/internal/config"
)

// Deps are the external collaborators a gateway instance consumes.
type Deps struct {
	Source   backend.EventSource
	Executor backend.Executor
	// Verifier may be nil when no jwt_secret is configured; privileged
	// operations then fail with auth_token_invalid.
	Verifier auth.TokenVerifier
	// Sink defaults to a slog-backed sink when nil.
	Sink backend.ErrorSink
	// Clock defaults to the wall clock when nil; tests pass a mock.
	Clock clock.Clock
}

// Gateway is one self-contained gateway instance. All state is owned by the
// instance, so multiple gateways can run in one process.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	conns       *ConnectionRegistry
	subs        *SubscriptionRegistry
	gate        *auth.Gate
	dispatcher  *Dispatcher
	broadcaster *Broadcaster
	supervisor  *Supervisor
	metrics     *Metrics
	sink        backend.ErrorSink
	source      backend.EventSource

	httpServer  *http.Server
	httpLn      net.Listener
	unsubscribe func()
}

// Stats is the operational snapshot returned by Gateway.Stats.
type Stats struct {
	Connections      int            `json:"connections"`
	Authenticated    int            `json:"authenticated"`
	Subscriptions    map[string]int `json:"subscriptions"`
	MessagesSent     uint64         `json:"messagesSent"`
	MessagesReceived uint64         `json:"messagesReceived"`
}

// New creates a gateway instance from config and collaborators.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Source == nil {
		return nil, errors.New("event source is required")
	}
	if deps.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if deps.Sink == nil {
		deps.Sink = backend.NewSlogSink(logger)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	metrics := NewMetrics()
	conns, subs := NewRegistries(metrics, logger)

	g := &Gateway{
		cfg:     cfg,
		logger:  logger,
		conns:   conns,
		subs:    subs,
		gate:    auth.NewGate(deps.Verifier, logger),
		metrics: metrics,
		sink:    deps.Sink,
		source:  deps.Source,
	}
	g.dispatcher = NewDispatcher(deps.Executor, cfg.Gateway.CommandTimeout, logger)
	g.broadcaster = NewBroadcaster(conns, subs, deps.Sink, metrics, logger)
	g.supervisor = NewSupervisor(conns,
		cfg.Gateway.HeartbeatInterval,
		cfg.Gateway.SweepInterval,
		cfg.Gateway.IdleTimeout,
		deps.Clock, metrics, logger)

	return g, nil
}

// Handler returns the gateway's HTTP surface.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/stats", g.handleStats)
	if g.cfg.Metrics.Enabled {
		mux.Handle(g.cfg.Metrics.Path, promhttp.HandlerFor(g.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start subscribes to the event source firehose, launches the liveness
// supervisor, and begins serving HTTP. It does not block.
func (g *Gateway) Start() error {
	// One subscription to everything, made once per instance; each pushed
	// event fans out on its own goroutine.
	g.unsubscribe = g.source.SubscribeAll(func(event backend.Event) {
		go g.broadcaster.Broadcast(event)
	})

	g.supervisor.Start()

	ln, err := net.Listen("tcp", g.cfg.Server.HTTPAddr)
	if err != nil {
		g.teardownCore()
		return fmt.Errorf("listening on %s: %w", g.cfg.Server.HTTPAddr, err)
	}
	g.httpLn = ln
	g.httpServer = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("http server exited", "error", err)
		}
	}()

	g.logger.Info("gateway started",
		"addr", ln.Addr().String(),
		"heartbeat_interval", g.cfg.Gateway.HeartbeatInterval,
		"idle_timeout", g.cfg.Gateway.IdleTimeout,
	)
	return nil
}

// Addr returns the bound HTTP address once Start has succeeded.
func (g *Gateway) Addr() string {
	if g.httpLn == nil {
		return ""
	}
	return g.httpLn.Addr().String()
}

// Run starts the gateway and blocks until ctx is cancelled, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Start(); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Shutdown(shutdownCtx)
}

// Shutdown terminates every connection, stops both periodic loops, clears
// both registries, and stops the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("gateway shutting down", "connections", g.conns.Len())

	var httpErr error
	if g.httpServer != nil {
		httpErr = g.httpServer.Shutdown(ctx)
	}

	g.teardownCore()

	for _, client := range g.conns.Snapshot() {
		client.setState(StateClosing)
		client.closeTransport()
		client.setState(StateClosed)
	}
	g.conns.Clear()

	g.logger.Info("gateway stopped")
	return httpErr
}

// teardownCore stops the event subscription and the liveness loops.
func (g *Gateway) teardownCore() {
	if g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
	g.supervisor.Stop()
}

// Stats returns the operational counters for the instance.
func (g *Gateway) Stats() Stats {
	stats := Stats{
		Subscriptions: g.subs.CountByType(),
	}
	for _, client := range g.conns.Snapshot() {
		stats.Connections++
		if client.Authenticated() {
			stats.Authenticated++
		}
		sent, received := client.Counters()
		stats.MessagesSent += sent
		stats.MessagesReceived += received
	}
	return stats
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (g *Gateway) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"ready":       true,
		"connections": g.conns.Len(),
	})
}

func (g *Gateway) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g.Stats())
}
