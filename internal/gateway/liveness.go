// ABOUTME: Liveness supervisor: heartbeat pings and idle-connection reaping.
// ABOUTME: The sole owner of dead-connection cleanup.

package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const pingWriteTimeout = 5 * time.Second

// Supervisor runs two independent periodic loops over the connection
// registry: a heartbeat that pings every client, and a sweep that reaps
// clients whose activity clock stopped advancing. A peer that never answers
// pings is detected indirectly: no pong means no Touch, and the sweep
// removes it within idleTimeout + sweepInterval.
type Supervisor struct {
	conns *ConnectionRegistry

	heartbeatInterval time.Duration
	sweepInterval     time.Duration
	idleTimeout       time.Duration

	clock   clock.Clock
	metrics *Metrics
	logger  *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewSupervisor creates a supervisor. Pass clock.New() outside tests.
func NewSupervisor(conns *ConnectionRegistry, heartbeat, sweep, idleTimeout time.Duration, clk clock.Clock, metrics *Metrics, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		conns:             conns,
		heartbeatInterval: heartbeat,
		sweepInterval:     sweep,
		idleTimeout:       idleTimeout,
		clock:             clk,
		metrics:           metrics,
		logger:            logger.With("component", "liveness"),
	}
}

// Start launches the heartbeat and sweep loops.
func (s *Supervisor) Start() {
	s.stop = make(chan struct{})
	s.wg.Add(2)
	go s.heartbeatLoop()
	go s.sweepLoop()
}

// Stop terminates both loops and waits for them to exit. Safe to call
// without a prior Start.
func (s *Supervisor) Stop() {
	if s.stop == nil {
		return
	}
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Supervisor) heartbeatLoop() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.heartbeat()
		case <-s.stop:
			return
		}
	}
}

func (s *Supervisor) sweepLoop() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// heartbeat pings every live client. A failed ping is only logged; the peer
// is reaped by the sweep once its activity goes stale.
func (s *Supervisor) heartbeat() {
	for _, client := range s.conns.Snapshot() {
		if err := client.transport.Ping(time.Now().Add(pingWriteTimeout)); err != nil {
			s.logger.Debug("heartbeat ping failed",
				"client_id", client.ID,
				"error", err,
			)
		}
	}
}

// sweep reaps every client idle past the timeout, closing its transport and
// removing it from the registry, which cascades subscription cleanup.
func (s *Supervisor) sweep() {
	now := s.clock.Now()
	for _, client := range s.conns.Snapshot() {
		idle := now.Sub(client.LastActivity())
		if idle <= s.idleTimeout {
			continue
		}

		s.logger.Info("reaping idle client",
			"client_id", client.ID,
			"idle", idle,
			"remote_addr", client.RemoteAddr(),
		)
		client.setState(StateClosing)
		client.closeTransport()
		s.conns.Remove(client.ID)
		client.setState(StateClosed)
		s.metrics.ClientsReaped.Inc()
	}
}
