// Package server wires the acceptor, driver, and peer statistics into a
// runnable server process. Startup is two-phase: Start binds the listening
// socket (bind failures abort here), Run pumps until the stopping policy is
// satisfied or the context is cancelled.
package server

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/tcpcore/acceptor"
	"github.com/cyberinferno/tcpcore/config"
	"github.com/cyberinferno/tcpcore/driver"
	"github.com/cyberinferno/tcpcore/logger"
	"github.com/cyberinferno/tcpcore/peerstats"
)

const (
	// peerStatsTTL is how long a quiet peer keeps its connection counter.
	peerStatsTTL = 12 * time.Hour
	// peerStatsCleanup is the sweep interval for expired peer counters.
	peerStatsCleanup = time.Hour
	// statusInterval is how often the running server logs a status line.
	statusInterval = 30 * time.Second
)

// Server runs the accept/session core for one configured endpoint.
type Server struct {
	cfg   *config.Config
	log   logger.Logger
	stats *peerstats.Stats
	drv   *driver.Driver
}

// New builds a Server from a resolved configuration. A MaxOps budget in the
// configuration selects a fixed-operation stopping policy; otherwise the
// server runs until its context is cancelled.
//
// Parameters:
//   - cfg: The resolved configuration (mode must be ModeServer)
//   - log: Logger for diagnostics
//
// Returns:
//   - A new Server; call Start to bind, then Run
func New(cfg *config.Config, log logger.Logger) *Server {
	policy := driver.RunForever()
	if cfg.MaxOps > 0 {
		policy = driver.StopAfterOps(cfg.MaxOps)
	}

	stats := peerstats.New(peerStatsTTL, peerStatsCleanup)
	return &Server{
		cfg:   cfg,
		log:   log,
		stats: stats,
		drv:   driver.New(cfg.ServerEndpoint(), policy, log, acceptor.WithStats(stats)),
	}
}

// Start binds the listening socket. A bind failure is fatal to startup and
// leaves nothing running.
//
// Returns:
//   - An error wrapping acceptor.ErrBind if the endpoint cannot be bound
func (s *Server) Start() error {
	if err := s.drv.Start(); err != nil {
		return err
	}

	s.log.Info("server started",
		logger.Field{Key: "config", Value: s.cfg.String()},
		logger.Field{Key: "addr", Value: s.Addr().String()})
	return nil
}

// Run pumps the driver until its stopping policy is satisfied or ctx is
// cancelled, logging a periodic status line alongside. All sessions and the
// acceptor are stopped before Run returns. Cancellation is the normal way to
// shut the server down and is not reported as an error.
//
// Parameters:
//   - ctx: Cancelling this context shuts the server down
//
// Returns:
//   - An error only on abnormal termination
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return s.drv.Run(ctx)
	})
	g.Go(func() error {
		return s.statusLoop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	s.log.Info("server stopped",
		logger.Field{Key: "ops", Value: s.drv.Ops()},
		logger.Field{Key: "connections", Value: s.drv.Acceptor().Connections()})
	return err
}

// Addr returns the bound listen address, or nil before Start. Useful when
// the configured port is 0 (ephemeral).
//
// Returns:
//   - The listener's address, or nil if not listening
func (s *Server) Addr() net.Addr {
	return s.drv.Acceptor().Addr()
}

// Driver exposes the underlying driver for inspection.
//
// Returns:
//   - The driver owned by this server
func (s *Server) Driver() *driver.Driver {
	return s.drv
}

// statusLoop logs a status line every statusInterval until ctx ends.
func (s *Server) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.log.Info("server running",
				logger.Field{Key: "ops", Value: s.drv.Ops()},
				logger.Field{Key: "sessions", Value: s.drv.Sessions()},
				logger.Field{Key: "active_peers", Value: s.stats.ActivePeers()})
		}
	}
}
