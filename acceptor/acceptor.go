// Package acceptor owns a listening TCP socket and continuously accepts
// connections without blocking its caller. Accepted connections wait in a
// guarded FIFO queue until a consumer claims them with TakeNext; once taken,
// the acceptor holds no further reference to the connection.
package acceptor

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/tcpcore/logger"
	"github.com/cyberinferno/tcpcore/peerstats"
	"github.com/cyberinferno/tcpcore/safequeue"
)

// ErrBind is returned by Start when the listen address cannot be bound
// (already in use, invalid address, insufficient privilege). Bind failures
// are fatal to server startup.
var ErrBind = errors.New("acceptor bind failed")

// ErrNoPending is returned by TakeNext when the pending-connection queue is
// empty. Callers should check HasPending first.
var ErrNoPending = errors.New("no pending connection")

// CompletionHandler is invoked once per completed accept attempt, after the
// connection (if any) has been queued. err is nil on success. Handlers run
// on the accept goroutine and must not block for long.
type CompletionHandler func(err error)

// Option configures an Acceptor at construction.
type Option func(*Acceptor)

// WithStats attaches a peer-statistics recorder; every successfully accepted
// connection is recorded under its remote host.
//
// Parameters:
//   - stats: The Stats instance to record peers in
func WithStats(stats *peerstats.Stats) Option {
	return func(a *Acceptor) {
		a.stats = stats
	}
}

// WithOnAccept registers the accept-completion handler.
//
// Parameters:
//   - handler: Function called after each accept attempt completes
func WithOnAccept(handler CompletionHandler) Option {
	return func(a *Acceptor) {
		a.onAccept = handler
	}
}

// Acceptor binds a listening socket and accepts connections into an internal
// FIFO queue. A single accept error never terminates the loop; the attempt
// is logged and discarded and the next accept is armed. Safe for concurrent
// use.
type Acceptor struct {
	addr     string
	log      logger.Logger
	stats    *peerstats.Stats
	onAccept CompletionHandler

	listener net.Listener
	pending  *safequeue.SafeQueue[net.Conn]
	running  atomic.Bool
	attempts atomic.Uint64
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates an Acceptor for the given listen address. Call Start to bind
// and begin accepting.
//
// Parameters:
//   - addr: The "host:port" address to listen on (host may be empty)
//   - log: Logger for diagnostics; pass logger.Nop() to silence
//   - opts: Optional configuration (WithStats, WithOnAccept)
//
// Returns:
//   - A new Acceptor; not yet listening
func New(addr string, log logger.Logger, opts ...Option) *Acceptor {
	a := &Acceptor{
		addr:    addr,
		log:     log,
		pending: safequeue.NewSafeQueue[net.Conn](),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Start binds the listening socket and arms the accept loop in a goroutine.
// On failure no goroutine is started and the acceptor holds no state; Start
// may be retried with the same instance.
//
// Returns:
//   - An error wrapping ErrBind if the address cannot be bound, or an error
//     if the acceptor is already running
func (a *Acceptor) Start() error {
	if a.running.Load() {
		return fmt.Errorf("acceptor already running on %s", a.addr)
	}

	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		a.log.Error("acceptor failed to bind", logger.Field{Key: "addr", Value: a.addr}, logger.Field{Key: "error", Value: err})
		return fmt.Errorf("%w: %v", ErrBind, err)
	}

	a.listener = ln
	a.running.Store(true)

	a.log.Info("acceptor listening", logger.Field{Key: "addr", Value: ln.Addr().String()})

	a.wg.Add(1)
	go a.acceptLoop()

	return nil
}

// Stop prevents further accepts and closes the listening socket. An accept
// already blocked in the kernel completes with an error from the closed
// listener and is not re-armed. Idempotent; safe to call before Start.
func (a *Acceptor) Stop() {
	a.stopOnce.Do(func() {
		a.running.Store(false)
		if a.listener != nil {
			_ = a.listener.Close()
		}

		a.wg.Wait()
		a.log.Info("acceptor stopped", logger.Field{Key: "attempts", Value: a.attempts.Load()})
	})
}

// HasPending reports whether at least one accepted connection is waiting to
// be claimed. Thread-safe.
//
// Returns:
//   - true if the pending queue is non-empty
func (a *Acceptor) HasPending() bool {
	return !a.pending.Empty()
}

// TakeNext removes and returns the oldest pending connection. After TakeNext
// the acceptor holds no reference to the connection; the caller becomes its
// sole owner.
//
// Returns:
//   - The oldest pending connection
//   - ErrNoPending if the queue is empty
func (a *Acceptor) TakeNext() (net.Conn, error) {
	conn, ok := a.pending.Pop()
	if !ok {
		return nil, ErrNoPending
	}

	return conn, nil
}

// Connections returns the number of completed accept attempts, successful or
// not. Diagnostic only.
//
// Returns:
//   - The accept attempt count
func (a *Acceptor) Connections() uint64 {
	return a.attempts.Load()
}

// Addr returns the bound listen address, or nil before Start. Useful when
// listening on an ephemeral port.
//
// Returns:
//   - The listener's address, or nil if not listening
func (a *Acceptor) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}

	return a.listener.Addr()
}

// acceptLoop runs in a goroutine and accepts incoming connections until Stop
// is requested. Every completed attempt increments the attempt counter and
// fires the completion handler; only the stop path exits silently.
func (a *Acceptor) acceptLoop() {
	defer a.wg.Done()

	for a.running.Load() {
		conn, err := a.listener.Accept()
		if err != nil {
			if !a.running.Load() {
				return
			}

			n := a.attempts.Add(1)
			a.log.Warn("accept failed", logger.Field{Key: "attempt", Value: n}, logger.Field{Key: "error", Value: err})
			a.notify(err)
			continue
		}

		n := a.attempts.Add(1)
		remote := conn.RemoteAddr().String()
		a.log.Info("connection accepted", logger.Field{Key: "attempt", Value: n}, logger.Field{Key: "remote", Value: remote})

		if a.stats != nil {
			count := a.stats.Record(remote)
			a.log.Debug("peer recorded", logger.Field{Key: "remote", Value: remote}, logger.Field{Key: "peer_conns", Value: count})
		}

		a.pending.Push(conn)
		a.notify(nil)
	}
}

// notify fires the accept-completion handler if one is registered.
func (a *Acceptor) notify(err error) {
	if a.onAccept != nil {
		a.onAccept(err)
	}
}
