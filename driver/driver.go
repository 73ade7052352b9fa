// Package driver implements the single-threaded pump at the heart of the
// server: it services one I/O completion at a time, promotes pending
// connections from the acceptor into sessions, and applies a pluggable
// stopping policy. Per-connection and per-read errors are never fatal to the
// driver; only context cancellation or the policy ends the loop.
package driver

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/tcpcore/acceptor"
	"github.com/cyberinferno/tcpcore/logger"
	"github.com/cyberinferno/tcpcore/safemap"
	"github.com/cyberinferno/tcpcore/session"
)

// completionBacklog bounds how many completions may queue up between the
// producing goroutines and the pump before producers block.
const completionBacklog = 64

// Kind identifies the asynchronous operation a Completion reports on.
type Kind int

const (
	KindAccept Kind = iota // An accept attempt completed
	KindRead               // A session read completed
)

// String returns a human-readable name for the completion kind.
func (k Kind) String() string {
	switch k {
	case KindAccept:
		return "accept"
	case KindRead:
		return "read"
	default:
		return "unknown"
	}
}

// Completion is the event delivered when an asynchronous operation finishes,
// success or failure.
type Completion struct {
	Kind      Kind
	SessionID uint32 // Zero for accept completions
	Bytes     int    // Bytes received, for read completions
	Err       error  // Nil on success
}

// Driver pumps completions and promotes pending connections into sessions.
// Run drives the loop; RunOne services a single iteration for callers that
// pump manually. Safe for concurrent inspection while running.
type Driver struct {
	acc    *acceptor.Acceptor
	policy StopPolicy
	log    logger.Logger

	completions chan Completion
	done        chan struct{}
	closeDone   sync.Once
	sessions    *safemap.SafeMap[uint32, *session.Session]
	nextID      atomic.Uint32
	ops         atomic.Uint64
}

// New creates a Driver and the Acceptor it pumps. The driver installs itself
// as the acceptor's completion handler and as the completion handler of
// every session it creates.
//
// Parameters:
//   - addr: The "host:port" listen address for the acceptor
//   - policy: Stopping policy consulted after every serviced operation
//   - log: Logger for diagnostics; pass logger.Nop() to silence
//   - accOpts: Extra acceptor options (e.g. acceptor.WithStats)
//
// Returns:
//   - A new Driver; call Start to bind, then Run to pump
func New(addr string, policy StopPolicy, log logger.Logger, accOpts ...acceptor.Option) *Driver {
	d := &Driver{
		policy:      policy,
		log:         log,
		completions: make(chan Completion, completionBacklog),
		done:        make(chan struct{}),
		sessions:    safemap.NewSafeMap[uint32, *session.Session](),
	}

	opts := append(accOpts, acceptor.WithOnAccept(func(err error) {
		d.post(Completion{Kind: KindAccept, Err: err})
	}))
	d.acc = acceptor.New(addr, log, opts...)

	return d
}

// Start binds the acceptor. A bind failure is fatal to startup and is
// returned without any goroutine having been started.
//
// Returns:
//   - An error wrapping acceptor.ErrBind if the address cannot be bound
func (d *Driver) Start() error {
	return d.acc.Start()
}

// Run pumps completions until the stopping policy signals completion or ctx
// is cancelled. On exit the acceptor is stopped, unclaimed pending
// connections are closed, and every session is closed.
//
// Parameters:
//   - ctx: Cancelling this context stops the loop
//
// Returns:
//   - ctx.Err() if the context ended the loop, nil if the policy did
func (d *Driver) Run(ctx context.Context) error {
	defer d.Shutdown()

	for {
		cont, err := d.RunOne(ctx)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// RunOne blocks until one completion is ready (or ctx ends), services it,
// drains the acceptor's pending connections into new sessions, and consults
// the stopping policy. This is the loop's only suspension point.
//
// Parameters:
//   - ctx: Cancelling this context abandons the wait
//
// Returns:
//   - true if the loop should continue, false once the policy is satisfied
//   - ctx.Err() if the context ended the wait
func (d *Driver) RunOne(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()

	case c := <-d.completions:
		ops := d.ops.Add(1)
		d.log.Debug("operation serviced",
			logger.Field{Key: "ops", Value: ops},
			logger.Field{Key: "kind", Value: c.Kind.String()})

		d.promotePending()

		if d.policy.ShouldStop(ops) {
			d.log.Info("stop policy satisfied", logger.Field{Key: "ops", Value: ops})
			return false, nil
		}

		return true, nil
	}
}

// Session returns the session with the given id, if it exists.
//
// Parameters:
//   - id: The session ID to look up
//
// Returns:
//   - The session and true if found, or nil and false otherwise
func (d *Driver) Session(id uint32) (*session.Session, bool) {
	return d.sessions.Load(id)
}

// Sessions returns the number of sessions the driver has created and still
// holds.
//
// Returns:
//   - The session count
func (d *Driver) Sessions() int {
	return d.sessions.Len()
}

// Ops returns the number of completions serviced so far.
//
// Returns:
//   - The serviced operation count
func (d *Driver) Ops() uint64 {
	return d.ops.Load()
}

// Acceptor exposes the driver's acceptor, mainly so callers can learn the
// bound address when listening on an ephemeral port.
//
// Returns:
//   - The acceptor owned by this driver
func (d *Driver) Acceptor() *acceptor.Acceptor {
	return d.acc
}

// promotePending claims every pending connection and hands each to a newly
// created session. The connection is the session's sole property from here.
func (d *Driver) promotePending() {
	for d.acc.HasPending() {
		conn, err := d.acc.TakeNext()
		if err != nil {
			return
		}

		id := d.nextID.Add(1)
		s := session.New(id, conn, d.log, session.WithOnRead(func(n int, err error) {
			d.post(Completion{Kind: KindRead, SessionID: id, Bytes: n, Err: err})
		}))

		d.sessions.Store(id, s)
		s.Start()
		d.log.Info("session started",
			logger.Field{Key: "session", Value: id},
			logger.Field{Key: "remote", Value: s.RemoteAddr().String()})
	}
}

// post delivers a completion to the pump, giving up once the driver has shut
// down so producing goroutines never block on a dead pump.
func (d *Driver) post(c Completion) {
	select {
	case d.completions <- c:
	case <-d.done:
	}
}

// Shutdown stops the acceptor, closes unclaimed pending connections, and
// closes every session. The done channel is closed first so in-flight
// completion handlers unblock instead of waiting on the pump. Run calls
// Shutdown on exit; callers pumping manually with RunOne call it themselves.
// Idempotent.
func (d *Driver) Shutdown() {
	d.closeDone.Do(func() { close(d.done) })

	d.acc.Stop()
	for {
		conn, err := d.acc.TakeNext()
		if err != nil {
			break
		}
		_ = conn.Close()
	}

	d.sessions.Range(func(id uint32, s *session.Session) bool {
		_ = s.Close()
		return true
	})

	d.log.Info("driver stopped",
		logger.Field{Key: "ops", Value: d.ops.Load()},
		logger.Field{Key: "sessions", Value: d.sessions.Len()})
}
