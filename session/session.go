// Package session owns a single live connection and continuously pulls
// inbound bytes into a guarded message queue. A session never has more than
// one read in flight, owns the connection's lifetime, and guarantees the
// connection is closed exactly once.
package session

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/tcpcore/logger"
	"github.com/cyberinferno/tcpcore/safequeue"
)

// readBufferSize is the size of the scratch buffer each read fills. Received
// bytes are copied out before queueing, so the buffer is reused across reads.
const readBufferSize = 4096

// CompletionHandler is invoked once per completed read, after the received
// bytes (if any) have been queued. n is the byte count and err is nil on
// success. Handlers run on the session's read goroutine and must not block
// for long.
type CompletionHandler func(n int, err error)

// Option configures a Session at construction.
type Option func(*Session)

// WithOnRead registers the read-completion handler.
//
// Parameters:
//   - handler: Function called after each read completes
func WithOnRead(handler CompletionHandler) Option {
	return func(s *Session) {
		s.onRead = handler
	}
}

// Session reads from one connection in a loop, appending each non-empty read
// to an inbound FIFO message queue. Safe for concurrent use: the read loop
// and any external consumer of the queue may run on different goroutines.
type Session struct {
	id     uint32
	conn   net.Conn
	log    logger.Logger
	onRead CompletionHandler

	inbound     *safequeue.SafeQueue[[]byte]
	buf         []byte
	readPending atomic.Bool
	started     atomic.Bool
	stopped     atomic.Bool
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

// New creates a Session owning conn. The session does not read until Start
// is called. From this point the connection belongs to the session; no other
// component may use or close it.
//
// Parameters:
//   - id: Identifier assigned by the creator, for diagnostics and lookup
//   - conn: The connection to own
//   - log: Logger for diagnostics; pass logger.Nop() to silence
//   - opts: Optional configuration (WithOnRead)
//
// Returns:
//   - A new Session; call Start to arm the read loop
func New(id uint32, conn net.Conn, log logger.Logger, opts ...Option) *Session {
	s := &Session{
		id:      id,
		conn:    conn,
		log:     log.With(logger.Field{Key: "session", Value: id}),
		inbound: safequeue.NewSafeQueue[[]byte](),
		buf:     make([]byte, readBufferSize),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start arms the read loop if the session is open and not already started.
// Idempotent; repeated or re-entrant calls are no-ops, as is Start after
// Close.
func (s *Session) Start() {
	if s.stopped.Load() {
		return
	}

	if !s.started.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go s.readLoop()
}

// Close stops the read loop and closes the connection exactly once. A read
// already in flight completes (observing the closed connection) and is not
// re-armed. Safe to call multiple times; later calls return nil.
//
// Returns:
//   - The error from closing the connection, if any
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.stopped.Store(true)
		err = s.conn.Close()
		s.log.Debug("session closed")
	})

	return err
}

// ID returns the identifier assigned at construction.
func (s *Session) ID() uint32 {
	return s.id
}

// RemoteAddr returns the peer address of the owned connection.
func (s *Session) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// IsReadPending reports whether a read is currently in flight. Thread-safe;
// intended for introspection and tests.
//
// Returns:
//   - true if a read has been issued and has not yet completed
func (s *Session) IsReadPending() bool {
	return s.readPending.Load()
}

// HasMessages reports whether the inbound queue holds at least one message.
// Thread-safe.
//
// Returns:
//   - true if the inbound queue is non-empty
func (s *Session) HasMessages() bool {
	return !s.inbound.Empty()
}

// NextMessage removes and returns the oldest inbound message.
//
// Returns:
//   - The oldest message, or nil if the queue is empty
//   - true if a message was removed, false if the queue was empty
func (s *Session) NextMessage() ([]byte, bool) {
	return s.inbound.Pop()
}

// Messages returns the number of queued inbound messages. Thread-safe.
//
// Returns:
//   - The inbound queue length
func (s *Session) Messages() int {
	return s.inbound.Len()
}

// readLoop reads from the connection until Close is requested or a terminal
// error occurs. Each iteration is one read completion: the in-flight flag
// brackets the read, non-empty payloads are copied into the inbound queue,
// and the completion handler fires after the queue is updated. Non-terminal
// read errors are logged and the read re-arms.
func (s *Session) readLoop() {
	defer s.wg.Done()

	for !s.stopped.Load() {
		s.readPending.Store(true)
		n, err := s.conn.Read(s.buf)
		s.readPending.Store(false)

		if err != nil {
			if isTerminal(err) {
				if !s.stopped.Load() {
					s.log.Info("connection closed", logger.Field{Key: "error", Value: err})
				}
				s.notify(n, err)
				return
			}

			s.log.Warn("read failed", logger.Field{Key: "error", Value: err})
			s.notify(n, err)
			continue
		}

		if n == 0 {
			s.log.Debug("empty message received")
			s.notify(0, nil)
			continue
		}

		msg := make([]byte, n)
		copy(msg, s.buf[:n])
		s.inbound.Push(msg)
		s.log.Debug("message received", logger.Field{Key: "bytes", Value: n})
		s.notify(n, nil)
	}
}

// notify fires the read-completion handler if one is registered.
func (s *Session) notify(n int, err error) {
	if s.onRead != nil {
		s.onRead(n, err)
	}
}

// isTerminal reports whether a read error ends the session's read loop.
// EOF and a closed connection cannot recover; anything else re-arms.
// io.ErrClosedPipe is what net.Pipe reports for a closed connection.
func isTerminal(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
