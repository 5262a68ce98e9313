// Package session implements one end of a Silkroad-style connection: the
// handshake, the steady-state frame read/dispatch loop, and MASSIVE
// reassembly, layered on package frame and package handshake. It accepts
// an already-connected net.Conn; dialing and listening are the caller's
// concern (see cmd/silkprotod).
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/silkrelay/silkproto/internal/frame"
	"github.com/silkrelay/silkproto/internal/handler"
	"github.com/silkrelay/silkproto/internal/handshake"
	"github.com/silkrelay/silkproto/internal/logging"
	"github.com/silkrelay/silkproto/internal/metrics"
	"github.com/silkrelay/silkproto/internal/protostate"
	"github.com/silkrelay/silkproto/internal/ratelimit"
	"github.com/silkrelay/silkproto/internal/recovery"
	"github.com/silkrelay/silkproto/internal/wire"
)

// DisconnectReason classifies why a session's Run loop returned.
type DisconnectReason int

const (
	ReasonNone DisconnectReason = iota
	ReasonLocal
	ReasonEOF
	ReasonMalformed
	ReasonHandshakeFailure
	ReasonHandlerFailure
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonLocal:
		return "local"
	case ReasonEOF:
		return "eof"
	case ReasonMalformed:
		return "malformed"
	case ReasonHandshakeFailure:
		return "handshake_failure"
	case ReasonHandlerFailure:
		return "handler_failure"
	default:
		return "none"
	}
}

// Stats is a point-in-time snapshot of a session's traffic counters.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	BytesSent      uint64
	BytesReceived  uint64
}

// Options configures a new Session.
type Options struct {
	Registry *handler.Registry
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Limiter  *ratelimit.FrameLimiter

	// OnDisconnect, if set, is called exactly once when the session ends.
	OnDisconnect func(s *Session, reason DisconnectReason, err error)

	// HandshakeOptions is the option set a responder offers; ignored for
	// an initiator, which adopts whatever its peer's ServerHello states.
	HandshakeOptions protostate.Options
}

// Session drives one connected peer through handshake and steady-state
// frame exchange. All mutable protocol and reassembly state is touched
// only from the goroutine running Run; Send and Disconnect may be called
// concurrently from other goroutines.
type Session struct {
	conn   net.Conn
	state  *protostate.State
	reader *frame.Reader
	writer *frame.Writer

	registry         *handler.Registry
	logger           *slog.Logger
	metrics          *metrics.Metrics
	limiter          *ratelimit.FrameLimiter
	onDisconnect     func(*Session, DisconnectReason, error)
	handshakeOptions protostate.Options

	sendMu  sync.Mutex
	writeMu sync.Mutex

	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	bytesSent      atomic.Uint64
	bytesReceived  atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
	reason    DisconnectReason

	readyOnce sync.Once
	ready     chan struct{}

	massive massiveState
}

// NewResponder creates a Session for the listening side of conn.
func NewResponder(conn net.Conn, opts Options) *Session {
	return newSession(conn, protostate.NewResponder(), opts)
}

// NewInitiator creates a Session for the dialing side of conn.
func NewInitiator(conn net.Conn, opts Options) *Session {
	return newSession(conn, protostate.NewInitiator(), opts)
}

func newSession(conn net.Conn, st *protostate.State, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Session{
		conn:             conn,
		state:            st,
		reader:           frame.NewReader(conn, st),
		writer:           frame.NewWriter(conn, st),
		registry:         opts.Registry,
		logger:           logger,
		metrics:          opts.Metrics,
		limiter:          opts.Limiter,
		onDisconnect:     opts.OnDisconnect,
		handshakeOptions: opts.HandshakeOptions,
		closed:           make(chan struct{}),
		ready:            make(chan struct{}),
	}
}

// Ready returns a channel closed once the handshake completes
// successfully. Send before Ready is closed will use whatever protocol
// options happen to be installed at the moment of the call.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Run performs the handshake, then loops reading and dispatching frames
// until the connection closes, ctx is cancelled, or a handler returns an
// error. It always returns a non-nil error describing why it stopped.
func (s *Session) Run(ctx context.Context) (runErr error) {
	defer recovery.RecoverWithCallback(s.logger, "session.Run", func(r interface{}) {
		runErr = fmt.Errorf("session: recovered panic: %v", r)
		if s.metrics != nil {
			s.metrics.RecordFault("panic")
		}
		s.finish(ReasonHandlerFailure, runErr)
	})

	// Cancelling ctx closes the transport, which unblocks any pending read.
	go func() {
		select {
		case <-ctx.Done():
			s.finish(ReasonLocal, ctx.Err())
		case <-s.closed:
		}
	}()

	if s.metrics != nil {
		s.metrics.RecordSessionStart()
	}

	start := time.Now()
	var hsErr error
	if s.state.Role == protostate.RoleResponder {
		hsErr = handshake.RunResponder(s.reader, s.writer, s.state, s.handshakeOptions)
	} else {
		hsErr = handshake.RunInitiator(s.reader, s.writer, s.state)
	}
	if hsErr != nil {
		if s.metrics != nil {
			s.metrics.RecordHandshakeFailure("exchange")
		}
		s.finish(ReasonHandshakeFailure, hsErr)
		return hsErr
	}
	if s.metrics != nil {
		s.metrics.RecordHandshake(time.Since(start).Seconds())
	}
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("session ready",
		logging.KeyRole, s.state.Role.String(),
		logging.KeyOptions, s.state.Options.String(),
		logging.KeyRemoteAddr, s.RemoteAddr())

	for {
		select {
		case <-ctx.Done():
			s.finish(ReasonLocal, ctx.Err())
			return ctx.Err()
		default:
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				s.finish(ReasonLocal, err)
				return err
			}
		}

		m, err := s.reader.ReadMessage()
		if err != nil {
			reason := ReasonEOF
			if !errors.Is(err, io.EOF) {
				reason = ReasonMalformed
			}
			s.finish(reason, err)
			return err
		}
		s.framesReceived.Add(1)
		s.bytesReceived.Add(uint64(m.Size()))
		if s.metrics != nil {
			s.metrics.RecordFrameDecoded(int(m.Size()))
		}

		dispatchable, err := s.absorbMassive(m)
		if err != nil {
			s.finish(ReasonMalformed, err)
			return err
		}
		if dispatchable == nil {
			continue
		}

		if s.registry != nil {
			if err := s.registry.Dispatch(ctx, s, dispatchable); err != nil {
				s.finish(ReasonHandlerFailure, err)
				return err
			}
		}
	}
}

// Send encodes and writes m, transparently fragmenting it across MASSIVE
// frames when its payload exceeds wire.PayloadMax. Safe for concurrent use.
func (s *Session) Send(m *wire.Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if m.Massive() || len(m.AsDataSpan()) > wire.PayloadMax {
		return s.sendMassive(m)
	}
	return s.sendFrame(m)
}

func (s *Session) sendFrame(m *wire.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writer.WriteMessage(m); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	s.framesSent.Add(1)
	s.bytesSent.Add(uint64(m.Size()))
	if s.metrics != nil {
		s.metrics.RecordFrameEncoded(int(m.Size()))
	}
	return nil
}

// RemoteAddr returns the remote endpoint's address, implementing handler.Peer.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

// Stats returns a snapshot of the session's traffic counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesSent:     s.framesSent.Load(),
		FramesReceived: s.framesReceived.Load(),
		BytesSent:      s.bytesSent.Load(),
		BytesReceived:  s.bytesReceived.Load(),
	}
}

// Reason returns the cause the session closed for, or ReasonNone if it's
// still running.
func (s *Session) Reason() DisconnectReason { return s.reason }

// Done returns a channel closed once the session has finished.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Disconnect closes the session from the local side. Idempotent and safe
// to call from any goroutine, including a handler invoked from Run itself.
func (s *Session) Disconnect() error {
	s.finish(ReasonLocal, nil)
	return nil
}

func (s *Session) finish(reason DisconnectReason, err error) {
	s.closeOnce.Do(func() {
		s.reason = reason
		s.state.Close()
		s.conn.Close()
		close(s.closed)

		if s.metrics != nil {
			s.metrics.RecordSessionEnd(reason.String())
			switch reason {
			case ReasonMalformed:
				s.metrics.RecordFault("malformed")
			case ReasonHandshakeFailure:
				s.metrics.RecordFault("handshake")
			case ReasonHandlerFailure:
				s.metrics.RecordFault("handler")
			}
		}

		if err != nil && reason != ReasonLocal && reason != ReasonEOF {
			s.logger.Warn("session closed",
				logging.KeyReason, reason.String(),
				logging.KeyError, err.Error(),
				logging.KeyRemoteAddr, s.RemoteAddr())
		} else {
			s.logger.Info("session closed", logging.KeyReason, reason.String(), logging.KeyRemoteAddr, s.RemoteAddr())
		}

		if s.onDisconnect != nil {
			s.onDisconnect(s, reason, err)
		}
	})
}
