package client

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cometchan/sockjs-go/sockjs"
)

// SessionState is the client session lifecycle. Like the server side it
// only ever moves forward.
type SessionState uint32

const (
	SessionNew SessionState = iota
	SessionOpen
	SessionClosing
	SessionClosed
)

// Close statuses used by the client side.
const (
	// StatusBadData: a frame failed to decode; the session is closed
	// rather than retried.
	StatusBadData = 1002
	// StatusAbnormal: the transport failed while reading or writing.
	StatusAbnormal = 1006
	// StatusTimeout: the open frame never arrived within the computed
	// connect timeout.
	StatusTimeout = 2007
	// StatusDuplicateOpen: a second open frame arrived on an already
	// established session.
	StatusDuplicateOpen = 2010
	// StatusGoAway: regular server initiated close.
	StatusGoAway = 3000
)

var (
	// ErrSessionNotOpen is returned by Send when the session is not open.
	ErrSessionNotOpen = errors.New("sockjs client: session not in open state")
	// ErrTransportFailure denotes an unrecoverable transport I/O error.
	ErrTransportFailure = errors.New("sockjs client: transport failure")
)

// Handler receives lifecycle and message events for a client session.
// The application never sees raw I/O errors, only these callbacks.
type Handler interface {
	OnOpen(sess *Session)
	OnMessage(sess *Session, msg string)
	OnError(sess *Session, err error)
	OnClose(sess *Session, status int, reason string)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are
// ignored.
type HandlerFuncs struct {
	Open    func(sess *Session)
	Message func(sess *Session, msg string)
	Error   func(sess *Session, err error)
	Close   func(sess *Session, status int, reason string)
}

func (h HandlerFuncs) OnOpen(sess *Session) {
	if h.Open != nil {
		h.Open(sess)
	}
}

func (h HandlerFuncs) OnMessage(sess *Session, msg string) {
	if h.Message != nil {
		h.Message(sess, msg)
	}
}

func (h HandlerFuncs) OnError(sess *Session, err error) {
	if h.Error != nil {
		h.Error(sess, err)
	}
}

func (h HandlerFuncs) OnClose(sess *Session, status int, reason string) {
	if h.Close != nil {
		h.Close(sess, status, reason)
	}
}

// transportConn is one established transport connection carrying the
// session's frames.
type transportConn interface {
	// send delivers message payloads to the server, preserving order.
	send(messages ...string) error
	// close tears the connection down; idempotent.
	close()
}

// Session is the client side of the logical connection. A session is
// bound to exactly one transport connection, chosen by the fallback
// loop in Dial.
type Session struct {
	id        string
	transport string
	handler   Handler
	codec     sockjs.Codec
	logger    zerolog.Logger

	state    atomic.Uint32
	timeouts *timeoutRegistry

	mux  sync.Mutex
	conn transportConn

	openCh    chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once

	closeStatus int
	closeReason string
}

func newSession(id string, handler Handler, codec sockjs.Codec, logger zerolog.Logger) *Session {
	return &Session{
		id:       id,
		handler:  handler,
		codec:    codec,
		logger:   logger,
		timeouts: newTimeoutRegistry(),
		openCh:   make(chan struct{}),
		closeCh:  make(chan struct{}),
	}
}

// ID returns the session id used in transport URLs.
func (s *Session) ID() string { return s.id }

// Transport returns the name of the transport that carried the
// successful connection attempt.
func (s *Session) Transport() string { return s.transport }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// ClosedNotify is closed once the session is fully closed.
func (s *Session) ClosedNotify() <-chan struct{} { return s.closeCh }

// Send delivers one message to the server. Only valid while open.
func (s *Session) Send(msg string) error {
	if s.State() != SessionOpen {
		return ErrSessionNotOpen
	}
	s.mux.Lock()
	conn := s.conn
	s.mux.Unlock()
	if conn == nil {
		return ErrSessionNotOpen
	}
	if err := conn.send(msg); err != nil {
		s.transportError(err)
		return ErrTransportFailure
	}
	return nil
}

// Close closes the session from the application side.
func (s *Session) Close(status int, reason string) error {
	if s.State() >= SessionClosing {
		return ErrSessionNotOpen
	}
	s.closeInternal(status, reason, false)
	return nil
}

func (s *Session) setConn(conn transportConn) {
	s.mux.Lock()
	s.conn = conn
	s.mux.Unlock()
	// the session may have lost a race with its own timeout task
	if s.State() >= SessionClosing {
		conn.close()
	}
}

// handleFrame is the single entry point for inbound bytes from the
// active transport. Decode failures close the session with a bad data
// status; they are never retried.
func (s *Session) handleFrame(data []byte) {
	frame, err := s.codec.Decode(data)
	if err != nil {
		s.logger.Debug().Err(err).Str("session", s.id).Msg("frame decode failed")
		s.closeInternal(StatusBadData, "bad data", false)
		return
	}
	switch frame.Kind {
	case sockjs.FrameOpen:
		if s.state.CompareAndSwap(uint32(SessionNew), uint32(SessionOpen)) {
			s.timeouts.cancel()
			close(s.openCh)
			s.safeCall(func() { s.handler.OnOpen(s) })
			return
		}
		// open on an already established session means a stale or
		// duplicate server session: close silently, not an error
		s.closeInternal(StatusDuplicateOpen, "duplicate open frame", true)
	case sockjs.FrameHeartbeat:
		// nothing to do, the read keeps the connection alive
	case sockjs.FrameMessage:
		if s.State() != SessionOpen {
			return
		}
		for _, msg := range frame.Messages {
			s.safeCall(func() { s.handler.OnMessage(s, msg) })
		}
	case sockjs.FrameClose:
		s.closeInternal(frame.Status, frame.Reason, false)
	case sockjs.FrameUnknown:
		// forward compatibility: ignore frames we do not understand
	}
}

// transportError routes an unrecoverable transport failure into the
// single close path. Recovery is the fallback list in Dial, never a
// silent retry here.
func (s *Session) transportError(err error) {
	if s.State() == SessionOpen {
		s.safeCall(func() { s.handler.OnError(s, err) })
	}
	s.closeInternal(StatusAbnormal, "transport failure", false)
}

// connectTimedOut force-closes an attempt whose open frame never came.
func (s *Session) connectTimedOut() {
	s.closeInternal(StatusTimeout, "transport timed out", false)
}

// abandon discards a failed connection attempt without surfacing
// anything to the application.
func (s *Session) abandon() {
	s.closeInternal(StatusAbnormal, "attempt abandoned", true)
}

// closeInternal is the one close path for close frames, transport
// errors, timeouts and application closes. Guarded so it executes once
// per session even when a timeout task and an error callback race. The
// closed callback fires only for sessions the application saw open,
// and never for silent closes.
func (s *Session) closeInternal(status int, reason string, silent bool) {
	wasOpen := s.state.CompareAndSwap(uint32(SessionOpen), uint32(SessionClosing))
	if !wasOpen && !s.state.CompareAndSwap(uint32(SessionNew), uint32(SessionClosing)) {
		return
	}
	s.closeStatus, s.closeReason = status, reason
	s.timeouts.cancel()
	s.mux.Lock()
	conn := s.conn
	s.mux.Unlock()
	if conn != nil {
		conn.close()
	}
	s.state.Store(uint32(SessionClosed))
	s.closeOnce.Do(func() { close(s.closeCh) })
	if wasOpen && !silent {
		s.safeCall(func() { s.handler.OnClose(s, status, reason) })
	}
}

func (s *Session) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("session", s.id).
				Interface("panic", r).
				Msg("application handler panicked")
		}
	}()
	fn()
}
