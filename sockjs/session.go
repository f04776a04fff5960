package sockjs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
)

// SessionState is the lifecycle state of a session. Transitions are
// monotonic: SessionNew -> SessionOpen -> SessionClosing -> SessionClosed.
type SessionState uint32

const (
	// SessionNew is a freshly created session, no receiver seen yet.
	SessionNew SessionState = iota
	// SessionOpen is an established session accepting messages.
	SessionOpen
	// SessionClosing no longer accepts sends, close frame pending.
	SessionClosing
	// SessionClosed is terminal, the session is removed and never reused.
	SessionClosed
)

var (
	// ErrSessionNotOpen is returned by Send and message acceptance when
	// the session is not in the open state.
	ErrSessionNotOpen = errors.New("sockjs: session not in open state")
	// ErrConnectionInterrupted denotes the underlying transport
	// connection dropping while a receiver was attached.
	ErrConnectionInterrupted   = errors.New("sockjs: connection interrupted")
	errSessionReceiverAttached = errors.New("sockjs: another receiver already attached")
	errSessionParse            = errors.New("sockjs: unable to parse URL for session")
	errMessageCacheOverflow    = errors.New("sockjs: outbound message cache overflow")
)

// SessionHandler receives lifecycle and message events for sessions.
// Callbacks for one session are never invoked concurrently; a panic in
// a callback is logged and does not terminate the session.
type SessionHandler interface {
	OnOpen(sess *Session)
	OnMessage(sess *Session, msg string)
	OnError(sess *Session, err error)
	OnClose(sess *Session, status int, reason string)
}

// SessionHandlerFuncs adapts plain functions to SessionHandler. Nil
// fields are ignored.
type SessionHandlerFuncs struct {
	Open    func(sess *Session)
	Message func(sess *Session, msg string)
	Error   func(sess *Session, err error)
	Close   func(sess *Session, status int, reason string)
}

func (h SessionHandlerFuncs) OnOpen(sess *Session) {
	if h.Open != nil {
		h.Open(sess)
	}
}

func (h SessionHandlerFuncs) OnMessage(sess *Session, msg string) {
	if h.Message != nil {
		h.Message(sess, msg)
	}
}

func (h SessionHandlerFuncs) OnError(sess *Session, err error) {
	if h.Error != nil {
		h.Error(sess, err)
	}
}

func (h SessionHandlerFuncs) OnClose(sess *Session, status int, reason string) {
	if h.Close != nil {
		h.Close(sess, status, reason)
	}
}

// receiver is the protocol dependent outbound side of one transport
// connection (xhr, eventsource, jsonp, websocket).
type receiver interface {
	// sendFrame sends an encoded frame over the wire
	sendFrame(string)
	// close closes the receiver in a "done" way (idempotent)
	close()
	canSend() bool
	// done notification channel gets closed whenever receiver ends
	doneNotify() <-chan struct{}
	// interrupted channel gets closed whenever receiver is interrupted
	// (i.e. http connection drops, ...)
	interruptedNotify() <-chan struct{}
}

// Session is the logical, transport independent connection between the
// server and one peer. It survives transport hand-offs: receivers come
// and go, the session keeps its identity and buffered messages.
type Session struct {
	id      string
	req     *http.Request
	handler SessionHandler
	codec   Codec
	logger  zerolog.Logger

	state      atomic.Uint32
	lastActive atomic.Int64 // unix nanos of last inbound touch
	lastBeat   atomic.Int64 // unix nanos of last heartbeat written
	noBeats    atomic.Bool  // heartbeats suppressed for this session

	attributes map[string]interface{}
	principal  string

	mux         sync.Mutex
	recv        receiver
	sendCache   *queue.Queue // outbound messages awaiting a receiver
	cacheLimit  int
	closeStatus int
	closeReason string

	recvBuffer *messageBuffer
	closeCh    chan struct{}
	closeOnce  sync.Once

	// raw websocket connections carry no framing
	raw bool
}

func newSession(req *http.Request, sessionID string, handler SessionHandler, opts *Options) *Session {
	s := &Session{
		id:          sessionID,
		req:         req,
		handler:     handler,
		codec:       opts.codec(),
		logger:      opts.Logger,
		sendCache:   queue.New(),
		cacheLimit:  opts.HTTPMessageCacheSize,
		closeStatus: 3000,
		closeReason: "Go away!",
		recvBuffer:  newMessageBuffer(),
		closeCh:     make(chan struct{}),
	}
	s.touch()
	return s
}

// ID returns the session id, unique within its registry.
func (s *Session) ID() string { return s.id }

// Request returns the request that created the session.
func (s *Session) Request() *http.Request { return s.req }

// Principal returns the authenticated principal extracted at handshake
// time, or the empty string.
func (s *Session) Principal() string { return s.principal }

// Attr returns a contextual attribute attached by the handshake
// interceptor chain.
func (s *Session) Attr(key string) (interface{}, bool) {
	v, ok := s.attributes[key]
	return v, ok
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// DisableHeartbeats suppresses heartbeat frames for this session only,
// for protocols running on top of the channel that bring their own
// keep-alive.
func (s *Session) DisableHeartbeats() { s.noBeats.Store(true) }

// touch refreshes the last-active clock. Called on every inbound frame,
// heartbeat write and HTTP request that reaches the session.
func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}

func (s *Session) hasReceiver() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.recv != nil
}

// advance moves the lifecycle forward via compare-and-swap; transitions
// never skip backward and each fires at most once.
func (s *Session) advance(from, to SessionState) bool {
	return s.state.CompareAndSwap(uint32(from), uint32(to))
}

// Send queues one message for delivery to the peer. Messages are
// delivered in the order they were enqueued.
func (s *Session) Send(msg string) error {
	if s.State() > SessionOpen {
		return ErrSessionNotOpen
	}
	s.mux.Lock()
	if s.recv != nil && s.recv.canSend() {
		s.flushLocked(msg)
		s.mux.Unlock()
		return nil
	}
	s.sendCache.Add(msg)
	overflow := s.cacheLimit > 0 && s.sendCache.Length() > s.cacheLimit
	s.mux.Unlock()
	if overflow {
		s.callError(errMessageCacheOverflow)
		s.closing(3001, "Message cache overflow")
		s.close()
	}
	return nil
}

// flushLocked writes cached messages plus msg as a single message
// frame. Caller holds s.mux and has verified an attached receiver.
func (s *Session) flushLocked(msg ...string) {
	messages := make([]string, 0, s.sendCache.Length()+len(msg))
	for s.sendCache.Length() > 0 {
		messages = append(messages, s.sendCache.Remove().(string))
	}
	messages = append(messages, msg...)
	if len(messages) == 0 {
		return
	}
	if s.raw {
		for _, m := range messages {
			s.recv.sendFrame(m)
		}
		return
	}
	s.recv.sendFrame(s.codec.Encode(MessageFrame(messages...)))
}

// attachReceiver binds one transport connection to the session. The
// first successful attach moves the session to open and emits the open
// frame; an attach on a closing session replays the close frame.
func (s *Session) attachReceiver(recv receiver) error {
	s.mux.Lock()
	if s.recv != nil {
		s.mux.Unlock()
		return errSessionReceiverAttached
	}
	s.recv = recv
	go func(r receiver) {
		select {
		case <-r.doneNotify():
			s.detachReceiver()
		case <-r.interruptedNotify():
			s.detachReceiver()
			s.interrupted()
		}
	}(recv)

	s.touch()
	if s.State() >= SessionClosing {
		if !s.raw {
			recv.sendFrame(s.codec.Encode(CloseFrame(s.closeStatus, s.closeReason)))
		}
		recv.close()
		s.mux.Unlock()
		return nil
	}
	becameOpen := s.advance(SessionNew, SessionOpen)
	if becameOpen && !s.raw {
		recv.sendFrame(s.codec.Encode(Frame{Kind: FrameOpen}))
	}
	s.lastBeat.Store(time.Now().UnixNano())
	s.flushLocked()
	s.mux.Unlock()

	if becameOpen {
		go s.run()
	}
	return nil
}

func (s *Session) detachReceiver() {
	s.mux.Lock()
	s.recv = nil
	s.mux.Unlock()
}

// run delivers the connected callback and then pumps inbound messages
// to the application in order. One bad message must not kill the
// channel, so callback panics are contained.
func (s *Session) run() {
	s.safeCall(func() { s.handler.OnOpen(s) })
	for {
		msg, err := s.recvBuffer.pop(context.Background())
		if err != nil {
			return
		}
		s.safeCall(func() { s.handler.OnMessage(s, msg) })
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

func (s *Session) callError(err error) {
	s.safeCall(func() { s.handler.OnError(s, err) })
}

// accept takes inbound message payloads from a transport. Messages are
// only accepted while the session is open; anything earlier or later is
// a protocol error.
func (s *Session) accept(messages ...string) error {
	if s.State() != SessionOpen {
		return ErrSessionNotOpen
	}
	s.touch()
	return s.recvBuffer.push(messages...)
}

// heartbeat writes a heartbeat frame if one is due. Driven by the
// handler's shared scheduler, never by a request goroutine.
func (s *Session) heartbeat(now time.Time, interval time.Duration) {
	if s.State() != SessionOpen || s.noBeats.Load() || interval <= 0 {
		return
	}
	if now.Sub(time.Unix(0, s.lastBeat.Load())) < interval {
		return
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.recv == nil || !s.recv.canSend() {
		return
	}
	s.lastBeat.Store(now.UnixNano())
	if !s.raw {
		s.recv.sendFrame(s.codec.Encode(Frame{Kind: FrameHeartbeat}))
	}
	// a successful write proves the connection is alive
	s.touch()
}

// interrupted handles an unrecoverable transport failure: no retry, the
// session goes straight to closing with a transport-failure status.
func (s *Session) interrupted() {
	if s.State() < SessionClosing {
		s.callError(ErrConnectionInterrupted)
	}
	s.closing(1006, "Connection interrupted")
	s.close()
}

// closing stops accepting sends and messages, sends the close frame to
// an attached receiver. Idempotent: only the first caller sets the
// close status.
func (s *Session) closing(status int, reason string) {
	if !s.advance(SessionNew, SessionClosing) && !s.advance(SessionOpen, SessionClosing) {
		return
	}
	s.mux.Lock()
	s.closeStatus, s.closeReason = status, reason
	s.recvBuffer.close()
	if s.recv != nil {
		if !s.raw {
			s.recv.sendFrame(s.codec.Encode(CloseFrame(status, reason)))
		}
		s.recv.close()
	}
	s.mux.Unlock()
}

// close finishes the lifecycle once the transport side is done. Invokes
// the application's closed callback exactly once however many goroutines
// race here.
func (s *Session) close() {
	if !s.advance(SessionClosing, SessionClosed) {
		return
	}
	s.recvBuffer.close()
	s.closeOnce.Do(func() { close(s.closeCh) })
	s.mux.Lock()
	status, reason := s.closeStatus, s.closeReason
	s.mux.Unlock()
	s.safeCall(func() { s.handler.OnClose(s, status, reason) })
}

// Close closes the session with the given status code and reason.
// Idempotent; returns ErrSessionNotOpen if already closing or closed.
func (s *Session) Close(status int, reason string) error {
	if s.State() >= SessionClosing {
		return ErrSessionNotOpen
	}
	s.closing(status, reason)
	return nil
}

// ClosedNotify returns a channel that is closed once the session
// reaches SessionClosed.
func (s *Session) ClosedNotify() <-chan struct{} { return s.closeCh }

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.id, s.State())
}

func (st SessionState) String() string {
	switch st {
	case SessionNew:
		return "new"
	case SessionOpen:
		return "open"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	}
	return "invalid"
}
