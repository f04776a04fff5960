package sockjs

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testReceiver struct {
	mux         sync.Mutex
	frames      []string
	doneCh      chan struct{}
	interruptCh chan struct{}
	closed      bool
}

func newTestReceiver() *testReceiver {
	return &testReceiver{
		doneCh:      make(chan struct{}),
		interruptCh: make(chan struct{}),
	}
}

func (r *testReceiver) sendFrame(frame string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *testReceiver) sentFrames() []string {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]string(nil), r.frames...)
}

func (r *testReceiver) canSend() bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	return !r.closed
}

func (r *testReceiver) close() {
	r.mux.Lock()
	defer r.mux.Unlock()
	if !r.closed {
		r.closed = true
		close(r.doneCh)
	}
}

func (r *testReceiver) interrupt() { close(r.interruptCh) }

func (r *testReceiver) doneNotify() <-chan struct{}        { return r.doneCh }
func (r *testReceiver) interruptedNotify() <-chan struct{} { return r.interruptCh }

func newTestSession(handler SessionHandler) *Session {
	if handler == nil {
		handler = SessionHandlerFuncs{}
	}
	req, _ := http.NewRequest("POST", "/server/session/xhr", nil)
	opts := DefaultOptions
	return newSession(req, "session", handler, &opts)
}

func TestSession_OpenOnFirstAttach(t *testing.T) {
	opened := make(chan struct{})
	sess := newTestSession(SessionHandlerFuncs{
		Open: func(sess *Session) { close(opened) },
	})
	assert.Equal(t, SessionNew, sess.State())

	recv := newTestReceiver()
	require.NoError(t, sess.attachReceiver(recv))
	assert.Equal(t, SessionOpen, sess.State())
	assert.Equal(t, []string{"o"}, recv.sentFrames())

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("open callback not invoked")
	}
}

func TestSession_SecondReceiverRejected(t *testing.T) {
	sess := newTestSession(nil)
	require.NoError(t, sess.attachReceiver(newTestReceiver()))
	err := sess.attachReceiver(newTestReceiver())
	assert.Equal(t, errSessionReceiverAttached, err)
}

func TestSession_SendBuffersUntilReceiverAttaches(t *testing.T) {
	sess := newTestSession(nil)
	require.NoError(t, sess.Send("first"))
	require.NoError(t, sess.Send("second"))

	recv := newTestReceiver()
	require.NoError(t, sess.attachReceiver(recv))
	assert.Equal(t, []string{"o", `a["first","second"]`, `a["third"]`}, func() []string {
		_ = sess.Send("third")
		return recv.sentFrames()
	}())
}

func TestSession_MessageCacheOverflowClosesSession(t *testing.T) {
	var errCount atomic.Int32
	closed := make(chan struct{})
	req, _ := http.NewRequest("POST", "/server/session/xhr", nil)
	opts := DefaultOptions
	opts.HTTPMessageCacheSize = 2
	sess := newSession(req, "session", SessionHandlerFuncs{
		Error: func(sess *Session, err error) { errCount.Add(1) },
		Close: func(sess *Session, status int, reason string) {
			assert.Equal(t, 3001, status)
			close(closed)
		},
	}, &opts)

	require.NoError(t, sess.Send("one"))
	require.NoError(t, sess.Send("two"))
	_ = sess.Send("three")

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("overflowing session was not closed")
	}
	assert.Equal(t, int32(1), errCount.Load())
	assert.Equal(t, ErrSessionNotOpen, sess.Send("four"))
}

func TestSession_AcceptOnlyWhileOpen(t *testing.T) {
	received := make(chan string, 10)
	sess := newTestSession(SessionHandlerFuncs{
		Message: func(sess *Session, msg string) { received <- msg },
	})

	// messages before open are a protocol error, not queued
	assert.Equal(t, ErrSessionNotOpen, sess.accept("too early"))

	require.NoError(t, sess.attachReceiver(newTestReceiver()))
	require.NoError(t, sess.accept("on time"))
	select {
	case msg := <-received:
		assert.Equal(t, "on time", msg)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	sess.closing(3000, "Go away!")
	sess.close()
	assert.Equal(t, ErrSessionNotOpen, sess.accept("too late"))
	select {
	case msg := <-received:
		t.Errorf("message delivered after close: %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_StatesMoveForwardOnly(t *testing.T) {
	sess := newTestSession(nil)
	require.NoError(t, sess.attachReceiver(newTestReceiver()))
	assert.Equal(t, SessionOpen, sess.State())

	sess.closing(3000, "Go away!")
	assert.Equal(t, SessionClosing, sess.State())
	// no way back to open
	assert.False(t, sess.advance(SessionNew, SessionOpen))

	sess.close()
	assert.Equal(t, SessionClosed, sess.State())
	sess.closing(1006, "again")
	assert.Equal(t, SessionClosed, sess.State())
}

func TestSession_ConcurrentCloseInvokesCallbackOnce(t *testing.T) {
	var closeCount atomic.Int32
	sess := newTestSession(SessionHandlerFuncs{
		Close: func(sess *Session, status int, reason string) { closeCount.Add(1) },
	})
	require.NoError(t, sess.attachReceiver(newTestReceiver()))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.closing(3000, "Go away!")
			sess.close()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), closeCount.Load())
	assert.Equal(t, SessionClosed, sess.State())
}

func TestSession_CloseFrameReplayedToLateReceiver(t *testing.T) {
	sess := newTestSession(nil)
	require.NoError(t, sess.attachReceiver(newTestReceiver()))
	require.NoError(t, sess.Close(3000, "Go away!"))
	assert.Equal(t, ErrSessionNotOpen, sess.Close(3000, "Go away!"))
	require.Eventually(t, func() bool { return !sess.hasReceiver() }, time.Second, time.Millisecond)

	// a poll arriving after close gets the close frame replayed
	late := newTestReceiver()
	require.NoError(t, sess.attachReceiver(late))
	assert.Equal(t, []string{`c[3000,"Go away!"]`}, late.sentFrames())
	assert.False(t, late.canSend())
}

func TestSession_HeartbeatOnlyWhileOpenAndEnabled(t *testing.T) {
	sess := newTestSession(nil)
	recv := newTestReceiver()
	require.NoError(t, sess.attachReceiver(recv))
	require.Equal(t, []string{"o"}, recv.sentFrames())

	interval := 10 * time.Millisecond
	sess.heartbeat(time.Now().Add(interval), interval)
	assert.Equal(t, []string{"o", "h"}, recv.sentFrames())

	// not due yet
	sess.heartbeat(time.Now().Add(interval/2), interval)
	assert.Equal(t, []string{"o", "h"}, recv.sentFrames())

	// suppressed for this session only
	sess.DisableHeartbeats()
	sess.heartbeat(time.Now().Add(time.Hour), interval)
	assert.Equal(t, []string{"o", "h"}, recv.sentFrames())
}

func TestSession_HandlerPanicDoesNotKillSession(t *testing.T) {
	delivered := make(chan string, 2)
	sess := newTestSession(SessionHandlerFuncs{
		Message: func(sess *Session, msg string) {
			if msg == "bad" {
				panic("application bug")
			}
			delivered <- msg
		},
	})
	require.NoError(t, sess.attachReceiver(newTestReceiver()))
	require.NoError(t, sess.accept("bad"))
	require.NoError(t, sess.accept("good"))
	select {
	case msg := <-delivered:
		assert.Equal(t, "good", msg)
	case <-time.After(time.Second):
		t.Fatal("session stopped delivering after handler panic")
	}
	assert.Equal(t, SessionOpen, sess.State())
}

func TestSession_InterruptMovesToClosedWithTransportStatus(t *testing.T) {
	errored := make(chan error, 1)
	closed := make(chan struct{})
	sess := newTestSession(SessionHandlerFuncs{
		Error: func(sess *Session, err error) { errored <- err },
		Close: func(sess *Session, status int, reason string) {
			assert.Equal(t, 1006, status)
			close(closed)
		},
	})
	recv := newTestReceiver()
	require.NoError(t, sess.attachReceiver(recv))
	recv.interrupt()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("interrupted session not closed")
	}
	select {
	case err := <-errored:
		assert.Equal(t, ErrConnectionInterrupted, err)
	case <-time.After(time.Second):
		t.Fatal("error callback not invoked")
	}
	assert.Equal(t, SessionClosed, sess.State())
}
