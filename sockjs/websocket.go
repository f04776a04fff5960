package sockjs

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// websocketHandler is the framed full-duplex transport. It goes through
// the same routing as the HTTP transports, so the handshake interceptor
// chain runs once per session establishment and before the upgrade,
// while the response can still be written to. The prepared session and
// receiver are paired explicitly before the read pump starts; nothing
// is smuggled through shared state into the accept path.
type websocketHandler struct{ h *Handler }

func (websocketHandler) transport() TransportType { return TransportWebsocket }
func (websocketHandler) isSessionFactory() bool   { return true }

func (t websocketHandler) handleRequest(rw http.ResponseWriter, req *http.Request, sess *Session) {
	upgrader := t.h.options.WebsocketUpgrader
	if upgrader == nil {
		upgrader = new(websocket.Upgrader)
	}
	conn, err := upgrader.Upgrade(rw, req, nil)
	if err != nil {
		// a failed upgrade only dooms a session it just created; an
		// established session must not die to a stray plain GET
		if sess.State() == SessionNew {
			sess.closing(1006, "Connection interrupted")
			sess.close()
		}
		return
	}
	t.h.runWebsocketSession(sess, conn, func() ([]string, error) {
		var messages []string
		err := conn.ReadJSON(&messages)
		return messages, err
	})
}

// rawWebsocket serves the unframed endpoint: the upgrade request
// bypasses the session-id path, each connection gets a private session.
func (h *Handler) rawWebsocket(rw http.ResponseWriter, req *http.Request) {
	if !h.options.originAllowed(req.Header.Get("Origin")) {
		httpError(rw, "Origin not allowed.", http.StatusForbidden)
		return
	}
	sess, err := h.createSession(rw, req, rawSessionID())
	if err != nil {
		httpError(rw, err.Error(), http.StatusForbidden)
		return
	}
	sess.raw = true
	upgrader := h.options.WebsocketUpgrader
	if upgrader == nil {
		upgrader = new(websocket.Upgrader)
	}
	conn, err := upgrader.Upgrade(rw, req, nil)
	if err != nil {
		sess.closing(1006, "Connection interrupted")
		sess.close()
		return
	}
	h.runWebsocketSession(sess, conn, func() ([]string, error) {
		frameType, p, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if frameType != websocket.TextMessage && frameType != websocket.BinaryMessage {
			return nil, nil
		}
		return []string{string(p)}, nil
	})
}

// runWebsocketSession attaches the receiver, pumps inbound messages
// into the session and tears everything down when either side ends.
func (h *Handler) runWebsocketSession(sess *Session, conn *websocket.Conn, read func() ([]string, error)) {
	recv := newWsReceiver(conn, h.options.WebsocketWriteTimeout)
	if err := sess.attachReceiver(recv); err != nil {
		recv.sendFrame(cFrame)
		recv.close()
		_ = conn.Close()
		return
	}
	readCloseCh := make(chan struct{})
	go func() {
		for {
			messages, err := read()
			if err != nil {
				close(readCloseCh)
				return
			}
			if len(messages) > 0 {
				_ = sess.accept(messages...)
			}
		}
	}()
	select {
	case <-readCloseCh:
	case <-recv.doneNotify():
	}
	sess.interrupted()
	_ = conn.Close()
}

type wsReceiver struct {
	conn         *websocket.Conn
	closeCh      chan struct{}
	writeTimeout time.Duration
}

func newWsReceiver(conn *websocket.Conn, writeTimeout time.Duration) *wsReceiver {
	return &wsReceiver{
		conn:         conn,
		closeCh:      make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

func (w *wsReceiver) sendFrame(frame string) {
	if w.writeTimeout != 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		w.close()
	}
}

func (w *wsReceiver) close() {
	select {
	case <-w.closeCh: // already closed
	default:
		close(w.closeCh)
	}
}

func (w *wsReceiver) canSend() bool {
	select {
	case <-w.closeCh: // already closed
		return false
	default:
		return true
	}
}

func (w *wsReceiver) doneNotify() <-chan struct{}        { return w.closeCh }
func (w *wsReceiver) interruptedNotify() <-chan struct{} { return nil }
