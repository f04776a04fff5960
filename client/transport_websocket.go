package client

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// websocketTransport is the native full-duplex transport.
type websocketTransport struct{}

func (websocketTransport) Name() string { return "websocket" }

func (websocketTransport) Connect(ctx context.Context, req *transportRequest, sess *Session) (transportConn, error) {
	conn, resp, err := req.dialer.DialContext(ctx, req.websocketURL(), req.headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	wc := &wsConn{conn: conn}
	go func() {
		for {
			frameType, p, err := conn.ReadMessage()
			if err != nil {
				sess.transportError(err)
				return
			}
			if frameType == websocket.TextMessage {
				sess.handleFrame(p)
			}
		}
	}()
	return wc, nil
}

type wsConn struct {
	writeMux sync.Mutex
	conn     *websocket.Conn
	once     sync.Once
}

func (c *wsConn) send(messages ...string) error {
	// outbound messages travel as a JSON array in one text frame;
	// gorilla permits at most one concurrent writer
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	return c.conn.WriteJSON(messages)
}

func (c *wsConn) close() {
	c.once.Do(func() { _ = c.conn.Close() })
}
