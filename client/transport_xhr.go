package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// xhrTransport covers both HTTP receive modes: a long-lived streaming
// response, or a short poll returning one frame per round-trip. Both
// send through xhr_send.
type xhrTransport struct{ streaming bool }

func (t xhrTransport) Name() string {
	if t.streaming {
		return "xhr-streaming"
	}
	return "xhr-polling"
}

func (t xhrTransport) endpoint() string {
	if t.streaming {
		return "xhr_streaming"
	}
	return "xhr"
}

func (t xhrTransport) Connect(ctx context.Context, req *transportRequest, sess *Session) (transportConn, error) {
	// the connection must outlive the Dial context, it is torn down by
	// close instead
	connCtx, cancel := context.WithCancel(context.Background())
	conn := &xhrConn{
		req:      req,
		endpoint: t.endpoint(),
		cancel:   cancel,
	}
	resp, err := conn.open(connCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	go conn.pump(connCtx, resp, sess)
	return conn, nil
}

type xhrConn struct {
	req      *transportRequest
	endpoint string
	cancel   context.CancelFunc
	once     sync.Once
}

// open issues one receive request. For streaming this is the long
// lived response; for polling it blocks until a frame is pending.
func (c *xhrConn) open(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.req.transportURL(c.endpoint), nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.req.headers {
		req.Header[k] = vs
	}
	resp, err := c.req.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d on %s", resp.StatusCode, c.endpoint)
	}
	return resp, nil
}

// pump reads frames line by line and reconnects when the server
// recycles the response (stream byte limit) or a poll cycle completes.
// A single goroutine feeds the session, preserving frame order.
func (c *xhrConn) pump(ctx context.Context, resp *http.Response, sess *Session) {
	for {
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := scanner.Bytes(); len(line) > 0 {
				sess.handleFrame(line)
			}
		}
		_ = resp.Body.Close()
		if ctx.Err() != nil || sess.State() >= SessionClosing {
			return
		}
		var err error
		if resp, err = c.open(ctx); err != nil {
			if ctx.Err() == nil {
				sess.transportError(err)
			}
			return
		}
	}
}

func (c *xhrConn) send(messages ...string) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", c.req.transportURL("xhr_send"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, vs := range c.req.headers {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "text/plain; charset=UTF-8")
	resp, err := c.req.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d on xhr_send", resp.StatusCode)
	}
	return nil
}

func (c *xhrConn) close() {
	c.once.Do(c.cancel)
}
