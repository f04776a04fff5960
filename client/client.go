// Package client implements the client side of the SockJS protocol:
// capability discovery, transport fallback in priority order and a
// single logical session over the transport that won.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cometchan/sockjs-go/sockjs"
)

// Transport is one concrete client side mechanism for carrying frames.
// Connect establishes the connection and starts feeding inbound frames
// into the session; it returns once the connection is usable or failed.
type Transport interface {
	Name() string
	Connect(ctx context.Context, req *transportRequest, sess *Session) (transportConn, error)
}

// Options configure Dial.
type Options struct {
	// HTTPClient used for the info probe and the HTTP transports.
	HTTPClient *http.Client
	// WebsocketDialer used for the websocket transport.
	WebsocketDialer *websocket.Dialer
	// Transports in priority order. Defaults to websocket,
	// xhr-streaming, xhr-polling.
	Transports []Transport
	// Headers added to every request of every attempt.
	Headers http.Header
	// MinConnectTimeout floors the per-attempt connect timeout computed
	// from the info round-trip time. Defaults to one second.
	MinConnectTimeout time.Duration
	// Codec overrides the wire framing. Defaults to sockjs.DefaultCodec.
	Codec sockjs.Codec
	// Logger for attempt and failure records. Defaults to a disabled
	// logger.
	Logger zerolog.Logger
}

// ErrAllTransportsFailed is returned by Dial when no configured
// transport produced an open session.
var ErrAllTransportsFailed = errors.New("sockjs client: all transports failed")

type serverInfo struct {
	Websocket    bool     `json:"websocket"`
	CookieNeeded bool     `json:"cookie_needed"`
	Origins      []string `json:"origins"`
	Entropy      int32    `json:"entropy"`
}

// Dial connects to the SockJS endpoint at baseURL, trying transports in
// priority order until one delivers the open frame. The connect timeout
// per attempt scales with the round-trip time observed on the initial
// /info exchange, so slower networks get proportionally longer.
func Dial(ctx context.Context, baseURL string, handler Handler, opts Options) (*Session, error) {
	if handler == nil {
		handler = HandlerFuncs{}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	dialer := opts.WebsocketDialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	codec := opts.Codec
	if codec == nil {
		codec = sockjs.DefaultCodec
	}
	transports := opts.Transports
	if transports == nil {
		transports = DefaultTransports()
	}
	minTimeout := opts.MinConnectTimeout
	if minTimeout <= 0 {
		minTimeout = time.Second
	}

	info, rtt, err := fetchInfo(ctx, httpClient, baseURL, opts.Headers)
	if err != nil {
		return nil, fmt.Errorf("sockjs client: info request: %w", err)
	}
	connectTimeout := 4 * rtt
	if connectTimeout < minTimeout {
		connectTimeout = minTimeout
	}

	var lastErr error = ErrAllTransportsFailed
	for _, tr := range transports {
		if tr.Name() == "websocket" && !info.Websocket {
			continue
		}
		// a fresh session id per attempt: a half-created server session
		// from a failed attempt must never collide with the next one
		sess := newSession(uuid.NewString(), handler, codec, opts.Logger)
		sess.transport = tr.Name()
		req := &transportRequest{
			baseURL:        baseURL,
			serverID:       fmt.Sprintf("%03d", rand.Intn(1000)),
			sessionID:      sess.id,
			headers:        opts.Headers,
			codec:          codec,
			httpClient:     httpClient,
			dialer:         dialer,
			connectTimeout: connectTimeout,
			timeouts:       sess.timeouts,
		}
		// arming replaces any previous timeout task of this session
		sess.timeouts.arm(connectTimeout, sess.connectTimedOut)

		conn, err := tr.Connect(ctx, req, sess)
		if err != nil {
			sess.abandon()
			lastErr = err
			opts.Logger.Debug().Str("transport", tr.Name()).Err(err).Msg("transport attempt failed")
			continue
		}
		sess.setConn(conn)

		select {
		case <-sess.openCh:
			return sess, nil
		case <-sess.closeCh:
			lastErr = fmt.Errorf("sockjs client: %s: closed before open (%d %s)",
				tr.Name(), sess.closeStatus, sess.closeReason)
			opts.Logger.Debug().Str("transport", tr.Name()).Err(lastErr).Msg("transport attempt failed")
			continue
		case <-ctx.Done():
			sess.abandon()
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// DefaultTransports returns the standard priority order.
func DefaultTransports() []Transport {
	return []Transport{
		websocketTransport{},
		xhrTransport{streaming: true},
		xhrTransport{streaming: false},
	}
}

// fetchInfo runs the capability discovery exchange and measures its
// round-trip time.
func fetchInfo(ctx context.Context, client *http.Client, baseURL string, headers http.Header) (serverInfo, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", baseURL+"/info", nil)
	if err != nil {
		return serverInfo{}, 0, err
	}
	for k, vs := range headers {
		req.Header[k] = vs
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return serverInfo{}, 0, err
	}
	defer resp.Body.Close()
	rtt := time.Since(start)
	if resp.StatusCode != http.StatusOK {
		return serverInfo{}, rtt, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var info serverInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return serverInfo{}, rtt, err
	}
	return info, rtt, nil
}
