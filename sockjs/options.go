package sockjs

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Options control the behavior of a Handler and its sessions.
type Options struct {
	// SockJSURL is the url to the client library script, used in the
	// iframe bootstrap page.
	SockJSURL string
	// Websocket enables the framed websocket transport.
	Websocket bool
	// RawWebsocket enables the unframed websocket endpoint.
	RawWebsocket bool
	// JSONP enables the legacy callback-polling transport.
	JSONP bool
	// DisconnectDelay is the inactivity window after which an idle
	// session is evicted by the sweep.
	DisconnectDelay time.Duration
	// HeartbeatInterval is the time between heartbeat frames written to
	// an open session with an attached receiver.
	HeartbeatInterval time.Duration
	// SweepInterval is the fixed period of the shared scheduler that
	// runs session expiry and heartbeats.
	SweepInterval time.Duration
	// HTTPMessageCacheSize bounds the number of outbound messages
	// retained across polling round-trips. A session exceeding it is
	// closed rather than silently dropping messages.
	HTTPMessageCacheSize int
	// StreamBytesLimit is the number of response bytes written before a
	// streaming response is recycled and the client must reconnect.
	StreamBytesLimit int
	// AllowedOrigins is the set of permitted Origin header values for
	// origin-checking transports and the /info origins list. Empty or
	// containing "*" allows any origin.
	AllowedOrigins []string
	// JSessionID, when set, is invoked on session endpoints to manage a
	// sticky-session cookie. Use DefaultJSessionID for the standard
	// echo behavior, or leave nil to disable cookies.
	JSessionID func(http.ResponseWriter, *http.Request)
	// Principal, when set, extracts an authenticated principal from the
	// handshake request; the result is exposed via Session.Principal.
	Principal func(*http.Request) string
	// HandshakeInterceptors run around session creation in
	// registration order; see HandshakeInterceptor.
	HandshakeInterceptors []HandshakeInterceptor
	// Codec overrides the wire framing. Defaults to DefaultCodec.
	Codec Codec

	WebsocketWriteTimeout time.Duration
	WebsocketUpgrader     *websocket.Upgrader

	// Logger receives sweep and delivery-failure records. Defaults to a
	// disabled logger.
	Logger zerolog.Logger
}

// DefaultOptions are the recommended defaults.
var DefaultOptions = Options{
	SockJSURL:            "https://cdn.jsdelivr.net/npm/sockjs-client@1/dist/sockjs.min.js",
	Websocket:            true,
	JSONP:                true,
	DisconnectDelay:      5 * time.Second,
	HeartbeatInterval:    25 * time.Second,
	SweepInterval:        time.Second,
	HTTPMessageCacheSize: 100,
	StreamBytesLimit:     128 * 1024,
	Logger:               zerolog.Nop(),
}

// DefaultJSessionID echoes the JSESSIONID cookie back to the client,
// or sets a dummy one, for load balancers that require it.
var DefaultJSessionID = func(rw http.ResponseWriter, req *http.Request) {
	cookie, err := req.Cookie("JSESSIONID")
	if err == http.ErrNoCookie {
		cookie = &http.Cookie{
			Name:  "JSESSIONID",
			Value: "dummy",
		}
	}
	cookie.Path = "/"
	rw.Header().Set("Set-Cookie", cookie.String())
}

func (options *Options) cookie(rw http.ResponseWriter, req *http.Request) {
	if options.JSessionID != nil {
		options.JSessionID(rw, req)
	}
}

func (options *Options) codec() Codec {
	if options.Codec != nil {
		return options.Codec
	}
	return DefaultCodec
}

// originAllowed is the yes/no origin policy check. Empty Origin headers
// pass; anything else must be in the allowed set unless the set is
// empty or contains "*".
func (options *Options) originAllowed(origin string) bool {
	if origin == "" || origin == "null" {
		return true
	}
	if len(options.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range options.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
