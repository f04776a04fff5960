package sockjs

import "net/http"

// TransportType is the closed set of mechanisms that can carry frames
// between server and peer. Each carries the static HTTP properties the
// routing layer enforces before a request reaches the session.
type TransportType int

const (
	// TransportWebsocket is the framed full-duplex socket transport.
	TransportWebsocket TransportType = iota
	// TransportRawWebsocket is the full-duplex socket without framing.
	TransportRawWebsocket
	// TransportXHRStreaming holds the response open and pushes frames.
	TransportXHRStreaming
	// TransportEventSource streams frames as server-sent events.
	TransportEventSource
	// TransportXHRPolling returns one frame per request/response cycle.
	TransportXHRPolling
	// TransportJSONP is callback-wrapped polling for cross-origin
	// scripting on legacy browsers. Deprecated upstream.
	TransportJSONP
)

// Name is the transport path segment in /<server>/<session>/<name>.
func (t TransportType) Name() string {
	switch t {
	case TransportWebsocket, TransportRawWebsocket:
		return "websocket"
	case TransportXHRStreaming:
		return "xhr_streaming"
	case TransportEventSource:
		return "eventsource"
	case TransportXHRPolling:
		return "xhr"
	case TransportJSONP:
		return "jsonp"
	}
	return ""
}

// Method is the HTTP method the transport requires.
func (t TransportType) Method() string {
	switch t {
	case TransportXHRStreaming, TransportXHRPolling:
		return "POST"
	default:
		return "GET"
	}
}

// SupportsCORS reports whether the transport serves cross-origin
// requests and therefore needs CORS response headers.
func (t TransportType) SupportsCORS() bool {
	switch t {
	case TransportWebsocket, TransportRawWebsocket:
		return false
	default:
		return true
	}
}

// NoCache reports whether responses must carry cache suppression
// headers (any transport an intermediary might replay from cache).
func (t TransportType) NoCache() bool {
	return t != TransportWebsocket && t != TransportRawWebsocket
}

// ChecksOrigin reports whether the Origin header is meaningful for the
// transport and should be validated against the allowed set. HTTP
// transports rely on CORS response headers instead.
func (t TransportType) ChecksOrigin() bool {
	return t == TransportWebsocket || t == TransportRawWebsocket
}

// transportHandler is the per-transport strategy. Implementations only
// deal with the I/O peculiarities of their TransportType; routing,
// method/CORS policy and session lookup happen before handleRequest.
type transportHandler interface {
	transport() TransportType
	handleRequest(rw http.ResponseWriter, req *http.Request, sess *Session)
}

// sessionFactory marks transport handlers on which first contact with
// an unseen session id may create the session. Send-only endpoints are
// not factories: an unknown id there is a lost session, not a new one.
type sessionFactory interface {
	isSessionFactory() bool
}

func isFactory(th transportHandler) bool {
	f, ok := th.(sessionFactory)
	return ok && f.isSessionFactory()
}
