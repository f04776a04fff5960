package sockjs

import (
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Handler is the top level coordinator on the server: it routes
// transport requests to sessions, creates sessions on first contact
// through factory transports and runs the shared expiry/heartbeat
// scheduler. It implements net/http.Handler.
type Handler struct {
	prefix    string
	options   Options
	handler   SessionHandler
	mappings  []*mapping
	registry  *sessionRegistry
	scheduler *scheduler
}

const sessionPrefix = "^/([^/.]+)/([^/.]+)"

var sessionRegExp = regexp.MustCompile(sessionPrefix + "/")

var errSessionLost = errors.New("sockjs: session not found")

// NewHandler creates a new HTTP handler with the given path prefix,
// options and application session handler. The returned handler owns a
// background scheduler; call Shutdown to release it.
func NewHandler(prefix string, opts Options, sessionHandler SessionHandler) *Handler {
	if sessionHandler == nil {
		sessionHandler = SessionHandlerFuncs{}
	}
	h := &Handler{
		prefix:   prefix,
		options:  opts,
		handler:  sessionHandler,
		registry: &sessionRegistry{},
	}
	h.fillMappings()
	h.scheduler = newScheduler(h.registry, &h.options)
	go h.scheduler.run()
	return h
}

// Prefix returns the path prefix the handler was mounted with.
func (h *Handler) Prefix() string { return h.prefix }

// Shutdown stops the background scheduler and closes all sessions.
func (h *Handler) Shutdown() {
	h.scheduler.stop()
	h.registry.sessions.Range(func(_, v interface{}) bool {
		sess := v.(*Session)
		sess.closing(3000, "Go away!")
		sess.close()
		h.registry.remove(sess.ID())
		return true
	})
}

func (h *Handler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	http.StripPrefix(h.prefix, http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		var allowedMethods []string
		for _, mapping := range h.mappings {
			if match, method := mapping.matches(req); match == fullMatch {
				for _, hf := range mapping.chain {
					hf(rw, req)
				}
				return
			} else if match == pathMatch {
				allowedMethods = append(allowedMethods, method)
			}
		}
		if len(allowedMethods) > 0 {
			rw.Header().Set("Allow", strings.Join(allowedMethods, ", "))
			rw.Header().Set("Content-Type", "")
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		http.NotFound(rw, req)
	})).ServeHTTP(rw, req)
}

func (h *Handler) fillMappings() {
	xhrCors := xhrCorsFactory(h.options)
	cookie := h.options.cookie

	h.mappings = []*mapping{
		newMapping("GET", "^[/]?$", welcomeHandler),
		newMapping("OPTIONS", "^/info$", cookie, xhrCors, cacheFor, h.infoOptions),
		newMapping("GET", "^/info$", xhrCors, noCache, h.infoHandler),
		newMapping("GET", "^/iframe[0-9-.a-z_]*.html$", cacheFor, h.iframeHandler),
	}

	// a transport route's method and middleware chain are derived from
	// the TransportType properties, so the routing policy and the
	// transport's declared properties cannot drift apart
	addTransport := func(path string, th transportHandler) {
		t := th.transport()
		var chain []http.HandlerFunc
		if t.SupportsCORS() {
			chain = append(chain, cookie, xhrCors)
		}
		if t.NoCache() {
			chain = append(chain, noCache)
		}
		chain = append(chain, h.dispatch(th))
		h.mappings = append(h.mappings, newMapping(t.Method(), path, chain...))
		if t.SupportsCORS() {
			h.mappings = append(h.mappings,
				newMapping("OPTIONS", path, cookie, xhrCors, cacheFor, xhrOptions))
		}
	}

	addTransport(sessionPrefix+"/xhr$", xhrPollingHandler{h})
	addTransport(sessionPrefix+"/xhr_streaming$", xhrStreamingHandler{h})
	h.mappings = append(h.mappings,
		newMapping("POST", sessionPrefix+"/xhr_send$", cookie, xhrCors, noCache, h.xhrSend),
		newMapping("OPTIONS", sessionPrefix+"/xhr_send$", cookie, xhrCors, cacheFor, xhrOptions),
	)
	addTransport(sessionPrefix+"/eventsource$", eventSourceHandler{h})
	if h.options.JSONP {
		addTransport(sessionPrefix+"/jsonp$", jsonpHandler{h})
		h.mappings = append(h.mappings,
			newMapping("POST", sessionPrefix+"/jsonp_send$", cookie, xhrCors, noCache, h.jsonpSend))
	}
	if h.options.Websocket {
		addTransport(sessionPrefix+"/websocket$", websocketHandler{h})
	}
	if h.options.RawWebsocket {
		h.mappings = append(h.mappings,
			newMapping("GET", "^/websocket$", h.rawWebsocket),
		)
	}
}

// dispatch wraps a transport handler with the shared per-request steps:
// origin policy, session routing and factory-gated creation.
func (h *Handler) dispatch(th transportHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		if th.transport().ChecksOrigin() && !h.options.originAllowed(req.Header.Get("Origin")) {
			httpError(rw, "Origin not allowed.", http.StatusForbidden)
			return
		}
		sess, err := h.sessionByRequest(rw, req, th)
		switch {
		case err == errSessionLost:
			// unknown id on a non-factory transport: the session state
			// is gone (e.g. server restart), reject without creating it
			http.NotFound(rw, req)
			return
		case errors.Is(err, errHandshakeRejected):
			httpError(rw, err.Error(), http.StatusForbidden)
			return
		case err != nil:
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		th.handleRequest(rw, req, sess)
	}
}

func (h *Handler) parseSessionID(url *url.URL) (string, error) {
	matches := sessionRegExp.FindStringSubmatch(url.Path)
	if len(matches) == 3 {
		return matches[2], nil
	}
	return "", errSessionParse
}

// sessionByRequest routes the request to its session, lazily creating
// one when the id is unseen and the transport is a session factory.
func (h *Handler) sessionByRequest(rw http.ResponseWriter, req *http.Request, th transportHandler) (*Session, error) {
	sessionID, err := h.parseSessionID(req.URL)
	if err != nil {
		return nil, err
	}
	if sess, ok := h.registry.get(sessionID); ok {
		sess.touch()
		return sess, nil
	}
	if !isFactory(th) {
		return nil, errSessionLost
	}
	return h.createSession(rw, req, sessionID)
}

// createSession runs the handshake interceptor chain and registers the
// new session. The chain's after hooks run for every interceptor whose
// before hook ran, whatever the outcome.
func (h *Handler) createSession(rw http.ResponseWriter, req *http.Request, sessionID string) (*Session, error) {
	chain := interceptorChain(h.options.HandshakeInterceptors)
	attributes := map[string]interface{}{}
	ran, ok := chain.applyBefore(req, rw, attributes)
	if !ok {
		chain.applyAfter(req, rw, ran, errHandshakeRejected)
		return nil, errHandshakeRejected
	}
	sess := newSession(req, sessionID, h.handler, &h.options)
	sess.attributes = attributes
	if h.options.Principal != nil {
		sess.principal = h.options.Principal(req)
	}
	actual, created := h.registry.getOrStore(sessionID, sess)
	if created {
		go func() {
			<-actual.ClosedNotify()
			h.registry.remove(sessionID)
		}()
	}
	chain.applyAfter(req, rw, ran, nil)
	return actual, nil
}
