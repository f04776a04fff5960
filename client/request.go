package client

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cometchan/sockjs-go/sockjs"
)

// transportRequest describes one connection attempt: where to connect,
// with which headers and codec, and the timeout tasks guarding the
// attempt.
type transportRequest struct {
	baseURL        string
	serverID       string
	sessionID      string
	headers        http.Header
	codec          sockjs.Codec
	httpClient     *http.Client
	dialer         *websocket.Dialer
	connectTimeout time.Duration
	timeouts       *timeoutRegistry
}

// transportURL is the session endpoint for the named transport:
// <base>/<serverId>/<sessionId>/<name>.
func (r *transportRequest) transportURL(name string) string {
	return r.baseURL + "/" + r.serverID + "/" + r.sessionID + "/" + name
}

// websocketURL rewrites the http(s) scheme to ws(s).
func (r *transportRequest) websocketURL() string {
	u := r.transportURL("websocket")
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// timeoutRegistry owns the cancellable timeout tasks of one session.
// Arming a new task cancels the previous one, so a stale timeout can
// never fire into a newer attempt.
type timeoutRegistry struct {
	mux   sync.Mutex
	timer *time.Timer
}

func newTimeoutRegistry() *timeoutRegistry { return &timeoutRegistry{} }

func (r *timeoutRegistry) arm(d time.Duration, fn func()) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(d, fn)
}

func (r *timeoutRegistry) cancel() {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
