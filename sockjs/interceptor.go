package sockjs

import "net/http"

// HandshakeInterceptor hooks into session establishment.
// BeforeHandshake runs in registration order and may veto the
// connection by returning false; it can attach contextual attributes
// that become visible through Session.Attr. AfterHandshake runs in
// reverse order for every interceptor whose BeforeHandshake already
// ran, even when a later interceptor or the handshake itself failed,
// so resources acquired in Before are always released.
type HandshakeInterceptor interface {
	BeforeHandshake(req *http.Request, rw http.ResponseWriter, attributes map[string]interface{}) bool
	AfterHandshake(req *http.Request, rw http.ResponseWriter, failure error)
}

type interceptorChain []HandshakeInterceptor

var errHandshakeRejected = &handshakeError{}

type handshakeError struct{}

func (*handshakeError) Error() string { return "sockjs: handshake rejected by interceptor" }

// applyBefore runs the chain and returns how many interceptors ran, so
// applyAfter can unwind exactly those. ran counts the vetoing
// interceptor itself: its Before ran, its After must run too.
func (c interceptorChain) applyBefore(req *http.Request, rw http.ResponseWriter, attributes map[string]interface{}) (ran int, ok bool) {
	for i, interceptor := range c {
		if !interceptor.BeforeHandshake(req, rw, attributes) {
			return i + 1, false
		}
	}
	return len(c), true
}

func (c interceptorChain) applyAfter(req *http.Request, rw http.ResponseWriter, ran int, failure error) {
	for i := ran - 1; i >= 0; i-- {
		c[i].AfterHandshake(req, rw, failure)
	}
}
