package sockjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"regexp"
)

// jsonp is the legacy callback-polling transport. Deprecated upstream
// in favor of native transports, kept for very old cross-origin
// clients; single frame per poll, no streaming.

var callbackRegExp = regexp.MustCompile(`[^a-zA-Z0-9_.]`)

type jsonpHandler struct{ h *Handler }

func (jsonpHandler) transport() TransportType { return TransportJSONP }
func (jsonpHandler) isSessionFactory() bool   { return true }

func (t jsonpHandler) handleRequest(rw http.ResponseWriter, req *http.Request, sess *Session) {
	rw.Header().Set("Content-Type", "application/javascript; charset=UTF-8")
	if err := req.ParseForm(); err != nil {
		httpError(rw, "Bad query", http.StatusInternalServerError)
		return
	}
	callback := req.Form.Get("c")
	if callback == "" || callbackRegExp.MatchString(callback) {
		httpError(rw, `"callback" parameter required`, http.StatusInternalServerError)
		return
	}
	recv := newHTTPReceiver(rw, req, 1, &jsonpFrameWriter{callback})
	if err := sess.attachReceiver(recv); err != nil {
		recv.sendFrame(cFrame)
		recv.close()
		return
	}
	select {
	case <-recv.doneNotify():
	case <-recv.interruptedNotify():
	}
}

func (h *Handler) jsonpSend(rw http.ResponseWriter, req *http.Request) {
	payload, err := extractSendContent(req)
	if err != nil {
		httpError(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(payload) < 2 {
		httpError(rw, "Payload expected.", http.StatusInternalServerError)
		return
	}
	var messages []string
	if json.Unmarshal(payload, &messages) != nil {
		httpError(rw, "Broken JSON encoding.", http.StatusInternalServerError)
		return
	}
	sessionID, err := h.parseSessionID(req.URL)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	sess, ok := h.registry.get(sessionID)
	if !ok {
		http.NotFound(rw, req)
		return
	}
	if err := sess.accept(messages...); err != nil {
		http.NotFound(rw, req)
		return
	}
	rw.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("ok"))
}

// extractSendContent reads the message payload from either a plain or a
// form encoded jsonp_send body.
func extractSendContent(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, errors.New("Payload expected.")
	}
	buf := new(bytes.Buffer)
	_, _ = io.Copy(buf, req.Body)
	_ = req.Body.Close()
	switch req.Header.Get("Content-Type") {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(buf.String())
		if err != nil {
			return nil, errors.New("Could not parse query")
		}
		return []byte(values.Get("d")), nil
	case "text/plain":
		return buf.Bytes(), nil
	}
	return nil, errors.New("Unrecognized content type")
}
