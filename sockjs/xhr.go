package sockjs

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var xhrStreamingPrelude = strings.Repeat("h", 2048)

// cFrame sent to a receiver that lost the attach race.
var cFrame = closeFrame(2010, "Another connection still open")

type xhrPollingHandler struct{ h *Handler }

func (xhrPollingHandler) transport() TransportType { return TransportXHRPolling }
func (xhrPollingHandler) isSessionFactory() bool   { return true }

func (t xhrPollingHandler) handleRequest(rw http.ResponseWriter, req *http.Request, sess *Session) {
	rw.Header().Set("Content-Type", "application/javascript; charset=UTF-8")
	// limit 1 byte: the response recycles after a single frame
	recv := newHTTPReceiver(rw, req, 1, new(xhrFrameWriter))
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

type xhrStreamingHandler struct{ h *Handler }

func (xhrStreamingHandler) transport() TransportType { return TransportXHRStreaming }
func (xhrStreamingHandler) isSessionFactory() bool   { return true }

func (t xhrStreamingHandler) handleRequest(rw http.ResponseWriter, req *http.Request, sess *Session) {
	rw.Header().Set("Content-Type", "application/javascript; charset=UTF-8")
	fmt.Fprintf(rw, "%s\n", xhrStreamingPrelude)
	rw.(http.Flusher).Flush()

	recv := newHTTPReceiver(rw, req, t.h.options.StreamBytesLimit, new(xhrFrameWriter))
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

func (h *Handler) xhrSend(rw http.ResponseWriter, req *http.Request) {
	if req.Body == nil {
		httpError(rw, "Payload expected.", http.StatusInternalServerError)
		return
	}
	var messages []string
	err := json.NewDecoder(req.Body).Decode(&messages)
	if err == io.EOF {
		httpError(rw, "Payload expected.", http.StatusInternalServerError)
		return
	}
	if _, ok := err.(*json.SyntaxError); ok || err == io.ErrUnexpectedEOF {
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
	rw.WriteHeader(http.StatusNoContent)
}
