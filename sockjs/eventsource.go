package sockjs

import (
	"fmt"
	"net/http"
)

type eventSourceHandler struct{ h *Handler }

func (eventSourceHandler) transport() TransportType { return TransportEventSource }
func (eventSourceHandler) isSessionFactory() bool   { return true }

func (t eventSourceHandler) handleRequest(rw http.ResponseWriter, req *http.Request, sess *Session) {
	rw.Header().Set("Content-Type", "text/event-stream; charset=UTF-8")
	fmt.Fprint(rw, "\r\n")
	rw.(http.Flusher).Flush()

	recv := newHTTPReceiver(rw, req, t.h.options.StreamBytesLimit, new(eventSourceFrameWriter))
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
