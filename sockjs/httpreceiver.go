package sockjs

import (
	"fmt"
	"io"
	"net/http"
	"sync"
)

// frameWriter is the transport specific envelope around an encoded
// frame: bare line for xhr, SSE event for eventsource, script call for
// jsonp.
type frameWriter interface {
	write(w io.Writer, frame string) (int, error)
}

type httpReceiverState int

const (
	stateHTTPReceiverActive httpReceiverState = iota
	stateHTTPReceiverClosed
)

// httpReceiver writes frames into one HTTP response. A polling receiver
// is created with a limit of 1 byte so it recycles after the first
// frame; a streaming receiver recycles once maxResponseSize is written,
// forcing the client to reconnect before proxies buffer too much.
type httpReceiver struct {
	sync.Mutex
	state httpReceiverState

	frameWriter         frameWriter
	rw                  http.ResponseWriter
	maxResponseSize     int
	currentResponseSize int
	doneCh              chan struct{}
	interruptCh         chan struct{}
}

func newHTTPReceiver(rw http.ResponseWriter, req *http.Request, maxResponse int, fw frameWriter) *httpReceiver {
	recv := &httpReceiver{
		rw:              rw,
		frameWriter:     fw,
		maxResponseSize: maxResponse,
		doneCh:          make(chan struct{}),
		interruptCh:     make(chan struct{}),
	}
	go func() {
		select {
		case <-req.Context().Done():
			close(recv.interruptCh)
		case <-recv.doneCh:
			// receiver closed in the correct way, just finish
		}
	}()
	return recv
}

func (recv *httpReceiver) sendFrame(value string) {
	recv.Lock()
	defer recv.Unlock()

	if recv.state != stateHTTPReceiverActive {
		return
	}
	n, err := recv.frameWriter.write(recv.rw, value)
	if err != nil {
		recv.state = stateHTTPReceiverClosed
		close(recv.doneCh)
		return
	}
	recv.currentResponseSize += n
	if recv.currentResponseSize >= recv.maxResponseSize {
		recv.state = stateHTTPReceiverClosed
		close(recv.doneCh)
	} else if flusher, ok := recv.rw.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (recv *httpReceiver) canSend() bool {
	recv.Lock()
	defer recv.Unlock()
	return recv.state == stateHTTPReceiverActive
}

func (recv *httpReceiver) doneNotify() <-chan struct{}        { return recv.doneCh }
func (recv *httpReceiver) interruptedNotify() <-chan struct{} { return recv.interruptCh }

func (recv *httpReceiver) close() {
	recv.Lock()
	defer recv.Unlock()
	if recv.state < stateHTTPReceiverClosed {
		recv.state = stateHTTPReceiverClosed
		close(recv.doneCh)
	}
}

type xhrFrameWriter struct{}

func (*xhrFrameWriter) write(w io.Writer, frame string) (int, error) {
	return fmt.Fprintf(w, "%s\n", frame)
}

type eventSourceFrameWriter struct{}

func (*eventSourceFrameWriter) write(w io.Writer, frame string) (int, error) {
	return fmt.Fprintf(w, "data: %s\r\n\r\n", frame)
}

type jsonpFrameWriter struct{ callback string }

func (j *jsonpFrameWriter) write(w io.Writer, frame string) (int, error) {
	return fmt.Fprintf(w, "%s(%s);\r\n", j.callback, quote(frame))
}
