package sockjs

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *Handler {
	opts := DefaultOptions
	opts.RawWebsocket = true
	return NewHandler("/echo", opts, echoSessionHandler())
}

func echoSessionHandler() SessionHandlerFuncs {
	return SessionHandlerFuncs{
		Message: func(sess *Session, msg string) { _ = sess.Send(msg) },
	}
}

func TestHandler_Create(t *testing.T) {
	h := newTestHandler()
	defer h.Shutdown()
	if h.Prefix() != "/echo" {
		t.Errorf("Prefix not properly set, got '%s' expected '%s'", h.Prefix(), "/echo")
	}
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/echo")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Welcome to SockJS!\n", string(body))
}

func TestHandler_NotFound(t *testing.T) {
	h := newTestHandler()
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/echo/no/such/endpoint/at/all")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler()
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	req, _ := http.NewRequest("DELETE", server.URL+"/echo/server/session/xhr", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Allow"), "POST")
}

func TestHandler_TransportMethodsFollowProperties(t *testing.T) {
	h := newTestHandler()
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	// each route's accepted method and preflight mapping come from the
	// TransportType properties, so a wrong-method request advertises
	// exactly what the transport declares
	cases := []struct {
		path   string
		method string
		allow  []string
	}{
		{"/server/session/xhr", "GET", []string{"POST", "OPTIONS"}},
		{"/server/session/xhr_streaming", "GET", []string{"POST", "OPTIONS"}},
		{"/server/session/eventsource", "POST", []string{"GET", "OPTIONS"}},
		{"/server/session/jsonp", "POST", []string{"GET", "OPTIONS"}},
		{"/server/session/websocket", "POST", []string{"GET"}},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, server.URL+"/echo"+tc.path, nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, tc.path)
		for _, method := range tc.allow {
			assert.Contains(t, resp.Header.Get("Allow"), method, tc.path)
		}
	}
}

func TestHandler_InfoHandler(t *testing.T) {
	opts := DefaultOptions
	opts.AllowedOrigins = []string{"https://example.com"}
	h := NewHandler("/echo", opts, nil)
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/echo/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-store")

	var i info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&i))
	assert.True(t, i.Websocket)
	assert.False(t, i.CookieNeeded)
	assert.Equal(t, []string{"https://example.com"}, i.Origins)

	// second call must differ in entropy
	resp2, err := http.Get(server.URL + "/echo/info")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var i2 info
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&i2))
	assert.NotEqual(t, i.Entropy, i2.Entropy)
}

func TestHandler_InfoOptions(t *testing.T) {
	h := newTestHandler()
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	req, _ := http.NewRequest("OPTIONS", server.URL+"/echo/info", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "OPTIONS, GET", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHandler_Iframe(t *testing.T) {
	h := newTestHandler()
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/echo/iframe.html")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "SockJS.bootstrap_iframe()")

	req, _ := http.NewRequest("GET", server.URL+"/echo/iframe-1.2.3.min.html", nil)
	req.Header.Set("If-None-Match", etag)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp2.StatusCode)
}

func TestHandler_ParseSessionID(t *testing.T) {
	h := newTestHandler()
	defer h.Shutdown()
	req, _ := http.NewRequest("POST", "/server/session123/xhr", nil)
	id, err := h.parseSessionID(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "session123", id)

	req, _ = http.NewRequest("POST", "/nosession", nil)
	_, err = h.parseSessionID(req.URL)
	assert.Equal(t, errSessionParse, err)
}

func TestHandler_ShutdownClosesSessions(t *testing.T) {
	closed := make(chan struct{})
	opts := DefaultOptions
	h := NewHandler("/echo", opts, SessionHandlerFuncs{
		Close: func(sess *Session, status int, reason string) { close(closed) },
	})
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Post(server.URL+"/echo/server/bye/xhr", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	h.Shutdown()
	<-closed
	assert.Equal(t, 0, h.registry.len())
}
