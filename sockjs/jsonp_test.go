package sockjs

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONP_PollAndSend(t *testing.T) {
	h := NewHandler("", DefaultOptions, echoSessionHandler())
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/server/jp/jsonp?c=callback")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "callback(\"o\");\r\n", string(body))
	waitDetached(t, h, "jp")

	// form encoded send variant
	form := url.Values{"d": []string{`["hi"]`}}
	resp, err = http.Post(server.URL+"/server/jp/jsonp_send",
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(server.URL + "/server/jp/jsonp?c=callback")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, `callback("a[\"hi\"]");`+"\r\n", string(body))
}

func TestJSONP_CallbackValidation(t *testing.T) {
	h := NewHandler("", DefaultOptions, nil)
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	for _, path := range []string{
		"/server/jpv/jsonp",
		"/server/jpv/jsonp?c=invalid()",
		"/server/jpv/jsonp?c=alert;",
	} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, path)
		assert.Equal(t, `"callback" parameter required`, string(body), path)
	}
}

func TestJSONPSend_PayloadErrors(t *testing.T) {
	h := NewHandler("", DefaultOptions, nil)
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/server/jps/jsonp?c=cb")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cases := []struct {
		name        string
		contentType string
		payload     string
		body        string
	}{
		{"empty plain body", "text/plain", "", "Payload expected."},
		{"empty form value", "application/x-www-form-urlencoded", "d=", "Payload expected."},
		{"broken json", "text/plain", `["unterminated`, "Broken JSON encoding."},
		{"unknown content type", "application/octet-stream", `["hi"]`, "Unrecognized content type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/server/jps/jsonp_send", tc.contentType, strings.NewReader(tc.payload))
			require.NoError(t, err)
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			assert.Equal(t, tc.body, string(body))
		})
	}
}

func TestJSONP_DisabledByOption(t *testing.T) {
	opts := DefaultOptions
	opts.JSONP = false
	h := NewHandler("", opts, nil)
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/server/off/jsonp?c=cb")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventSource_PreludeAndFraming(t *testing.T) {
	opts := DefaultOptions
	opts.StreamBytesLimit = 1 // recycle after the first frame
	h := NewHandler("", opts, nil)
	defer h.Shutdown()
	server := httptest.NewServer(h)
	defer server.Close()

	resp, err := http.Get(server.URL + "/server/es/eventsource")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream; charset=UTF-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "\r\ndata: o\r\n\r\n", string(body))
}
