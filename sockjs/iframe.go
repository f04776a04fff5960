package sockjs

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"net/http"
	"text/template"
)

var iframeTemplate = template.Must(template.New("iframe").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta http-equiv="X-UA-Compatible" content="IE=edge" />
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
  <script>
    document.domain = document.domain;
    _sockjs_onload = function(){SockJS.bootstrap_iframe();};
  </script>
  <script src="{{.}}"></script>
</head>
<body>
  <h2>Don't panic!</h2>
  <p>This is a SockJS hidden iframe. It's used for cross domain magic.</p>
</body>
</html>`))

func (h *Handler) iframeHandler(rw http.ResponseWriter, req *http.Request) {
	content := new(bytes.Buffer)
	_ = iframeTemplate.Execute(content, h.options.SockJSURL)
	etag := fmt.Sprintf("%x", md5.Sum(content.Bytes()))
	if req.Header.Get("If-None-Match") == etag {
		rw.WriteHeader(http.StatusNotModified)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=UTF-8")
	rw.Header().Set("ETag", etag)
	_, _ = rw.Write(content.Bytes())
}
