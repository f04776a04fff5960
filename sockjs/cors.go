package sockjs

import (
	"fmt"
	"net/http"
	"time"
)

func xhrCorsFactory(options Options) func(rw http.ResponseWriter, req *http.Request) {
	return func(rw http.ResponseWriter, req *http.Request) {
		header := rw.Header()
		origin := req.Header.Get("Origin")
		if origin == "" || origin == "null" {
			origin = "*"
		} else if !options.originAllowed(origin) {
			origin = "null"
		}
		header.Set("Access-Control-Allow-Origin", origin)
		if origin != "*" && origin != "null" {
			header.Set("Access-Control-Allow-Credentials", "true")
		}
		if allowHeaders := req.Header.Get("Access-Control-Request-Headers"); allowHeaders != "" && allowHeaders != "null" {
			header.Set("Access-Control-Allow-Headers", allowHeaders)
		}
	}
}

func xhrOptions(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Access-Control-Allow-Methods", "OPTIONS, POST")
	rw.WriteHeader(http.StatusNoContent) // 204
}

func cacheFor(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", 365*24*60*60))
	rw.Header().Set("Expires", time.Now().AddDate(1, 0, 0).Format(time.RFC1123))
	rw.Header().Set("Access-Control-Max-Age", "1000000")
}

func noCache(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Cache-Control", "no-store, no-cache, no-transform, must-revalidate, max-age=0")
}

func welcomeHandler(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Content-Type", "text/plain;charset=UTF-8")
	fmt.Fprint(rw, "Welcome to SockJS!\n")
}

func httpError(rw http.ResponseWriter, error string, code int) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(code)
	fmt.Fprint(rw, error)
}
