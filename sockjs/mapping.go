package sockjs

import (
	"net/http"
	"regexp"
)

type mapping struct {
	method string
	path   *regexp.Regexp
	chain  []http.HandlerFunc
}

func newMapping(method string, re string, handlers ...http.HandlerFunc) *mapping {
	return &mapping{method, regexp.MustCompile(re), handlers}
}

type matchType uint32

const (
	fullMatch matchType = iota
	pathMatch
	noMatch
)

// matches checks if the given request matches the mapping. Returns
// pathMatch if the path matches but the method does not, so the caller
// can assemble an Allow header.
func (m *mapping) matches(req *http.Request) (match matchType, method string) {
	if !m.path.MatchString(req.URL.Path) {
		match = noMatch
	} else if req.Method != m.method {
		match = pathMatch
	} else {
		match = fullMatch
	}
	return match, m.method
}
