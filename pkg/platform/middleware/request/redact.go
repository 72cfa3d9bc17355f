package request

import (
	"net/http"
	"strings"
)

const tokenPathPrefix = "/v1/release/tokens/"

// RedactedPath returns the request path with any release token replaced.
func RedactedPath(r *http.Request) string {
	p := r.URL.Path
	if strings.HasPrefix(p, tokenPathPrefix) && len(p) > len(tokenPathPrefix) {
		return tokenPathPrefix + "[redacted]"
	}
	return p
}
