// Package requesttime stamps each request with the time it entered the server
// so access logs and audit events of one request agree on "when".
package requesttime

import (
	"net/http"
	"time"

	"keepsake/pkg/requestcontext"
)

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
