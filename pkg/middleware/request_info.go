package middleware

import (
	"net/http"

	"github.com/plantvision/inspection-api/pkg/audit"
)

// RequestInfo stores the client address and user agent in the request context so
// services can attach them to audit entries.
func RequestInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := audit.WithRequestInfo(r.Context(), audit.RequestInfoFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
