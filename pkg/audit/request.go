package audit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/plantvision/inspection-api/pkg/logging"
	"github.com/plantvision/inspection-api/pkg/models"
)

type contextKey string

const requestInfoKey contextKey = "request_info"

// ClientIP returns the originating client address, preferring the first entry of
// X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestInfoFromRequest returns the client details recorded on audit entries.
func RequestInfoFromRequest(r *http.Request) models.RequestInfo {
	return models.RequestInfo{
		IPAddress: ClientIP(r),
		UserAgent: logging.TruncateString(r.UserAgent(), logging.MaxFieldLength),
	}
}

// WithRequestInfo returns a copy of ctx carrying info.
func WithRequestInfo(ctx context.Context, info models.RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

// RequestInfoFrom returns the client details stored in ctx, if any.
func RequestInfoFrom(ctx context.Context) (models.RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey).(models.RequestInfo)
	return info, ok
}
