// Package auditctx carries per-request metadata down to the audit trail
// without threading HTTP concerns through service signatures.
package auditctx

import "context"

// RequestInfo describes the client behind the current request. The HTTP
// middleware fills it in; the audit service attaches it to every row it
// writes during the request.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

type requestInfoKey struct{}

// WithRequestInfo returns a derived context carrying the client metadata.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// FromContext extracts previously stored request metadata.
func FromContext(ctx context.Context) (RequestInfo, bool) {
	if ctx == nil {
		return RequestInfo{}, false
	}
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}
