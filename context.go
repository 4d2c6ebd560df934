package goSession

import "context"

type requestIDContextKey struct{}

// WithRequestID pins the X-Request-ID sent for requests made with ctx. A
// replay after a session refresh reuses the same id. Without it every
// logical request gets a fresh UUID.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}
