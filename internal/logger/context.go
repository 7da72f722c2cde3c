package logger

import "context"

type ctxKey string

// RequestIDKey is the context key for the per-request correlation id.
const RequestIDKey ctxKey = "request_id"

// WithRequestID returns ctx carrying the correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFromContext returns the correlation id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
