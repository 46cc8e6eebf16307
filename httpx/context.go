package httpx

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyConnID
)

// WithRequestID returns a new context that carries a request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFrom extracts the request ID from ctx.
func RequestIDFrom(ctx context.Context) (string, bool) {
	return stringValue(ctx, ctxKeyRequestID)
}

// WithConnID returns a new context that carries the ID of the connection a
// request arrived on.
func WithConnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyConnID, id)
}

// ConnIDFrom extracts the connection ID from ctx.
func ConnIDFrom(ctx context.Context) (string, bool) {
	return stringValue(ctx, ctxKeyConnID)
}

func stringValue(ctx context.Context, k ctxKey) (string, bool) {
	v := ctx.Value(k)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
