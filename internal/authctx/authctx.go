// Package authctx carries the verified caller through a request context.
package authctx

import "context"

type ctxKey struct{}

// Caller is the identity established by the auth middleware.
type Caller struct {
	UID string
	// UserKey is the normalized email, the Users/{key} id.
	UserKey string
	Claims  map[string]interface{}
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// From returns the caller, ok is false when the request was not authenticated.
func From(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok && c.UID != ""
}
