package auth

import "context"

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller ID.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller ID stored by WithCaller, or "".
func CallerFrom(ctx context.Context) string {
	c, _ := ctx.Value(callerKey{}).(string)
	return c
}
