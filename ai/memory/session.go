package memory

import "context"

type sessionKeyCtx struct{}

// WithSessionKey scopes ctx to a memory session.
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, sessionKeyCtx{}, sessionKey)
}

// SessionKeyFrom returns the session key stored by WithSessionKey, or "".
func SessionKeyFrom(ctx context.Context) string {
	if key, ok := ctx.Value(sessionKeyCtx{}).(string); ok {
		return key
	}
	return ""
}
