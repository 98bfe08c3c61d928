// Package requestctx carries the authenticated account through a request's
// context. The session middleware stores the id after verifying the bearer
// token; handlers read it back instead of re-parsing the token.
package requestctx

import "context"

type userIDKey struct{}

// WithUserID returns a context holding the authenticated account id.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the account id set by WithUserID, or the empty
// string when the request is unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDKey{}).(string)
	return value
}
