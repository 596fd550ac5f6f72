package xcontext

import "context"

type userIDKey struct{}

// SetUserID attaches the authenticated user's ID to the context.
// Set by the bearer-auth middleware after the session token is verified.
func SetUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

func GetUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok
}
