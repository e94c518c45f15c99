package common

import "context"

type userIDKey struct{}

// WithUserID marks ctx as authenticated for id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the authenticated user id. Anonymous requests report false.
func UserID(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id, id != ""
}
