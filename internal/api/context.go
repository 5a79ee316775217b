package api

import "context"

type contextKey string

var (
	userIDContextKey       = contextKey("user_id")
	requestStateContextKey = contextKey("request_state")
)

// requestState is shared between the outer logging middleware and the inner
// auth middleware, which runs on a derived context.
type requestState struct {
	userID string
}

// WithUserID returns a context carrying the authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	if st, ok := ctx.Value(requestStateContextKey).(*requestState); ok {
		st.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok && userID != ""
}
