package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const contextKeyUserID contextKey = "user_id"

// UserIDHeader carries the caller identity. Authentication happens upstream;
// this service only propagates who made the change.
const UserIDHeader = "X-User-ID"

// AnonymousUser is recorded when no identity was supplied
const AnonymousUser = "anonymous"

// WithUserID stores the caller identity in ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// GetUserID extracts the caller identity from context
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyUserID).(string)
	return id, ok
}

// UserID returns the caller identity, or AnonymousUser
func UserID(ctx context.Context) string {
	if id, ok := GetUserID(ctx); ok && id != "" {
		return id
	}
	return AnonymousUser
}

// Identity copies X-User-ID into the request context
func Identity(next http.Handler) http.Handler {
	return NewIdentity(UserIDHeader)(next)
}

// NewIdentity returns identity middleware reading the given header
func NewIdentity(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = UserIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(header))
			if userID == "" {
				userID = AnonymousUser
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
