package auth

import (
	"context"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"
)

type contextKey string

const UserKey contextKey = "user"

// UserIDHeader carries the identity issued by the upstream identity provider.
const UserIDHeader = "X-User-ID"

// WithUser returns a copy of ctx carrying the opaque user id.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserKey, userID)
}

func GetUserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserKey).(string)
	return userID, ok && userID != ""
}

// Middleware trusts the identity header set by the gateway and rejects requests without one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			logger.WithField("path", r.URL.Path).Warn("request without user identity")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}
