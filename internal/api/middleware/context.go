package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ownerKey contextKey = "owner"

// Owner resolves the identity a request is scoped to from the userId query
// parameter (or its alias owner), falling back to defaultOwner.
func Owner(defaultOwner string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			owner := strings.TrimSpace(q.Get("userId"))
			if owner == "" {
				owner = strings.TrimSpace(q.Get("owner"))
			}
			if owner == "" {
				owner = defaultOwner
			}
			next.ServeHTTP(w, r.WithContext(SetOwner(r.Context(), owner)))
		})
	}
}

func SetOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

func GetOwner(r *http.Request) (string, bool) {
	owner, ok := r.Context().Value(ownerKey).(string)
	return owner, ok
}
