package auth

import (
	"context"
	"net/http"
	"strings"

	domainerrors "diary/internal/errors"
	"diary/internal/http/response"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

// Authenticator resolves a credential to a stable user id.
type Authenticator interface {
	Authenticate(credential string) (uint64, error)
}

func UserIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(userIDKey).(uint64)
	return id, ok && id != 0
}

func WithUserID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || token == "" {
				response.Error(w, domainerrors.Unauthorized("authentication credentials were not provided"))
				return
			}

			uid, err := authn.Authenticate(token)
			if err != nil {
				response.Error(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}
