package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/security"
	"github.com/cwrk-planet/chat-service/pkg/httputil"
)

type Authenticator interface {
	Authenticate(raw string) (*security.Claims, error)
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// Auth resolves the bearer token into the request user. A present but
// invalid token is always rejected; a missing one only when required.
func Auth(a Authenticator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok || a == nil {
				if required {
					unauthorized(w, domain.ErrNotAuthenticated)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := a.Authenticate(token)
			if err != nil {
				L(r.Context()).Debug("auth rejected", "err", err)
				unauthorized(w, domain.ErrInvalidToken)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromCtx returns the authenticated username or "".
func UserFromCtx(ctx context.Context) string {
	u, _ := ctx.Value(userKey).(string)
	return u
}

func unauthorized(w http.ResponseWriter, err error) {
	httputil.Error(w, http.StatusUnauthorized, err.Error())
}
