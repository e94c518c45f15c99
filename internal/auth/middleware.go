package auth

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-shop/internal/common"
)

// Middleware resolves the caller from a bearer header or the access cookie.
type Middleware struct {
	Service      *Service
	AccessCookie string
}

// Authenticate attaches the caller's user ID when a valid token is present.
// Checkout stays open to guests, so a missing or bad token is not an error.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return m.wrap(next, false)
}

// RequireAuth rejects requests without a valid token with 401.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return m.wrap(next, true)
}

func (m Middleware) wrap(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, source := m.bearer(r)
		if raw == "" || m.Service == nil {
			if required {
				common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		userID, err := m.Service.ParseAccessToken(raw)
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Str("source", source).Msg("access_token_rejected")
			if required {
				common.WriteError(w, err, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
	})
}

// bearer returns the raw token and where it came from. The header wins over
// the cookie.
func (m Middleware) bearer(r *http.Request) (string, string) {
	if scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " "); ok && strings.EqualFold(scheme, "bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, "header"
		}
	}
	if m.AccessCookie == "" {
		return "", ""
	}
	if c, err := r.Cookie(m.AccessCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), "cookie"
	}
	return "", ""
}
