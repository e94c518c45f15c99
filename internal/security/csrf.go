package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-shop/internal/common"
)

// CSRF applies the double-submit check to state-changing requests that are
// authenticated by the session cookie. Bearer and anonymous requests carry no
// ambient credentials and pass through.
type CSRF struct {
	Header        string
	SessionCookie string
}

// CSRFHeader names both the request header and the readable cookie that
// carry the double-submit token.
const CSRFHeader = "X-CSRF-Token"

// Middleware enforces that the CSRF header matches the CSRF cookie.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := strings.TrimSpace(c.Header)
	if headerName == "" {
		headerName = CSRFHeader
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}
		if !c.cookieAuthenticated(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		cookie, err := r.Cookie(headerName)
		if token == "" || err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, CodeCSRF, "missing csrf token", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, CodeCSRF, "invalid csrf token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CodeCSRF is the error code of a rejected CSRF check.
const CodeCSRF = "CSRF_REJECTED"

func (c CSRF) cookieAuthenticated(r *http.Request) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(r.Header.Get("Authorization"))), "bearer ") {
		return false
	}
	if c.SessionCookie == "" {
		return false
	}
	cookie, err := r.Cookie(c.SessionCookie)
	return err == nil && strings.TrimSpace(cookie.Value) != ""
}
