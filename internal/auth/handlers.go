package auth

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-shop/internal/common"
	"github.com/noah-isme/backend-shop/internal/security"
)

// Handler exposes HTTP handlers for authentication endpoints.
type Handler struct {
	Service          *Service
	AccessCookieName string
	CookieDomain     string
	CookieSecure     bool
	CookieSameSite   http.SameSite
	// CSRFCookieName defaults to security.CSRFHeader. The cookie is readable
	// by scripts so the client can echo it in the header.
	CSRFCookieName string
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth service not configured", nil)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidInput, "invalid json", nil)
		return
	}
	user, err := h.Service.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": user})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth service not configured", nil)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidInput, "invalid json", nil)
		return
	}
	result, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setAccessCookie(w, result)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"user":                    result.User,
			"access_token":            result.AccessToken,
			"access_token_expires_at": result.AccessExpiry,
		},
	})
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
		return
	}
	user, err := h.Service.Me(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": user})
}

// writeError hides unexpected failures behind a generic message.
func writeError(w http.ResponseWriter, err error) {
	if common.IsAppError(err) {
		common.WriteError(w, err, http.StatusInternalServerError)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "internal error", nil)
}

func (h *Handler) setAccessCookie(w http.ResponseWriter, result LoginResult) {
	if h.AccessCookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.AccessCookieName,
		Value:    result.AccessToken,
		Domain:   h.CookieDomain,
		Path:     "/",
		Expires:  result.AccessExpiry,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})

	// Cookie sessions need a double-submit token for state-changing calls.
	name := h.CSRFCookieName
	if name == "" {
		name = security.CSRFHeader
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    uuid.NewString(),
		Domain:   h.CookieDomain,
		Path:     "/",
		Expires:  result.AccessExpiry,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	})
}
