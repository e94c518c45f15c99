package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-shop/internal/common"
)

// PublicConfig is what the storefront needs to render the PayPal button.
type PublicConfig struct {
	ClientID string `json:"client_id"`
	Currency string `json:"currency"`
	Env      string `json:"env"`
}

// Handler exposes the checkout endpoints.
type Handler struct {
	Svc    *Service
	PayPal PublicConfig
}

// Config serves GET /api/paypal/config.
func (h *Handler) Config(w http.ResponseWriter, _ *http.Request) {
	if strings.TrimSpace(h.PayPal.ClientID) == "" {
		common.JSONError(w, http.StatusInternalServerError, common.CodeNotConfigured, "PAYPAL_CLIENT_ID not set", nil)
		return
	}
	common.JSON(w, http.StatusOK, h.PayPal)
}

// CreateOrder serves POST /api/paypal/create-order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var in CreateOrderInput
	if err := decodeBody(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidInput, "invalid json", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	out, err := h.Svc.CreateOrder(r.Context(), in, userID)
	if err != nil {
		common.WriteError(w, err, http.StatusInternalServerError)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// CaptureOrder serves POST /api/paypal/capture-order. An incomplete capture
// is still a 200 with ok=false.
func (h *Handler) CaptureOrder(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var in CaptureInput
	if err := decodeBody(r, &in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidInput, "invalid json", nil)
		return
	}
	res, err := h.Svc.CaptureOrder(r.Context(), in)
	if err != nil {
		common.WriteError(w, err, http.StatusInternalServerError)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// Orders serves GET /api/orders for the authenticated user.
func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	orders, err := h.Svc.ListOrders(r.Context(), userID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to load orders", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orders})
}

// decodeBody treats an empty body as an empty object.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
