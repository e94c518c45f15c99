package catalog

import (
	"net/http"

	"github.com/noah-isme/backend-shop/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Products handles GET /api/products.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, KindProduct)
}

// Services handles GET /api/services.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, KindService)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, kind Kind) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	items, err := h.service.List(r.Context(), kind)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "failed to load catalog", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}
