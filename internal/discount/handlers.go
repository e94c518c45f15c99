package discount

import (
	"net/http"

	"github.com/noah-isme/backend-shop/internal/common"
)

// Handler exposes the discount code lookup used by the storefront.
type Handler struct {
	Evaluator *Evaluator
}

type validateResponse struct {
	Code  string `json:"code"`
	Type  Kind   `json:"type"`
	Value string `json:"value"`
}

// Validate handles GET /api/discounts/validate?code=X. It only describes the
// rule; the amount is always computed server-side at checkout.
func (h Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.Evaluator == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "discount evaluator not configured", nil)
		return
	}
	code := r.URL.Query().Get("code")
	if Normalize(code) == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidInput, "code required", nil)
		return
	}
	rule, ok := h.Evaluator.Lookup(code)
	if !ok {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "unknown discount code", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": validateResponse{
		Code:  rule.Code,
		Type:  rule.Kind,
		Value: rule.Value.StringFixed(2),
	}})
}
