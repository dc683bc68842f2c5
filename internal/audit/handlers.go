package audit

import (
	"math"
	"net/http"

	"github.com/noah-isme/grosir-api/internal/common"
)

// Handler exposes HTTP endpoints for working with audit entries.
type Handler struct {
	Store       Store
	DefaultShop string
}

// List returns a paginated list of audit entries for the session's shop.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	limit := common.QueryInt(r, "limit", 50, 1, 200)
	offset := common.QueryInt(r, "offset", 0, 0, math.MaxInt32)

	shop := common.ShopOr(r.Context(), h.DefaultShop)
	entries, err := h.Store.ListEntries(r.Context(), shop, limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit entries", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}
