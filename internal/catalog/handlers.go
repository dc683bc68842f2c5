package catalog

import (
	"net/http"

	"github.com/noah-isme/grosir-api/internal/common"
)

// Handler exposes the product listing used by the wholesale editor.
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

// Products handles GET /api/v1/wholesale/products?first=&after=.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	defaultLimit, maxLimit := h.service.Limits()
	first, after := common.ParseCursor(r, defaultLimit, maxLimit)
	page, err := h.service.ListProducts(r.Context(), first, after)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":     page.Products,
		"pageInfo": common.PageInfo{HasNextPage: page.HasNextPage, EndCursor: page.EndCursor},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if common.WriteAppError(w, err) {
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
