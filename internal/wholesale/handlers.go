package wholesale

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/grosir-api/internal/common"
)

// Handler exposes the batch submission endpoint.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service   *Service
	Validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = common.NewValidator()
	}
	return &Handler{service: cfg.Service, validate: v}
}

// flexText accepts a JSON string, number or null. Null decodes to the empty
// string, which clears the attribute.
type flexText string

func (f *flexText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*f = ""
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexText(s)
	case trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return err
		}
		*f = flexText(n.String())
	default:
		return fmt.Errorf("unsupported value %s", trimmed)
	}
	return nil
}

type updatePayload struct {
	VariantID       string   `json:"variantId" validate:"required,max=255"`
	Price           flexText `json:"price"`
	MinimumQuantity flexText `json:"minimumQuantity"`
}

type saveRequest struct {
	Updates json.RawMessage `json:"updates"`
}

type validatedUpdates struct {
	Updates []updatePayload `json:"updates" validate:"dive"`
}

type saveResponse struct {
	Success bool         `json:"success"`
	Saved   []string     `json:"saved"`
	Deleted []string     `json:"deleted"`
	Errors  []FieldError `json:"errors"`
}

// Save handles POST /api/v1/wholesale/save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "wholesale service not configured", nil)
		return
	}
	var req saveRequest
	if !common.DecodeJSON(w, r, &req) {
		return
	}
	raw := bytes.TrimSpace(req.Updates)
	if len(raw) == 0 || raw[0] != '[' {
		writeNoUpdates(w)
		return
	}
	var payload validatedUpdates
	if err := json.Unmarshal(raw, &payload.Updates); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid updates", map[string]any{"error": err.Error()})
		return
	}
	if len(payload.Updates) == 0 {
		writeNoUpdates(w)
		return
	}
	if err := common.ValidateStruct(h.validate, payload); err != nil {
		h.writeError(w, err)
		return
	}

	edits := make([]Edit, 0, len(payload.Updates))
	for _, u := range payload.Updates {
		edits = append(edits, Edit{
			VariantID:       strings.TrimSpace(u.VariantID),
			Price:           string(u.Price),
			MinimumQuantity: string(u.MinimumQuantity),
		})
	}

	result, err := h.service.Save(r.Context(), edits)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, statusFor(result), saveResponse{
		Success: result.Success(),
		Saved:   result.Saved,
		Deleted: result.Deleted,
		Errors:  result.Errors,
	})
}

func statusFor(result BatchResult) int {
	switch {
	case result.Success():
		return http.StatusOK
	case len(result.Saved)+len(result.Deleted) > 0:
		return http.StatusMultiStatus
	default:
		return http.StatusBadRequest
	}
}

func writeNoUpdates(w http.ResponseWriter) {
	common.JSON(w, http.StatusBadRequest, map[string]string{"error": ErrNoUpdates.Error()})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNoUpdates) {
		writeNoUpdates(w)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
