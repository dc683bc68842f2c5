package discount

import (
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/grosir-api/internal/common"
	"github.com/noah-isme/grosir-api/internal/obs"
	"github.com/noah-isme/grosir-api/internal/pricing"
)

// Handler exposes the discount function and quote endpoints.
type Handler struct {
	evaluator pricing.Evaluator
	supplier  *Supplier
	validate  *validator.Validate
	logger    zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Label     string
	Supplier  *Supplier
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = common.NewValidator()
	}
	return &Handler{
		evaluator: pricing.Evaluator{Label: cfg.Label},
		supplier:  cfg.Supplier,
		validate:  v,
		logger:    cfg.Logger,
	}
}

// Run handles POST /api/v1/discounts/wholesale/run.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var input FunctionInput
	if !common.DecodeJSON(w, r, &input) {
		return
	}
	set := h.evaluate(input.Snapshot())
	common.JSON(w, http.StatusOK, NewFunctionResult(set))
}

type quoteLineResult struct {
	ID                 string        `json:"id"`
	Quantity           int           `json:"quantity"`
	Subtotal           pricing.Money `json:"subtotal"`
	PerItemDiscount    pricing.Money `json:"perItemDiscount"`
	LineDiscount       pricing.Money `json:"lineDiscount"`
	DiscountedSubtotal pricing.Money `json:"discountedSubtotal"`
}

type quoteResponse struct {
	FunctionResult
	Eligible      bool              `json:"eligible"`
	Lines         []quoteLineResult `json:"lines"`
	TotalDiscount pricing.Money     `json:"totalDiscount"`
}

// Quote handles POST /api/v1/discounts/wholesale/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.supplier == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "discount supplier not configured", nil)
		return
	}
	var req QuoteRequest
	if !common.DecodeJSON(w, r, &req) {
		return
	}
	if err := common.ValidateStruct(h.validate, req); err != nil {
		h.writeError(w, err)
		return
	}
	snapshot, err := h.supplier.Snapshot(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	set := h.evaluate(snapshot)

	perItem := make(map[string]pricing.Money, len(set.Candidates))
	for _, c := range set.Candidates {
		perItem[c.LineID] = c.PerItemAmount
	}
	resp := quoteResponse{
		FunctionResult: NewFunctionResult(set),
		Eligible:       snapshot.BuyerEligible,
		Lines:          make([]quoteLineResult, 0, len(snapshot.Lines)),
	}
	for _, line := range snapshot.Lines {
		amount := perItem[line.ID]
		lineDiscount := amount * pricing.Money(line.Quantity)
		resp.Lines = append(resp.Lines, quoteLineResult{
			ID:                 line.ID,
			Quantity:           line.Quantity,
			Subtotal:           line.Subtotal,
			PerItemDiscount:    amount,
			LineDiscount:       lineDiscount,
			DiscountedSubtotal: line.Subtotal - lineDiscount,
		})
		resp.TotalDiscount += lineDiscount
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *Handler) evaluate(snapshot pricing.CartSnapshot) pricing.OperationSet {
	set := h.evaluator.Evaluate(snapshot)
	result := "applied"
	switch {
	case !snapshot.BuyerEligible:
		result = "ineligible"
	case set.Empty():
		result = "none"
	}
	if obs.DiscountEvaluationsTotal != nil {
		obs.DiscountEvaluationsTotal.WithLabelValues(result).Inc()
	}
	if obs.DiscountCandidatesTotal != nil {
		obs.DiscountCandidatesTotal.Add(float64(len(set.Candidates)))
	}
	h.logger.Debug().
		Str("result", result).
		Int("lines", len(snapshot.Lines)).
		Int("candidates", len(set.Candidates)).
		Msg("wholesale discount evaluated")
	return set
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var lineErr *InvalidLineError
	if errors.As(err, &lineErr) {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", lineErr.Error(),
			[]common.FieldViolation{{Field: "lines." + lineErr.Field, Rule: "money"}})
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	h.logger.Error().Err(err).Msg("wholesale quote failed")
	common.JSONError(w, http.StatusBadGateway, "ATTRIBUTE_STORE_ERROR", "unable to load wholesale attributes", nil)
}
