package discount

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/pricing"
)

// QuoteLine is a cart line submitted for a server-side quote.
type QuoteLine struct {
	ID        string `json:"id" validate:"required,max=255"`
	VariantID string `json:"variantId" validate:"required,max=255"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
	Subtotal  string `json:"subtotal" validate:"required"`
}

// QuoteRequest is the cart snapshot supplied by a caller.
type QuoteRequest struct {
	CustomerTags []string    `json:"customerTags" validate:"max=250,dive,max=255"`
	Lines        []QuoteLine `json:"lines" validate:"required,min=1,max=250,unique=ID,dive"`
}

// Supplier builds evaluator snapshots by attaching stored wholesale
// attributes to each line.
type Supplier struct {
	Reader       attributes.Reader
	EligibleTags []string
}

// Eligible reports whether any customer tag matches the configured wholesale
// tags, compared case-insensitively.
func (s *Supplier) Eligible(tags []string) bool {
	for _, want := range s.EligibleTags {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		for _, have := range tags {
			if strings.EqualFold(strings.TrimSpace(have), want) {
				return true
			}
		}
	}
	return false
}

// Snapshot resolves attributes for every line in one read. Ineligible buyers
// skip the read entirely.
func (s *Supplier) Snapshot(ctx context.Context, req QuoteRequest) (pricing.CartSnapshot, error) {
	snapshot := pricing.CartSnapshot{
		BuyerEligible: s.Eligible(req.CustomerTags),
		Lines:         make([]pricing.CartLine, 0, len(req.Lines)),
	}
	var stored map[string]pricing.WholesaleAttributes
	if snapshot.BuyerEligible && s.Reader != nil {
		ids := make([]string, 0, len(req.Lines))
		seen := make(map[string]struct{}, len(req.Lines))
		for _, l := range req.Lines {
			id := strings.TrimSpace(l.VariantID)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		var err error
		stored, err = s.Reader.ReadAttributes(ctx, ids)
		if err != nil {
			return pricing.CartSnapshot{}, fmt.Errorf("read wholesale attributes: %w", err)
		}
	}
	for _, l := range req.Lines {
		subtotal, outcome := pricing.ParseMoney(l.Subtotal)
		if outcome != pricing.Parsed {
			return pricing.CartSnapshot{}, &InvalidLineError{LineID: l.ID, Field: "subtotal"}
		}
		line := pricing.CartLine{ID: l.ID, Quantity: l.Quantity, Subtotal: subtotal}
		if attrs, ok := stored[strings.TrimSpace(l.VariantID)]; ok {
			a := attrs
			line.Wholesale = &a
		}
		snapshot.Lines = append(snapshot.Lines, line)
	}
	return snapshot, nil
}

// InvalidLineError reports a quote line whose field cannot be parsed.
type InvalidLineError struct {
	LineID string
	Field  string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("line %s: invalid %s", e.LineID, e.Field)
}
