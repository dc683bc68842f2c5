package wholesale

import (
	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/pricing"
)

// Edit is one admin-submitted row: raw text for the price and minimum quantity
// of a variant.
type Edit struct {
	VariantID       string
	Price           string
	MinimumQuantity string
}

// Action distinguishes writes from removals.
type Action string

const (
	ActionSet   Action = "set"
	ActionClear Action = "clear"
)

// Operation is a single classified change. Value is only meaningful for
// ActionSet: cents for AttributePrice, units for AttributeMinQty.
type Operation struct {
	Action    Action
	VariantID string
	Attribute attributes.Attribute
	Value     int64
}

// SetPrice builds a price write.
func SetPrice(variantID string, amount pricing.Money) Operation {
	return Operation{Action: ActionSet, VariantID: variantID, Attribute: attributes.AttributePrice, Value: int64(amount)}
}

// SetMinQty builds a minimum quantity write.
func SetMinQty(variantID string, quantity int) Operation {
	return Operation{Action: ActionSet, VariantID: variantID, Attribute: attributes.AttributeMinQty, Value: int64(quantity)}
}

// Clear builds a removal.
func Clear(variantID string, attr attributes.Attribute) Operation {
	return Operation{Action: ActionClear, VariantID: variantID, Attribute: attr}
}

func (o Operation) key() attributes.Key {
	return attributes.Key{VariantID: o.VariantID, Attribute: o.Attribute}
}

func (o Operation) entry() attributes.Entry {
	e := attributes.Entry{Key: o.key()}
	switch o.Attribute {
	case attributes.AttributePrice:
		e.Amount = pricing.Money(o.Value)
	case attributes.AttributeMinQty:
		e.Quantity = int(o.Value)
	}
	return e
}

// FieldError describes a failure of one sub-batch or one stored field.
// Retryable marks transport failures, as opposed to validation failures
// reported by the store.
type FieldError struct {
	VariantID string `json:"variantId,omitempty"`
	Field     string `json:"field"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// BatchResult aggregates the outcome of one reconciliation.
type BatchResult struct {
	Saved   []string     `json:"saved"`
	Deleted []string     `json:"deleted"`
	Errors  []FieldError `json:"errors"`
}

// Success reports whether no errors were recorded.
func (r BatchResult) Success() bool {
	return len(r.Errors) == 0
}
