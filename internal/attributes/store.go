package attributes

import (
	"context"
	"fmt"

	"github.com/noah-isme/grosir-api/internal/pricing"
)

// Attribute names a wholesale override stored per variant.
type Attribute string

const (
	AttributePrice  Attribute = "price"
	AttributeMinQty Attribute = "minimum_quantity"
)

// Valid reports whether the attribute is one the store understands.
func (a Attribute) Valid() bool {
	return a == AttributePrice || a == AttributeMinQty
}

// Key identifies one attribute of one variant.
type Key struct {
	VariantID string
	Attribute Attribute
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s", k.VariantID, k.Attribute)
}

// Entry is a value to write. Amount is used for AttributePrice and Quantity
// for AttributeMinQty.
type Entry struct {
	Key
	Amount   pricing.Money
	Quantity int
}

// PriceEntry builds a price entry.
func PriceEntry(variantID string, amount pricing.Money) Entry {
	return Entry{Key: Key{VariantID: variantID, Attribute: AttributePrice}, Amount: amount}
}

// MinQtyEntry builds a minimum quantity entry.
func MinQtyEntry(variantID string, quantity int) Entry {
	return Entry{Key: Key{VariantID: variantID, Attribute: AttributeMinQty}, Quantity: quantity}
}

// UserError is a per-field validation failure reported by the store.
type UserError struct {
	VariantID string `json:"variantId,omitempty"`
	Field     string `json:"field"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
}

// Result is the outcome of a batched store call that reached the store.
// Transport failures are returned as errors instead.
type Result struct {
	IDs        []string
	UserErrors []UserError
}

// Writer mutates wholesale attributes in batches.
type Writer interface {
	WriteAttributes(ctx context.Context, entries []Entry) (Result, error)
	RemoveAttributes(ctx context.Context, keys []Key) (Result, error)
}

// Reader resolves the current attributes of variants. Variants without any
// attribute are absent from the returned map.
type Reader interface {
	ReadAttributes(ctx context.Context, variantIDs []string) (map[string]pricing.WholesaleAttributes, error)
}

// Store is the full attribute store contract.
type Store interface {
	Writer
	Reader
}

// Keys returns the keys of the entries in order.
func Keys(entries []Entry) []Key {
	out := make([]Key, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

// DistinctVariants returns variant IDs in first-seen order.
func DistinctVariants(keys []Key) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k.VariantID]; ok {
			continue
		}
		seen[k.VariantID] = struct{}{}
		out = append(out, k.VariantID)
	}
	return out
}
