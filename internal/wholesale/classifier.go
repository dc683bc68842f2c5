package wholesale

import (
	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/pricing"
)

// Classify turns edits into operations, price before minimum quantity for each
// edit, in input order. Unparseable fields produce no operation and do not
// affect the sibling field.
func Classify(edits []Edit) []Operation {
	ops := make([]Operation, 0, len(edits)*2)
	for _, edit := range edits {
		switch amount, outcome := pricing.ParseMoney(edit.Price); outcome {
		case pricing.Parsed:
			ops = append(ops, SetPrice(edit.VariantID, amount))
		case pricing.Cleared:
			ops = append(ops, Clear(edit.VariantID, attributes.AttributePrice))
		}
		switch quantity, outcome := pricing.ParseQuantity(edit.MinimumQuantity); outcome {
		case pricing.Parsed:
			ops = append(ops, SetMinQty(edit.VariantID, quantity))
		case pricing.Cleared:
			ops = append(ops, Clear(edit.VariantID, attributes.AttributeMinQty))
		}
	}
	return ops
}
