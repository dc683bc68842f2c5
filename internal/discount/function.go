package discount

import (
	"strings"

	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/pricing"
)

// FunctionInput is the cart payload the checkout runtime hands to the
// discount function. Only the fields the evaluator reads are declared.
type FunctionInput struct {
	Cart struct {
		BuyerIdentity *struct {
			Customer *struct {
				HasAnyTag bool `json:"hasAnyTag"`
			} `json:"customer"`
		} `json:"buyerIdentity"`
		Lines []FunctionLine `json:"lines"`
	} `json:"cart"`
}

// FunctionLine is one cart line in the function input.
type FunctionLine struct {
	ID       string `json:"id"`
	Quantity *int   `json:"quantity"`
	Cost     struct {
		SubtotalAmount struct {
			Amount string `json:"amount"`
		} `json:"subtotalAmount"`
	} `json:"cost"`
	Merchandise *struct {
		ID              string          `json:"id"`
		Metafield       *metafieldValue `json:"metafield"`
		MinimumQuantity *metafieldValue `json:"minimumQuantity"`
	} `json:"merchandise"`
}

type metafieldValue struct {
	Value string `json:"value"`
}

// Snapshot converts the function input into an evaluator snapshot. Lines with
// an unreadable subtotal or wholesale value carry no wholesale attributes.
func (in FunctionInput) Snapshot() pricing.CartSnapshot {
	snapshot := pricing.CartSnapshot{Lines: make([]pricing.CartLine, 0, len(in.Cart.Lines))}
	if bi := in.Cart.BuyerIdentity; bi != nil && bi.Customer != nil {
		snapshot.BuyerEligible = bi.Customer.HasAnyTag
	}
	for _, l := range in.Cart.Lines {
		line := pricing.CartLine{ID: l.ID, Quantity: 1}
		if l.Quantity != nil {
			line.Quantity = *l.Quantity
		}
		subtotal, outcome := pricing.ParseMoney(l.Cost.SubtotalAmount.Amount)
		if outcome == pricing.Parsed {
			line.Subtotal = subtotal
			line.Wholesale = merchandiseAttributes(l)
		}
		snapshot.Lines = append(snapshot.Lines, line)
	}
	return snapshot
}

func merchandiseAttributes(l FunctionLine) *pricing.WholesaleAttributes {
	m := l.Merchandise
	if m == nil || m.Metafield == nil || strings.TrimSpace(m.Metafield.Value) == "" {
		return nil
	}
	price, err := attributes.DecodeMoney(m.Metafield.Value)
	if err != nil {
		return nil
	}
	attrs := &pricing.WholesaleAttributes{Price: &price}
	if m.MinimumQuantity != nil {
		if q, err := attributes.DecodeQuantity(m.MinimumQuantity.Value); err == nil {
			attrs.MinimumQuantity = &q
		}
	}
	return attrs
}

// FunctionResult is the function output: zero or one discount operation.
type FunctionResult struct {
	Operations []Operation `json:"operations"`
}

// Operation wraps a product discount addition.
type Operation struct {
	ProductDiscountsAdd ProductDiscountsAdd `json:"productDiscountsAdd"`
}

// ProductDiscountsAdd carries the candidates and how they combine.
type ProductDiscountsAdd struct {
	Candidates        []CandidateOutput `json:"candidates"`
	SelectionStrategy string            `json:"selectionStrategy"`
}

// CandidateOutput is one fixed per-item discount on a cart line.
type CandidateOutput struct {
	Message string         `json:"message"`
	Targets []Target       `json:"targets"`
	Value   CandidateValue `json:"value"`
}

// Target selects the cart line a candidate applies to.
type Target struct {
	CartLine struct {
		ID string `json:"id"`
	} `json:"cartLine"`
}

// CandidateValue holds the fixed amount.
type CandidateValue struct {
	FixedAmount FixedAmount `json:"fixedAmount"`
}

// FixedAmount is a decimal amount applied to each item on the line.
type FixedAmount struct {
	Amount            pricing.Money `json:"amount"`
	AppliesToEachItem bool          `json:"appliesToEachItem"`
}

// NewFunctionResult renders an operation set in the function output shape.
func NewFunctionResult(set pricing.OperationSet) FunctionResult {
	if set.Empty() {
		return FunctionResult{Operations: []Operation{}}
	}
	candidates := make([]CandidateOutput, 0, len(set.Candidates))
	for _, c := range set.Candidates {
		var target Target
		target.CartLine.ID = c.LineID
		candidates = append(candidates, CandidateOutput{
			Message: c.Label,
			Targets: []Target{target},
			Value: CandidateValue{FixedAmount: FixedAmount{
				Amount:            c.PerItemAmount,
				AppliesToEachItem: true,
			}},
		})
	}
	return FunctionResult{Operations: []Operation{{
		ProductDiscountsAdd: ProductDiscountsAdd{
			Candidates:        candidates,
			SelectionStrategy: set.SelectionStrategy,
		},
	}}}
}
