package pricing

// SelectionAll applies every candidate in an operation set simultaneously.
const SelectionAll = "ALL"

// DefaultLabel is the message attached to wholesale candidates.
const DefaultLabel = "Wholesale"

// WholesaleAttributes are the per-variant overrides held by the attribute store.
// A nil field means the attribute is absent.
type WholesaleAttributes struct {
	Price           *Money `json:"price,omitempty"`
	MinimumQuantity *int   `json:"minimumQuantity,omitempty"`
}

// MinQty returns the effective minimum quantity, defaulting to 1 when absent.
func (a WholesaleAttributes) MinQty() int {
	if a.MinimumQuantity == nil {
		return 1
	}
	return *a.MinimumQuantity
}

// CartLine describes a single checkout line with its attached wholesale data.
type CartLine struct {
	ID        string
	Quantity  int
	Subtotal  Money
	Wholesale *WholesaleAttributes
}

// CartSnapshot is the evaluator input.
type CartSnapshot struct {
	BuyerEligible bool
	Lines         []CartLine
}

// Candidate is a fixed per-item discount proposed for one line.
type Candidate struct {
	LineID        string `json:"lineId"`
	PerItemAmount Money  `json:"perItemAmount"`
	Label         string `json:"label"`
}

// OperationSet bundles candidates for the checkout pricing engine.
type OperationSet struct {
	Candidates        []Candidate `json:"candidates"`
	SelectionStrategy string      `json:"selectionStrategy"`
}

// Empty reports whether the set carries no discount.
func (s OperationSet) Empty() bool {
	return len(s.Candidates) == 0
}

// Evaluator computes wholesale discount candidates for a cart.
type Evaluator struct {
	Label string
}

// Evaluate runs the default evaluator.
func Evaluate(cart CartSnapshot) OperationSet {
	return Evaluator{}.Evaluate(cart)
}

// Evaluate returns one candidate per qualifying line. The result is empty when
// the buyer is not eligible or no line qualifies.
func (e Evaluator) Evaluate(cart CartSnapshot) OperationSet {
	if !cart.BuyerEligible {
		return OperationSet{}
	}
	label := e.Label
	if label == "" {
		label = DefaultLabel
	}

	var candidates []Candidate
	for _, line := range cart.Lines {
		amount, ok := PerItemDiscount(line)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			LineID:        line.ID,
			PerItemAmount: amount,
			Label:         label,
		})
	}
	if len(candidates) == 0 {
		return OperationSet{}
	}
	return OperationSet{Candidates: candidates, SelectionStrategy: SelectionAll}
}

// PerItemDiscount computes retail unit price minus wholesale price for a line,
// rounded half-up to the cent. ok is false when the line does not qualify.
func PerItemDiscount(line CartLine) (Money, bool) {
	if line.Wholesale == nil || line.Wholesale.Price == nil {
		return 0, false
	}
	if line.Quantity <= 0 || line.Quantity < line.Wholesale.MinQty() {
		return 0, false
	}
	qty := Money(line.Quantity)
	wholesale := *line.Wholesale.Price
	if wholesale < 0 || line.Subtotal <= 0 {
		return 0, false
	}
	// wholesale >= subtotal/qty on exact cents; the first test keeps the
	// product below subtotal so it cannot overflow.
	if wholesale > line.Subtotal/qty || wholesale*qty >= line.Subtotal {
		return 0, false
	}
	diff := line.Subtotal - wholesale*qty
	perItem, rem := diff/qty, diff%qty
	if rem >= qty-rem {
		perItem++
	}
	if perItem <= 0 {
		return 0, false
	}
	return perItem, true
}
