package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units (cents).
type Money int64

// ParseOutcome classifies the result of parsing free-form admin input.
type ParseOutcome int

const (
	// Parsed means the text held a usable value.
	Parsed ParseOutcome = iota
	// Cleared means the text asked for the value to be removed.
	Cleared
	// Invalid means the text could not be parsed and must be ignored.
	Invalid
)

func (o ParseOutcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case Cleared:
		return "cleared"
	default:
		return "invalid"
	}
}

var maxMoney = decimal.NewFromInt(math.MaxInt64)

// Rescaling builds 10^|exponent| as a big integer, so the exponent and the
// digit count are bounded before any rounding happens.
const (
	maxMoneyText     = 64
	maxMoneyExponent = 18
	minMoneyExponent = -40
)

// ParseMoney converts text such as "12.5" into cents, rounding half-up to two
// decimal places. Empty text and "null" report Cleared.
func ParseMoney(text string) (Money, ParseOutcome) {
	trimmed := strings.TrimSpace(text)
	if isCleared(trimmed) {
		return 0, Cleared
	}
	if len(trimmed) > maxMoneyText {
		return 0, Invalid
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil || d.IsNegative() {
		return 0, Invalid
	}
	if e := d.Exponent(); e > maxMoneyExponent || e < minMoneyExponent {
		return 0, Invalid
	}
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(maxMoney) {
		return 0, Invalid
	}
	return Money(cents.IntPart()), Parsed
}

// ParseQuantity converts base-10 integer text into a non-negative quantity.
func ParseQuantity(text string) (int, ParseOutcome) {
	trimmed := strings.TrimSpace(text)
	if isCleared(trimmed) {
		return 0, Cleared
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, Invalid
	}
	return n, Parsed
}

func isCleared(trimmed string) bool {
	return trimmed == "" || strings.EqualFold(trimmed, "null")
}

// String renders the amount with exactly two decimal places, e.g. "8.00".
func (m Money) String() string {
	return decimal.New(int64(m), -2).StringFixed(2)
}

// MarshalText encodes money as its two-decimal string form.
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the two-decimal string form produced by MarshalText.
func (m *Money) UnmarshalText(text []byte) error {
	parsed, outcome := ParseMoney(string(text))
	if outcome != Parsed {
		return &strconv.NumError{Func: "ParseMoney", Num: string(text), Err: strconv.ErrSyntax}
	}
	*m = parsed
	return nil
}
