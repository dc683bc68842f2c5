package attributes

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/noah-isme/grosir-api/internal/pricing"
)

// DefaultCurrency is written when no currency is configured.
const DefaultCurrency = "USD"

// ErrMalformedValue is returned when a stored value cannot be decoded.
var ErrMalformedValue = errors.New("attributes: malformed stored value")

type moneyValue struct {
	Amount       json.RawMessage `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

// EncodeMoney renders the canonical stored money form,
// e.g. {"amount":"8.00","currency_code":"USD"}.
func EncodeMoney(amount pricing.Money, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	raw, _ := json.Marshal(struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currency_code"`
	}{Amount: amount.String(), CurrencyCode: strings.ToUpper(currency)})
	return string(raw)
}

// DecodeMoney parses the canonical stored money form. The amount may be a
// JSON string or number. Plain decimal strings are rejected.
func DecodeMoney(value string) (pricing.Money, error) {
	var mv moneyValue
	if err := json.Unmarshal([]byte(value), &mv); err != nil {
		return 0, ErrMalformedValue
	}
	if len(mv.Amount) == 0 {
		return 0, ErrMalformedValue
	}
	text := string(mv.Amount)
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	amount, outcome := pricing.ParseMoney(text)
	if outcome != pricing.Parsed {
		return 0, ErrMalformedValue
	}
	return amount, nil
}

// EncodeQuantity renders a minimum quantity as stored text.
func EncodeQuantity(q int) string {
	return strconv.Itoa(q)
}

// DecodeQuantity parses a stored minimum quantity.
func DecodeQuantity(value string) (int, error) {
	q, outcome := pricing.ParseQuantity(value)
	if outcome != pricing.Parsed {
		return 0, ErrMalformedValue
	}
	return q, nil
}
