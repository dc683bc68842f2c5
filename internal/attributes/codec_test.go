package attributes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grosir-api/internal/pricing"
)

func TestEncodeMoney(t *testing.T) {
	require.JSONEq(t, `{"amount":"8.00","currency_code":"USD"}`, EncodeMoney(800, ""))
	require.JSONEq(t, `{"amount":"0.05","currency_code":"EUR"}`, EncodeMoney(5, "eur"))
}

func TestDecodeMoney(t *testing.T) {
	amount, err := DecodeMoney(`{"amount":"8.00","currency_code":"USD"}`)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(800), amount)

	amount, err = DecodeMoney(`{"amount":12.5,"currency_code":"USD"}`)
	require.NoError(t, err)
	require.Equal(t, pricing.Money(1250), amount)

	for _, raw := range []string{`8.00`, `"8.00"`, `{}`, `{"amount":"abc"}`, `{"amount":null}`, ``} {
		_, err := DecodeMoney(raw)
		require.ErrorIs(t, err, ErrMalformedValue, "value %q", raw)
	}
}

func TestDecodeQuantity(t *testing.T) {
	q, err := DecodeQuantity("12")
	require.NoError(t, err)
	require.Equal(t, 12, q)

	_, err = DecodeQuantity("1.5")
	require.ErrorIs(t, err, ErrMalformedValue)
	_, err = DecodeQuantity("")
	require.ErrorIs(t, err, ErrMalformedValue)
}

func TestDistinctVariantsKeepsOrder(t *testing.T) {
	keys := Keys([]Entry{
		PriceEntry("v2", 100),
		MinQtyEntry("v1", 3),
		MinQtyEntry("v2", 5),
	})
	require.Equal(t, []string{"v2", "v1"}, DistinctVariants(keys))
}

func TestPGStoreRejectsInvalidEntriesBeforeWriting(t *testing.T) {
	store := NewPGStore(nil, "demo.myshopify.com")
	res, err := store.WriteAttributes(context.Background(), []Entry{
		PriceEntry("v1", -1),
		MinQtyEntry("v2", -4),
		{Key: Key{VariantID: "v3", Attribute: "colour"}},
	})
	require.NoError(t, err)
	require.Empty(t, res.IDs)
	require.Len(t, res.UserErrors, 3)
	require.Equal(t, "v1", res.UserErrors[0].VariantID)
	require.Equal(t, string(AttributeMinQty), res.UserErrors[1].Field)

	res, err = store.RemoveAttributes(context.Background(), []Key{{VariantID: "v1", Attribute: "colour"}})
	require.NoError(t, err)
	require.Len(t, res.UserErrors, 1)

	attrs, err := store.ReadAttributes(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, attrs)
}
