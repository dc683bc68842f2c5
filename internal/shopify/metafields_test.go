package shopify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/pricing"
	"github.com/noah-isme/grosir-api/internal/resilience"
	"github.com/noah-isme/grosir-api/internal/shopify"
)

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// adminServer fakes the Admin GraphQL endpoint. respond picks the data payload
// for each request.
type adminServer struct {
	mu       sync.Mutex
	requests []gqlRequest
	token    string
	respond  func(req gqlRequest) (int, string)
}

func (a *adminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gqlRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.token = r.Header.Get("X-Shopify-Access-Token")
	a.mu.Unlock()
	status, body := a.respond(req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func newStore(t *testing.T, respond func(req gqlRequest) (int, string)) (*shopify.MetafieldStore, *adminServer) {
	t.Helper()
	fake := &adminServer{respond: respond}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client, err := shopify.NewClient(shopify.Config{
		Endpoint:    srv.URL,
		AccessToken: "shpat_test",
		HTTP:        &resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
	})
	require.NoError(t, err)
	return shopify.NewMetafieldStore(client, "wholesale", "usd"), fake
}

func metafieldInputs(t *testing.T, req gqlRequest) []map[string]any {
	t.Helper()
	raw, ok := req.Variables["metafields"].([]any)
	require.True(t, ok, "metafields variable missing")
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		out = append(out, item.(map[string]any))
	}
	return out
}

func TestWriteAttributesEncodesAndChunks(t *testing.T) {
	store, fake := newStore(t, func(gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"metafieldsSet":{"metafields":[],"userErrors":[]}}}`
	})

	entries := make([]attributes.Entry, 0, 30)
	entries = append(entries, attributes.PriceEntry("gid://shopify/ProductVariant/1", 800))
	entries = append(entries, attributes.MinQtyEntry("gid://shopify/ProductVariant/1", 10))
	for i := 0; i < 28; i++ {
		entries = append(entries, attributes.MinQtyEntry("gid://shopify/ProductVariant/2", i+1))
	}

	res, err := store.WriteAttributes(context.Background(), entries)
	require.NoError(t, err)
	require.Empty(t, res.UserErrors)
	require.ElementsMatch(t, []string{"gid://shopify/ProductVariant/1", "gid://shopify/ProductVariant/2"}, res.IDs)

	require.Len(t, fake.requests, 2)
	require.Equal(t, "shpat_test", fake.token)
	first := metafieldInputs(t, fake.requests[0])
	require.Len(t, first, 25)
	require.Len(t, metafieldInputs(t, fake.requests[1]), 5)

	require.Equal(t, "money", first[0]["type"])
	require.Equal(t, "price", first[0]["key"])
	require.Equal(t, "wholesale", first[0]["namespace"])
	require.JSONEq(t, `{"amount":"8.00","currency_code":"USD"}`, first[0]["value"].(string))
	require.Equal(t, "number_integer", first[1]["type"])
	require.Equal(t, "10", first[1]["value"])
}

func TestWriteAttributesMapsUserErrors(t *testing.T) {
	store, fake := newStore(t, func(gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"metafieldsSet":{"metafields":[],"userErrors":[
			{"field":["metafields","1","value"],"message":"Value must be a positive integer","code":"INVALID_VALUE"}
		]}}}`
	})

	entries := []attributes.Entry{
		attributes.PriceEntry("gid://shopify/ProductVariant/1", 800),
		attributes.MinQtyEntry("gid://shopify/ProductVariant/2", 3),
	}
	res, err := store.WriteAttributes(context.Background(), entries)
	require.NoError(t, err)
	require.Empty(t, res.IDs)
	require.Len(t, res.UserErrors, 1)
	require.Equal(t, attributes.UserError{
		VariantID: "gid://shopify/ProductVariant/2",
		Field:     "minimum_quantity",
		Message:   "Value must be a positive integer",
		Code:      "INVALID_VALUE",
	}, res.UserErrors[0])
	require.Len(t, fake.requests, 1)
}

func TestRemoveAttributes(t *testing.T) {
	store, fake := newStore(t, func(gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"metafieldsDelete":{"deletedMetafields":[null,{"ownerId":"gid://shopify/ProductVariant/1","namespace":"wholesale","key":"price"}],"userErrors":[]}}}`
	})

	keys := []attributes.Key{
		{VariantID: "gid://shopify/ProductVariant/1", Attribute: attributes.AttributeMinQty},
		{VariantID: "gid://shopify/ProductVariant/1", Attribute: attributes.AttributePrice},
	}
	res, err := store.RemoveAttributes(context.Background(), keys)
	require.NoError(t, err)
	require.Equal(t, []string{"gid://shopify/ProductVariant/1"}, res.IDs)

	require.Contains(t, fake.requests[0].Query, "metafieldsDelete")
	inputs := metafieldInputs(t, fake.requests[0])
	require.Len(t, inputs, 2)
	require.Equal(t, "minimum_quantity", inputs[0]["key"])
}

func TestReadAttributesSkipsMalformedValues(t *testing.T) {
	store, fake := newStore(t, func(gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"nodes":[
			{"id":"gid://shopify/ProductVariant/1","wholesalePrice":{"value":"{\"amount\":\"8.00\",\"currency_code\":\"USD\"}"},"wholesaleMinQty":{"value":"10"}},
			{"id":"gid://shopify/ProductVariant/2","wholesalePrice":{"value":"8.00"},"wholesaleMinQty":null},
			{"id":"gid://shopify/ProductVariant/3","wholesalePrice":null,"wholesaleMinQty":{"value":"5"}},
			null
		]}}`
	})

	got, err := store.ReadAttributes(context.Background(), []string{
		"gid://shopify/ProductVariant/1",
		"gid://shopify/ProductVariant/2",
		"gid://shopify/ProductVariant/3",
		"gid://shopify/ProductVariant/4",
	})
	require.NoError(t, err)
	require.Equal(t, "wholesale", fake.requests[0].Variables["namespace"])
	require.Len(t, got, 2)

	v1 := got["gid://shopify/ProductVariant/1"]
	require.NotNil(t, v1.Price)
	require.Equal(t, pricing.Money(800), *v1.Price)
	require.Equal(t, 10, *v1.MinimumQuantity)

	_, ok := got["gid://shopify/ProductVariant/2"]
	require.False(t, ok, "plain decimal strings are not a stored money value")

	v3 := got["gid://shopify/ProductVariant/3"]
	require.Nil(t, v3.Price)
	require.Equal(t, 5, *v3.MinimumQuantity)
}

func TestListProducts(t *testing.T) {
	store, fake := newStore(t, func(gqlRequest) (int, string) {
		return http.StatusOK, `{"data":{"products":{
			"nodes":[{"id":"gid://shopify/Product/1","title":"Mug","handle":"mug",
				"featuredMedia":{"image":{"url":"https://cdn.example/mug.png"}},
				"variants":{"nodes":[
					{"id":"gid://shopify/ProductVariant/1","title":"Red","sku":"MUG-R","price":"12.50",
					 "wholesalePrice":{"value":"{\"amount\":\"8.00\",\"currency_code\":\"USD\"}"},"wholesaleMinQty":{"value":"10"}},
					{"id":"gid://shopify/ProductVariant/2","title":"Blue","sku":"MUG-B","price":"12.50","wholesalePrice":null,"wholesaleMinQty":null}
				]}}],
			"pageInfo":{"hasNextPage":true,"endCursor":"abc"}}}}`
	})

	page, err := store.ListProducts(context.Background(), 0, "prev")
	require.NoError(t, err)
	require.True(t, page.HasNextPage)
	require.Equal(t, "abc", page.EndCursor)
	require.Len(t, page.Products, 1)

	product := page.Products[0]
	require.Equal(t, "https://cdn.example/mug.png", product.ImageURL)
	require.Len(t, product.Variants, 2)
	require.Equal(t, pricing.Money(1250), product.Variants[0].Price)
	require.Equal(t, pricing.Money(800), *product.Variants[0].WholesalePrice)
	require.Equal(t, 10, *product.Variants[0].MinimumQuantity)
	require.Nil(t, product.Variants[1].WholesalePrice)

	vars := fake.requests[0].Variables
	require.EqualValues(t, shopify.MaxProductsPage, vars["first"])
	require.Equal(t, "prev", vars["after"])
}

func TestClientErrors(t *testing.T) {
	t.Run("graphql errors", func(t *testing.T) {
		store, _ := newStore(t, func(gqlRequest) (int, string) {
			return http.StatusOK, `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`
		})
		_, err := store.ReadAttributes(context.Background(), []string{"gid://shopify/ProductVariant/1"})
		var gqlErr *shopify.GraphQLError
		require.True(t, errors.As(err, &gqlErr))
		require.True(t, gqlErr.Throttled)
	})

	t.Run("non retryable status", func(t *testing.T) {
		store, _ := newStore(t, func(gqlRequest) (int, string) {
			return http.StatusUnauthorized, `{"errors":"[API] Invalid API key or access token"}`
		})
		_, err := store.WriteAttributes(context.Background(), []attributes.Entry{attributes.MinQtyEntry("gid://shopify/ProductVariant/1", 2)})
		var httpErr *shopify.HTTPError
		require.True(t, errors.As(err, &httpErr))
		require.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
		require.True(t, strings.Contains(httpErr.Body, "Invalid API key"))
	})

	t.Run("server error", func(t *testing.T) {
		store, _ := newStore(t, func(gqlRequest) (int, string) {
			return http.StatusBadGateway, `upstream`
		})
		_, err := store.RemoveAttributes(context.Background(), []attributes.Key{{VariantID: "gid://shopify/ProductVariant/1", Attribute: attributes.AttributePrice}})
		var statusErr *resilience.StatusError
		require.True(t, errors.As(err, &statusErr))
		require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	})
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := shopify.NewClient(shopify.Config{AccessToken: "x"})
	require.Error(t, err)
	_, err = shopify.NewClient(shopify.Config{ShopDomain: "demo.myshopify.com"})
	require.Error(t, err)
}
