package shopify

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/pricing"
)

const (
	// DefaultNamespace holds the wholesale metafields.
	DefaultNamespace = "wholesale"

	metafieldTypeMoney   = "money"
	metafieldTypeInteger = "number_integer"

	// metafieldsSet accepts at most 25 metafields per call.
	maxSetBatch    = 25
	maxDeleteBatch = 250
	maxNodesBatch  = 250
)

const metafieldsSetMutation = `
mutation metafieldsSet($metafields: [MetafieldsSetInput!]!) {
	metafieldsSet(metafields: $metafields) {
		metafields { id ownerId key }
		userErrors { field message code elementIndex }
	}
}`

const metafieldsDeleteMutation = `
mutation metafieldsDelete($metafields: [MetafieldIdentifierInput!]!) {
	metafieldsDelete(metafields: $metafields) {
		deletedMetafields { ownerId namespace key }
		userErrors { field message }
	}
}`

const variantAttributesQuery = `
query wholesaleAttributes($ids: [ID!]!, $namespace: String!) {
	nodes(ids: $ids) {
		... on ProductVariant {
			id
			wholesalePrice: metafield(namespace: $namespace, key: "price") { value }
			wholesaleMinQty: metafield(namespace: $namespace, key: "minimum_quantity") { value }
		}
	}
}`

type metafieldValue struct {
	Value string `json:"value"`
}

type variantAttributesNode struct {
	ID              string          `json:"id"`
	WholesalePrice  *metafieldValue `json:"wholesalePrice"`
	WholesaleMinQty *metafieldValue `json:"wholesaleMinQty"`
}

type metafieldsSetData struct {
	MetafieldsSet struct {
		Metafields []struct {
			ID      string `json:"id"`
			OwnerID string `json:"ownerId"`
			Key     string `json:"key"`
		} `json:"metafields"`
		UserErrors []APIUserError `json:"userErrors"`
	} `json:"metafieldsSet"`
}

type metafieldsDeleteData struct {
	MetafieldsDelete struct {
		DeletedMetafields []*struct {
			OwnerID   string `json:"ownerId"`
			Namespace string `json:"namespace"`
			Key       string `json:"key"`
		} `json:"deletedMetafields"`
		UserErrors []APIUserError `json:"userErrors"`
	} `json:"metafieldsDelete"`
}

type nodesData struct {
	Nodes []*variantAttributesNode `json:"nodes"`
}

// MetafieldStore keeps wholesale attributes as product variant metafields.
type MetafieldStore struct {
	client    *Client
	namespace string
	currency  string
}

// NewMetafieldStore constructs a metafield-backed attribute store.
func NewMetafieldStore(client *Client, namespace, currency string) *MetafieldStore {
	if strings.TrimSpace(namespace) == "" {
		namespace = DefaultNamespace
	}
	if strings.TrimSpace(currency) == "" {
		currency = attributes.DefaultCurrency
	}
	return &MetafieldStore{client: client, namespace: namespace, currency: currency}
}

// WriteAttributes sets the metafields. Requests are chunked to the API limit;
// the first chunk reporting user errors stops the batch.
func (s *MetafieldStore) WriteAttributes(ctx context.Context, entries []attributes.Entry) (attributes.Result, error) {
	for start := 0; start < len(entries); start += maxSetBatch {
		end := min(start+maxSetBatch, len(entries))
		chunk := entries[start:end]
		inputs := make([]map[string]any, 0, len(chunk))
		for _, e := range chunk {
			input, err := s.setInput(e)
			if err != nil {
				return attributes.Result{}, err
			}
			inputs = append(inputs, input)
		}
		var data metafieldsSetData
		if err := s.client.graphqlRequest(ctx, metafieldsSetMutation, map[string]any{"metafields": inputs}, &data); err != nil {
			return attributes.Result{}, err
		}
		if errs := data.MetafieldsSet.UserErrors; len(errs) > 0 {
			return attributes.Result{UserErrors: toUserErrors(errs, attributes.Keys(chunk))}, nil
		}
	}
	return attributes.Result{IDs: attributes.DistinctVariants(attributes.Keys(entries))}, nil
}

func (s *MetafieldStore) setInput(e attributes.Entry) (map[string]any, error) {
	input := map[string]any{
		"ownerId":   e.VariantID,
		"namespace": s.namespace,
		"key":       string(e.Attribute),
	}
	switch e.Attribute {
	case attributes.AttributePrice:
		input["type"] = metafieldTypeMoney
		input["value"] = attributes.EncodeMoney(e.Amount, s.currency)
	case attributes.AttributeMinQty:
		input["type"] = metafieldTypeInteger
		input["value"] = attributes.EncodeQuantity(e.Quantity)
	default:
		return nil, fmt.Errorf("shopify: unsupported attribute %q", e.Attribute)
	}
	return input, nil
}

// RemoveAttributes deletes the metafields. Deleting a missing metafield is not
// an error.
func (s *MetafieldStore) RemoveAttributes(ctx context.Context, keys []attributes.Key) (attributes.Result, error) {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := min(start+maxDeleteBatch, len(keys))
		chunk := keys[start:end]
		inputs := make([]map[string]any, 0, len(chunk))
		for _, k := range chunk {
			inputs = append(inputs, map[string]any{
				"ownerId":   k.VariantID,
				"namespace": s.namespace,
				"key":       string(k.Attribute),
			})
		}
		var data metafieldsDeleteData
		if err := s.client.graphqlRequest(ctx, metafieldsDeleteMutation, map[string]any{"metafields": inputs}, &data); err != nil {
			return attributes.Result{}, err
		}
		if errs := data.MetafieldsDelete.UserErrors; len(errs) > 0 {
			return attributes.Result{UserErrors: toUserErrors(errs, chunk)}, nil
		}
	}
	return attributes.Result{IDs: attributes.DistinctVariants(keys)}, nil
}

// ReadAttributes resolves wholesale metafields for variants. Values that do
// not decode are treated as absent.
func (s *MetafieldStore) ReadAttributes(ctx context.Context, variantIDs []string) (map[string]pricing.WholesaleAttributes, error) {
	out := make(map[string]pricing.WholesaleAttributes, len(variantIDs))
	for start := 0; start < len(variantIDs); start += maxNodesBatch {
		end := min(start+maxNodesBatch, len(variantIDs))
		var data nodesData
		vars := map[string]any{"ids": variantIDs[start:end], "namespace": s.namespace}
		if err := s.client.graphqlRequest(ctx, variantAttributesQuery, vars, &data); err != nil {
			return nil, err
		}
		for _, node := range data.Nodes {
			if node == nil || node.ID == "" {
				continue
			}
			attrs, ok := s.decode(node.ID, node.WholesalePrice, node.WholesaleMinQty)
			if ok {
				out[node.ID] = attrs
			}
		}
	}
	return out, nil
}

func (s *MetafieldStore) decode(id string, price, minQty *metafieldValue) (pricing.WholesaleAttributes, bool) {
	var attrs pricing.WholesaleAttributes
	if price != nil {
		if amount, err := attributes.DecodeMoney(price.Value); err == nil {
			attrs.Price = &amount
		} else {
			s.client.logger.Debug().Str("variant_id", id).Str("value", price.Value).Msg("ignoring malformed wholesale price")
		}
	}
	if minQty != nil {
		if q, err := attributes.DecodeQuantity(minQty.Value); err == nil {
			attrs.MinimumQuantity = &q
		}
	}
	return attrs, attrs.Price != nil || attrs.MinimumQuantity != nil
}

func toUserErrors(errs []APIUserError, keys []attributes.Key) []attributes.UserError {
	out := make([]attributes.UserError, 0, len(errs))
	for _, ue := range errs {
		item := attributes.UserError{Field: ue.FieldPath(), Message: ue.Message, Code: ue.Code}
		if idx := elementIndex(ue); idx >= 0 && idx < len(keys) {
			item.VariantID = keys[idx].VariantID
			item.Field = string(keys[idx].Attribute)
		}
		out = append(out, item)
	}
	return out
}

// elementIndex finds the input position from elementIndex or a field path such
// as ["metafields", "3", "value"].
func elementIndex(ue APIUserError) int {
	if ue.ElementIndex != nil {
		return *ue.ElementIndex
	}
	if len(ue.Field) >= 2 && ue.Field[0] == "metafields" {
		var idx int
		if _, err := fmt.Sscanf(ue.Field[1], "%d", &idx); err == nil {
			return idx
		}
	}
	return -1
}
