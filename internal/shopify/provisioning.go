package shopify

import (
	"context"
	"errors"
	"strings"
	"time"
)

const metafieldDefinitionCreateMutation = `
mutation metafieldDefinitionCreate($definition: MetafieldDefinitionInput!) {
	metafieldDefinitionCreate(definition: $definition) {
		createdDefinition { id name key namespace }
		userErrors { field message code }
	}
}`

const discountNodesQuery = `
query wholesaleDiscount($query: String!) {
	discountNodes(first: 10, query: $query) {
		nodes {
			id
			discount {
				... on DiscountAutomaticApp { title status }
			}
		}
	}
}`

const discountAutomaticAppCreateMutation = `
mutation discountAutomaticAppCreate($automaticAppDiscount: DiscountAutomaticAppInput!) {
	discountAutomaticAppCreate(automaticAppDiscount: $automaticAppDiscount) {
		automaticAppDiscount { discountId title }
		userErrors { field message code }
	}
}`

// ErrDefinitionExists is returned when a metafield definition is already taken.
var ErrDefinitionExists = errors.New("shopify: metafield definition already exists")

// MetafieldDefinition describes a variant metafield to provision.
type MetafieldDefinition struct {
	Name      string
	Namespace string
	Key       string
	Type      string
}

// WholesaleDefinitions returns the two variant definitions the service reads.
func WholesaleDefinitions(namespace string) []MetafieldDefinition {
	if strings.TrimSpace(namespace) == "" {
		namespace = DefaultNamespace
	}
	return []MetafieldDefinition{
		{Name: "Wholesale Price", Namespace: namespace, Key: "price", Type: metafieldTypeMoney},
		{Name: "Wholesale Minimum Quantity", Namespace: namespace, Key: "minimum_quantity", Type: metafieldTypeInteger},
	}
}

type definitionCreateData struct {
	MetafieldDefinitionCreate struct {
		CreatedDefinition *struct {
			ID string `json:"id"`
		} `json:"createdDefinition"`
		UserErrors []APIUserError `json:"userErrors"`
	} `json:"metafieldDefinitionCreate"`
}

// CreateMetafieldDefinition creates a storefront-readable variant definition
// and returns its ID. ErrDefinitionExists signals the key is already taken.
func (c *Client) CreateMetafieldDefinition(ctx context.Context, def MetafieldDefinition) (string, error) {
	input := map[string]any{
		"name":      def.Name,
		"namespace": def.Namespace,
		"key":       def.Key,
		"type":      def.Type,
		"ownerType": "PRODUCTVARIANT",
		"access":    map[string]any{"storefront": "PUBLIC_READ"},
	}
	var data definitionCreateData
	if err := c.graphqlRequest(ctx, metafieldDefinitionCreateMutation, map[string]any{"definition": input}, &data); err != nil {
		return "", err
	}
	payload := data.MetafieldDefinitionCreate
	for _, ue := range payload.UserErrors {
		if ue.Code == "TAKEN" || strings.Contains(strings.ToLower(ue.Message), "already") {
			return "", ErrDefinitionExists
		}
	}
	if err := userErrorsToError("metafieldDefinitionCreate", payload.UserErrors); err != nil {
		return "", err
	}
	if payload.CreatedDefinition == nil {
		return "", errors.New("shopify: metafield definition create returned no definition")
	}
	return payload.CreatedDefinition.ID, nil
}

type discountNodesData struct {
	DiscountNodes struct {
		Nodes []struct {
			ID       string `json:"id"`
			Discount struct {
				Title string `json:"title"`
			} `json:"discount"`
		} `json:"nodes"`
	} `json:"discountNodes"`
}

// FindAutomaticDiscount looks up an automatic app discount by title. The
// returned ID is empty when none exists.
func (c *Client) FindAutomaticDiscount(ctx context.Context, title string) (string, error) {
	query := "type:app status:active title:'" + strings.ReplaceAll(title, "'", "") + "'"
	var data discountNodesData
	if err := c.graphqlRequest(ctx, discountNodesQuery, map[string]any{"query": query}, &data); err != nil {
		return "", err
	}
	for _, node := range data.DiscountNodes.Nodes {
		if strings.EqualFold(strings.TrimSpace(node.Discount.Title), title) {
			return node.ID, nil
		}
	}
	return "", nil
}

// AutomaticDiscount describes the automatic discount bound to the function.
type AutomaticDiscount struct {
	Title          string
	FunctionHandle string
	StartsAt       time.Time
}

type discountCreateData struct {
	DiscountAutomaticAppCreate struct {
		AutomaticAppDiscount *struct {
			DiscountID string `json:"discountId"`
			Title      string `json:"title"`
		} `json:"automaticAppDiscount"`
		UserErrors []APIUserError `json:"userErrors"`
	} `json:"discountAutomaticAppCreate"`
}

// CreateAutomaticDiscount creates a product-class automatic discount that does
// not combine with any other discount.
func (c *Client) CreateAutomaticDiscount(ctx context.Context, d AutomaticDiscount) (string, error) {
	startsAt := d.StartsAt
	if startsAt.IsZero() {
		startsAt = time.Now().UTC()
	}
	input := map[string]any{
		"title":           d.Title,
		"functionHandle":  d.FunctionHandle,
		"discountClasses": []string{"PRODUCT"},
		"startsAt":        startsAt.Format(time.RFC3339),
		"combinesWith": map[string]any{
			"productDiscounts":  false,
			"orderDiscounts":    false,
			"shippingDiscounts": false,
		},
	}
	var data discountCreateData
	if err := c.graphqlRequest(ctx, discountAutomaticAppCreateMutation, map[string]any{"automaticAppDiscount": input}, &data); err != nil {
		return "", err
	}
	payload := data.DiscountAutomaticAppCreate
	if err := userErrorsToError("discountAutomaticAppCreate", payload.UserErrors); err != nil {
		return "", err
	}
	if payload.AutomaticAppDiscount == nil || payload.AutomaticAppDiscount.DiscountID == "" {
		return "", errors.New("shopify: discount create returned empty id")
	}
	return payload.AutomaticAppDiscount.DiscountID, nil
}
