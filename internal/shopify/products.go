package shopify

import (
	"context"

	"github.com/noah-isme/grosir-api/internal/pricing"
)

// MaxProductsPage is the largest page the Admin API serves.
const MaxProductsPage = 250

const productsQuery = `
query wholesaleProducts($first: Int!, $after: String, $namespace: String!) {
	products(first: $first, after: $after, sortKey: TITLE) {
		nodes {
			id
			title
			handle
			featuredMedia {
				... on MediaImage { image { url } }
			}
			variants(first: 100) {
				nodes {
					id
					title
					sku
					price
					wholesalePrice: metafield(namespace: $namespace, key: "price") { value }
					wholesaleMinQty: metafield(namespace: $namespace, key: "minimum_quantity") { value }
				}
			}
		}
		pageInfo { hasNextPage endCursor }
	}
}`

// Variant is a product variant with its retail price and wholesale overrides.
type Variant struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	SKU             string         `json:"sku,omitempty"`
	Price           pricing.Money  `json:"price"`
	WholesalePrice  *pricing.Money `json:"wholesalePrice,omitempty"`
	MinimumQuantity *int           `json:"minimumQuantity,omitempty"`
}

// Product groups variants under a product.
type Product struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Handle   string    `json:"handle,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Variants []Variant `json:"variants"`
}

// ProductPage is one cursor page of products.
type ProductPage struct {
	Products    []Product `json:"products"`
	HasNextPage bool      `json:"hasNextPage"`
	EndCursor   string    `json:"endCursor,omitempty"`
}

type productsData struct {
	Products struct {
		Nodes []struct {
			ID            string `json:"id"`
			Title         string `json:"title"`
			Handle        string `json:"handle"`
			FeaturedMedia *struct {
				Image *struct {
					URL string `json:"url"`
				} `json:"image"`
			} `json:"featuredMedia"`
			Variants struct {
				Nodes []struct {
					ID              string          `json:"id"`
					Title           string          `json:"title"`
					SKU             string          `json:"sku"`
					Price           string          `json:"price"`
					WholesalePrice  *metafieldValue `json:"wholesalePrice"`
					WholesaleMinQty *metafieldValue `json:"wholesaleMinQty"`
				} `json:"nodes"`
			} `json:"variants"`
		} `json:"nodes"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
	} `json:"products"`
}

// ListProducts returns one page of products with wholesale metafields decoded
// from the store's namespace.
func (s *MetafieldStore) ListProducts(ctx context.Context, first int, after string) (ProductPage, error) {
	if first <= 0 || first > MaxProductsPage {
		first = MaxProductsPage
	}
	vars := map[string]any{"first": first, "namespace": s.namespace}
	if after != "" {
		vars["after"] = after
	}
	var data productsData
	if err := s.client.graphqlRequest(ctx, productsQuery, vars, &data); err != nil {
		return ProductPage{}, err
	}

	page := ProductPage{
		Products:    make([]Product, 0, len(data.Products.Nodes)),
		HasNextPage: data.Products.PageInfo.HasNextPage,
		EndCursor:   data.Products.PageInfo.EndCursor,
	}
	for _, node := range data.Products.Nodes {
		product := Product{
			ID:       node.ID,
			Title:    node.Title,
			Handle:   node.Handle,
			Variants: make([]Variant, 0, len(node.Variants.Nodes)),
		}
		if node.FeaturedMedia != nil && node.FeaturedMedia.Image != nil {
			product.ImageURL = node.FeaturedMedia.Image.URL
		}
		for _, v := range node.Variants.Nodes {
			retail, _ := pricing.ParseMoney(v.Price)
			variant := Variant{ID: v.ID, Title: v.Title, SKU: v.SKU, Price: retail}
			if attrs, ok := s.decode(v.ID, v.WholesalePrice, v.WholesaleMinQty); ok {
				variant.WholesalePrice = attrs.Price
				variant.MinimumQuantity = attrs.MinimumQuantity
			}
			product.Variants = append(product.Variants, variant)
		}
		page.Products = append(page.Products, product)
	}
	return page, nil
}
