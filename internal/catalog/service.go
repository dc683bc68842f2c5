package catalog

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/common"
	"github.com/noah-isme/grosir-api/internal/obs"
	"github.com/noah-isme/grosir-api/internal/shopify"
)

// ProductSource pages through the shop's products.
type ProductSource interface {
	ListProducts(ctx context.Context, first int, after string) (shopify.ProductPage, error)
}

// Service lists products with their wholesale attributes, caching pages in Redis.
type Service struct {
	source       ProductSource
	overlay      attributes.Reader
	cache        *Cache
	defaultShop  string
	defaultLimit int
	maxLimit     int
	logger       zerolog.Logger
}

// ServiceConfig groups Service dependencies. Overlay is set when attributes
// live outside the product source, e.g. in PostgreSQL.
type ServiceConfig struct {
	Source       ProductSource
	Overlay      attributes.Reader
	Cache        *Cache
	DefaultShop  string
	DefaultLimit int
	MaxLimit     int
	Logger       zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("catalog: product source required")
	}
	if cfg.MaxLimit <= 0 || cfg.MaxLimit > shopify.MaxProductsPage {
		cfg.MaxLimit = shopify.MaxProductsPage
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	return &Service{
		source:       cfg.Source,
		overlay:      cfg.Overlay,
		cache:        cfg.Cache,
		defaultShop:  cfg.DefaultShop,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		logger:       cfg.Logger,
	}, nil
}

// Limits returns the default and maximum page sizes.
func (s *Service) Limits() (int, int) {
	return s.defaultLimit, s.maxLimit
}

// ListProducts returns one page of products.
func (s *Service) ListProducts(ctx context.Context, first int, after string) (shopify.ProductPage, error) {
	shop := common.ShopOr(ctx, s.defaultShop)
	var key string
	if s.cache.enabled() {
		k, err := s.cache.PageKey(ctx, shop, first, after)
		if err != nil {
			s.logger.Warn().Err(err).Msg("products cache key lookup failed")
		} else {
			key = k
		}
	}
	if key != "" {
		var cached shopify.ProductPage
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			observeCache("hit")
			return cached, nil
		}
		observeCache("miss")
	}

	page, err := s.source.ListProducts(ctx, first, after)
	if err != nil {
		return shopify.ProductPage{}, common.NewAppError("PRODUCTS_UNAVAILABLE", "unable to load products", http.StatusBadGateway, err)
	}
	if s.overlay != nil {
		if err := s.applyOverlay(ctx, &page); err != nil {
			return shopify.ProductPage{}, common.NewAppError("ATTRIBUTE_STORE_ERROR", "unable to load wholesale attributes", http.StatusBadGateway, err)
		}
	}
	if key != "" {
		if err := s.cache.SetJSON(ctx, key, page); err != nil {
			s.logger.Warn().Err(err).Msg("products cache write failed")
		}
	}
	return page, nil
}

// Invalidate drops cached pages for the shop on the context.
func (s *Service) Invalidate(ctx context.Context) error {
	if !s.cache.enabled() {
		return nil
	}
	observeCache("invalidate")
	return s.cache.Bump(ctx, common.ShopOr(ctx, s.defaultShop))
}

func (s *Service) applyOverlay(ctx context.Context, page *shopify.ProductPage) error {
	var ids []string
	for _, p := range page.Products {
		for _, v := range p.Variants {
			ids = append(ids, v.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	stored, err := s.overlay.ReadAttributes(ctx, ids)
	if err != nil {
		return err
	}
	for i := range page.Products {
		variants := page.Products[i].Variants
		for j := range variants {
			attrs := stored[variants[j].ID]
			variants[j].WholesalePrice = attrs.Price
			variants[j].MinimumQuantity = attrs.MinimumQuantity
		}
	}
	return nil
}

func observeCache(result string) {
	if obs.ProductsCacheTotal != nil {
		obs.ProductsCacheTotal.WithLabelValues(result).Inc()
	}
}
