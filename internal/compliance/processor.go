package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// ShopPurger deletes everything stored for a shop.
type ShopPurger interface {
	PurgeShop(ctx context.Context, shop string) (int64, error)
}

// Processor runs compliance tasks on the worker.
type Processor struct {
	Purgers map[string]ShopPurger
	Logger  zerolog.Logger
}

// Register binds every compliance task type on mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeCustomersDataRequest, p.ProcessTask)
	mux.HandleFunc(TypeCustomersRedact, p.ProcessTask)
	mux.HandleFunc(TypeShopRedact, p.ProcessTask)
}

// ProcessTask handles a single compliance task.
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("compliance: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := p.Logger.With().
		Str("task", t.Type()).
		Str("shop", payload.Shop).
		Str("webhook_id", payload.WebhookID).
		Logger()

	switch t.Type() {
	case TypeCustomersDataRequest, TypeCustomersRedact:
		// Only variant attributes and staff audit rows are stored; nothing is keyed by customer.
		logger.Info().Msg("customer compliance request acknowledged")
		return nil
	case TypeShopRedact:
		return p.redactShop(ctx, payload.Shop, logger)
	default:
		return fmt.Errorf("compliance: unexpected task type %q: %w", t.Type(), asynq.SkipRetry)
	}
}

func (p *Processor) redactShop(ctx context.Context, shop string, logger zerolog.Logger) error {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return fmt.Errorf("compliance: shop/redact without shop domain: %w", asynq.SkipRetry)
	}
	for name, purger := range p.Purgers {
		if purger == nil {
			continue
		}
		removed, err := purger.PurgeShop(ctx, shop)
		if err != nil {
			return fmt.Errorf("purge %s: %w", name, err)
		}
		logger.Info().Str("store", name).Int64("rows", removed).Msg("shop data purged")
	}
	return nil
}
