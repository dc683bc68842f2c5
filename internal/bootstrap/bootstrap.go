package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/grosir-api/internal/shopify"
)

// DefaultDiscountTitle names the automatic discount bound to the function.
const DefaultDiscountTitle = "Wholesale Pricing"

// DefaultFunctionHandle is the handle of the deployed discount function.
const DefaultFunctionHandle = "wholesale-discount"

const lockKey = "lock:wholesale:bootstrap"

// Provisioner is the subset of the Admin API used for provisioning.
type Provisioner interface {
	CreateMetafieldDefinition(ctx context.Context, def shopify.MetafieldDefinition) (string, error)
	FindAutomaticDiscount(ctx context.Context, title string) (string, error)
	CreateAutomaticDiscount(ctx context.Context, d shopify.AutomaticDiscount) (string, error)
}

// Locker serializes bootstrap runs across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Bootstrapper performs the one-time, idempotent shop provisioning.
type Bootstrapper struct {
	Provisioner    Provisioner
	Locker         Locker
	LockTTL        time.Duration
	Namespace      string
	DiscountTitle  string
	FunctionHandle string
	// Migrate runs schema migrations first when set.
	Migrate func(ctx context.Context) error
	Logger  zerolog.Logger
}

// Report summarises what a run changed.
type Report struct {
	Migrated            bool     `json:"migrated"`
	DefinitionsCreated  []string `json:"definitionsCreated"`
	DefinitionsExisting []string `json:"definitionsExisting"`
	DiscountID          string   `json:"discountId,omitempty"`
	DiscountCreated     bool     `json:"discountCreated"`
}

// Run provisions the schema and the automatic discount under the bootstrap
// lock. Existing definitions and discounts are left untouched.
func (b *Bootstrapper) Run(ctx context.Context) (Report, error) {
	if b.Provisioner == nil {
		return Report{}, errors.New("bootstrap: provisioner not configured")
	}
	var report Report
	run := func(ctx context.Context) error {
		var err error
		report, err = b.run(ctx)
		return err
	}
	if b.Locker == nil {
		return report, run(ctx)
	}
	ttl := b.LockTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	err := b.Locker.WithLock(ctx, lockKey, ttl, run)
	return report, err
}

func (b *Bootstrapper) run(ctx context.Context) (Report, error) {
	var report Report
	if b.Migrate != nil {
		if err := b.Migrate(ctx); err != nil {
			return report, fmt.Errorf("bootstrap: migrate: %w", err)
		}
		report.Migrated = true
		b.Logger.Info().Msg("schema migrations applied")
	}

	created, existing, err := b.ensureDefinitions(ctx)
	report.DefinitionsCreated = created
	report.DefinitionsExisting = existing
	if err != nil {
		return report, err
	}

	id, made, err := b.ensureDiscount(ctx)
	report.DiscountID = id
	report.DiscountCreated = made
	return report, err
}

func (b *Bootstrapper) ensureDefinitions(ctx context.Context) ([]string, []string, error) {
	defs := shopify.WholesaleDefinitions(b.Namespace)
	var (
		mu       sync.Mutex
		created  []string
		existing []string
		failures []error
		g        errgroup.Group
	)
	for _, def := range defs {
		g.Go(func() error {
			name := def.Namespace + "." + def.Key
			_, err := b.Provisioner.CreateMetafieldDefinition(ctx, def)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created = append(created, name)
				b.Logger.Info().Str("definition", name).Msg("metafield definition created")
			case errors.Is(err, shopify.ErrDefinitionExists):
				existing = append(existing, name)
				b.Logger.Debug().Str("definition", name).Msg("metafield definition already exists")
			default:
				failures = append(failures, fmt.Errorf("definition %s: %w", name, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return created, existing, errors.Join(failures...)
}

func (b *Bootstrapper) ensureDiscount(ctx context.Context) (string, bool, error) {
	title := b.DiscountTitle
	if title == "" {
		title = DefaultDiscountTitle
	}
	handle := b.FunctionHandle
	if handle == "" {
		handle = DefaultFunctionHandle
	}
	id, err := b.Provisioner.FindAutomaticDiscount(ctx, title)
	if err != nil {
		return "", false, fmt.Errorf("bootstrap: find discount: %w", err)
	}
	if id != "" {
		b.Logger.Debug().Str("discount_id", id).Msg("automatic discount already exists")
		return id, false, nil
	}
	id, err = b.Provisioner.CreateAutomaticDiscount(ctx, shopify.AutomaticDiscount{Title: title, FunctionHandle: handle})
	if err != nil {
		return "", false, fmt.Errorf("bootstrap: create discount: %w", err)
	}
	b.Logger.Info().Str("discount_id", id).Str("title", title).Msg("automatic discount created")
	return id, true, nil
}
