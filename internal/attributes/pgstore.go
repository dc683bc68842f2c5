package attributes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/grosir-api/internal/common"
	"github.com/noah-isme/grosir-api/internal/pricing"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	pgCheckViolation = "23514"

	upsertPriceSQL = `INSERT INTO variant_wholesale_attributes (shop, variant_id, price_cents, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (shop, variant_id) DO UPDATE SET price_cents = EXCLUDED.price_cents, updated_at = now()`

	upsertMinQtySQL = `INSERT INTO variant_wholesale_attributes (shop, variant_id, minimum_quantity, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (shop, variant_id) DO UPDATE SET minimum_quantity = EXCLUDED.minimum_quantity, updated_at = now()`

	clearPriceSQL  = `UPDATE variant_wholesale_attributes SET price_cents = NULL, updated_at = now() WHERE shop = $1 AND variant_id = $2`
	clearMinQtySQL = `UPDATE variant_wholesale_attributes SET minimum_quantity = NULL, updated_at = now() WHERE shop = $1 AND variant_id = $2`

	pruneEmptySQL = `DELETE FROM variant_wholesale_attributes
WHERE shop = $1 AND variant_id = ANY($2) AND price_cents IS NULL AND minimum_quantity IS NULL`

	readSQL = `SELECT variant_id, price_cents, minimum_quantity FROM variant_wholesale_attributes
WHERE shop = $1 AND variant_id = ANY($2)`

	purgeSQL = `DELETE FROM variant_wholesale_attributes WHERE shop = $1`
)

// PGStore keeps wholesale attributes in PostgreSQL, scoped by shop. The shop is
// taken from the request context, falling back to DefaultShop.
type PGStore struct {
	DB          DB
	DefaultShop string
}

// NewPGStore constructs a PostgreSQL-backed attribute store.
func NewPGStore(db DB, defaultShop string) *PGStore {
	return &PGStore{DB: db, DefaultShop: defaultShop}
}

// WriteAttributes upserts all entries in one transaction. Validation failures
// are reported as user errors and nothing is written.
func (s *PGStore) WriteAttributes(ctx context.Context, entries []Entry) (Result, error) {
	if userErrs := validateEntries(entries); len(userErrs) > 0 {
		return Result{UserErrors: userErrs}, nil
	}
	shop := common.ShopOr(ctx, s.DefaultShop)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, e := range entries {
		var execErr error
		switch e.Attribute {
		case AttributePrice:
			_, execErr = tx.Exec(ctx, upsertPriceSQL, shop, e.VariantID, int64(e.Amount))
		case AttributeMinQty:
			_, execErr = tx.Exec(ctx, upsertMinQtySQL, shop, e.VariantID, int32(e.Quantity))
		}
		if execErr != nil {
			var pgErr *pgconn.PgError
			if errors.As(execErr, &pgErr) && pgErr.Code == pgCheckViolation {
				return Result{UserErrors: []UserError{{
					VariantID: e.VariantID,
					Field:     string(e.Attribute),
					Message:   pgErr.Message,
					Code:      "INVALID",
				}}}, nil
			}
			return Result{}, fmt.Errorf("write %s: %w", e.Key, execErr)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	return Result{IDs: DistinctVariants(Keys(entries))}, nil
}

// RemoveAttributes clears the given attributes and drops rows left empty.
func (s *PGStore) RemoveAttributes(ctx context.Context, keys []Key) (Result, error) {
	var userErrs []UserError
	for _, k := range keys {
		if !k.Attribute.Valid() {
			userErrs = append(userErrs, UserError{VariantID: k.VariantID, Field: string(k.Attribute), Message: "unknown attribute", Code: "INVALID"})
		}
	}
	if len(userErrs) > 0 {
		return Result{UserErrors: userErrs}, nil
	}
	shop := common.ShopOr(ctx, s.DefaultShop)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, k := range keys {
		stmt := clearPriceSQL
		if k.Attribute == AttributeMinQty {
			stmt = clearMinQtySQL
		}
		if _, err := tx.Exec(ctx, stmt, shop, k.VariantID); err != nil {
			return Result{}, fmt.Errorf("clear %s: %w", k, err)
		}
	}
	ids := DistinctVariants(keys)
	if _, err := tx.Exec(ctx, pruneEmptySQL, shop, ids); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	return Result{IDs: ids}, nil
}

// ReadAttributes loads attributes for the given variants.
func (s *PGStore) ReadAttributes(ctx context.Context, variantIDs []string) (map[string]pricing.WholesaleAttributes, error) {
	out := make(map[string]pricing.WholesaleAttributes, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, readSQL, common.ShopOr(ctx, s.DefaultShop), variantIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			price  *int64
			minQty *int32
		)
		if err := rows.Scan(&id, &price, &minQty); err != nil {
			return nil, err
		}
		var attrs pricing.WholesaleAttributes
		if price != nil {
			p := pricing.Money(*price)
			attrs.Price = &p
		}
		if minQty != nil {
			q := int(*minQty)
			attrs.MinimumQuantity = &q
		}
		out[id] = attrs
	}
	return out, rows.Err()
}

// PurgeShop deletes every attribute row owned by the shop.
func (s *PGStore) PurgeShop(ctx context.Context, shop string) (int64, error) {
	tag, err := s.DB.Exec(ctx, purgeSQL, shop)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func validateEntries(entries []Entry) []UserError {
	var out []UserError
	for _, e := range entries {
		switch {
		case !e.Attribute.Valid():
			out = append(out, UserError{VariantID: e.VariantID, Field: string(e.Attribute), Message: "unknown attribute", Code: "INVALID"})
		case e.VariantID == "":
			out = append(out, UserError{Field: string(e.Attribute), Message: "variant id is required", Code: "BLANK"})
		case e.Attribute == AttributePrice && e.Amount < 0:
			out = append(out, UserError{VariantID: e.VariantID, Field: string(e.Attribute), Message: "price must not be negative", Code: "INVALID"})
		case e.Attribute == AttributeMinQty && (e.Quantity < 0 || e.Quantity > maxInt32):
			out = append(out, UserError{VariantID: e.VariantID, Field: string(e.Attribute), Message: "minimum quantity out of range", Code: "INVALID"})
		}
	}
	return out
}

const maxInt32 = 1<<31 - 1
