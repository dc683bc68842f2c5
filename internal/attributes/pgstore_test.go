package attributes

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grosir-api/internal/common"
	"github.com/noah-isme/grosir-api/internal/pricing"
)

type execCall struct {
	sql  string
	args []any
}

// fakeTx records statements. Methods not overridden panic through the nil
// embedded interface.
type fakeTx struct {
	pgx.Tx
	calls      []execCall
	failOn     string
	failWith   error
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.calls = append(tx.calls, execCall{sql: sql, args: args})
	if tx.failOn != "" && strings.HasPrefix(sql, tx.failOn) {
		return pgconn.CommandTag{}, tx.failWith
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type attrRow struct {
	id     string
	price  *int64
	minQty *int32
}

type fakeRows struct {
	pgx.Rows
	rows   []attrRow
	pos    int
	closed bool
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	*dest[0].(*string) = row.id
	*dest[1].(**int64) = row.price
	*dest[2].(**int32) = row.minQty
	return nil
}

func (r *fakeRows) Close()     { r.closed = true }
func (r *fakeRows) Err() error { return nil }

type fakeDB struct {
	tx        *fakeTx
	rows      *fakeRows
	queryArgs []any
	execCalls []execCall
	execTag   string
}

func (db *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	return db.tx, nil
}

func (db *fakeDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	db.queryArgs = args
	return db.rows, nil
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execCalls = append(db.execCalls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag(db.execTag), nil
}

func int64p(v int64) *int64 { return &v }
func int32p(v int32) *int32 { return &v }

func TestPGStoreWriteAttributesCommits(t *testing.T) {
	tx := &fakeTx{}
	store := NewPGStore(&fakeDB{tx: tx}, "default.myshopify.com")
	ctx := common.WithShop(context.Background(), "demo-store.myshopify.com")

	res, err := store.WriteAttributes(ctx, []Entry{PriceEntry("v1", 800), MinQtyEntry("v1", 6), PriceEntry("v2", 150)})
	require.NoError(t, err)
	require.Empty(t, res.UserErrors)
	require.Equal(t, []string{"v1", "v2"}, res.IDs)
	require.True(t, tx.committed)
	require.Len(t, tx.calls, 3)
	require.Equal(t, upsertPriceSQL, tx.calls[0].sql)
	require.Equal(t, []any{"demo-store.myshopify.com", "v1", int64(800)}, tx.calls[0].args)
	require.Equal(t, upsertMinQtySQL, tx.calls[1].sql)
	require.Equal(t, []any{"demo-store.myshopify.com", "v1", int32(6)}, tx.calls[1].args)
}

func TestPGStoreWriteAttributesCheckViolation(t *testing.T) {
	tx := &fakeTx{
		failOn:   "INSERT INTO variant_wholesale_attributes (shop, variant_id, minimum_quantity",
		failWith: &pgconn.PgError{Code: "23514", Message: "minimum_quantity violates check"},
	}
	store := NewPGStore(&fakeDB{tx: tx}, "default.myshopify.com")

	res, err := store.WriteAttributes(context.Background(), []Entry{PriceEntry("v1", 800), MinQtyEntry("v1", 6)})
	require.NoError(t, err)
	require.Empty(t, res.IDs)
	require.Equal(t, []UserError{{VariantID: "v1", Field: "minimum_quantity", Message: "minimum_quantity violates check", Code: "INVALID"}}, res.UserErrors)
	require.False(t, tx.committed)
	require.True(t, tx.rolledBack)
}

func TestPGStoreWriteAttributesTransportError(t *testing.T) {
	tx := &fakeTx{failOn: "INSERT", failWith: errors.New("conn reset")}
	store := NewPGStore(&fakeDB{tx: tx}, "default.myshopify.com")

	_, err := store.WriteAttributes(context.Background(), []Entry{PriceEntry("v1", 800)})
	require.ErrorContains(t, err, "conn reset")
	require.True(t, tx.rolledBack)
}

func TestPGStoreWriteAttributesValidatesBeforeBegin(t *testing.T) {
	store := NewPGStore(&fakeDB{}, "default.myshopify.com")

	res, err := store.WriteAttributes(context.Background(), []Entry{PriceEntry("v1", -1), MinQtyEntry("", 2)})
	require.NoError(t, err)
	require.Len(t, res.UserErrors, 2)
	require.Equal(t, "BLANK", res.UserErrors[1].Code)
}

func TestPGStoreRemoveAttributesClearsThenPrunes(t *testing.T) {
	tx := &fakeTx{}
	store := NewPGStore(&fakeDB{tx: tx}, "default.myshopify.com")

	keys := []Key{
		{VariantID: "v1", Attribute: AttributePrice},
		{VariantID: "v1", Attribute: AttributeMinQty},
		{VariantID: "v2", Attribute: AttributePrice},
	}
	res, err := store.RemoveAttributes(context.Background(), keys)
	require.NoError(t, err)
	require.Equal(t, []string{"v1", "v2"}, res.IDs)
	require.True(t, tx.committed)
	require.Len(t, tx.calls, 4)
	require.Equal(t, clearPriceSQL, tx.calls[0].sql)
	require.Equal(t, clearMinQtySQL, tx.calls[1].sql)
	require.Equal(t, clearPriceSQL, tx.calls[2].sql)
	require.Equal(t, pruneEmptySQL, tx.calls[3].sql)
	require.Equal(t, []any{"default.myshopify.com", []string{"v1", "v2"}}, tx.calls[3].args)
}

func TestPGStoreRemoveAttributesRejectsUnknownAttribute(t *testing.T) {
	store := NewPGStore(&fakeDB{}, "default.myshopify.com")

	res, err := store.RemoveAttributes(context.Background(), []Key{{VariantID: "v1", Attribute: "colour"}})
	require.NoError(t, err)
	require.Len(t, res.UserErrors, 1)
	require.Equal(t, "colour", res.UserErrors[0].Field)
}

func TestPGStoreReadAttributesNullableColumns(t *testing.T) {
	rows := &fakeRows{rows: []attrRow{
		{id: "v1", price: int64p(800), minQty: int32p(6)},
		{id: "v2", price: int64p(150)},
		{id: "v3", minQty: int32p(12)},
	}}
	db := &fakeDB{rows: rows}
	store := NewPGStore(db, "default.myshopify.com")
	ctx := common.WithShop(context.Background(), "demo-store.myshopify.com")

	got, err := store.ReadAttributes(ctx, []string{"v1", "v2", "v3", "v4"})
	require.NoError(t, err)
	require.True(t, rows.closed)
	require.Equal(t, []any{"demo-store.myshopify.com", []string{"v1", "v2", "v3", "v4"}}, db.queryArgs)
	require.Len(t, got, 3)

	require.Equal(t, pricing.Money(800), *got["v1"].Price)
	require.Equal(t, 6, *got["v1"].MinimumQuantity)
	require.Equal(t, pricing.Money(150), *got["v2"].Price)
	require.Nil(t, got["v2"].MinimumQuantity)
	require.Nil(t, got["v3"].Price)
	require.Equal(t, 12, *got["v3"].MinimumQuantity)
	require.NotContains(t, got, "v4")
}

func TestPGStoreReadAttributesEmptyInput(t *testing.T) {
	store := NewPGStore(&fakeDB{}, "default.myshopify.com")

	got, err := store.ReadAttributes(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPGStorePurgeShop(t *testing.T) {
	db := &fakeDB{execTag: "DELETE 3"}
	store := NewPGStore(db, "default.myshopify.com")

	n, err := store.PurgeShop(context.Background(), "gone.myshopify.com")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Len(t, db.execCalls, 1)
	require.Equal(t, purgeSQL, db.execCalls[0].sql)
	require.Equal(t, []any{"gone.myshopify.com"}, db.execCalls[0].args)
}
