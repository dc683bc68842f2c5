package wholesale

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grosir-api/internal/attributes"
)

type fakeStore struct {
	mu sync.Mutex

	writeCalls  [][]attributes.Entry
	removeCalls [][]attributes.Key

	writeResult  attributes.Result
	writeErr     error
	removeResult attributes.Result
	removeErr    error

	writePanic  bool
	removeBlock bool
}

func (f *fakeStore) WriteAttributes(ctx context.Context, entries []attributes.Entry) (attributes.Result, error) {
	f.mu.Lock()
	f.writeCalls = append(f.writeCalls, entries)
	f.mu.Unlock()
	if f.writePanic {
		panic("boom")
	}
	return f.writeResult, f.writeErr
}

func (f *fakeStore) RemoveAttributes(ctx context.Context, keys []attributes.Key) (attributes.Result, error) {
	f.mu.Lock()
	f.removeCalls = append(f.removeCalls, keys)
	f.mu.Unlock()
	if f.removeBlock {
		<-ctx.Done()
		return attributes.Result{}, ctx.Err()
	}
	return f.removeResult, f.removeErr
}

func newTestReconciler(store attributes.Writer) *Reconciler {
	return NewReconciler(store, 0, zerolog.Nop())
}

func TestReconcileSplitsIntoTwoBatches(t *testing.T) {
	store := &fakeStore{}
	ops := Classify([]Edit{
		{VariantID: "V1", Price: "", MinimumQuantity: "5"},
		{VariantID: "V2", Price: "8", MinimumQuantity: "null"},
		{VariantID: "V3", Price: "7.5", MinimumQuantity: "2"},
	})

	result := newTestReconciler(store).Reconcile(context.Background(), ops)

	require.True(t, result.Success())
	require.Len(t, store.removeCalls, 1)
	require.Len(t, store.writeCalls, 1)
	require.Equal(t, []attributes.Key{
		{VariantID: "V1", Attribute: attributes.AttributePrice},
		{VariantID: "V2", Attribute: attributes.AttributeMinQty},
	}, store.removeCalls[0])
	require.Equal(t, []attributes.Entry{
		attributes.MinQtyEntry("V1", 5),
		attributes.PriceEntry("V2", 800),
		attributes.PriceEntry("V3", 750),
		attributes.MinQtyEntry("V3", 2),
	}, store.writeCalls[0])
	require.Equal(t, []string{"V1", "V2", "V3"}, result.Saved)
	require.Equal(t, []string{"V1", "V2"}, result.Deleted)
	require.Empty(t, result.Errors)
}

func TestReconcileSkipsEmptySubBatch(t *testing.T) {
	store := &fakeStore{}
	result := newTestReconciler(store).Reconcile(context.Background(), []Operation{SetPrice("V1", 100)})
	require.True(t, result.Success())
	require.Empty(t, store.removeCalls)
	require.Len(t, store.writeCalls, 1)
	require.Equal(t, []string{}, result.Deleted)
}

func TestReconcileClearFailureKeepsSaved(t *testing.T) {
	store := &fakeStore{removeErr: errors.New("connection reset")}
	ops := []Operation{SetPrice("V1", 100), Clear("V2", attributes.AttributeMinQty)}

	result := newTestReconciler(store).Reconcile(context.Background(), ops)

	require.False(t, result.Success())
	require.Equal(t, []string{"V1"}, result.Saved)
	require.Empty(t, result.Deleted)
	require.Equal(t, []FieldError{{Field: "clear", Message: "connection reset", Retryable: true}}, result.Errors)
}

func TestReconcileUserErrorsFailWholeSubBatch(t *testing.T) {
	store := &fakeStore{writeResult: attributes.Result{
		IDs:        []string{"V1"},
		UserErrors: []attributes.UserError{{VariantID: "V2", Field: "price", Message: "Value must be positive"}},
	}}
	ops := []Operation{SetPrice("V1", 100), SetPrice("V2", 200), Clear("V3", attributes.AttributePrice)}

	result := newTestReconciler(store).Reconcile(context.Background(), ops)

	require.False(t, result.Success())
	require.Empty(t, result.Saved)
	require.Equal(t, []string{"V3"}, result.Deleted)
	require.Equal(t, []FieldError{{VariantID: "V2", Field: "price", Message: "Value must be positive"}}, result.Errors)
}

func TestReconcileRecoversPanic(t *testing.T) {
	store := &fakeStore{writePanic: true}
	ops := []Operation{SetPrice("V1", 100), Clear("V2", attributes.AttributePrice)}

	result := newTestReconciler(store).Reconcile(context.Background(), ops)

	require.Equal(t, []string{"V2"}, result.Deleted)
	require.Empty(t, result.Saved)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "set", result.Errors[0].Field)
	require.True(t, result.Errors[0].Retryable)
	require.Contains(t, result.Errors[0].Message, "boom")
}

func TestReconcileTimeoutReportsEveryVariant(t *testing.T) {
	store := &fakeStore{removeBlock: true}
	rec := NewReconciler(store, 20*time.Millisecond, zerolog.Nop())
	ops := []Operation{
		Clear("V1", attributes.AttributePrice),
		Clear("V1", attributes.AttributeMinQty),
		Clear("V2", attributes.AttributePrice),
		SetPrice("V3", 100),
	}

	result := rec.Reconcile(context.Background(), ops)

	require.Equal(t, []string{"V3"}, result.Saved)
	require.Empty(t, result.Deleted)
	require.Len(t, result.Errors, 2)
	require.Equal(t, "V1", result.Errors[0].VariantID)
	require.Equal(t, "V2", result.Errors[1].VariantID)
	for _, fe := range result.Errors {
		require.True(t, fe.Retryable)
		require.Contains(t, fe.Message, context.DeadlineExceeded.Error())
	}
}

func TestReconcileErrorOrderIsDeterministic(t *testing.T) {
	ops := []Operation{SetPrice("V1", 100), Clear("V2", attributes.AttributePrice)}
	reversed := []Operation{ops[1], ops[0]}
	for i := 0; i < 20; i++ {
		a := newTestReconciler(&fakeStore{writeErr: errors.New("set down"), removeErr: errors.New("clear down")}).Reconcile(context.Background(), ops)
		b := newTestReconciler(&fakeStore{writeErr: errors.New("set down"), removeErr: errors.New("clear down")}).Reconcile(context.Background(), reversed)
		require.Equal(t, a, b)
		require.Equal(t, "clear", a.Errors[0].Field)
		require.Equal(t, "set", a.Errors[1].Field)
	}
}
