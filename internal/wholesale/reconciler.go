package wholesale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/grosir-api/internal/attributes"
	"github.com/noah-isme/grosir-api/internal/obs"
)

// Reconciler applies classified operations to the attribute store as two
// independent sub-batches: one removal request and one write request.
type Reconciler struct {
	Store   attributes.Writer
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewReconciler constructs a reconciler. A zero timeout leaves deadlines to ctx.
func NewReconciler(store attributes.Writer, timeout time.Duration, logger zerolog.Logger) *Reconciler {
	return &Reconciler{Store: store, Timeout: timeout, Logger: logger}
}

type subBatch struct {
	ids  []string
	errs []FieldError
}

// Reconcile issues the clear and set sub-batches concurrently and aggregates
// their outcomes. A failing sub-batch never affects the other one. Errors are
// ordered clear first, then set.
func (r *Reconciler) Reconcile(ctx context.Context, ops []Operation) BatchResult {
	var (
		toClear []attributes.Key
		toSet   []attributes.Entry
	)
	for _, op := range ops {
		switch op.Action {
		case ActionClear:
			toClear = append(toClear, op.key())
		case ActionSet:
			toSet = append(toSet, op.entry())
		}
	}

	var (
		g       errgroup.Group
		cleared subBatch
		saved   subBatch
	)
	if len(toClear) > 0 {
		g.Go(func() error {
			cleared = r.run(ctx, ActionClear, attributes.DistinctVariants(toClear), func(ctx context.Context) (attributes.Result, error) {
				return r.Store.RemoveAttributes(ctx, toClear)
			})
			return nil
		})
	}
	if len(toSet) > 0 {
		g.Go(func() error {
			saved = r.run(ctx, ActionSet, attributes.DistinctVariants(attributes.Keys(toSet)), func(ctx context.Context) (attributes.Result, error) {
				return r.Store.WriteAttributes(ctx, toSet)
			})
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{
		Saved:   nonNil(saved.ids),
		Deleted: nonNil(cleared.ids),
		Errors:  make([]FieldError, 0, len(cleared.errs)+len(saved.errs)),
	}
	result.Errors = append(result.Errors, cleared.errs...)
	result.Errors = append(result.Errors, saved.errs...)
	return result
}

func (r *Reconciler) run(ctx context.Context, action Action, variants []string, call func(context.Context) (attributes.Result, error)) (out subBatch) {
	start := time.Now()
	callCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	logger := r.Logger.With().Str("action", string(action)).Int("variants", len(variants)).Logger()

	defer func() {
		if rec := recover(); rec != nil {
			out = subBatch{errs: []FieldError{{
				Field:     string(action),
				Message:   fmt.Sprintf("%s batch failed: %v", action, rec),
				Retryable: true,
			}}}
			observeBatch(action, "panic", start)
			logger.Error().Interface("panic", rec).Msg("attribute store sub-batch panicked")
		}
	}()

	res, err := call(callCtx)
	switch {
	case err != nil && (callCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
		cause := callCtx.Err()
		if cause == nil {
			cause = err
		}
		out.errs = make([]FieldError, 0, len(variants))
		for _, id := range variants {
			out.errs = append(out.errs, FieldError{
				VariantID: id,
				Field:     string(action),
				Message:   fmt.Sprintf("%s request did not complete: %v", action, cause),
				Retryable: true,
			})
		}
		observeBatch(action, "timeout", start)
		logger.Warn().Err(err).Msg("attribute store sub-batch timed out")
	case err != nil:
		out.errs = []FieldError{{
			Field:     string(action),
			Message:   err.Error(),
			Retryable: true,
		}}
		observeBatch(action, "transport_error", start)
		logger.Error().Err(err).Msg("attribute store sub-batch failed")
	case len(res.UserErrors) > 0:
		out.errs = make([]FieldError, 0, len(res.UserErrors))
		for _, ue := range res.UserErrors {
			out.errs = append(out.errs, FieldError{
				VariantID: ue.VariantID,
				Field:     ue.Field,
				Message:   ue.Message,
			})
		}
		observeBatch(action, "user_error", start)
		logger.Warn().Int("user_errors", len(res.UserErrors)).Msg("attribute store rejected sub-batch")
	default:
		out.ids = variants
		observeBatch(action, "ok", start)
		logger.Debug().Dur("took", time.Since(start)).Msg("attribute store sub-batch applied")
	}
	return out
}

func observeBatch(action Action, result string, start time.Time) {
	if obs.StoreBatchTotal != nil {
		obs.StoreBatchTotal.WithLabelValues(string(action), result).Inc()
	}
	if obs.StoreBatchLatency != nil {
		obs.StoreBatchLatency.WithLabelValues(string(action)).Observe(obs.DurationMillis(time.Since(start)))
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
