package wholesale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/grosir-api/internal/audit"
	"github.com/noah-isme/grosir-api/internal/common"
	"github.com/noah-isme/grosir-api/internal/obs"
)

// ErrNoUpdates is returned when a submission carries nothing to reconcile.
var ErrNoUpdates = errors.New("No updates provided")

// AuditRecorder persists a record of each reconciled submission.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Invalidator drops cached views derived from the attribute store.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service is the batch submission boundary in front of the Reconciler.
type Service struct {
	Reconciler *Reconciler
	MaxBatch   int
	Audit      AuditRecorder
	Cache      Invalidator
	Logger     zerolog.Logger
}

// Save classifies and reconciles a batch of edits. Preconditions are checked
// before any store call is made.
func (s *Service) Save(ctx context.Context, edits []Edit) (BatchResult, error) {
	if len(edits) == 0 {
		observeSave("rejected")
		return BatchResult{}, ErrNoUpdates
	}
	if s.MaxBatch > 0 && len(edits) > s.MaxBatch {
		observeSave("rejected")
		return BatchResult{}, common.NewAppError("BATCH_TOO_LARGE", fmt.Sprintf("at most %d updates per submission", s.MaxBatch), http.StatusRequestEntityTooLarge, nil)
	}
	ops := Classify(edits)
	if len(ops) == 0 {
		observeSave("rejected")
		return BatchResult{}, ErrNoUpdates
	}

	result := s.Reconciler.Reconcile(ctx, ops)

	switch {
	case result.Success():
		observeSave("success")
	case len(result.Saved)+len(result.Deleted) > 0:
		observeSave("partial")
	default:
		observeSave("failed")
	}

	if s.Cache != nil && len(result.Saved)+len(result.Deleted) > 0 {
		if err := s.Cache.Invalidate(ctx); err != nil {
			s.Logger.Warn().Err(err).Msg("invalidate product cache")
		}
	}
	if s.Audit != nil {
		if err := s.Audit.Record(ctx, auditEntry(len(edits), result)); err != nil {
			s.Logger.Warn().Err(err).Msg("record wholesale audit")
		}
	}

	s.Logger.Info().
		Int("edits", len(edits)).
		Int("operations", len(ops)).
		Int("saved", len(result.Saved)).
		Int("deleted", len(result.Deleted)).
		Int("errors", len(result.Errors)).
		Msg("wholesale batch reconciled")
	return result, nil
}

func auditEntry(edits int, result BatchResult) audit.Entry {
	entry := audit.Entry{
		Action:  "wholesale.save",
		Edits:   edits,
		Saved:   len(result.Saved),
		Deleted: len(result.Deleted),
		Failed:  len(result.Errors),
	}
	if len(result.Errors) > 0 {
		if data, err := json.Marshal(map[string]any{"errors": result.Errors}); err == nil {
			entry.Metadata = data
		}
	}
	return entry
}

func observeSave(result string) {
	if obs.WholesaleSaveTotal != nil {
		obs.WholesaleSaveTotal.WithLabelValues(result).Inc()
	}
}
