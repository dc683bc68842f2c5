package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/noah-isme/grosir-api/internal/common"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	// ActorKindStaff represents a merchant staff member with a session token.
	ActorKindStaff ActorKind = "staff"
	// ActorKindSystem represents internal automated actions.
	ActorKindSystem ActorKind = "system"
)

// Entry is one audited action.
type Entry struct {
	ID        string          `json:"id"`
	Shop      string          `json:"shop"`
	ActorKind ActorKind       `json:"actor_kind"`
	ActorID   string          `json:"actor_id,omitempty"`
	Action    string          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	Edits     int             `json:"edits"`
	Saved     int             `json:"saved"`
	Deleted   int             `json:"deleted"`
	Failed    int             `json:"failed"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store defines the persistence operations required for auditing.
type Store interface {
	InsertEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, shop string, limit, offset int) ([]Entry, error)
}

// Service persists audit entries for wholesale changes.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
	DefaultShop  string
}

// Record fills identity fields from the context and persists the entry when
// auditing is enabled.
func (s Service) Record(ctx context.Context, entry Entry) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 {
		if rand.Float64() > s.SamplingRate {
			return nil
		}
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit: action is required")
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Shop == "" {
		entry.Shop = common.ShopOr(ctx, s.DefaultShop)
	}
	if entry.ActorID == "" {
		if userID, ok := common.UserID(ctx); ok {
			entry.ActorID = strings.TrimSpace(userID)
		}
	}
	entry.ActorKind = normalizeActorKind(entry.ActorKind, entry.ActorID)
	if entry.RequestID == "" {
		entry.RequestID = middleware.GetReqID(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.Store.InsertEntry(ctx, entry)
}

func normalizeActorKind(kind ActorKind, actorID string) ActorKind {
	switch kind {
	case ActorKindStaff, ActorKindSystem:
		return kind
	}
	if actorID != "" {
		return ActorKindStaff
	}
	return ActorKindSystem
}
