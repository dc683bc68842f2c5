package audit

import (
	"context"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/noah-isme/grosir-api/internal/common"
)

type stubStore struct {
	lastInsert Entry
	called     bool
}

func (s *stubStore) InsertEntry(_ context.Context, entry Entry) error {
	s.called = true
	s.lastInsert = entry
	return nil
}

func (s *stubStore) ListEntries(context.Context, string, int, int) ([]Entry, error) {
	return nil, nil
}

func TestServiceRecord(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true, SamplingRate: 1, DefaultShop: "fallback.myshopify.com"}

	ctx := common.WithShop(context.Background(), "demo.myshopify.com")
	ctx = common.WithUserID(ctx, "42")
	ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-123")

	if err := svc.Record(ctx, Entry{Action: "wholesale.save", Edits: 3, Saved: 2, Failed: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !store.called {
		t.Fatal("expected store to be called")
	}
	got := store.lastInsert
	if _, err := uuid.Parse(got.ID); err != nil {
		t.Fatalf("expected generated uuid, got %q", got.ID)
	}
	if got.Shop != "demo.myshopify.com" {
		t.Fatalf("unexpected shop: %s", got.Shop)
	}
	if got.ActorKind != ActorKindStaff || got.ActorID != "42" {
		t.Fatalf("unexpected actor: %s/%s", got.ActorKind, got.ActorID)
	}
	if got.RequestID != "req-123" {
		t.Fatalf("expected request id, got %q", got.RequestID)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
	if got.Edits != 3 || got.Saved != 2 || got.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
}

func TestServiceRecordFallsBackToSystemActor(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: true, DefaultShop: "fallback.myshopify.com"}
	if err := svc.Record(context.Background(), Entry{Action: "shop.redact"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if store.lastInsert.Shop != "fallback.myshopify.com" {
		t.Fatalf("unexpected shop: %s", store.lastInsert.Shop)
	}
	if store.lastInsert.ActorKind != ActorKindSystem {
		t.Fatalf("unexpected actor kind: %s", store.lastInsert.ActorKind)
	}
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store, Enabled: false}
	if err := svc.Record(context.Background(), Entry{Action: "wholesale.save"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if store.called {
		t.Fatal("expected no insert when disabled")
	}
}

func TestServiceRecordRequiresAction(t *testing.T) {
	svc := Service{Store: &stubStore{}, Enabled: true}
	if err := svc.Record(context.Background(), Entry{}); err == nil {
		t.Fatal("expected error for missing action")
	}
}
