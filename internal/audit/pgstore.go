package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGStore keeps audit entries in the wholesale_audit table.
type PGStore struct {
	DB DB
}

const (
	insertEntrySQL = `INSERT INTO wholesale_audit
(id, shop, actor_kind, actor_id, action, request_id, edits, saved, deleted, failed, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	listEntriesSQL = `SELECT id, shop, actor_kind, actor_id, action, request_id, edits, saved, deleted, failed, metadata, created_at
FROM wholesale_audit WHERE shop = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	purgeEntriesSQL = `DELETE FROM wholesale_audit WHERE shop = $1`
)

// InsertEntry persists one entry.
func (s PGStore) InsertEntry(ctx context.Context, e Entry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}
	_, err := s.DB.Exec(ctx, insertEntrySQL,
		e.ID, e.Shop, string(e.ActorKind), toNullText(e.ActorID), e.Action, toNullText(e.RequestID),
		int32(e.Edits), int32(e.Saved), int32(e.Deleted), int32(e.Failed), metadata, e.CreatedAt)
	return err
}

// ListEntries returns the most recent entries for a shop.
func (s PGStore) ListEntries(ctx context.Context, shop string, limit, offset int) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, listEntriesSQL, shop, int32(limit), int32(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e                          Entry
			kind                       string
			actorID, requestID         pgtype.Text
			edits, saved, deleted, bad int32
			metadata                   []byte
		)
		if err := rows.Scan(&e.ID, &e.Shop, &kind, &actorID, &e.Action, &requestID,
			&edits, &saved, &deleted, &bad, &metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorKind = ActorKind(kind)
		e.ActorID = actorID.String
		e.RequestID = requestID.String
		e.Edits, e.Saved, e.Deleted, e.Failed = int(edits), int(saved), int(deleted), int(bad)
		e.Metadata = metadata
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeShop deletes all entries for a shop.
func (s PGStore) PurgeShop(ctx context.Context, shop string) (int64, error) {
	tag, err := s.DB.Exec(ctx, purgeEntriesSQL, shop)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func toNullText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
