package activity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the pgx surface Insert needs; a pool or an open transaction both
// satisfy it, so lifecycle services append entries inside their own tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Insert appends one entry. Failure aborts the enclosing transaction; there
// is no transition without its audit record.
func Insert(ctx context.Context, db DBTX, e Entry) error {
	if e.EntityType == "" || e.EntityID == 0 || e.Type == "" {
		return errors.New("activity: entry requires entity type, entity id and activity type")
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	at := e.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = db.Exec(ctx, `
		INSERT INTO activity_logs (tenant_id, entity_type, entity_id, activity_type, description, actor_id, actor_name, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.TenantID, e.EntityType, e.EntityID, string(e.Type), e.Description, e.ActorID, e.ActorName, metaJSON, at)
	return err
}

// Store reads the trail back out for timelines and entity detail views.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListFor returns every entry for one entity, oldest first.
func (s *Store) ListFor(ctx context.Context, tenantID int64, entityType string, entityID int64) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, entity_type, entity_id, activity_type, description, actor_id, actor_name, metadata, created_at
		FROM activity_logs
		WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at ASC, id ASC
	`, tenantID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Timeline returns a page of the tenant's trail, newest first, with one extra
// row fetched to detect whether a next page exists.
func (s *Store) Timeline(ctx context.Context, tenantID int64, entityType string, limit, offset int) ([]Entry, bool, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	args := []any{tenantID, limit + 1, offset}
	filter := ""
	if entityType != "" {
		filter = " AND entity_type = $4"
		args = append(args, entityType)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, entity_type, entity_id, activity_type, description, actor_id, actor_name, metadata, created_at
		FROM activity_logs
		WHERE tenant_id = $1`+filter+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, false, err
	}
	hasNext := len(entries) > limit
	if hasNext {
		entries = entries[:limit]
	}
	return entries, hasNext, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EntityType, &e.EntityID, &e.Type, &e.Description, &e.ActorID, &e.ActorName, &metaJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
