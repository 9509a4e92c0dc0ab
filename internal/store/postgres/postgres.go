// Package postgres stores each collection as a jsonb document table in
// Postgres (Supabase-compatible). Changes are broadcast by a statement trigger
// through pg_notify on the collection_changes channel.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"inventory-admin/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ store.Backend        = (*Store)(nil)
	_ store.Watcher        = (*Store)(nil)
	_ store.ContainsFinder = (*Store)(nil)
	_ store.Counter        = (*Store)(nil)
	_ store.BatchWriter    = (*Store)(nil)
)

const notifyChannel = "collection_changes"

var validField = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store is a pgx-backed store.Backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool. Call Migrate first on a fresh database.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func table(collection string) (string, error) {
	if err := store.CheckCollection(collection); err != nil {
		return "", err
	}
	return pgx.Identifier{collection}.Sanitize(), nil
}

// fieldLiteral renders a snake_case field name as a SQL string literal. Field
// names are inlined rather than bound so expression indexes can match.
func fieldLiteral(field string) (string, error) {
	if !validField.MatchString(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return "'" + field + "'", nil
}

func scanRecords(rows pgx.Rows) ([]store.Record, error) {
	defer rows.Close()
	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanRecord(row pgx.Row) (store.Record, error) {
	var (
		id                   string
		data                 map[string]any
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec := store.Record(data)
	if rec == nil {
		rec = store.Record{}
	}
	rec[store.FieldID] = id
	rec[store.FieldCreatedAt] = createdAt
	rec[store.FieldUpdatedAt] = updatedAt
	return rec, nil
}

const selectCols = "id::text, data, created_at, updated_at"

func (s *Store) List(ctx context.Context, collection string) ([]store.Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, "SELECT "+selectCols+" FROM "+t+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	return recs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx, "SELECT "+selectCols+" FROM "+t+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	return rec, nil
}

func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	data := map[string]any(store.StripSystemFields(rec))
	out, err := scanRecord(s.pool.QueryRow(ctx,
		"INSERT INTO "+t+" (data) VALUES ($1) RETURNING "+selectCols, data))
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch store.Record) (store.Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	data := map[string]any(store.StripSystemFields(patch))
	out, err := scanRecord(s.pool.QueryRow(ctx, `
		UPDATE `+t+`
		SET data = data || $2::jsonb, updated_at = NOW()
		WHERE id = $1
		RETURNING `+selectCols, id, data))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("update %s %s: %w", collection, id, err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	t, err := table(collection)
	if err != nil {
		return err
	}
	if _, err := uuid.Parse(id); err != nil {
		return store.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+t+" WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Find compares strings through ->> so the expression indexes on reference
// fields apply; other values are compared as jsonb.
func (s *Store) Find(ctx context.Context, collection, field string, value any) ([]store.Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	f, err := fieldLiteral(field)
	if err != nil {
		return nil, err
	}
	var rows pgx.Rows
	if str, ok := value.(string); ok {
		rows, err = s.pool.Query(ctx,
			"SELECT "+selectCols+" FROM "+t+" WHERE data->>"+f+" = $1 ORDER BY created_at DESC", str)
	} else {
		b, mErr := json.Marshal(value)
		if mErr != nil {
			return nil, fmt.Errorf("encode filter value: %w", mErr)
		}
		rows, err = s.pool.Query(ctx,
			"SELECT "+selectCols+" FROM "+t+" WHERE data->"+f+" = $1::jsonb ORDER BY created_at DESC", string(b))
	}
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", collection, field, err)
	}
	return scanRecords(rows)
}

// FindContaining uses jsonb containment, which the GIN indexes on embedded line
// items serve.
func (s *Store) FindContaining(ctx context.Context, collection, arrayField, elemField string, value any) ([]store.Record, error) {
	t, err := table(collection)
	if err != nil {
		return nil, err
	}
	f, err := fieldLiteral(arrayField)
	if err != nil {
		return nil, err
	}
	if !validField.MatchString(elemField) {
		return nil, fmt.Errorf("invalid field name %q", elemField)
	}
	filter, err := json.Marshal([]map[string]any{{elemField: value}})
	if err != nil {
		return nil, fmt.Errorf("encode containment filter: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+selectCols+" FROM "+t+" WHERE data->"+f+" @> $1::jsonb ORDER BY created_at DESC", string(filter))
	if err != nil {
		return nil, fmt.Errorf("find %s containing %s.%s: %w", collection, arrayField, elemField, err)
	}
	return scanRecords(rows)
}

// Increment is a concurrency-safe upsert on the counters table.
func (s *Store) Increment(ctx context.Context, entityType string) (int64, error) {
	var next int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO counters (data)
		VALUES (jsonb_build_object('entity_type', $1::text, 'value', 1))
		ON CONFLICT ((data->>'entity_type'))
		DO UPDATE SET
			data = jsonb_set(counters.data, '{value}', to_jsonb((counters.data->>'value')::bigint + 1)),
			updated_at = NOW()
		RETURNING (data->>'value')::bigint
	`, entityType).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", entityType, err)
	}
	return next, nil
}

// WriteBatch inserts every entry inside one transaction. Counter entries are
// merged keeping the larger value.
func (s *Store) WriteBatch(ctx context.Context, entries []store.BatchEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, e := range entries {
		t, err := table(e.Collection)
		if err != nil {
			return err
		}
		if e.Collection == "counters" {
			if _, err := tx.Exec(ctx, `
				INSERT INTO counters (data)
				VALUES (jsonb_build_object('entity_type', $1::text, 'value', $2::bigint))
				ON CONFLICT ((data->>'entity_type'))
				DO UPDATE SET data = jsonb_set(counters.data, '{value}',
					to_jsonb(GREATEST((counters.data->>'value')::bigint, $2::bigint)))
			`, e.Record["entity_type"], e.Record["value"]); err != nil {
				return fmt.Errorf("batch entry %d (counters): %w", i, err)
			}
			continue
		}
		created := timeOrNow(e.Record[store.FieldCreatedAt])
		updated := timeOrNow(e.Record[store.FieldUpdatedAt])
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		data := map[string]any(store.StripSystemFields(e.Record))
		if _, err := tx.Exec(ctx,
			"INSERT INTO "+t+" (id, data, created_at, updated_at) VALUES ($1, $2, $3, $4)",
			id, data, created, updated); err != nil {
			return fmt.Errorf("batch entry %d (%s): %w", i, e.Collection, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func timeOrNow(v any) time.Time {
	if t, ok := v.(time.Time); ok && !t.IsZero() {
		return t
	}
	return time.Now()
}

// Watch holds one pooled connection in LISTEN mode until ctx is done.
func (s *Store) Watch(ctx context.Context, collection string, onChange func()) error {
	if err := store.CheckCollection(collection); err != nil {
		return err
	}
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), "UNLISTEN "+notifyChannel); err != nil {
			log.Printf("postgres: unlisten %s: %v", collection, err)
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for %s notification: %w", collection, err)
		}
		if n.Payload == collection {
			onChange()
		}
	}
}
