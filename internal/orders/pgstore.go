package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabtrack/fabtrack/internal/shared"
)

// NotifyChannel is the Postgres channel raised by the orders trigger.
const NotifyChannel = "orders_changed"

// PGStore keeps order documents in a JSONB column.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// List returns matching documents, newest first.
func (s *PGStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT id::text, data FROM orders
WHERE ($1 = '' OR lower(data->>'client_email') = lower($1))
ORDER BY created_at DESC, id`, filter.ClientEmail)
	if err != nil {
		return nil, backing("list", err)
	}
	defer rows.Close()
	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Data); err != nil {
			return nil, backing("scan", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, backing("list", err)
	}
	return records, nil
}

// Get returns a single document.
func (s *PGStore) Get(ctx context.Context, id string) (Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Record{}, fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	rec := Record{ID: id}
	err := s.pool.QueryRow(ctx, `SELECT data FROM orders WHERE id = $1`, id).Scan(&rec.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
		}
		return Record{}, backing("get", err)
	}
	return rec, nil
}

// Create inserts a new document and returns it with its id.
func (s *PGStore) Create(ctx context.Context, data Document) (Record, error) {
	payload, err := json.Marshal(stripNil(copyDocument(data)))
	if err != nil {
		return Record{}, backing("encode", err)
	}
	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx, `INSERT INTO orders (id, data) VALUES ($1, $2::jsonb)`, id, payload); err != nil {
		return Record{}, backing("create", err)
	}
	return Record{ID: id, Data: copyDocument(data)}, nil
}

// Merge overlays patch onto the stored document. JSON nulls are stripped so
// a nil value removes the key.
func (s *PGStore) Merge(ctx context.Context, id string, patch Document) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return backing("encode", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE orders
SET data = jsonb_strip_nulls(data || $2::jsonb), updated_at = NOW()
WHERE id = $1`, id, payload)
	if err != nil {
		return backing("merge", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// Delete hard-deletes a document.
func (s *PGStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return backing("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// PGListener streams NOTIFY events raised by the orders trigger.
type PGListener struct {
	pool *pgxpool.Pool
}

// NewPGListener constructs a PGListener.
func NewPGListener(pool *pgxpool.Pool) *PGListener {
	return &PGListener{pool: pool}
}

// Listen holds a dedicated connection and forwards notifications until ctx
// ends or the connection fails.
func (l *PGListener) Listen(ctx context.Context, notify func(orderID string)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return backing("listen acquire", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		conn.Release()
	}()
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return backing("listen", err)
	}
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return backing("wait notification", err)
		}
		notify(n.Payload)
	}
}

func backing(op string, err error) error {
	return fmt.Errorf("%w: orders %s: %w", shared.ErrBackingService, op, err)
}

var (
	_ DocumentStore = (*PGStore)(nil)
	_ Listener      = (*PGListener)(nil)
)
