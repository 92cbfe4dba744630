package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabtrack/fabtrack/internal/platform/db"
	"github.com/fabtrack/fabtrack/internal/shared"
)

// Repository persists the administrator credential.
type Repository interface {
	GetAdmin(ctx context.Context) (*AdminCredential, error)
	// CreateAdminIfAbsent inserts the credential unless one already exists and
	// reports whether it did.
	CreateAdminIfAbsent(ctx context.Context, email, hash string) (bool, error)
	UpdateAdminPassword(ctx context.Context, hash string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetAdmin loads the stored credential.
func (r *PGRepository) GetAdmin(ctx context.Context) (*AdminCredential, error) {
	var cred AdminCredential
	err := r.pool.QueryRow(ctx, `SELECT email, password_hash, updated_at FROM admin_credentials WHERE id = 1`).
		Scan(&cred.Email, &cred.PasswordHash, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("%w: load admin credential: %w", shared.ErrBackingService, err)
	}
	return &cred, nil
}

// CreateAdminIfAbsent seeds the credential row.
func (r *PGRepository) CreateAdminIfAbsent(ctx context.Context, email, hash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO admin_credentials (id, email, password_hash, updated_at)
VALUES (1, $1, $2, NOW()) ON CONFLICT (id) DO NOTHING`, email, hash)
	if err != nil {
		return false, fmt.Errorf("%w: seed admin credential: %w", shared.ErrBackingService, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateAdminPassword replaces the stored hash and records the change in
// audit_logs within the same transaction.
func (r *PGRepository) UpdateAdminPassword(ctx context.Context, hash string) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var email string
		err := tx.QueryRow(ctx, `UPDATE admin_credentials SET password_hash = $1, updated_at = NOW() WHERE id = 1 RETURNING email`, hash).Scan(&email)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO audit_logs (actor, action, entity, entity_id, meta) VALUES ($1, 'auth.password_change', 'admin', '1', '{}'::jsonb)`, email)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("%w: update admin password: %w", shared.ErrBackingService, err)
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
