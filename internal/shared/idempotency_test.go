package shared

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClaimError(t *testing.T) {
	assert.NoError(t, claimError(nil))

	dup := claimError(&pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, dup, ErrIdempotencyConflict)
	assert.ErrorIs(t, dup, ErrConflict)

	down := claimError(errors.New("connection refused"))
	assert.ErrorIs(t, down, ErrBackingService)
	assert.NotErrorIs(t, down, ErrConflict)
}
