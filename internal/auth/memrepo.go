package auth

import (
	"context"
	"sync"
	"time"

	"github.com/fabtrack/fabtrack/internal/shared"
)

// MemoryRepository keeps the credential in process memory for test runs.
type MemoryRepository struct {
	mu   sync.Mutex
	cred *AdminCredential
	now  func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{now: time.Now}
}

// GetAdmin returns a copy of the stored credential.
func (r *MemoryRepository) GetAdmin(ctx context.Context) (*AdminCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cred == nil {
		return nil, shared.ErrNotFound
	}
	c := *r.cred
	return &c, nil
}

// CreateAdminIfAbsent seeds the credential once.
func (r *MemoryRepository) CreateAdminIfAbsent(ctx context.Context, email, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cred != nil {
		return false, nil
	}
	r.cred = &AdminCredential{Email: email, PasswordHash: hash, UpdatedAt: r.now()}
	return true, nil
}

// UpdateAdminPassword replaces the stored hash.
func (r *MemoryRepository) UpdateAdminPassword(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cred == nil {
		return shared.ErrNotFound
	}
	r.cred.PasswordHash = hash
	r.cred.UpdatedAt = r.now()
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
