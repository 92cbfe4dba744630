package auth

import "time"

// AdminCredential is the single stored administrator login.
type AdminCredential struct {
	Email        string
	PasswordHash string
	UpdatedAt    time.Time
}

const (
	// MinPasswordLength is the shortest accepted admin password.
	MinPasswordLength = 8
	// MaxPasswordBytes is the longest password bcrypt will hash.
	MaxPasswordBytes = 72
)
