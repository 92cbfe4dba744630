package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/fabtrack/fabtrack/internal/directory"
	"github.com/fabtrack/fabtrack/internal/shared"
)

// Directory looks clients up by email.
type Directory interface {
	Lookup(ctx context.Context, email string) (directory.Client, error)
}

// Config carries the configured credentials.
type Config struct {
	AdminEmail            string
	AdminDefaultPassword  string
	ClientDefaultPassword string
}

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	directory Directory
	cfg       Config
	logger    *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, dir Directory, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: dir, cfg: cfg, logger: logger}
}

// Authenticate validates email/password credentials. The admin is checked
// against the stored hash; clients must appear in the directory and present
// the shared client password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (shared.Principal, error) {
	if shared.SameEmail(email, s.cfg.AdminEmail) {
		cred, err := s.repo.GetAdmin(ctx)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.Principal{}, shared.ErrInvalidCredentials
			}
			return shared.Principal{}, err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
			return shared.Principal{}, shared.ErrInvalidCredentials
		}
		return shared.Principal{Email: cred.Email, Name: "Admin", Role: shared.RoleAdmin}, nil
	}

	if s.directory == nil {
		return shared.Principal{}, fmt.Errorf("%w: directory not configured", shared.ErrBackingService)
	}
	client, err := s.directory.Lookup(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Principal{}, shared.ErrInvalidCredentials
		}
		return shared.Principal{}, err
	}
	if s.cfg.ClientDefaultPassword == "" ||
		subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.ClientDefaultPassword)) != 1 {
		return shared.Principal{}, shared.ErrInvalidCredentials
	}
	return shared.Principal{Email: client.Email, Name: client.Name, Role: shared.RoleClient}, nil
}

// EnsureAdmin seeds the admin credential with the configured default password
// when no credential exists yet.
func (s *Service) EnsureAdmin(ctx context.Context) error {
	if s.cfg.AdminEmail == "" || s.cfg.AdminDefaultPassword == "" {
		return errors.New("admin email and default password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(s.cfg.AdminDefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	created, err := s.repo.CreateAdminIfAbsent(ctx, s.cfg.AdminEmail, string(hash))
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("admin credential seeded", slog.String("email", s.cfg.AdminEmail))
	}
	return nil
}

// ChangePassword replaces the admin password.
func (s *Service) ChangePassword(ctx context.Context, p shared.Principal, newPassword, confirm string) error {
	if !p.IsAdmin() {
		return fmt.Errorf("%w: only the administrator has a password to change", shared.ErrForbidden)
	}
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", shared.ErrValidation, MinPasswordLength)
	}
	if len(newPassword) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", shared.ErrValidation, MaxPasswordBytes)
	}
	if newPassword != confirm {
		return fmt.Errorf("%w: passwords do not match", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateAdminPassword(ctx, string(hash)); err != nil {
		return err
	}
	s.logger.Info("admin password changed", slog.String("email", p.Email))
	return nil
}
