package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/fabtrack/fabtrack/internal/shared"
)

const cacheKey = "directory:clients"

// Service serves the directory from Redis, falling back to the sheet.
type Service struct {
	source Source
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. A nil redis client disables caching.
func NewService(source Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, redis: client, ttl: ttl, logger: logger}
}

// List returns every directory client.
func (s *Service) List(ctx context.Context) ([]Client, error) {
	if clients, ok := s.cached(ctx); ok {
		return clients, nil
	}
	return s.load(ctx)
}

// Refresh reloads the sheet and overwrites the cached copy.
func (s *Service) Refresh(ctx context.Context) ([]Client, error) {
	return s.load(ctx)
}

// Lookup finds a client by email, ignoring case.
func (s *Service) Lookup(ctx context.Context, email string) (Client, error) {
	clients, err := s.List(ctx)
	if err != nil {
		return Client{}, err
	}
	for _, c := range clients {
		if shared.SameEmail(c.Email, email) {
			return c, nil
		}
	}
	return Client{}, fmt.Errorf("client %s: %w", email, shared.ErrNotFound)
}

// ClientName resolves a client's display name.
func (s *Service) ClientName(ctx context.Context, email string) (string, error) {
	c, err := s.Lookup(ctx, email)
	if err != nil {
		return "", err
	}
	return c.Name, nil
}

func (s *Service) load(ctx context.Context) ([]Client, error) {
	v, err, _ := s.group.Do(cacheKey, func() (any, error) {
		clients, err := s.source.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.store(ctx, clients)
		return clients, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: directory: %w", shared.ErrBackingService, err)
	}
	return v.([]Client), nil
}

func (s *Service) cached(ctx context.Context) ([]Client, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("directory cache read", slog.Any("error", err))
		}
		return nil, false
	}
	var clients []Client
	if err := json.Unmarshal(raw, &clients); err != nil {
		s.logger.Warn("directory cache decode", slog.Any("error", err))
		return nil, false
	}
	return clients, true
}

func (s *Service) store(ctx context.Context, clients []Client) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(clients)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, cacheKey, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("directory cache write", slog.Any("error", err))
	}
}
