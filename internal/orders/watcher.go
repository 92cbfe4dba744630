package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fabtrack/fabtrack/internal/workflow"
)

// Watcher keeps the Cache in step with the store. Every change notification
// triggers a full refetch that replaces the cache wholesale.
type Watcher struct {
	store     DocumentStore
	listener  Listener
	cache     *Cache
	logger    *slog.Logger
	retry     time.Duration
	onRefresh func()
	trigger   chan struct{}
}

// WatcherConfig wires a Watcher.
type WatcherConfig struct {
	Store    DocumentStore
	Listener Listener
	Cache    *Cache
	Logger   *slog.Logger
	// Retry is the pause before re-subscribing after the listener fails.
	Retry time.Duration
	// OnRefresh runs after each successful refetch.
	OnRefresh func()
}

// NewWatcher constructs a Watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	retry := cfg.Retry
	if retry <= 0 {
		retry = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:     cfg.Store,
		listener:  cfg.Listener,
		cache:     cfg.Cache,
		logger:    logger,
		retry:     retry,
		onRefresh: cfg.OnRefresh,
		trigger:   make(chan struct{}, 1),
	}
}

// Run loads the cache and then follows notifications until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Refresh(ctx); err != nil {
		w.logger.Warn("initial order refresh", slog.Any("error", err))
	}
	go w.listen(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.trigger:
			if err := w.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("order refresh", slog.Any("error", err))
			}
		}
	}
}

// Poke schedules a refetch. Pokes arriving while one is pending collapse.
func (w *Watcher) Poke() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Refresh refetches the whole collection. On failure the cache keeps its
// last known good contents.
func (w *Watcher) Refresh(ctx context.Context) error {
	records, err := w.store.List(ctx, Filter{})
	if err != nil {
		return err
	}
	orders := make([]workflow.Order, 0, len(records))
	for _, rec := range records {
		o, err := Decode(rec.ID, rec.Data)
		if err != nil {
			w.logger.Warn("skip undecodable order", slog.String("order_id", rec.ID), slog.Any("error", err))
			continue
		}
		orders = append(orders, o)
	}
	w.cache.Replace(orders)
	if w.onRefresh != nil {
		w.onRefresh()
	}
	return nil
}

func (w *Watcher) listen(ctx context.Context) {
	if w.listener == nil {
		return
	}
	for {
		err := w.listener.Listen(ctx, func(string) { w.Poke() })
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("order listener stopped", slog.Any("error", err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retry):
		}
		// Changes may have been missed while disconnected.
		w.Poke()
	}
}
