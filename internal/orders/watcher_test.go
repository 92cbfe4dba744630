package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabtrack/fabtrack/internal/workflow"
)

func TestCacheSnapshotFiltersAndSorts(t *testing.T) {
	c := NewCache()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	older := workflow.New("a@client.test", base)
	older.ID = "o1"
	newer := workflow.New("A@client.test", base.Add(time.Hour))
	newer.ID = "o2"
	other := workflow.New("b@client.test", base.Add(2*time.Hour))
	other.ID = "o3"
	other.Stage = workflow.StagePainting
	c.Replace([]workflow.Order{older, newer, other})

	snap := c.Snapshot("a@client.test")
	require.Len(t, snap, 2)
	assert.Equal(t, "o2", snap[0].ID)
	assert.Equal(t, "o1", snap[1].ID)
	assert.Len(t, c.Snapshot(""), 3)

	counts := c.CountByStage()
	assert.Equal(t, 2, counts[workflow.StageQuotation])
	assert.Equal(t, 1, counts[workflow.StagePainting])
	assert.Equal(t, 0, counts[workflow.StageCompleted])
	assert.False(t, c.RefreshedAt().IsZero())
}

func TestCacheReturnsCopies(t *testing.T) {
	c := NewCache()
	o := workflow.New("a@client.test", time.Now())
	o.ID = "o1"
	o.Quotation = &workflow.QuotationBlock{Link: "q"}
	c.Put(o)

	got, ok := c.Get("o1")
	require.True(t, ok)
	got.Quotation.Link = "mutated"

	again, _ := c.Get("o1")
	assert.Equal(t, "q", again.Quotation.Link)

	c.Remove("o1")
	_, ok = c.Get("o1")
	assert.False(t, ok)
}

func TestWatcherRefetchesOnNotification(t *testing.T) {
	store := NewMemoryStore()
	cache := NewCache()
	refreshed := make(chan struct{}, 16)
	w := NewWatcher(WatcherConfig{
		Store:     store,
		Listener:  store,
		Cache:     cache,
		Retry:     10 * time.Millisecond,
		OnRefresh: func() { refreshed <- struct{}{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("initial refresh did not run")
	}
	require.Eventually(t, func() bool {
		store.mu.RLock()
		defer store.mu.RUnlock()
		return len(store.subscribers) == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec, err := store.Create(ctx, Encode(workflow.New("a@client.test", time.Now())))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := cache.Get(rec.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, store.Delete(ctx, rec.ID))
	assert.Eventually(t, func() bool {
		_, ok := cache.Get(rec.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherSkipsCorruptDocuments(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	good, err := store.Create(ctx, Encode(workflow.New("a@client.test", time.Now())))
	require.NoError(t, err)
	_, err = store.Create(ctx, Document{KeyStage: "nowhere", KeyStatus: "pending"})
	require.NoError(t, err)

	cache := NewCache()
	w := NewWatcher(WatcherConfig{Store: store, Cache: cache})
	require.NoError(t, w.Refresh(ctx))

	snap := cache.Snapshot("")
	require.Len(t, snap, 1)
	assert.Equal(t, good.ID, snap[0].ID)
}
