package orders

import (
	"sort"
	"sync"
	"time"

	"github.com/fabtrack/fabtrack/internal/shared"
	"github.com/fabtrack/fabtrack/internal/workflow"
)

// Cache is the in-memory view of the orders collection shared by the
// watcher, the service and the realtime stream.
type Cache struct {
	mu          sync.RWMutex
	orders      map[string]workflow.Order
	refreshedAt time.Time
}

// NewCache constructs an empty Cache.
func NewCache() *Cache {
	return &Cache{orders: make(map[string]workflow.Order)}
}

// Replace swaps the whole collection after a full refetch.
func (c *Cache) Replace(orders []workflow.Order) {
	next := make(map[string]workflow.Order, len(orders))
	for _, o := range orders {
		next[o.ID] = o.Clone()
	}
	c.mu.Lock()
	c.orders = next
	c.refreshedAt = time.Now().UTC()
	c.mu.Unlock()
}

// Put mirrors a single write.
func (c *Cache) Put(o workflow.Order) {
	c.mu.Lock()
	c.orders[o.ID] = o.Clone()
	c.mu.Unlock()
}

// Remove drops a deleted order.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	delete(c.orders, id)
	c.mu.Unlock()
}

// Get returns a cached order.
func (c *Cache) Get(id string) (workflow.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	if !ok {
		return workflow.Order{}, false
	}
	return o.Clone(), true
}

// Snapshot lists cached orders newest first. An empty clientEmail returns all.
func (c *Cache) Snapshot(clientEmail string) []workflow.Order {
	c.mu.RLock()
	out := make([]workflow.Order, 0, len(c.orders))
	for _, o := range c.orders {
		if clientEmail != "" && !shared.SameEmail(o.ClientEmail, clientEmail) {
			continue
		}
		out = append(out, o.Clone())
	}
	c.mu.RUnlock()
	sortOrders(out)
	return out
}

// CountByStage tallies cached orders per stage.
func (c *Cache) CountByStage() map[workflow.Stage]int {
	counts := make(map[workflow.Stage]int, len(workflow.Stages))
	for _, st := range workflow.Stages {
		counts[st] = 0
	}
	c.mu.RLock()
	for _, o := range c.orders {
		counts[o.Stage]++
	}
	c.mu.RUnlock()
	return counts
}

// RefreshedAt reports when the last full refetch landed.
func (c *Cache) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshedAt
}

func sortOrders(orders []workflow.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}
