package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fabtrack/fabtrack/internal/shared"
)

// MemoryStore is an in-process DocumentStore and Listener.
type MemoryStore struct {
	mu          sync.RWMutex
	docs        map[string]Document
	subscribers map[int]chan string
	nextSub     int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:        make(map[string]Document),
		subscribers: make(map[int]chan string),
	}
}

// List returns matching documents, newest first.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, 0, len(s.docs))
	for id, doc := range s.docs {
		if filter.ClientEmail != "" && !shared.SameEmail(stringValue(doc[KeyClientEmail]), filter.ClientEmail) {
			continue
		}
		records = append(records, Record{ID: id, Data: copyDocument(doc)})
	}
	sortRecords(records)
	return records, nil
}

// Get returns a single document.
func (s *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return Record{}, fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	return Record{ID: id, Data: copyDocument(doc)}, nil
}

// Create stores a new document under a fresh id.
func (s *MemoryStore) Create(ctx context.Context, data Document) (Record, error) {
	id := uuid.NewString()
	s.mu.Lock()
	s.docs[id] = stripNil(copyDocument(data))
	s.mu.Unlock()
	s.publish(id)
	return Record{ID: id, Data: copyDocument(data)}, nil
}

// Merge applies a patch to an existing document.
func (s *MemoryStore) Merge(ctx context.Context, id string, patch Document) error {
	s.mu.Lock()
	doc, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	for k, v := range patch {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	s.mu.Unlock()
	s.publish(id)
	return nil
}

// Delete removes a document.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.docs[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("order %s: %w", id, shared.ErrNotFound)
	}
	delete(s.docs, id)
	s.mu.Unlock()
	s.publish(id)
	return nil
}

// Listen delivers change notifications until ctx ends.
func (s *MemoryStore) Listen(ctx context.Context, notify func(orderID string)) error {
	ch := make(chan string, 64)
	s.mu.Lock()
	key := s.nextSub
	s.nextSub++
	s.subscribers[key] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, key)
		s.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-ch:
			notify(id)
		}
	}
}

func (s *MemoryStore) publish(id string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- id:
		default:
			// a full buffer already guarantees a pending refetch
		}
	}
}

func copyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func stripNil(doc Document) Document {
	for k, v := range doc {
		if v == nil {
			delete(doc, k)
		}
	}
	return doc
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ci, cj := stringValue(records[i].Data[KeyCreatedAt]), stringValue(records[j].Data[KeyCreatedAt])
		if ci != cj {
			return ci > cj
		}
		return records[i].ID < records[j].ID
	})
}

var (
	_ DocumentStore = (*MemoryStore)(nil)
	_ Listener      = (*MemoryStore)(nil)
)
