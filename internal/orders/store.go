package orders

import "context"

// Record is a stored document with its store-assigned id.
type Record struct {
	ID   string
	Data Document
}

// Filter narrows List. An empty ClientEmail selects every order.
type Filter struct {
	ClientEmail string
}

// DocumentStore persists flat order documents.
type DocumentStore interface {
	List(ctx context.Context, filter Filter) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Create(ctx context.Context, data Document) (Record, error)
	// Merge applies patch key by key. Nil values remove the key.
	Merge(ctx context.Context, id string, patch Document) error
	Delete(ctx context.Context, id string) error
}

// Listener delivers change notifications for the orders collection.
type Listener interface {
	// Listen blocks until ctx ends, invoking notify with the changed order id.
	Listen(ctx context.Context, notify func(orderID string)) error
}
