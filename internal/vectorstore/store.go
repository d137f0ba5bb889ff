// Package vectorstore provides persistent storage of embedded document
// chunks with nearest-neighbor query and metadata filtering.
package vectorstore

import "context"

// Record is one persisted chunk: id, raw text, flat metadata snapshot, and
// embedding. Metadata values are plain strings with empty-string defaults;
// the filtering layer does not accept missing or null values.
type Record struct {
	ID        string
	Document  string
	Metadata  map[string]string
	Embedding []float32
}

// Result is a single ranked query hit.
type Result struct {
	ID       string
	Document string
	Metadata map[string]string
	Score    float64
}

// Filter restricts a query by metadata. An empty ItemIDs set means no
// restriction; otherwise only records whose item_id metadata is in the set
// are returned.
type Filter struct {
	ItemIDs []string
}

// Store defines vector storage and similarity search over chunk records.
// Add is idempotent by record ID: re-adding the same ID overwrites the
// existing record instead of duplicating it.
type Store interface {
	Add(ctx context.Context, records []Record) error
	Query(ctx context.Context, text string, k int, filter *Filter) ([]Result, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
