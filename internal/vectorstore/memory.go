package vectorstore

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/shoko/internal/embedding"
)

// MemoryStore is an in-process vector store using brute-force inner product
// search. Suitable for tests and small libraries when no Chroma server is
// available. Query text is embedded through the injected embedder, the same
// gateway used at indexing time.
type MemoryStore struct {
	embedder embedding.Embedder
	mu       sync.RWMutex
	order    []string
	records  map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(embedder embedding.Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		records:  make(map[string]Record),
	}
}

// Add inserts or overwrites records by ID.
func (m *MemoryStore) Add(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record with empty id")
		}
		if _, exists := m.records[rec.ID]; !exists {
			m.order = append(m.order, rec.ID)
		}
		m.records[rec.ID] = rec
	}
	return nil
}

// Query embeds text and returns the top-k records by inner product
// (cosine similarity for normalized vectors), restricted by filter.
func (m *MemoryStore) Query(ctx context.Context, text string, k int, filter *Filter) ([]Result, error) {
	query, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}

	var allowed map[string]bool
	if filter != nil && len(filter.ItemIDs) > 0 {
		allowed = make(map[string]bool, len(filter.ItemIDs))
		for _, id := range filter.ItemIDs {
			allowed[id] = true
		}
	}

	results := make([]Result, 0, len(m.order))
	for _, id := range m.order {
		rec := m.records[id]
		if allowed != nil && !allowed[rec.Metadata["item_id"]] {
			continue
		}
		var dot float64
		n := len(query)
		if len(rec.Embedding) < n {
			n = len(rec.Embedding)
		}
		for i := 0; i < n; i++ {
			dot += float64(query[i] * rec.Embedding[i])
		}
		results = append(results, Result{
			ID:       rec.ID,
			Document: rec.Document,
			Metadata: rec.Metadata,
			Score:    dot,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored records.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}

// snapshot is the on-disk representation for Save/Load.
type snapshot struct {
	Order   []string
	Records map[string]Record
}

// Save persists the store to path. Parent directories are created if needed.
func (m *MemoryStore) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create store file: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(snapshot{Order: m.order, Records: m.records}); err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	return nil
}

// Load reads the store from path, replacing the in-memory contents.
// A missing file is not an error; the store is left unchanged.
func (m *MemoryStore) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open store file: %w", err)
	}
	defer f.Close()
	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode store: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = snap.Order
	m.records = snap.Records
	if m.records == nil {
		m.records = make(map[string]Record)
	}
	return nil
}
