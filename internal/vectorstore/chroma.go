package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/shoko/internal/embedding"
)

// ChromaStore talks to a Chroma server over its REST API. The collection is
// created on first use if it does not exist. Query text is embedded locally
// through the injected embedder so that index-time and query-time vectors
// come from the same model.
type ChromaStore struct {
	baseURL      string
	collection   string
	collectionID string
	embedder     embedding.Embedder
	client       *http.Client
}

// NewChromaStore connects to the Chroma server at baseURL and resolves the
// named collection, creating it if missing.
func NewChromaStore(baseURL, collection string, embedder embedding.Embedder, timeout time.Duration) (*ChromaStore, error) {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &ChromaStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		embedder:   embedder,
		client:     &http.Client{Timeout: timeout},
	}
	if err := s.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ChromaStore) ensureCollection(ctx context.Context) error {
	body := map[string]interface{}{
		"name":          s.collection,
		"get_or_create": true,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := s.post(ctx, "/api/v1/collections", body, &resp); err != nil {
		return fmt.Errorf("get or create collection %q: %w", s.collection, err)
	}
	if resp.ID == "" {
		return fmt.Errorf("collection %q: server returned no id", s.collection)
	}
	s.collectionID = resp.ID
	return nil
}

// Add upserts records into the collection. Chroma treats matching IDs as
// overwrites, which keeps reindexing idempotent.
func (s *ChromaStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	documents := make([]string, len(records))
	metadatas := make([]map[string]string, len(records))
	embeddings := make([][]float32, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record with empty id")
		}
		ids[i] = rec.ID
		documents[i] = rec.Document
		if rec.Metadata == nil {
			metadatas[i] = map[string]string{}
		} else {
			metadatas[i] = rec.Metadata
		}
		embeddings[i] = rec.Embedding
	}
	body := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": embeddings,
	}
	path := fmt.Sprintf("/api/v1/collections/%s/upsert", s.collectionID)
	if err := s.post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

// Query embeds text and runs a nearest-neighbor search on the collection.
// Distances are converted to a descending similarity score as 1 - distance.
func (s *ChromaStore) Query(ctx context.Context, text string, k int, filter *Filter) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	query, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{query},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if filter != nil && len(filter.ItemIDs) > 0 {
		body["where"] = map[string]interface{}{
			"item_id": map[string]interface{}{"$in": filter.ItemIDs},
		}
	}
	var resp struct {
		IDs       [][]string            `json:"ids"`
		Documents [][]string            `json:"documents"`
		Metadatas [][]map[string]string `json:"metadatas"`
		Distances [][]float64           `json:"distances"`
	}
	path := fmt.Sprintf("/api/v1/collections/%s/query", s.collectionID)
	if err := s.post(ctx, path, body, &resp); err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	ids := resp.IDs[0]
	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		r := Result{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			r.Document = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			r.Score = 1 - resp.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

// Count returns the number of records in the collection.
func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	path := fmt.Sprintf("%s/api/v1/collections/%s/count", s.baseURL, s.collectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("count request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var count int
	if err := json.Unmarshal(data, &count); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return count, nil
}

// Close is a no-op; the HTTP client holds no persistent connections worth
// tearing down explicitly.
func (s *ChromaStore) Close() error {
	return nil
}

func (s *ChromaStore) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
