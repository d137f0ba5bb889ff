package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shoko/internal/embedding"
)

func testRecords(t *testing.T, e embedding.Embedder, texts map[string]string, itemID string) []Record {
	t.Helper()
	records := make([]Record, 0, len(texts))
	for id, text := range texts {
		emb, err := e.Embed(context.Background(), text)
		if err != nil {
			t.Fatal(err)
		}
		records = append(records, Record{
			ID:        id,
			Document:  text,
			Metadata:  map[string]string{"item_id": itemID, "title": "Test"},
			Embedding: emb,
		})
	}
	return records
}

func TestMemoryStoreQueryRanksExactMatchFirst(t *testing.T) {
	e := embedding.NewMockEmbedder(16)
	store := NewMemoryStore(e)
	ctx := context.Background()

	records := testRecords(t, e, map[string]string{
		"item1:0": "the quick brown fox",
		"item1:1": "a completely different sentence",
		"item2:0": "yet another passage of text",
	}, "item1")
	if err := store.Add(ctx, records); err != nil {
		t.Fatal(err)
	}

	results, err := store.Query(ctx, "the quick brown fox", 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results: got %d, want 2", len(results))
	}
	if results[0].Document != "the quick brown fox" {
		t.Errorf("top result: got %q", results[0].Document)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not in descending score order")
	}
}

func TestMemoryStoreFilterByItemID(t *testing.T) {
	e := embedding.NewMockEmbedder(16)
	store := NewMemoryStore(e)
	ctx := context.Background()

	a := testRecords(t, e, map[string]string{"a:0": "alpha text"}, "a")
	b := testRecords(t, e, map[string]string{"b:0": "alpha text exactly"}, "b")
	if err := store.Add(ctx, append(a, b...)); err != nil {
		t.Fatal(err)
	}

	results, err := store.Query(ctx, "alpha text", 10, &Filter{ItemIDs: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results: got %d, want 1", len(results))
	}
	if results[0].Metadata["item_id"] != "a" {
		t.Errorf("item_id: got %q", results[0].Metadata["item_id"])
	}
}

func TestMemoryStoreAddOverwritesByID(t *testing.T) {
	e := embedding.NewMockEmbedder(16)
	store := NewMemoryStore(e)
	ctx := context.Background()

	first := testRecords(t, e, map[string]string{"x:0": "old text"}, "x")
	if err := store.Add(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := testRecords(t, e, map[string]string{"x:0": "new text"}, "x")
	if err := store.Add(ctx, second); err != nil {
		t.Fatal(err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count: got %d, want 1", count)
	}
	results, err := store.Query(ctx, "new text", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Document != "new text" {
		t.Errorf("document: got %q", results[0].Document)
	}
}

func TestMemoryStoreSaveLoad(t *testing.T) {
	e := embedding.NewMockEmbedder(16)
	store := NewMemoryStore(e)
	ctx := context.Background()

	records := testRecords(t, e, map[string]string{
		"item1:0": "persisted chunk",
		"item1:1": "another persisted chunk",
	}, "item1")
	if err := store.Add(ctx, records); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "store", "index.bin")
	if err := store.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded := NewMemoryStore(e)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	count, err := loaded.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count after load: got %d, want 2", count)
	}
	results, err := loaded.Query(ctx, "persisted chunk", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Document != "persisted chunk" {
		t.Errorf("document after load: got %q", results[0].Document)
	}
}

func TestMemoryStoreLoadMissingFile(t *testing.T) {
	store := NewMemoryStore(embedding.NewMockEmbedder(8))
	if err := store.Load(filepath.Join(t.TempDir(), "nope.bin")); err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
}
