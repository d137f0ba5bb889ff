package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shoko/internal/embedding"
	"github.com/hyperjump/shoko/internal/extract"
	"github.com/hyperjump/shoko/internal/models"
	"github.com/hyperjump/shoko/internal/vectorstore"
)

type fakeSource struct {
	items []models.Item
	err   error
}

func (s *fakeSource) ItemsWithDocuments(ctx context.Context) ([]models.Item, error) {
	return s.items, s.err
}

func (s *fakeSource) SearchItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	return s.items, s.err
}

func (s *fakeSource) Close() error { return nil }

// writeDoc writes a plain-text document and returns its path.
func writeDoc(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestOrchestrator(source *fakeSource) (*Orchestrator, *vectorstore.MemoryStore) {
	e := embedding.NewMockEmbedder(8)
	store := vectorstore.NewMemoryStore(e)
	o := NewOrchestrator(source, extract.NewExtractor(), NewChunker(64, 8), e, store, zap.NewNop())
	return o, store
}

func TestRunIndexesItemsAndReturnsToIdle(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{items: []models.Item{
		{ID: "1", Title: "First", DocumentPath: writeDoc(t, dir, "a.txt", strings.Repeat("alpha ", 30))},
		{ID: "2", Title: "Second", DocumentPath: writeDoc(t, dir, "b.txt", "short text")},
	}}
	o, store := newTestOrchestrator(source)

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	status := o.Status()
	if status.Status != models.StateIdle {
		t.Errorf("status after run: got %q, want idle", status.Status)
	}
	if status.ProcessedItems != 2 || status.TotalItems != 2 {
		t.Errorf("progress: got %d/%d, want 2/2", status.ProcessedItems, status.TotalItems)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("no records written")
	}
	results, err := store.Query(context.Background(), "short text", 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].ID != "2:0" {
		t.Errorf("record id: got %q, want 2:0", results[0].ID)
	}
	meta := results[0].Metadata
	if meta["item_id"] != "2" || meta["title"] != "Second" {
		t.Errorf("metadata: %v", meta)
	}
}

func TestRunSkipsItemsWithoutDocuments(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{items: []models.Item{
		{ID: "1", Title: "No path"},
		{ID: "2", Title: "Missing file", DocumentPath: filepath.Join(dir, "absent.pdf")},
		{ID: "3", Title: "Good", DocumentPath: writeDoc(t, dir, "good.txt", "real content here")},
	}}
	o, store := newTestOrchestrator(source)

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	status := o.Status()
	if status.ProcessedItems != 3 || status.TotalItems != 3 {
		t.Errorf("progress: got %d/%d, want 3/3", status.ProcessedItems, status.TotalItems)
	}
	results, err := store.Query(context.Background(), "real content here", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Metadata["item_id"] != "3" {
			t.Errorf("only item 3 should have records, got %q", r.Metadata["item_id"])
		}
	}
}

// faultyEmbedder fails EmbedBatch for any batch containing failOn.
type faultyEmbedder struct {
	*embedding.MockEmbedder
	failOn string
}

func (e *faultyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if strings.Contains(text, e.failOn) {
			return nil, errors.New("embedding backend unavailable")
		}
	}
	return e.MockEmbedder.EmbedBatch(ctx, texts)
}

// faultyStore rejects writes for one item and passes the rest through.
type faultyStore struct {
	*vectorstore.MemoryStore
	failItemID string
}

func (s *faultyStore) Add(ctx context.Context, records []vectorstore.Record) error {
	for _, r := range records {
		if r.Metadata["item_id"] == s.failItemID {
			return errors.New("write rejected")
		}
	}
	return s.MemoryStore.Add(ctx, records)
}

func TestRunContinuesPastEmbeddingFailure(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{items: []models.Item{
		{ID: "1", Title: "First", DocumentPath: writeDoc(t, dir, "a.txt", "first document text")},
		{ID: "2", Title: "Broken", DocumentPath: writeDoc(t, dir, "b.txt", "poison document text")},
		{ID: "3", Title: "Third", DocumentPath: writeDoc(t, dir, "c.txt", "third document text")},
	}}
	e := &faultyEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), failOn: "poison"}
	store := vectorstore.NewMemoryStore(embedding.NewMockEmbedder(8))
	o := NewOrchestrator(source, extract.NewExtractor(), NewChunker(64, 8), e, store, zap.NewNop())

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	status := o.Status()
	if status.Status != models.StateIdle {
		t.Errorf("status after run: got %q, want idle", status.Status)
	}
	if status.ProcessedItems != 3 || status.TotalItems != 3 {
		t.Errorf("progress: got %d/%d, want 3/3", status.ProcessedItems, status.TotalItems)
	}
	results, err := store.Query(context.Background(), "document text", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Metadata["item_id"]] = true
	}
	if seen["2"] {
		t.Error("failed item should have no records")
	}
	if !seen["1"] || !seen["3"] {
		t.Errorf("healthy items missing records: %v", seen)
	}
}

func TestRunContinuesPastStoreFailure(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{items: []models.Item{
		{ID: "1", Title: "First", DocumentPath: writeDoc(t, dir, "a.txt", "first document text")},
		{ID: "2", Title: "Rejected", DocumentPath: writeDoc(t, dir, "b.txt", "second document text")},
		{ID: "3", Title: "Third", DocumentPath: writeDoc(t, dir, "c.txt", "third document text")},
	}}
	e := embedding.NewMockEmbedder(8)
	store := &faultyStore{MemoryStore: vectorstore.NewMemoryStore(e), failItemID: "2"}
	o := NewOrchestrator(source, extract.NewExtractor(), NewChunker(64, 8), e, store, zap.NewNop())

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	o.Wait()

	status := o.Status()
	if status.Status != models.StateIdle {
		t.Errorf("status after run: got %q, want idle", status.Status)
	}
	if status.ProcessedItems != 3 || status.TotalItems != 3 {
		t.Errorf("progress: got %d/%d, want 3/3", status.ProcessedItems, status.TotalItems)
	}
	results, err := store.Query(context.Background(), "document text", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, r := range results {
		seen[r.Metadata["item_id"]] = true
	}
	if seen["2"] {
		t.Error("rejected item should have no records")
	}
	if !seen["1"] || !seen["3"] {
		t.Errorf("healthy items missing records: %v", seen)
	}
}

func TestStartWhileRunningFails(t *testing.T) {
	block := make(chan struct{})
	e := &blockingEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), release: block, started: make(chan struct{})}
	store := vectorstore.NewMemoryStore(embedding.NewMockEmbedder(8))
	dir := t.TempDir()
	source := &fakeSource{items: []models.Item{
		{ID: "1", DocumentPath: writeDoc(t, dir, "a.txt", "content")},
	}}
	o := NewOrchestrator(source, extract.NewExtractor(), NewChunker(64, 8), e, store, zap.NewNop())

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	<-e.started
	if err := o.Start(); err != ErrAlreadyRunning {
		t.Errorf("second start: got %v, want ErrAlreadyRunning", err)
	}
	close(block)
	o.Wait()

	// Idle again: a new run is accepted.
	if err := o.Start(); err != nil {
		t.Errorf("start after completion: %v", err)
	}
	o.Wait()
}

type blockingEmbedder struct {
	*embedding.MockEmbedder
	release   chan struct{}
	started   chan struct{}
	startOnce sync.Once
}

func (e *blockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.startOnce.Do(func() { close(e.started) })
	select {
	case <-e.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCancelStopsRun(t *testing.T) {
	block := make(chan struct{})
	e := &blockingEmbedder{MockEmbedder: embedding.NewMockEmbedder(8), release: block, started: make(chan struct{})}
	store := vectorstore.NewMemoryStore(embedding.NewMockEmbedder(8))
	dir := t.TempDir()
	items := make([]models.Item, 5)
	for i := range items {
		items[i] = models.Item{
			ID:           string(rune('a' + i)),
			DocumentPath: writeDoc(t, dir, string(rune('a'+i))+".txt", "text for item"),
		}
	}
	source := &fakeSource{items: items}
	o := NewOrchestrator(source, extract.NewExtractor(), NewChunker(64, 8), e, store, zap.NewNop())

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	<-e.started

	if err := o.Cancel(); err != nil {
		t.Fatal(err)
	}
	status := o.Status()
	if status.Status != models.StateCancelling && status.Status != models.StateIdle {
		t.Errorf("status after cancel: got %q", status.Status)
	}
	// Second cancel during the same run is a no-op.
	_ = o.Cancel()

	o.Wait()
	status = o.Status()
	if status.Status != models.StateIdle {
		t.Errorf("status after cancelled run: got %q, want idle", status.Status)
	}
	if status.ProcessedItems >= 5 {
		t.Error("cancelled run should not have processed every item")
	}
}

func TestCancelWhenIdle(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeSource{})
	if err := o.Cancel(); err != ErrNotRunning {
		t.Errorf("got %v, want ErrNotRunning", err)
	}
}

func TestStatusCountersResetOnNewRun(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{items: []models.Item{
		{ID: "1", DocumentPath: writeDoc(t, dir, "a.txt", "content one")},
	}}
	o, _ := newTestOrchestrator(source)

	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	o.Wait()
	if got := o.Status().ProcessedItems; got != 1 {
		t.Fatalf("first run processed: got %d", got)
	}

	source.items = nil
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	status := o.Status()
	if status.ProcessedItems != 0 {
		t.Errorf("counters not reset: processed %d", status.ProcessedItems)
	}
	o.Wait()
}

func TestRunSourceError(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeSource{err: os.ErrPermission})
	if err := o.Start(); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		o.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after source error")
	}
	if got := o.Status().Status; got != models.StateIdle {
		t.Errorf("status: got %q, want idle", got)
	}
}
