package indexer

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shoko/internal/extract"
	"github.com/hyperjump/shoko/internal/library"
	"github.com/hyperjump/shoko/internal/models"
	"github.com/hyperjump/shoko/internal/vectorstore"
)

var (
	// ErrAlreadyRunning is returned by Start when a run is already active.
	ErrAlreadyRunning = errors.New("indexing already in progress")
	// ErrNotRunning is returned by Cancel when no run is active.
	ErrNotRunning = errors.New("no indexing in progress")
)

// Embedder is the subset of the embedding gateway the orchestrator needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Orchestrator runs the indexing pipeline as a single cancellable background
// job. At most one run is active per process; Start on a busy orchestrator
// fails rather than queueing. All state transitions go through the mutex so
// Status always reflects a consistent snapshot.
type Orchestrator struct {
	source    library.Source
	extractor *extract.Extractor
	chunker   *Chunker
	embedder  Embedder
	store     vectorstore.Store
	logger    *zap.Logger

	mu        sync.Mutex
	state     models.IndexState
	processed int
	total     int
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewOrchestrator creates an orchestrator in the idle state.
func NewOrchestrator(
	source library.Source,
	extractor *extract.Extractor,
	chunker *Chunker,
	embedder Embedder,
	store vectorstore.Store,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		source:    source,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		logger:    logger,
		state:     models.StateIdle,
	}
}

// Start launches a background indexing run. It returns ErrAlreadyRunning if
// a run is active (running or cancelling); counters are reset to zero before
// Start returns, so a Status call immediately after never shows stale
// progress from an earlier run.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != models.StateIdle {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	o.state = models.StateRunning
	o.processed = 0
	o.total = 0
	o.cancel = cancel
	o.done = make(chan struct{})

	runID := uuid.New().String()
	go o.run(ctx, runID)
	return nil
}

// Cancel requests cooperative cancellation of the active run. The run stops
// after the item currently being processed; already-written records are kept.
// Cancel of an idle orchestrator returns ErrNotRunning; repeated Cancel
// during one run is a no-op.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case models.StateIdle:
		return ErrNotRunning
	case models.StateRunning:
		o.state = models.StateCancelling
		o.cancel()
	case models.StateCancelling:
		// already requested
	}
	return nil
}

// Status returns a consistent snapshot of the current run.
func (o *Orchestrator) Status() models.IndexStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return models.IndexStatus{
		Status:         o.state,
		ProcessedItems: o.processed,
		TotalItems:     o.total,
	}
}

// Wait blocks until the active run finishes. It returns immediately when no
// run is active. Used by the CLI one-shot mode and by tests.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (o *Orchestrator) setProgress(processed, total int) {
	o.mu.Lock()
	o.processed = processed
	o.total = total
	o.mu.Unlock()
}

func (o *Orchestrator) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

// run executes the two-phase pipeline: extract text for every item, then
// chunk, embed, and write each item's records. The deferred reset runs on
// every exit path, panics included, so the orchestrator can never be left
// stuck outside idle.
func (o *Orchestrator) run(ctx context.Context, runID string) {
	logger := o.logger.With(zap.String("run_id", runID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("indexing run panicked", zap.Any("panic", r))
		}
		o.mu.Lock()
		o.state = models.StateIdle
		o.cancel = nil
		close(o.done)
		o.mu.Unlock()
	}()

	items, err := o.source.ItemsWithDocuments(ctx)
	if err != nil {
		logger.Error("failed to enumerate library items", zap.Error(err))
		return
	}
	total := len(items)
	o.setProgress(0, total)
	logger.Info("indexing run started", zap.Int("total_items", total))

	// Phase 1: extract text. Items without a readable document are counted
	// as processed here and dropped from phase 2.
	processed := 0
	extracted := items[:0]
	for i := range items {
		if o.cancelled(ctx) {
			logger.Info("indexing cancelled during extraction",
				zap.Int("processed", processed), zap.Int("total", total))
			return
		}
		item := items[i]
		if item.DocumentPath == "" {
			logger.Warn("item has no document path, skipping",
				zap.String("item_id", item.ID), zap.String("title", item.Title))
			processed++
			o.setProgress(processed, total)
			continue
		}
		text, err := o.extractor.Extract(item.DocumentPath)
		if err != nil {
			logger.Warn("failed to extract document, skipping",
				zap.String("item_id", item.ID),
				zap.String("path", item.DocumentPath),
				zap.Error(err))
			processed++
			o.setProgress(processed, total)
			continue
		}
		item.Text = text
		extracted = append(extracted, item)
	}

	// Phase 2: chunk, embed, write. A failure on one item skips that item
	// and the run continues; progress advances regardless of outcome.
	indexed := 0
	for i := range extracted {
		if o.cancelled(ctx) {
			logger.Info("indexing cancelled",
				zap.Int("processed", processed), zap.Int("total", total))
			return
		}
		item := extracted[i]
		if err := o.indexItem(ctx, item); err != nil {
			if o.cancelled(ctx) {
				logger.Info("indexing cancelled",
					zap.Int("processed", processed), zap.Int("total", total))
				return
			}
			logger.Warn("failed to index item, skipping",
				zap.String("item_id", item.ID),
				zap.String("title", item.Title),
				zap.Error(err))
		} else {
			indexed++
		}
		processed++
		o.setProgress(processed, total)
	}

	logger.Info("indexing run finished",
		zap.Int("indexed_items", indexed),
		zap.Int("processed_items", processed),
		zap.Int("total_items", total))
}

// indexItem chunks one item's text, embeds the chunks, and writes records.
// An item with empty text or zero chunks is not an error; it simply yields
// no records.
func (o *Orchestrator) indexItem(ctx context.Context, item models.Item) error {
	chunks := o.chunker.Chunk(item.Text)
	if len(chunks) == 0 {
		return nil
	}
	embeddings, err := o.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return err
	}
	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ID:        item.ID + ":" + strconv.Itoa(i),
			Document:  chunk,
			Metadata:  itemMetadata(item, i),
			Embedding: embeddings[i],
		}
	}
	return o.store.Add(ctx, records)
}

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

// yearFromDate pulls the four-digit year out of a library date string, which
// may be anything from "2016" to "2016-11-18" to "November 2016".
func yearFromDate(date string) string {
	return yearPattern.FindString(date)
}

// itemMetadata builds the flat metadata map stored with one record. Values
// are always plain strings; absent fields become empty strings rather than
// nulls.
func itemMetadata(item models.Item, chunkIdx int) map[string]string {
	return map[string]string{
		"item_id":     item.ID,
		"chunk_idx":   strconv.Itoa(chunkIdx),
		"title":       item.Title,
		"year":        yearFromDate(item.Date),
		"authors":     item.Authors,
		"tags":        item.Tags,
		"collections": item.Collections,
		"path":        item.DocumentPath,
	}
}
