package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/shoko/internal/vectorstore"
)

func TestBuildSearchPromptAppendsQuestionMark(t *testing.T) {
	p := BuildSearchPrompt("  what is attention  ")
	if !strings.Contains(p, "Question: what is attention?") {
		t.Errorf("prompt: %q", p)
	}
	p = BuildSearchPrompt("what is attention?")
	if strings.Contains(p, "??") {
		t.Errorf("double question mark: %q", p)
	}
}

func TestBuildAnswerPromptWithContext(t *testing.T) {
	snippets, _ := DeduplicateCitations([]vectorstore.Result{
		{Document: "the text", Metadata: map[string]string{"title": "Paper A", "year": "2020", "path": "/a.pdf"}},
	}, 500)
	p := BuildAnswerPrompt("what?", snippets)
	if !strings.Contains(p, "[1] Paper A (2020): the text") {
		t.Errorf("context block missing: %q", p)
	}
	if !strings.Contains(p, "Question: what?") {
		t.Error("question missing")
	}
}

func TestBuildAnswerPromptNoContext(t *testing.T) {
	p := BuildAnswerPrompt("what?", nil)
	if !strings.Contains(p, "no relevant context") {
		t.Errorf("no-context prompt: %q", p)
	}
}

func resultFor(doc, title, year, path string) vectorstore.Result {
	return vectorstore.Result{
		Document: doc,
		Metadata: map[string]string{"title": title, "year": year, "path": path},
	}
}

func TestDeduplicateCitationsSharedOrdinals(t *testing.T) {
	results := []vectorstore.Result{
		resultFor("x1", "Doc X", "2020", "/x.pdf"),
		resultFor("y1", "Doc Y", "2021", "/y.pdf"),
		resultFor("x2", "Doc X", "2020", "/x.pdf"),
		resultFor("y2", "Doc Y", "2021", "/y.pdf"),
		resultFor("x3", "Doc X", "2020", "/x.pdf"),
	}
	snippets, citations := DeduplicateCitations(results, 500)

	if len(snippets) != 5 {
		t.Fatalf("snippets: got %d, want 5", len(snippets))
	}
	wantCIDs := []int{1, 2, 1, 2, 1}
	for i, s := range snippets {
		if s.CitationID != wantCIDs[i] {
			t.Errorf("snippet %d citation: got %d, want %d", i, s.CitationID, wantCIDs[i])
		}
	}
	if len(citations) != 2 {
		t.Fatalf("citations: got %d, want 2", len(citations))
	}
	if citations[0].ID != 1 || citations[0].Title != "Doc X" {
		t.Errorf("first citation: %+v", citations[0])
	}
	if citations[1].ID != 2 || citations[1].Title != "Doc Y" {
		t.Errorf("second citation: %+v", citations[1])
	}
}

func TestDeduplicateCitationsDistinguishesByPath(t *testing.T) {
	// Same title and year from different files are different sources.
	results := []vectorstore.Result{
		resultFor("a", "Same Title", "2020", "/one.pdf"),
		resultFor("b", "Same Title", "2020", "/two.pdf"),
	}
	_, citations := DeduplicateCitations(results, 500)
	if len(citations) != 2 {
		t.Fatalf("citations: got %d, want 2", len(citations))
	}
}

func TestDeduplicateCitationsTruncatesSnippets(t *testing.T) {
	long := strings.Repeat("é", 600)
	snippets, _ := DeduplicateCitations([]vectorstore.Result{
		resultFor(long, "T", "", ""),
	}, 500)
	if got := len([]rune(snippets[0].Snippet)); got != 500 {
		t.Errorf("snippet runes: got %d, want 500", got)
	}
}

func TestDeduplicateCitationsUntitledDefault(t *testing.T) {
	snippets, citations := DeduplicateCitations([]vectorstore.Result{
		{Document: "d", Metadata: map[string]string{}},
	}, 500)
	if snippets[0].Title != "Untitled" || citations[0].Title != "Untitled" {
		t.Error("missing title should become Untitled")
	}
}

type fakeStore struct {
	results    []vectorstore.Result
	err        error
	lastFilter *vectorstore.Filter
	lastQuery  string
}

func (f *fakeStore) Add(ctx context.Context, records []vectorstore.Record) error { return nil }

func (f *fakeStore) Query(ctx context.Context, text string, k int, filter *vectorstore.Filter) ([]vectorstore.Result, error) {
	f.lastQuery = text
	f.lastFilter = filter
	return f.results, f.err
}

func (f *fakeStore) Count(ctx context.Context) (int, error) { return len(f.results), nil }
func (f *fakeStore) Close() error                           { return nil }

type fakeGenerator struct {
	response string
	err      error
	prompt   string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.response, g.err
}

func (g *fakeGenerator) ModelName() string { return "fake" }
func (g *fakeGenerator) Close() error      { return nil }

func TestChatHappyPath(t *testing.T) {
	store := &fakeStore{results: []vectorstore.Result{
		resultFor("passage one", "Doc", "2020", "/d.pdf"),
	}}
	gen := &fakeGenerator{response: "a summary [1]"}
	svc := NewService(store, gen, 5, 500, zap.NewNop())

	resp := svc.Chat(context.Background(), "what is this", nil)
	if resp.Summary != "a summary [1]" {
		t.Errorf("summary: %q", resp.Summary)
	}
	if len(resp.Citations) != 1 || len(resp.Snippets) != 1 {
		t.Errorf("citations/snippets: %d/%d", len(resp.Citations), len(resp.Snippets))
	}
	if !strings.Contains(store.lastQuery, "what is this?") {
		t.Errorf("retrieval query: %q", store.lastQuery)
	}
	if !strings.Contains(gen.prompt, "passage one") {
		t.Error("generation prompt missing retrieved passage")
	}
}

func TestChatScopesByItemIDs(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, &fakeGenerator{response: "ok"}, 5, 500, zap.NewNop())

	svc.Chat(context.Background(), "q", []string{"10", "20"})
	if store.lastFilter == nil || len(store.lastFilter.ItemIDs) != 2 {
		t.Errorf("filter: %+v", store.lastFilter)
	}

	svc.Chat(context.Background(), "q", nil)
	if store.lastFilter != nil {
		t.Error("no item ids should mean no filter")
	}
}

func TestChatGenerationFailureFallsBackToFirstSnippet(t *testing.T) {
	store := &fakeStore{results: []vectorstore.Result{
		resultFor("first passage text", "Doc", "2020", "/d.pdf"),
		resultFor("second passage text", "Doc", "2020", "/d.pdf"),
	}}
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	svc := NewService(store, gen, 5, 500, zap.NewNop())

	resp := svc.Chat(context.Background(), "q", nil)
	if resp.Summary != "first passage text" {
		t.Errorf("summary: %q", resp.Summary)
	}
	if len(resp.Snippets) != 2 {
		t.Errorf("snippets should still be returned: %d", len(resp.Snippets))
	}
}

func TestChatNoResultsAndGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("down")}
	svc := NewService(&fakeStore{}, gen, 5, 500, zap.NewNop())

	resp := svc.Chat(context.Background(), "q", nil)
	if resp.Summary != NoResultsSummary {
		t.Errorf("summary: %q", resp.Summary)
	}
	if resp.Citations == nil || resp.Snippets == nil {
		t.Error("citations and snippets must be non-nil")
	}
	if len(resp.Citations) != 0 || len(resp.Snippets) != 0 {
		t.Error("expected empty citations and snippets")
	}
}

func TestChatRetrievalFailureDegrades(t *testing.T) {
	store := &fakeStore{err: errors.New("store down")}
	gen := &fakeGenerator{response: "cannot answer from your documents"}
	svc := NewService(store, gen, 5, 500, zap.NewNop())

	resp := svc.Chat(context.Background(), "q", nil)
	if resp.Summary != "cannot answer from your documents" {
		t.Errorf("summary: %q", resp.Summary)
	}
	if len(resp.Snippets) != 0 {
		t.Error("no snippets expected after retrieval failure")
	}
}
