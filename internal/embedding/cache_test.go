package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCacheLRU(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	if _, ok := c.Get("a"); !ok {
		t.Error("a should be cached")
	}
	// "b" is now the least recently used; inserting "c" evicts it.
	c.Set("c", []float32{3})
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if c.Len() != 2 {
		t.Errorf("len: got %d", c.Len())
	}
}

type countingEmbedder struct {
	*MockEmbedder
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.MockEmbedder.Embed(ctx, text)
}

func TestCachedEmbedderAvoidsRepeatCalls(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	e := &CachedEmbedder{inner: inner, cache: NewEmbeddingCache(10)}
	ctx := context.Background()

	first, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls: got %d, want 1", inner.calls)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached embedding differs from original")
		}
	}
}

func TestNewCachedEmbedderZeroCapacity(t *testing.T) {
	inner := NewMockEmbedder(4)
	if e := NewCachedEmbedder(inner, 0); e != Embedder(inner) {
		t.Error("zero capacity should return inner unwrapped")
	}
}

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "text")
	b, _ := e.Embed(ctx, "text")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("mock embedder should be deterministic")
		}
	}
	other, _ := e.Embed(ctx, "different")
	same := true
	for i := range a {
		if a[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts should embed differently")
	}
}
