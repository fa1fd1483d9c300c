package retrieval

import (
	"context"
	"errors"
	"testing"

	"finsight/internal/chat/schema"
	"finsight/pkg/logger"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearcher struct {
	chunks    []*schema.Chunk
	err       error
	calls     int
	lastScope []uint
}

func (f *fakeSearcher) Search(ctx context.Context, embedding []float32, topK int, companyIDs []uint) ([]*schema.Chunk, error) {
	f.calls++
	f.lastScope = companyIDs
	return f.chunks, f.err
}

func newTestRetriever(e *fakeEmbedder, s *fakeSearcher) *Retriever {
	return NewRetriever(e, s, DefaultTopK, logger.New("test", "", ""))
}

func TestRetrieveIntersectsRequestedWithScope(t *testing.T) {
	searcher := &fakeSearcher{chunks: []*schema.Chunk{{ID: "c1", CompanyID: 7}}}
	r := newTestRetriever(&fakeEmbedder{}, searcher)

	// Caller asks for 7 and 8, but only 7 is authorized.
	chunks, err := r.Retrieve(context.Background(), "revenue?", []uint{7, 8}, schema.NewScope(7))
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Retrieve() returned %d chunks, want 1", len(chunks))
	}
	if len(searcher.lastScope) != 1 || searcher.lastScope[0] != 7 {
		t.Errorf("search filter = %v, want [7]: requested companies must be intersected with scope", searcher.lastScope)
	}
}

func TestRetrieveEmptyScopeFailsClosed(t *testing.T) {
	embedder := &fakeEmbedder{}
	searcher := &fakeSearcher{}
	r := newTestRetriever(embedder, searcher)

	chunks, err := r.Retrieve(context.Background(), "revenue?", []uint{8}, schema.NewScope(7))
	if err != nil {
		t.Fatalf("Retrieve() error = %v, want nil (fail closed, not an error)", err)
	}
	if chunks != nil {
		t.Errorf("Retrieve() = %v, want empty", chunks)
	}
	if embedder.calls != 0 || searcher.calls != 0 {
		t.Errorf("upstream called (embed=%d search=%d) despite empty authorized set", embedder.calls, searcher.calls)
	}
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	r := newTestRetriever(&fakeEmbedder{err: errors.New("quota")}, &fakeSearcher{})

	_, err := r.Retrieve(context.Background(), "revenue?", []uint{7}, schema.NewScope(7))
	if !errors.Is(err, schema.ErrRetrievalUnavailable) {
		t.Fatalf("Retrieve() error = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestRetrieveSearchFailure(t *testing.T) {
	r := newTestRetriever(&fakeEmbedder{}, &fakeSearcher{err: errors.New("milvus down")})

	_, err := r.Retrieve(context.Background(), "revenue?", []uint{7}, schema.NewScope(7))
	if !errors.Is(err, schema.ErrRetrievalUnavailable) {
		t.Fatalf("Retrieve() error = %v, want ErrRetrievalUnavailable", err)
	}
}
