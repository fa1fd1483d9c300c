package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"finsight/internal/chat/authz"
	"finsight/internal/chat/compose"
	"finsight/internal/chat/memory"
	"finsight/internal/chat/retrieval"
	"finsight/internal/chat/schema"
	"finsight/pkg/logger"
)

// fakeDirectory: company 7 is the analyst's own company, 8 belongs to
// someone else, 1 is the parent of 7 and 8.
type fakeDirectory struct {
	users map[uint]*schema.Identity
}

func newFakeDirectory() *fakeDirectory {
	seven := uint(7)
	one := uint(1)
	return &fakeDirectory{users: map[uint]*schema.Identity{
		10: {ID: 10, Username: "ana", Role: schema.RoleAnalyst, CompanyID: &seven},
		11: {ID: 11, Username: "boss", Role: schema.RoleCEO, CompanyID: &one},
	}}
}

func (d *fakeDirectory) GetUser(ctx context.Context, id uint) (*schema.Identity, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, schema.ErrIdentityNotFound
}

func (d *fakeDirectory) GetCompany(ctx context.Context, id uint) (*schema.Company, error) {
	names := map[uint]string{1: "Holdings", 7: "Acme Corp", 8: "Rival Ltd"}
	if name, ok := names[id]; ok {
		return &schema.Company{ID: id, Name: name}, nil
	}
	return nil, schema.ErrCompanyNotFound
}

func (d *fakeDirectory) ListCompanyIDs(ctx context.Context) ([]uint, error) {
	return []uint{1, 7, 8}, nil
}

func (d *fakeDirectory) ChildCompanyIDs(ctx context.Context, parentID uint) ([]uint, error) {
	if parentID == 1 {
		return []uint{7, 8}, nil
	}
	return nil, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

// fakeIndex serves chunks filtered by company, and counts searches so
// tests can assert that denied requests never reach the index.
type fakeIndex struct {
	chunks  []*schema.Chunk
	queries int
}

func (f *fakeIndex) Search(ctx context.Context, embedding []float32, topK int, companyIDs []uint) ([]*schema.Chunk, error) {
	f.queries++
	allowed := make(map[uint]struct{}, len(companyIDs))
	for _, id := range companyIDs {
		allowed[id] = struct{}{}
	}
	var out []*schema.Chunk
	for _, c := range f.chunks {
		if _, ok := allowed[c.CompanyID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// echoGenerator answers with the context block so tests can check
// grounding, or fails with the scripted error.
type echoGenerator struct {
	err   error
	delay time.Duration
}

func (g *echoGenerator) Generate(ctx context.Context, messages []schema.Message) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.err != nil {
		return "", g.err
	}
	system := messages[0].Content
	if i := strings.Index(system, "Context:"); i >= 0 {
		return system[i:], nil
	}
	return "no context", nil
}

type fixture struct {
	orch  *Orchestrator
	index *fakeIndex
	mem   *memory.Store
}

func newFixture(gen *echoGenerator, ready bool, timeout time.Duration, chunks ...*schema.Chunk) *fixture {
	log := logger.New("test", "", "")
	dir := newFakeDirectory()
	index := &fakeIndex{chunks: chunks}
	ret := retrieval.NewRetriever(fakeEmbedder{}, index, retrieval.DefaultTopK, log)
	policy := compose.RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	comp := compose.NewComposer(ret, gen, policy, log)
	mem := memory.NewStore(memory.DefaultWindow)
	orch := NewOrchestrator(dir, authz.NewResolver(dir), comp, mem, timeout, ready, log)
	return &fixture{orch: orch, index: index, mem: mem}
}

func revenueChunk() *schema.Chunk {
	return &schema.Chunk{
		ID:        "c1",
		Text:      "Revenue was 600000",
		CompanyID: 7,
		Year:      2023,
		Metric:    "Revenue",
		Source:    "BalanceSheet_7_2023.pdf",
	}
}

func TestAnswerEndToEnd(t *testing.T) {
	f := newFixture(&echoGenerator{}, true, 0, revenueChunk())

	res, err := f.orch.Answer(context.Background(), 10, "What was revenue in 2023?", 7)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !strings.Contains(res.Answer, "600000") {
		t.Errorf("answer %q does not contain the retrieved figure", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0] != "BalanceSheet_7_2023.pdf" {
		t.Errorf("sources = %v, want the chunk's provenance label", res.Sources)
	}
	if res.TurnCount != 1 {
		t.Errorf("turn_count = %d, want 1", res.TurnCount)
	}
}

func TestAnswerForbiddenCompanySkipsRetrieval(t *testing.T) {
	f := newFixture(&echoGenerator{}, true, 0, revenueChunk())

	// Analyst of company 7 asks about company 8.
	_, err := f.orch.Answer(context.Background(), 10, "What was revenue?", 8)
	if !errors.Is(err, schema.ErrForbidden) {
		t.Fatalf("Answer() error = %v, want ErrForbidden", err)
	}
	if f.index.queries != 0 {
		t.Errorf("vector index queried %d times under denial, want 0", f.index.queries)
	}
	if f.mem.Len(memory.Key{UserID: 10, CompanyID: 8}) != 0 {
		t.Errorf("a turn was persisted for a denied request")
	}
}

func TestAnswerCEOScopeCoversChildren(t *testing.T) {
	f := newFixture(&echoGenerator{}, true, 0, revenueChunk())

	if _, err := f.orch.Answer(context.Background(), 11, "revenue?", 7); err != nil {
		t.Errorf("ceo denied a child company: %v", err)
	}
	if _, err := f.orch.Answer(context.Background(), 11, "revenue?", 1); err != nil {
		t.Errorf("ceo denied own company: %v", err)
	}
}

func TestAnswerZeroChunksIsNotAnError(t *testing.T) {
	f := newFixture(&echoGenerator{}, true, 0) // index is empty

	res, err := f.orch.Answer(context.Background(), 10, "revenue?", 7)
	if err != nil {
		t.Fatalf("Answer() error = %v, want success with empty sources", err)
	}
	if len(res.Sources) != 0 {
		t.Errorf("sources = %v, want none", res.Sources)
	}
}

func TestAnswerRepeatedQuestionAppendsTwice(t *testing.T) {
	f := newFixture(&echoGenerator{}, true, 0, revenueChunk())

	for i := 0; i < 2; i++ {
		if _, err := f.orch.Answer(context.Background(), 10, "What was revenue in 2023?", 7); err != nil {
			t.Fatalf("Answer() #%d error = %v", i+1, err)
		}
	}
	if got := f.mem.Len(memory.Key{UserID: 10, CompanyID: 7}); got != 2 {
		t.Errorf("memory holds %d turns, want 2 (append-only, not deduplicated)", got)
	}
}

func TestAnswerValidation(t *testing.T) {
	f := newFixture(&echoGenerator{}, true, 0)

	if _, err := f.orch.Answer(context.Background(), 10, "   ", 7); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Errorf("empty question: error = %v, want ErrInvalidRequest", err)
	}
	if _, err := f.orch.Answer(context.Background(), 10, "q", 0); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Errorf("missing company: error = %v, want ErrInvalidRequest", err)
	}
	if _, err := f.orch.Answer(context.Background(), 10, "q", 999); !errors.Is(err, schema.ErrCompanyNotFound) {
		t.Errorf("unknown company: error = %v, want ErrCompanyNotFound", err)
	}
	if _, err := f.orch.Answer(context.Background(), 99, "q", 7); !errors.Is(err, schema.ErrIdentityNotFound) {
		t.Errorf("unknown user: error = %v, want ErrIdentityNotFound", err)
	}
}

func TestAnswerNotReady(t *testing.T) {
	f := newFixture(&echoGenerator{}, false, 0)

	_, err := f.orch.Answer(context.Background(), 10, "revenue?", 7)
	if !errors.Is(err, schema.ErrServiceUnavailable) {
		t.Fatalf("Answer() error = %v, want ErrServiceUnavailable", err)
	}
	if f.index.queries != 0 {
		t.Errorf("retrieval attempted while not ready")
	}
}

func TestAnswerGenerationFailureLeavesMemoryUntouched(t *testing.T) {
	f := newFixture(&echoGenerator{err: errors.New("boom")}, true, 0, revenueChunk())

	_, err := f.orch.Answer(context.Background(), 10, "revenue?", 7)
	if !errors.Is(err, schema.ErrGenerationFailed) {
		t.Fatalf("Answer() error = %v, want ErrGenerationFailed", err)
	}
	if f.mem.Len(memory.Key{UserID: 10, CompanyID: 7}) != 0 {
		t.Errorf("a partial turn was written after a failed compose")
	}
}

func TestAnswerUpstreamTimeout(t *testing.T) {
	f := newFixture(&echoGenerator{delay: 200 * time.Millisecond}, true, 20*time.Millisecond, revenueChunk())

	_, err := f.orch.Answer(context.Background(), 10, "revenue?", 7)
	if !errors.Is(err, schema.ErrUpstreamTimeout) {
		t.Fatalf("Answer() error = %v, want ErrUpstreamTimeout", err)
	}
	if f.mem.Len(memory.Key{UserID: 10, CompanyID: 7}) != 0 {
		t.Errorf("a turn was persisted after a timeout")
	}
}

func TestEndSessionClearsMemory(t *testing.T) {
	f := newFixture(&echoGenerator{}, true, 0, revenueChunk())

	if _, err := f.orch.Answer(context.Background(), 10, "revenue?", 7); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	f.orch.EndSession(10)
	if f.mem.Len(memory.Key{UserID: 10, CompanyID: 7}) != 0 {
		t.Errorf("EndSession left conversation state behind")
	}
}
