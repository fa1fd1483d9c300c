package retrieval

import (
	"context"
	"fmt"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/schema"
	"finsight/pkg/logger"
)

// DefaultTopK is how many chunks a retrieval returns by default.
const DefaultTopK = 6

// Retriever embeds a question and performs a metadata-filtered similarity
// search against the vector index. The requested company set is never
// trusted as-is: it is intersected with the identity's authorized scope
// before any filter is built, so a chunk outside the scope can never be
// returned regardless of what the caller asked for.
type Retriever struct {
	embedder interfaces.Embedder
	searcher interfaces.VectorSearcher
	topK     int
	log      *logger.Logger
}

// NewRetriever creates a Retriever. A non-positive topK falls back to
// DefaultTopK.
func NewRetriever(embedder interfaces.Embedder, searcher interfaces.VectorSearcher, topK int, log *logger.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
		log:      log,
	}
}

// Retrieve returns the top-K chunks for the query whose company metadata
// is inside both the requested set and the scope. An empty intersection
// yields an empty result without touching the index (fail closed, not an
// error).
func (r *Retriever) Retrieve(ctx context.Context, query string, requested []uint, scope schema.Scope) ([]*schema.Chunk, error) {
	allowed := scope.Intersect(requested)
	if len(allowed) == 0 {
		r.log.Warn("retrieval skipped: no requested company inside authorized scope")
		return nil, nil
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.Error(fmt.Sprintf("failed to embed query: %v", err))
		return nil, fmt.Errorf("%w: embedding query: %v", schema.ErrRetrievalUnavailable, err)
	}

	chunks, err := r.searcher.Search(ctx, embedding, r.topK, allowed)
	if err != nil {
		r.log.Error(fmt.Sprintf("vector search failed: %v", err))
		return nil, fmt.Errorf("%w: vector search: %v", schema.ErrRetrievalUnavailable, err)
	}

	r.log.Info(fmt.Sprintf("retrieved %d chunks for %d authorized companies", len(chunks), len(allowed)))
	return chunks, nil
}
