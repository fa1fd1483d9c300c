package interfaces

import (
	"context"

	"finsight/internal/chat/schema"
)

// Generator is the interface for a large language model that answers a
// structured message sequence. Implementations translate provider rate
// limiting into schema.ErrRateLimited so the composer can retry it.
type Generator interface {
	Generate(ctx context.Context, messages []schema.Message) (string, error)
}

// Embedder is the interface for a text embedding model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the read side of the vector index: a similarity
// search restricted to chunks whose company ID is in companyIDs.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, topK int, companyIDs []uint) ([]*schema.Chunk, error)
}

// Directory is the organization lookup the pipeline depends on. It is
// owned by the relational store; the chat core only reads from it.
type Directory interface {
	GetUser(ctx context.Context, id uint) (*schema.Identity, error)
	GetCompany(ctx context.Context, id uint) (*schema.Company, error)
	ListCompanyIDs(ctx context.Context) ([]uint, error)
	ChildCompanyIDs(ctx context.Context, parentID uint) ([]uint, error)
}
