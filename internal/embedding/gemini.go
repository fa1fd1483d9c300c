package embedding

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"finsight/internal/chat/interfaces"
)

// Gemini embeds text through the Google GenAI embedding API.
type Gemini struct {
	model *genai.EmbeddingModel
}

var _ interfaces.Embedder = (*Gemini)(nil)

// NewGemini creates a Gemini embedding client for the given model.
func NewGemini(ctx context.Context, modelName, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{model: client.EmbeddingModel(modelName)}, nil
}

// Embed generates an embedding vector for a single text.
func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}
	return res.Embedding.Values, nil
}

// EmbedBatch generates embedding vectors for a batch of texts in a
// single call. The ingestion pipeline uses it when indexing uploads.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := g.model.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := g.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("embedding batch: %w", err)
	}

	embeddings := make([][]float32, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		embeddings = append(embeddings, emb.Values)
	}
	return embeddings, nil
}
