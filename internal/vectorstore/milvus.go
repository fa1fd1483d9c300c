package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"finsight/internal/chat/interfaces"
	"finsight/internal/chat/schema"
	"finsight/internal/database/milvus"
	"finsight/pkg/logger"
)

const (
	FieldID        = "id"
	FieldEmbedding = "embedding"
	FieldChunk     = "chunk"
	FieldCompanyID = "company_id"
	FieldYear      = "year"
	FieldMetric    = "metric"
	FieldSource    = "source"
)

// Document is one embedded balance-sheet chunk ready for indexing.
type Document struct {
	ID        string
	Text      string
	Embedding []float32
	CompanyID uint
	Year      int
	Metric    string
	Source    string
}

// MilvusStore adapts the Milvus client to the retrieval and ingestion
// layers. Every search carries a company_id filter expression; an
// unfiltered search never leaves this package.
type MilvusStore struct {
	log        *logger.Logger
	client     client.Client
	collection string
}

var _ interfaces.VectorSearcher = (*MilvusStore)(nil)

// NewMilvusStore wraps the shared Milvus client for the given collection.
func NewMilvusStore(milvusClient *milvus.MilvusClient, collectionName string, log *logger.Logger) (*MilvusStore, error) {
	if milvusClient == nil || milvusClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &MilvusStore{
		log:        log,
		client:     milvusClient.Client,
		collection: collectionName,
	}, nil
}

// Add inserts embedded chunks into the collection as one columnar batch.
func (s *MilvusStore) Add(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	chunks := make([]string, len(docs))
	companyIDs := make([]int64, len(docs))
	years := make([]int64, len(docs))
	metrics := make([]string, len(docs))
	sources := make([]string, len(docs))

	dim := 0
	for i, doc := range docs {
		ids[i] = doc.ID
		embeddings[i] = doc.Embedding
		if len(doc.Embedding) > dim {
			dim = len(doc.Embedding)
		}
		chunks[i] = doc.Text
		companyIDs[i] = int64(doc.CompanyID)
		years[i] = int64(doc.Year)
		metrics[i] = doc.Metric
		sources[i] = doc.Source
	}

	s.log.Info(fmt.Sprintf("Inserting %d chunks into Milvus collection: %s", len(docs), s.collection))
	_, err := s.client.Insert(ctx, s.collection, "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(FieldEmbedding, dim, embeddings),
		entity.NewColumnVarChar(FieldChunk, chunks),
		entity.NewColumnInt64(FieldCompanyID, companyIDs),
		entity.NewColumnInt64(FieldYear, years),
		entity.NewColumnVarChar(FieldMetric, metrics),
		entity.NewColumnVarChar(FieldSource, sources),
	)
	if err != nil {
		return fmt.Errorf("inserting into Milvus: %w", err)
	}
	return nil
}

// Search runs a vector similarity search restricted to the given
// companies. An empty companyIDs slice returns nothing rather than
// searching unfiltered.
func (s *MilvusStore) Search(ctx context.Context, embedding []float32, topK int, companyIDs []uint) ([]*schema.Chunk, error) {
	if len(companyIDs) == 0 {
		return nil, nil
	}

	filterExpr := buildCompanyFilter(companyIDs)
	searchParams, _ := entity.NewIndexIvfFlatSearchParam(10)
	outputFields := []string{FieldID, FieldChunk, FieldCompanyID, FieldYear, FieldMetric, FieldSource}

	searchResults, err := s.client.Search(
		ctx, s.collection, []string{}, filterExpr, outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		FieldEmbedding, entity.L2, topK, searchParams,
	)
	if err != nil {
		s.log.Error(fmt.Sprintf("Milvus search failed: %v", err))
		return nil, fmt.Errorf("searching Milvus: %w", err)
	}

	var results []*schema.Chunk
	for _, res := range searchResults {
		findColumn := func(name string) entity.Column {
			for _, field := range res.Fields {
				if field.Name() == name {
					return field
				}
			}
			return nil
		}

		idCol, ok := findColumn(FieldID).(*entity.ColumnVarChar)
		if !ok {
			s.log.Warn("Search result is missing id field, skipping result set")
			continue
		}
		idData := idCol.Data()

		var chunkData, metricData, sourceData []string
		var companyData, yearData []int64
		if col, ok := findColumn(FieldChunk).(*entity.ColumnVarChar); ok {
			chunkData = col.Data()
		}
		if col, ok := findColumn(FieldCompanyID).(*entity.ColumnInt64); ok {
			companyData = col.Data()
		}
		if col, ok := findColumn(FieldYear).(*entity.ColumnInt64); ok {
			yearData = col.Data()
		}
		if col, ok := findColumn(FieldMetric).(*entity.ColumnVarChar); ok {
			metricData = col.Data()
		}
		if col, ok := findColumn(FieldSource).(*entity.ColumnVarChar); ok {
			sourceData = col.Data()
		}

		for i := 0; i < res.ResultCount; i++ {
			chunk := &schema.Chunk{
				ID:    idData[i],
				Score: res.Scores[i],
			}
			if chunkData != nil {
				chunk.Text = chunkData[i]
			}
			if companyData != nil {
				chunk.CompanyID = uint(companyData[i])
			}
			if yearData != nil {
				chunk.Year = int(yearData[i])
			}
			if metricData != nil {
				chunk.Metric = metricData[i]
			}
			if sourceData != nil {
				chunk.Source = sourceData[i]
			}
			results = append(results, chunk)
		}
	}

	return results, nil
}

// DeleteByCompanyYear removes all chunks for one company and year so a
// re-upload replaces them instead of stacking duplicates.
func (s *MilvusStore) DeleteByCompanyYear(ctx context.Context, companyID uint, year int) error {
	expr := fmt.Sprintf("%s == %d and %s == %d", FieldCompanyID, companyID, FieldYear, year)
	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("deleting chunks for company %d year %d: %w", companyID, year, err)
	}
	return nil
}

func buildCompanyFilter(companyIDs []uint) string {
	parts := make([]string, 0, len(companyIDs))
	for _, id := range companyIDs {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return fmt.Sprintf("%s in [%s]", FieldCompanyID, strings.Join(parts, ", "))
}
