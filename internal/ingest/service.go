package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"finsight/internal/chat/schema"
	"finsight/internal/database/kafka"
	"finsight/internal/finance"
	"finsight/internal/models"
	"finsight/internal/vectorstore"
	"finsight/pkg/logger"
)

// BatchEmbedder embeds many chunks at once during indexing.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the write side of the vector store.
type VectorIndex interface {
	Add(ctx context.Context, docs []*vectorstore.Document) error
	DeleteByCompanyYear(ctx context.Context, companyID uint, year int) error
}

// Archiver stores the raw uploaded file.
type Archiver interface {
	Archive(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
}

// EventPublisher announces completed imports.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.IngestionEvent) error
}

// UploadRequest is one admin upload. CompanyName, Year and Currency
// are required for PDF files, which cannot describe themselves.
type UploadRequest struct {
	Filename    string
	Data        []byte
	CompanyName string
	Year        int
	Currency    string
}

// Result reports what an upload produced.
type Result struct {
	Inserted int    `json:"inserted"`
	Indexed  int    `json:"indexed"`
	Archived string `json:"archived,omitempty"`
}

// Service turns uploaded balance-sheet files into relational rows and
// retrieval chunks. Archive and events are best effort: a working
// import is never failed because its side channels are down.
type Service struct {
	db       *gorm.DB
	finance  *finance.Store
	embedder BatchEmbedder
	index    VectorIndex
	archive  Archiver
	events   EventPublisher
	log      *logger.Logger
}

func NewService(db *gorm.DB, financeStore *finance.Store, embedder BatchEmbedder, index VectorIndex, archive Archiver, events EventPublisher, log *logger.Logger) *Service {
	return &Service{
		db:       db,
		finance:  financeStore,
		embedder: embedder,
		index:    index,
		archive:  archive,
		events:   events,
		log:      log,
	}
}

// Ingest parses the upload, upserts its rows, and replaces the vector
// chunks for every (company, year) it touches.
func (s *Service) Ingest(ctx context.Context, req UploadRequest) (*Result, error) {
	rows, contentType, err := s.parseUpload(req)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no usable rows in %s", schema.ErrInvalidRequest, req.Filename)
	}

	companyIDs, err := s.resolveCompanies(ctx, rows)
	if err != nil {
		return nil, err
	}

	entries := make([]models.BalanceSheetEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.BalanceSheetEntry{
			CompanyID: companyIDs[row.CompanyName],
			Year:      row.Year,
			Metric:    row.Metric,
			Value:     row.Value,
			Currency:  row.Currency,
		})
	}
	if err := s.finance.Upsert(ctx, entries); err != nil {
		return nil, err
	}

	indexed, err := s.reindex(ctx, rows, companyIDs, req.Filename)
	if err != nil {
		return nil, err
	}

	result := &Result{Inserted: len(entries), Indexed: indexed}
	result.Archived = s.archiveUpload(ctx, req, contentType)
	s.publishEvents(ctx, rows, companyIDs, req.Filename)

	return result, nil
}

// parseUpload routes the file by sniffed type, falling back to the
// extension when the content is ambiguous.
func (s *Service) parseUpload(req UploadRequest) ([]Row, string, error) {
	detected := mimetype.Detect(req.Data)
	ext := strings.ToLower(filepath.Ext(req.Filename))

	switch {
	case detected.Is("application/pdf") || ext == ".pdf":
		rows, err := s.parsePDF(req)
		return rows, "application/pdf", err

	case detected.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet") || ext == ".xlsx":
		rows, err := ParseXLSX(req.Data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
		}
		return rows, detected.String(), nil

	case detected.Is("text/csv") || detected.Is("text/plain") || ext == ".csv":
		rows, err := ParseCSV(bytes.NewReader(req.Data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
		}
		return rows, "text/csv", nil

	default:
		return nil, "", fmt.Errorf("%w: unsupported file type %s", schema.ErrInvalidRequest, detected.String())
	}
}

func (s *Service) parsePDF(req UploadRequest) ([]Row, error) {
	if req.CompanyName == "" || req.Year == 0 {
		return nil, fmt.Errorf("%w: PDF uploads need company_name and year", schema.ErrInvalidRequest)
	}
	data, err := ExtractPDF(req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	return data.Rows(req.CompanyName, req.Year, currency), nil
}

// resolveCompanies maps every company name in the upload to its ID,
// creating companies that do not exist yet.
func (s *Service) resolveCompanies(ctx context.Context, rows []Row) (map[string]uint, error) {
	ids := make(map[string]uint)
	for _, row := range rows {
		if _, ok := ids[row.CompanyName]; ok {
			continue
		}
		var company models.Company
		err := s.db.WithContext(ctx).
			Where(models.Company{Name: row.CompanyName}).
			FirstOrCreate(&company).Error
		if err != nil {
			return nil, fmt.Errorf("resolving company %q: %w", row.CompanyName, err)
		}
		ids[row.CompanyName] = company.ID
	}
	return ids, nil
}

// reindex replaces the vector chunks for every (company, year) pair in
// the upload: old chunks are deleted first so stale figures never
// survive a re-upload.
func (s *Service) reindex(ctx context.Context, rows []Row, companyIDs map[string]uint, source string) (int, error) {
	type key struct {
		companyID uint
		year      int
	}
	grouped := make(map[key][]Row)
	for _, row := range rows {
		k := key{companyID: companyIDs[row.CompanyName], year: row.Year}
		grouped[k] = append(grouped[k], row)
	}

	indexed := 0
	for k, group := range grouped {
		if err := s.index.DeleteByCompanyYear(ctx, k.companyID, k.year); err != nil {
			return indexed, fmt.Errorf("clearing old chunks: %w", err)
		}

		texts := make([]string, 0, len(group))
		for _, row := range group {
			texts = append(texts, ChunkText(row.CompanyName, row.Year, row.Metric, row.Value, row.Currency))
		}
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("embedding chunks: %w", err)
		}
		if len(embeddings) != len(texts) {
			return indexed, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings))
		}

		docs := make([]*vectorstore.Document, 0, len(group))
		for i, row := range group {
			docs = append(docs, &vectorstore.Document{
				ID:        ChunkID(k.companyID, row.Year, row.Metric),
				Text:      texts[i],
				Embedding: embeddings[i],
				CompanyID: k.companyID,
				Year:      row.Year,
				Metric:    row.Metric,
				Source:    source,
			})
		}
		if err := s.index.Add(ctx, docs); err != nil {
			return indexed, fmt.Errorf("indexing chunks: %w", err)
		}
		indexed += len(docs)
	}
	return indexed, nil
}

// archiveUpload stores the raw file; failure is logged, not returned.
func (s *Service) archiveUpload(ctx context.Context, req UploadRequest, contentType string) string {
	if s.archive == nil {
		return ""
	}
	objectName := fmt.Sprintf("uploads/%s/%s-%s",
		time.Now().UTC().Format("2006-01-02"), uuid.New().String(), filepath.Base(req.Filename))
	err := s.archive.Archive(ctx, objectName, bytes.NewReader(req.Data), int64(len(req.Data)), contentType)
	if err != nil {
		s.log.Warn(fmt.Sprintf("Failed to archive upload %s: %v", req.Filename, err))
		return ""
	}
	return objectName
}

// publishEvents announces one event per (company, year); failures are
// logged, not returned.
func (s *Service) publishEvents(ctx context.Context, rows []Row, companyIDs map[string]uint, source string) {
	if s.events == nil {
		return
	}
	type key struct {
		companyID uint
		year      int
	}
	counts := make(map[key]int)
	for _, row := range rows {
		counts[key{companyID: companyIDs[row.CompanyName], year: row.Year}]++
	}
	for k, n := range counts {
		event := kafka.IngestionEvent{
			CompanyID: k.companyID,
			Year:      k.year,
			Source:    source,
			Rows:      n,
			Timestamp: time.Now().UTC(),
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.log.Warn(fmt.Sprintf("Failed to publish ingestion event for company %d: %v", k.companyID, err))
		}
	}
}
