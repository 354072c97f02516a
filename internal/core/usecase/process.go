package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const (
	DefaultEmbedBatchSize   = 16
	DefaultEmbedConcurrency = 4
)

type ProcessConfig struct {
	EmbedBatchSize   int
	EmbedConcurrency int
	// OnIndexed is called after a document reached the ready state.
	OnIndexed func(documentID string, chunks int)
}

type ProcessDocumentUseCase struct {
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	analyzer ports.DocumentAnalyzer
	chunker  ports.Chunker
	embedder ports.Embedder
	index    ports.VectorIndex
	cfg      ProcessConfig
	logger   *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	analyzer ports.DocumentAnalyzer,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	cfg ProcessConfig,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = DefaultEmbedConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:     repo,
		storage:  storage,
		analyzer: analyzer,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   logger,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, chunks, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.MarkIndexed(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	if uc.cfg.OnIndexed != nil {
		uc.cfg.OnIndexed(doc.ID, chunks)
	}

	uc.logger.Info("document_processed", "document_id", doc.ID, "filename", doc.Filename, "chunks", chunks)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (*domain.Document, int, error) {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return nil, 0, err
	}

	content, err := uc.readContent(ctx, doc)
	if err != nil {
		return nil, 0, err
	}

	text, err := uc.analyze(ctx, doc, content)
	if err != nil {
		return nil, 0, err
	}

	chunks, err := uc.chunk(text)
	if err != nil {
		return nil, 0, err
	}

	vectors, err := uc.embed(ctx, chunks)
	if err != nil {
		return nil, 0, err
	}

	written, err := uc.write(ctx, doc, chunks, vectors)
	if err != nil {
		return nil, 0, err
	}
	return doc, written, nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) readContent(ctx context.Context, doc *domain.Document) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}
	return content, nil
}

func (uc *ProcessDocumentUseCase) analyze(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	paragraphs, err := uc.analyzer.Analyze(ctx, doc, content)
	if err != nil {
		return "", fmt.Errorf("analyze document: %w", err)
	}
	text := strings.ToValidUTF8(strings.Join(paragraphs, "\n"), "\uFFFD")
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "analyze document", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *ProcessDocumentUseCase) chunk(text string) ([]domain.DocumentChunk, error) {
	chunks, err := uc.chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

// embed sends chunks in fixed size batches, a bounded number at a time.
func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.DocumentChunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.EmbedConcurrency)
	for start := 0; start < len(chunks); start += uc.cfg.EmbedBatchSize {
		end := min(start+uc.cfg.EmbedBatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, chunk := range chunks[start:end] {
				texts = append(texts, chunk.Content)
			}
			batch, err := uc.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
			}
			if len(batch) != len(texts) {
				return domain.WrapError(
					domain.ErrInvalidInput,
					"embed chunks",
					fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
				)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) write(ctx context.Context, doc *domain.Document, chunks []domain.DocumentChunk, vectors [][]float32) (int, error) {
	passages := make([]domain.IndexedPassage, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		passages = append(passages, domain.IndexedPassage{
			ID:              doc.ID + "-" + strconv.Itoa(chunk.SequenceIndex),
			OwnerID:         doc.ID,
			Content:         chunk.Content,
			SourceFileLabel: doc.Filename,
			ChatType:        domain.ChatTypeDocument,
			DepartmentLabel: doc.DepartmentName,
			SequenceIndex:   chunk.SequenceIndex,
			Embedding:       vectors[i],
		})
	}
	if len(passages) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "index chunks", errors.New("no non-empty chunks"))
	}

	if err := uc.index.EnsureIndex(ctx, len(passages[0].Embedding)); err != nil {
		return 0, fmt.Errorf("ensure vector index: %w", err)
	}
	if err := uc.index.Write(ctx, passages); err != nil {
		return 0, fmt.Errorf("index chunks in vector db: %w", err)
	}
	return len(passages), nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

// markFailed records the user facing message when the error carries one.
func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	uc.logger.Error("document_processing_failed", "document_id", documentID, "error", processErr)
	return uc.markStatus(ctx, documentID, domain.StatusFailed, domain.UserMessage(processErr, processErr.Error()))
}
