package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo        ports.DocumentRepository
	storage     ports.ObjectStorage
	queue       ports.MessageQueue
	departments ports.DepartmentResolver
	logger      *slog.Logger
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	departments ports.DepartmentResolver,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:        repo,
		storage:     storage,
		queue:       queue,
		departments: departments,
		logger:      logger,
	}
}

// Upload stores an admin upload and queues it for processing.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	session domain.Session,
	req domain.UploadRequest,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(session.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "upload document", errors.New("no session"))
	}
	if !session.IsAdmin {
		return nil, domain.WrapError(domain.ErrForbidden, "upload document", errors.New("admin role required"))
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is empty"))
	}
	if !domain.SupportedExtension(filename) {
		return nil, &domain.DetailedError{
			Kind:    domain.ErrUnsupportedFormat,
			Message: fmt.Sprintf("unsupported file type %q", domain.DocumentExtension(filename)),
		}
	}
	if req.SizeBytes >= domain.MaxDocumentSize {
		return nil, tooLarge()
	}

	content, err := io.ReadAll(io.LimitReader(body, domain.MaxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read upload body: %w", err)
	}
	if len(content) >= domain.MaxDocumentSize {
		return nil, tooLarge()
	}
	if len(content) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is empty"))
	}

	department, err := uc.resolveDepartment(ctx, req.DepartmentID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    req.MimeType,
		StoragePath: storageKey,
		UploadedBy:  session.UserID,
		SizeBytes:   int64(len(content)),
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if department != nil {
		doc.DepartmentID = department.ID
		doc.DepartmentName = department.Name
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		if markErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, "failed to queue document for processing"); markErr != nil {
			uc.logger.Error("document_mark_failed_error", "document_id", doc.ID, "error", markErr)
		}
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	uc.logger.Info("document_uploaded", "document_id", doc.ID, "filename", doc.Filename, "department", doc.DepartmentName, "size_bytes", doc.SizeBytes)
	return doc, nil
}

func (uc *IngestDocumentUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("id is empty"))
	}
	return uc.repo.GetByID(ctx, id)
}

func (uc *IngestDocumentUseCase) resolveDepartment(ctx context.Context, departmentID string) (*domain.Department, error) {
	departmentID = strings.TrimSpace(departmentID)
	if departmentID == "" || uc.departments == nil {
		return nil, nil
	}
	department, err := uc.departments.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, fmt.Errorf("resolve department: %w", err)
	}
	if department == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve department", fmt.Errorf("unknown department %q", departmentID))
	}
	return department, nil
}

func tooLarge() error {
	return &domain.DetailedError{
		Kind:    domain.ErrDocumentTooLarge,
		Message: fmt.Sprintf("file must be smaller than %d MB", domain.MaxDocumentSize/1_000_000),
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
