package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
	"github.com/kirillkom/document-chat-assistant/internal/core/ports"
)

const DefaultRetrievalK = 10

// Retriever runs department scoped similarity search over indexed passages.
type Retriever struct {
	embedder    ports.Embedder
	index       ports.VectorIndex
	departments ports.DepartmentResolver
	logger      *slog.Logger
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, departments ports.DepartmentResolver, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		departments: departments,
		logger:      logger,
	}
}

// BuildFilter always restricts to document passages. The department clause is
// added only when departmentID resolves; an unset, "all" or unknown department
// searches every department.
func (r *Retriever) BuildFilter(ctx context.Context, departmentID string) domain.FilterExpression {
	filter := domain.NewDocumentFilter()
	departmentID = strings.TrimSpace(departmentID)
	if departmentID == "" || departmentID == domain.AllDepartments || r.departments == nil {
		return filter
	}

	dept, err := r.departments.GetDepartment(ctx, departmentID)
	if err != nil {
		r.logger.Warn("department_lookup_failed", "department_id", departmentID, "error", err)
		return filter
	}
	if dept == nil || strings.TrimSpace(dept.Name) == "" {
		r.logger.Info("department_not_found", "department_id", departmentID)
		return filter
	}
	return filter.And(domain.FieldDepartment, dept.Name)
}

// Retrieve returns at most k passages by descending score. Upstream failures
// are reported as ErrRetrievalUnavailable.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filter domain.FilterExpression) ([]domain.RetrievedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is empty"))
	}
	if k <= 0 {
		k = DefaultRetrievalK
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "embed query", err)
	}
	results, err := r.index.Query(ctx, vector, k, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "query index", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// SearchDocuments resolves the department filter and retrieves in one call.
func (r *Retriever) SearchDocuments(ctx context.Context, query, departmentID string, k int) ([]domain.RetrievedResult, error) {
	results, err := r.Retrieve(ctx, query, k, r.BuildFilter(ctx, departmentID))
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return results, nil
}
