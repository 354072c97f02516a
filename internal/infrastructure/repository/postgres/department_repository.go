package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

type DepartmentRepository struct {
	db *sql.DB
}

func NewDepartmentRepository(db *sql.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// GetDepartment returns nil without error when id is unknown.
func (r *DepartmentRepository) GetDepartment(ctx context.Context, id string) (*domain.Department, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name FROM departments WHERE id = $1`, id)
	var dept domain.Department
	if err := row.Scan(&dept.ID, &dept.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get department: %w", err)
	}
	return &dept, nil
}
