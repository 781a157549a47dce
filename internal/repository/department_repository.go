package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civic-desk/issue-sync/internal/domain"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// DepartmentRepository manages department persistence.
type DepartmentRepository interface {
	Create(ctx context.Context, dept *domain.Department) error
	List(ctx context.Context) ([]domain.Department, error)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

var departmentColumns = []string{
	"id", "name", "description", "head_name", "head_email", "head_phone", "phone", "email",
}

func insertDepartmentQuery(dept *domain.Department) (string, []interface{}, error) {
	return psql.Insert("departments").
		Columns("name", "description", "head_name", "head_email", "head_phone", "phone", "email").
		Values(dept.Name, dept.Description, dept.Head.Name, dept.Head.Email, dept.Head.Phone, dept.Phone, dept.Email).
		Suffix("RETURNING id").
		ToSql()
}

func listDepartmentsQuery() (string, []interface{}, error) {
	return psql.Select(departmentColumns...).
		From("departments").
		OrderBy("name ASC").
		ToSql()
}

// Create inserts the department and sets its generated id. A duplicate name
// yields a Conflict error.
func (r *departmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	query, args, err := insertDepartmentQuery(dept)
	if err != nil {
		return fmt.Errorf("build department insert: %w", err)
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&dept.ID); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflict("department name already exists", map[string]any{"name": dept.Name})
		}
		return err
	}
	return nil
}

func (r *departmentRepository) List(ctx context.Context) ([]domain.Department, error) {
	query, args, err := listDepartmentsQuery()
	if err != nil {
		return nil, fmt.Errorf("build department list: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Department, 0)
	for rows.Next() {
		var dept domain.Department
		if err := rows.Scan(
			&dept.ID,
			&dept.Name,
			&dept.Description,
			&dept.Head.Name,
			&dept.Head.Email,
			&dept.Head.Phone,
			&dept.Phone,
			&dept.Email,
		); err != nil {
			return nil, err
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}
