package service

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/repository"
	"github.com/civic-desk/issue-sync/internal/store"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// DepartmentCreateInput carries the fields of a new department.
type DepartmentCreateInput struct {
	Name        string
	Description string
	HeadName    string
	HeadEmail   string
	HeadPhone   string
	Phone       string
	Email       string
}

// DepartmentService creates departments and keeps the store's list current.
type DepartmentService struct {
	repo   repository.DepartmentRepository
	store  *store.Store
	logger *zap.Logger
}

// NewDepartmentService creates the service. A nil repo disables creation.
func NewDepartmentService(repo repository.DepartmentRepository, st *store.Store, logger *zap.Logger) *DepartmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: repo, store: st, logger: logger.With(zap.String("component", "department_service"))}
}

// Create validates and persists a department, then adds it to the store.
func (s *DepartmentService) Create(ctx context.Context, input DepartmentCreateInput) (domain.Department, error) {
	dept := domain.Department{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		Head: domain.DepartmentHead{
			Name:  strings.TrimSpace(input.HeadName),
			Email: strings.TrimSpace(input.HeadEmail),
			Phone: strings.TrimSpace(input.HeadPhone),
		},
		Phone: strings.TrimSpace(input.Phone),
		Email: strings.TrimSpace(input.Email),
	}
	if err := validateDepartment(dept); err != nil {
		return domain.Department{}, err
	}
	if s.repo == nil {
		return domain.Department{}, apperrors.NewDomainError("UNAVAILABLE", "department storage is not configured", http.StatusServiceUnavailable, nil)
	}
	if err := s.repo.Create(ctx, &dept); err != nil {
		return domain.Department{}, apperrors.MapError(err)
	}
	s.store.UpsertDepartment(ctx, dept)
	s.logger.Info("department created", zap.String("department_id", dept.ID), zap.String("name", dept.Name))

	if created, ok := s.store.Snapshot().Department(dept.ID); ok {
		return created, nil
	}
	return dept, nil
}

func validateDepartment(d domain.Department) error {
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Head.Name == "" {
		missing = append(missing, "head_name")
	}
	if d.Phone == "" {
		missing = append(missing, "phone")
	}
	if d.Email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}
	for field, email := range map[string]string{"email": d.Email, "head_email": d.Head.Email} {
		if email != "" && !strings.Contains(email, "@") {
			return apperrors.NewValidationError("invalid email", map[string]any{"field": field})
		}
	}
	return nil
}
