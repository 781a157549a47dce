package service

import (
	"context"
	"errors"
	"testing"

	"github.com/civic-desk/issue-sync/internal/domain"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

type fakeDepartments struct {
	created []domain.Department
	err     error
}

func (f *fakeDepartments) Create(ctx context.Context, dept *domain.Department) error {
	if f.err != nil {
		return f.err
	}
	dept.ID = "dept-1"
	f.created = append(f.created, *dept)
	return nil
}

func (f *fakeDepartments) List(ctx context.Context) ([]domain.Department, error) {
	return f.created, nil
}

func validDepartment() DepartmentCreateInput {
	return DepartmentCreateInput{
		Name:     " Water Works ",
		HeadName: "Asha Rao",
		Phone:    "0731-555",
		Email:    "water@city.gov",
	}
}

func TestCreateDepartmentAddsToStore(t *testing.T) {
	t.Parallel()
	repo := &fakeDepartments{}
	st := seedStore(t, pendingIssue("A"))
	svc := NewDepartmentService(repo, st, nil)

	dept, err := svc.Create(context.Background(), validDepartment())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if dept.ID != "dept-1" || dept.Name != "Water Works" {
		t.Fatalf("unexpected department %+v", dept)
	}
	if _, ok := st.Snapshot().Department("dept-1"); !ok {
		t.Fatalf("department missing from store")
	}
}

func TestCreateDepartmentValidation(t *testing.T) {
	t.Parallel()
	repo := &fakeDepartments{}
	svc := NewDepartmentService(repo, seedStore(t), nil)

	missing := validDepartment()
	missing.HeadName = ""
	if _, err := svc.Create(context.Background(), missing); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	badEmail := validDepartment()
	badEmail.Email = "not-an-email"
	if _, err := svc.Create(context.Background(), badEmail); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("invalid departments must not be persisted")
	}
}

func TestCreateDepartmentSurfacesRepositoryErrors(t *testing.T) {
	t.Parallel()
	repo := &fakeDepartments{err: apperrors.NewConflict("department name already exists", nil)}
	st := seedStore(t)
	svc := NewDepartmentService(repo, st, nil)

	if _, err := svc.Create(context.Background(), validDepartment()); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(st.Snapshot().Departments) != 0 {
		t.Fatalf("store must not change on failure")
	}

	unconfigured := NewDepartmentService(nil, st, nil)
	err := func() error { _, err := unconfigured.Create(context.Background(), validDepartment()); return err }()
	if de := apperrors.ToDomainError(err); de == nil || de.HTTPStatus != 503 {
		t.Fatalf("expected service unavailable, got %v", err)
	}
}
