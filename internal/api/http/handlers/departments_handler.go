package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sync/internal/api/dto"
	"github.com/civic-desk/issue-sync/internal/service"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// DepartmentsHandler lists and creates departments.
type DepartmentsHandler struct {
	query       *service.QueryService
	departments *service.DepartmentService
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(query *service.QueryService, departments *service.DepartmentService) *DepartmentsHandler {
	return &DepartmentsHandler{query: query, departments: departments}
}

// ListDepartments GET /api/departments.
func (h *DepartmentsHandler) ListDepartments(c *fiber.Ctx) error {
	depts := h.query.Departments()
	items := make([]dto.DepartmentResponse, 0, len(depts))
	for _, d := range depts {
		items = append(items, dto.NewDepartmentResponse(d))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateDepartment POST /api/departments.
func (h *DepartmentsHandler) CreateDepartment(c *fiber.Ctx) error {
	var req dto.CreateDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dept, err := h.departments.Create(c.UserContext(), req.Input())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewDepartmentResponse(dept)})
}
