package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/issue-sync/internal/api/dto"
	"github.com/civic-desk/issue-sync/internal/auth"
	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/service"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// IssuesHandler serves the issue snapshot and the mutation entry points.
type IssuesHandler struct {
	query     *service.QueryService
	mutations *service.MutationService
}

// NewIssuesHandler constructs handler.
func NewIssuesHandler(query *service.QueryService, mutations *service.MutationService) *IssuesHandler {
	return &IssuesHandler{query: query, mutations: mutations}
}

// ListIssues GET /api/issues.
func (h *IssuesHandler) ListIssues(c *fiber.Ctx) error {
	filter, err := parseIssueFilter(c)
	if err != nil {
		return err
	}
	version := h.query.Snapshot().Version
	items := h.query.ListIssues(filter)
	return c.JSON(fiber.Map{"data": dto.NewIssueList(items), "version": version})
}

// MapIssues GET /api/issues/map.
func (h *IssuesHandler) MapIssues(c *fiber.Ctx) error {
	filter, err := parseIssueFilter(c)
	if err != nil {
		return err
	}
	items := h.query.MapIssues(filter)
	return c.JSON(fiber.Map{"data": dto.NewIssueList(items)})
}

// GetIssue GET /api/issues/:id.
func (h *IssuesHandler) GetIssue(c *fiber.Ctx) error {
	issue, err := h.query.GetIssue(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}

// Progress GET /api/issues/:id/progress.
func (h *IssuesHandler) Progress(c *fiber.Ctx) error {
	steps, err := h.query.Progress(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewProgressResponse(steps)})
}

// AssignDepartments POST /api/issues/:id/assign.
func (h *IssuesHandler) AssignDepartments(c *fiber.Ctx) error {
	var req dto.AssignDepartmentsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.mutations.AssignDepartments(c.UserContext(), c.Params("id"), req.Departments, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}

// UpdateStatus PATCH /api/issues/:id.
func (h *IssuesHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": req.Status})
	}

	id := c.Params("id")
	current, err := h.query.GetIssue(id)
	if err != nil {
		return err
	}
	principal, _ := auth.PrincipalFromContext(c)
	if !principal.CanAct(current) {
		return apperrors.NewForbidden("issue is not assigned to your department")
	}

	issue, err := h.mutations.UpdateStatus(c.UserContext(), id, status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIssueResponse(issue)})
}

// ListComplainants GET /api/complainants.
func (h *IssuesHandler) ListComplainants(c *fiber.Ctx) error {
	complainants := h.query.Complainants()
	items := make([]dto.ComplainantResponse, 0, len(complainants))
	for _, complainant := range complainants {
		items = append(items, dto.NewComplainantResponse(complainant))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseIssueFilter(c *fiber.Ctx) (service.IssueFilter, error) {
	filter := service.IssueFilter{Query: c.Query("q")}
	for _, part := range splitList(c.Query("status")) {
		status, err := domain.ParseStatus(part)
		if err != nil {
			return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": part})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, part := range splitList(c.Query("priority")) {
		priority := domain.ParsePriority(part)
		if priority == "" {
			return filter, apperrors.NewValidationError("unknown priority", map[string]any{"priority": part})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	return filter, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
