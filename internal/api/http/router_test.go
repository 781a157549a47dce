package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/api/http/handlers"
	"github.com/civic-desk/issue-sync/internal/auth"
	"github.com/civic-desk/issue-sync/internal/config"
	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/observability"
	"github.com/civic-desk/issue-sync/internal/persistence"
	"github.com/civic-desk/issue-sync/internal/service"
	"github.com/civic-desk/issue-sync/internal/store"
)

var created = time.Date(2025, time.April, 1, 8, 0, 0, 0, time.UTC)

type backendStub struct {
	err error
}

func (b *backendStub) UpdateStatus(ctx context.Context, issueID string, status domain.IssueStatus) error {
	return b.err
}

func (b *backendStub) AssignDepartments(ctx context.Context, issueID string, departmentIDs []string, comment string) error {
	return b.err
}

type testServer struct {
	app     *fiber.App
	store   *store.Store
	tokens  *auth.TokenManager
	backend *backendStub
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	st := store.New(store.Options{})
	batch := []domain.EnrichedIssue{
		{Issue: domain.Issue{
			ID: "A", Title: "Open manhole", Priority: domain.IssuePriorityHigh, Status: domain.IssueStatusPending,
			CreatedAt: created.Add(time.Hour),
			Location:  domain.Location{Lat: 22.7, Lng: 75.8, HasCoords: true, Address: domain.ResolvedAddress("Vijay Nagar, Indore")},
			Submitter: domain.Submitter{UserID: "u1", Name: "Ravi", Phone: "99", Resolved: true},
		}},
		{Issue: domain.Issue{
			ID: "B", Title: "Streetlight", Priority: domain.IssuePriorityLow, Status: domain.IssueStatusInProgress,
			AssignedDepartments: []string{"power"}, CreatedAt: created,
			Location:  domain.Location{Address: domain.FallbackAddress()},
			Submitter: domain.FallbackSubmitter("u2"),
		}},
	}
	if _, err := st.Merge(context.Background(), batch, created); err != nil {
		t.Fatalf("seed: %v", err)
	}

	backend := &backendStub{}
	query := service.NewQueryService(st, config.MapConfig{MinLat: 22.6, MaxLat: 22.83, MinLng: 75.75, MaxLng: 75.95})
	mutations := service.NewMutationService(service.MutationDependencies{Store: st, Backend: backend, Logger: logger, Metrics: metrics})
	departments := service.NewDepartmentService(nil, st, logger)
	tokens := auth.NewTokenManager(secret, time.Hour)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("issue-sync", "test", st, metrics, map[string]handlers.Pinger{
			"postgres": &persistence.Postgres{},
		}),
		Issues:         handlers.NewIssuesHandler(query, mutations),
		Departments:    handlers.NewDepartmentsHandler(query, departments),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, store: st, tokens: tokens, backend: backend, metrics: metrics}
}

func (s *testServer) do(t *testing.T, method, path, body, token string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, raw)
		}
	}
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestListIssuesWithFilters(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, "")

	status, body := srv.do(t, nethttp.MethodGet, "/api/issues", "", "")
	if status != nethttp.StatusOK {
		t.Fatalf("status %d", status)
	}
	items := body["data"].([]any)
	if len(items) != 2 || items[0].(map[string]any)["id"] != "A" {
		t.Fatalf("unexpected list %v", items)
	}
	first := items[0].(map[string]any)
	if first["priority_color"] != "#ef4444" || first["is_new"] != true {
		t.Fatalf("unexpected presentation fields %v", first)
	}

	_, body = srv.do(t, nethttp.MethodGet, "/api/issues?status=in-progress&priority=low", "", "")
	if items := body["data"].([]any); len(items) != 1 || items[0].(map[string]any)["id"] != "B" {
		t.Fatalf("unexpected filtered list %v", items)
	}

	status, body = srv.do(t, nethttp.MethodGet, "/api/issues?status=archived", "", "")
	if status != nethttp.StatusBadRequest || errorCode(body) != "VALIDATION_FAILED" {
		t.Fatalf("expected validation error, got %d %v", status, body)
	}
}

func TestMapAndProgressEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, "")

	_, body := srv.do(t, nethttp.MethodGet, "/api/issues/map", "", "")
	if items := body["data"].([]any); len(items) != 1 {
		t.Fatalf("expected one mappable issue, got %v", items)
	}

	status, body := srv.do(t, nethttp.MethodGet, "/api/issues/B/progress", "", "")
	if status != nethttp.StatusOK || len(body["data"].([]any)) != 4 {
		t.Fatalf("unexpected progress %d %v", status, body)
	}

	status, body = srv.do(t, nethttp.MethodGet, "/api/issues/missing", "", "")
	if status != nethttp.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("expected not found, got %d %v", status, body)
	}
}

func TestAssignAndStatusEndpoints(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, "")

	status, body := srv.do(t, nethttp.MethodPost, "/api/issues/A/assign", `{"departments":["water"],"comment":"asap"}`, "")
	if status != nethttp.StatusOK {
		t.Fatalf("assign status %d %v", status, body)
	}
	if body["data"].(map[string]any)["status"] != "in-progress" {
		t.Fatalf("unexpected issue after assign %v", body)
	}

	status, body = srv.do(t, nethttp.MethodPatch, "/api/issues/A", `{"status":"pending"}`, "")
	if status != nethttp.StatusBadRequest || errorCode(body) != "VALIDATION_FAILED" {
		t.Fatalf("expected rejected transition, got %d %v", status, body)
	}

	srv.backend.err = errors.New("backend down")
	status, body = srv.do(t, nethttp.MethodPatch, "/api/issues/A", `{"status":"completed"}`, "")
	if status != nethttp.StatusBadGateway || errorCode(body) != "STATUS_UPDATE_FAILED" {
		t.Fatalf("expected status update failure, got %d %v", status, body)
	}
	issue, _ := srv.store.Issue("A")
	if issue.Status != domain.IssueStatusInProgress {
		t.Fatalf("expected rollback, got %s", issue.Status)
	}
}

func TestAuthRolesOnRoutes(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, "s3cret")

	if status, _ := srv.do(t, nethttp.MethodGet, "/api/issues", "", ""); status != nethttp.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	power, _, err := srv.tokens.GenerateToken("ops", domain.OperatorRoleDepartment, "power")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if status, _ := srv.do(t, nethttp.MethodPost, "/api/issues/A/assign", `{"departments":["water"]}`, power); status != nethttp.StatusForbidden {
		t.Fatalf("department operator must not assign, got %d", status)
	}
	if status, _ := srv.do(t, nethttp.MethodPatch, "/api/issues/A", `{"status":"assigned"}`, power); status != nethttp.StatusForbidden {
		t.Fatalf("department operator must not touch other issues, got %d", status)
	}
	if status, body := srv.do(t, nethttp.MethodPatch, "/api/issues/B", `{"status":"completed"}`, power); status != nethttp.StatusOK {
		t.Fatalf("department operator should complete own issue, got %d %v", status, body)
	}
}

func TestDepartmentsAndHealth(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, "")

	status, body := srv.do(t, nethttp.MethodPost, "/api/departments", `{"name":"Water","head_name":"A","phone":"1","email":"w@city.gov"}`, "")
	if status != nethttp.StatusServiceUnavailable {
		t.Fatalf("expected unavailable without storage, got %d %v", status, body)
	}
	if status, _ := srv.do(t, nethttp.MethodGet, "/api/departments", "", ""); status != nethttp.StatusOK {
		t.Fatalf("list departments: %d", status)
	}

	status, body = srv.do(t, nethttp.MethodGet, "/health/ready", "", "")
	if status != nethttp.StatusOK || body["dependencies"].(map[string]any)["postgres"] != "disabled" {
		t.Fatalf("unexpected readiness %d %v", status, body)
	}
	_, body = srv.do(t, nethttp.MethodGet, "/health/metrics", "", "")
	if body["store"].(map[string]any)["issues"].(float64) != 2 {
		t.Fatalf("unexpected metrics body %v", body)
	}

	status, body = srv.do(t, nethttp.MethodGet, "/nope", "", "")
	if status != nethttp.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("expected mapped 404, got %d %v", status, body)
	}
}

func TestComplainantsEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, "")

	_, body := srv.do(t, nethttp.MethodGet, "/api/complainants", "", "")
	items := body["data"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected two complainants, got %v", items)
	}
}
