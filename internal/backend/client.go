package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/domain"
)

const issuesPath = "/api/getIssueTmp"

// Client talks to the issue backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time
}

// NewClient creates a reusable HTTP client.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "backend_client")),
		now:     time.Now,
	}
}

// FetchIssues returns the normalized issue list. Records that cannot be
// decoded or lack an id are logged and skipped; an unrecognized status is
// logged and the record kept.
func (c *Client) FetchIssues(ctx context.Context) ([]domain.Issue, error) {
	var envelope issuesEnvelope
	if err := c.do(ctx, http.MethodGet, issuesPath, nil, &envelope); err != nil {
		return nil, err
	}

	fetchedAt := c.now()
	issues := make([]domain.Issue, 0, len(envelope.Issues))
	for i, msg := range envelope.Issues {
		var raw RawIssue
		if err := json.Unmarshal(msg, &raw); err != nil {
			c.logger.Warn("skipping undecodable issue", zap.Int("index", i), zap.Error(err))
			continue
		}
		issue, err := Normalize(raw, fetchedAt)
		if err != nil {
			c.logger.Warn("skipping invalid issue", zap.Int("index", i), zap.Error(err))
			continue
		}
		if issue.Gaps.Has(domain.GapStatus) {
			c.logger.Warn("unrecognized issue status; keeping previous or pending",
				zap.String("issue_id", issue.ID), zap.String("status", raw.Status))
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// UpdateStatus patches an issue's status.
func (c *Client) UpdateStatus(ctx context.Context, issueID string, status domain.IssueStatus) error {
	body := map[string]any{"status": string(status)}
	return c.do(ctx, http.MethodPatch, "/api/issues/"+url.PathEscape(issueID), body, nil)
}

// AssignDepartments posts a department assignment for an issue.
func (c *Client) AssignDepartments(ctx context.Context, issueID string, departmentIDs []string, comment string) error {
	body := map[string]any{"departments": departmentIDs}
	if comment != "" {
		body["comment"] = comment
	}
	return c.do(ctx, http.MethodPost, "/api/issues/"+url.PathEscape(issueID)+"/assign", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, v any) error {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError reports a non-2xx backend response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}
