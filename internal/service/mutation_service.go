package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/observability"
	"github.com/civic-desk/issue-sync/internal/store"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// Mutation kinds recorded on store events.
const (
	KindAssign = "assign"
	KindStatus = "status"
)

// IssueWriter sends authoritative changes to the backend.
type IssueWriter interface {
	UpdateStatus(ctx context.Context, issueID string, status domain.IssueStatus) error
	AssignDepartments(ctx context.Context, issueID string, departmentIDs []string, comment string) error
}

// MutationService applies optimistic status and assignment changes and
// reconciles them with the backend response.
type MutationService struct {
	store   *store.Store
	backend IssueWriter
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// MutationDependencies bundles collaborators.
type MutationDependencies struct {
	Store   *store.Store
	Backend IssueWriter
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Now     func() time.Time
}

// NewMutationService creates the service.
func NewMutationService(deps MutationDependencies) *MutationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &MutationService{
		store:   deps.Store,
		backend: deps.Backend,
		logger:  logger.With(zap.String("component", "mutation_service")),
		metrics: deps.Metrics,
		now:     now,
	}
}

// AssignDepartments replaces the issue's departments and moves it to
// in-progress. A pending issue passes through assigned on the way.
func (s *MutationService) AssignDepartments(ctx context.Context, issueID string, departmentIDs []string, comment string) (domain.Issue, error) {
	depts := normalizeIDs(departmentIDs)
	if len(depts) == 0 {
		return domain.Issue{}, apperrors.NewValidationError("at least one department is required", map[string]any{"issue_id": issueID})
	}
	if err := s.checkDepartments(depts); err != nil {
		return domain.Issue{}, err
	}

	now := s.now().UTC()
	m, err := s.store.BeginMutation(ctx, KindAssign, issueID, func(cur domain.Issue) (domain.MutableFields, error) {
		if cur.Status == domain.IssueStatusCompleted {
			return domain.MutableFields{}, apperrors.NewValidationError("completed issues must be reopened before reassignment",
				map[string]any{"issue_id": issueID})
		}
		f := cur.Mutable()
		f.AssignedDepartments = depts
		f.Status = domain.IssueStatusInProgress
		if f.AssignedAt == nil {
			f.AssignedAt = domain.TimePtr(now)
		}
		if f.InProgressAt == nil {
			f.InProgressAt = domain.TimePtr(notBefore(now, f.AssignedAt))
		}
		return f, nil
	})
	if err != nil {
		return domain.Issue{}, err
	}

	if err := s.backend.AssignDepartments(ctx, issueID, depts, strings.TrimSpace(comment)); err != nil {
		s.store.Rollback(ctx, m, err)
		s.metrics.Inc(observability.CounterMutationsRollback)
		s.logger.Warn("assignment rejected, rolled back", zap.String("issue_id", issueID), zap.Error(err))
		return domain.Issue{}, apperrors.NewAssignmentFailed(issueID, err)
	}
	s.store.Confirm(ctx, m)
	s.metrics.Inc(observability.CounterMutationsOK)
	s.logger.Info("departments assigned", zap.String("issue_id", issueID), zap.Strings("departments", depts))
	return s.current(issueID)
}

// UpdateStatus moves the issue along the status graph.
func (s *MutationService) UpdateStatus(ctx context.Context, issueID string, next domain.IssueStatus) (domain.Issue, error) {
	if !next.Valid() {
		return domain.Issue{}, apperrors.NewValidationError("unknown status", map[string]any{"status": string(next)})
	}

	now := s.now().UTC()
	m, err := s.store.BeginMutation(ctx, KindStatus, issueID, func(cur domain.Issue) (domain.MutableFields, error) {
		if err := validateTransition(cur, next); err != nil {
			return domain.MutableFields{}, err
		}
		return applyStatus(cur.Mutable(), next, now), nil
	})
	if err != nil {
		return domain.Issue{}, err
	}

	if err := s.backend.UpdateStatus(ctx, issueID, next); err != nil {
		s.store.Rollback(ctx, m, err)
		s.metrics.Inc(observability.CounterMutationsRollback)
		s.logger.Warn("status update rejected, rolled back",
			zap.String("issue_id", issueID), zap.String("status", string(next)), zap.Error(err))
		return domain.Issue{}, apperrors.NewStatusUpdateFailed(issueID, err)
	}
	s.store.Confirm(ctx, m)
	s.metrics.Inc(observability.CounterMutationsOK)
	s.logger.Info("status updated",
		zap.String("issue_id", issueID),
		zap.String("from", string(m.Before.Status)),
		zap.String("to", string(next)))
	return s.current(issueID)
}

func validateTransition(cur domain.Issue, next domain.IssueStatus) error {
	details := map[string]any{"issue_id": cur.ID, "from": string(cur.Status), "to": string(next)}
	if cur.Status == next {
		return apperrors.NewValidationError("issue already has this status", details)
	}
	if !domain.IsValidTransition(cur.Status, next) {
		return apperrors.NewValidationError("status transition not allowed", details)
	}
	if next == domain.IssueStatusAssigned && len(cur.AssignedDepartments) == 0 {
		return apperrors.NewValidationError("assign a department first", details)
	}
	return nil
}

// applyStatus sets the step timestamp for next. Timestamps already present are
// kept and new ones never precede the previous step.
func applyStatus(f domain.MutableFields, next domain.IssueStatus, now time.Time) domain.MutableFields {
	f.Status = next
	switch next {
	case domain.IssueStatusAssigned:
		if f.AssignedAt == nil {
			f.AssignedAt = domain.TimePtr(now)
		}
	case domain.IssueStatusInProgress:
		if f.InProgressAt == nil {
			f.InProgressAt = domain.TimePtr(notBefore(now, f.AssignedAt))
		}
	case domain.IssueStatusCompleted:
		if f.CompletedAt == nil {
			f.CompletedAt = domain.TimePtr(notBefore(now, f.InProgressAt))
		}
	case domain.IssueStatusPending:
		f.CompletedAt = nil
	}
	return f
}

func notBefore(t time.Time, floor *time.Time) time.Time {
	if floor != nil && t.Before(*floor) {
		return *floor
	}
	return t
}

// checkDepartments rejects ids missing from a known department list. With no
// list loaded every id is accepted.
func (s *MutationService) checkDepartments(ids []string) error {
	snap := s.store.Snapshot()
	if len(snap.Departments) == 0 {
		return nil
	}
	var unknown []string
	for _, id := range ids {
		if _, ok := snap.Department(id); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return apperrors.NewValidationError("unknown department", map[string]any{"departments": unknown})
	}
	return nil
}

func (s *MutationService) current(issueID string) (domain.Issue, error) {
	issue, ok := s.store.Issue(issueID)
	if !ok {
		return domain.Issue{}, apperrors.NewNotFound("issue", map[string]any{"issue_id": issueID})
	}
	return issue, nil
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
