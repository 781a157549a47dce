package service

import (
	"sort"
	"strings"

	"github.com/civic-desk/issue-sync/internal/config"
	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/store"
	apperrors "github.com/civic-desk/issue-sync/pkg/util/errorutil"
)

// recentPerComplainant caps the recent issues listed per complainant.
const recentPerComplainant = 3

// IssueFilter narrows the issue list. Empty fields match everything.
type IssueFilter struct {
	Query      string
	Statuses   []domain.IssueStatus
	Priorities []domain.IssuePriority
}

// Complainant aggregates the issues filed by one submitter.
type Complainant struct {
	UserID     string
	Name       string
	Phone      string
	Total      int
	ByStatus   map[domain.IssueStatus]int
	ByPriority map[domain.IssuePriority]int
	Recent     []domain.Issue
}

// QueryService answers read requests from the current snapshot.
type QueryService struct {
	store  *store.Store
	bounds config.MapConfig
}

// NewQueryService creates the service.
func NewQueryService(st *store.Store, bounds config.MapConfig) *QueryService {
	return &QueryService{store: st, bounds: bounds}
}

// Snapshot exposes the snapshot the next read would use.
func (s *QueryService) Snapshot() *store.Snapshot {
	return s.store.Snapshot()
}

// ListIssues returns the matching issues in store order.
func (s *QueryService) ListIssues(filter IssueFilter) []domain.Issue {
	return selectIssues(s.store.Snapshot(), filter, func(domain.Issue) bool { return true })
}

// MapIssues returns matching issues with coordinates inside the map bounds.
func (s *QueryService) MapIssues(filter IssueFilter) []domain.Issue {
	return selectIssues(s.store.Snapshot(), filter, func(issue domain.Issue) bool {
		loc := issue.Location
		return loc.HasCoords &&
			loc.Lat >= s.bounds.MinLat && loc.Lat <= s.bounds.MaxLat &&
			loc.Lng >= s.bounds.MinLng && loc.Lng <= s.bounds.MaxLng
	})
}

// GetIssue returns one issue.
func (s *QueryService) GetIssue(id string) (domain.Issue, error) {
	issue, ok := s.store.Issue(id)
	if !ok {
		return domain.Issue{}, apperrors.NewNotFound("issue", map[string]any{"issue_id": id})
	}
	return issue, nil
}

// Progress returns the resolution timeline of one issue.
func (s *QueryService) Progress(id string) ([]domain.ProgressStep, error) {
	issue, err := s.GetIssue(id)
	if err != nil {
		return nil, err
	}
	return issue.Progress(), nil
}

// Departments returns the department list with counters.
func (s *QueryService) Departments() []domain.Department {
	return append([]domain.Department(nil), s.store.Snapshot().Departments...)
}

// Complainants groups issues by submitter, busiest first.
func (s *QueryService) Complainants() []Complainant {
	snap := s.store.Snapshot()
	byUser := make(map[string]*Complainant)
	order := make([]string, 0)
	for _, issue := range snap.Issues {
		userID := issue.Submitter.UserID
		if userID == "" {
			userID = issue.UserID
		}
		if userID == "" {
			continue
		}
		c, ok := byUser[userID]
		if !ok {
			c = &Complainant{
				UserID:     userID,
				Name:       issue.Submitter.Name,
				Phone:      issue.Submitter.Phone,
				ByStatus:   make(map[domain.IssueStatus]int),
				ByPriority: make(map[domain.IssuePriority]int),
			}
			byUser[userID] = c
			order = append(order, userID)
		}
		if !c.hasName() && issue.Submitter.Resolved {
			c.Name = issue.Submitter.Name
			c.Phone = issue.Submitter.Phone
		}
		c.Total++
		c.ByStatus[issue.Status]++
		if issue.Priority != "" {
			c.ByPriority[issue.Priority]++
		}
		if len(c.Recent) < recentPerComplainant {
			c.Recent = append(c.Recent, issue.Clone())
		}
	}

	out := make([]Complainant, 0, len(order))
	for _, id := range order {
		out = append(out, *byUser[id])
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Total != out[b].Total {
			return out[a].Total > out[b].Total
		}
		return out[a].UserID < out[b].UserID
	})
	return out
}

func (c *Complainant) hasName() bool {
	return c.Name != "" && c.Name != domain.UnknownUser
}

func selectIssues(snap *store.Snapshot, filter IssueFilter, keep func(domain.Issue) bool) []domain.Issue {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	out := make([]domain.Issue, 0, snap.Len())
	for _, issue := range snap.Issues {
		if !keep(issue) || !filter.matches(issue, query) {
			continue
		}
		out = append(out, issue.Clone())
	}
	return out
}

func (f IssueFilter) matches(issue domain.Issue, query string) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, issue.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, issue.Priority) {
		return false
	}
	if query == "" {
		return true
	}
	for _, field := range []string{issue.Title, issue.ComplaintNumber, issue.Submitter.Name} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func containsStatus(list []domain.IssueStatus, s domain.IssueStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.IssuePriority, p domain.IssuePriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
