package store

import (
	"time"

	"github.com/civic-desk/issue-sync/internal/domain"
)

// Snapshot is an immutable view of the store. Callers must not modify the
// slices it exposes; use Issue or IssuesCopy for values that can be changed.
type Snapshot struct {
	Issues      []domain.Issue
	Departments []domain.Department
	Version     uint64
	UpdatedAt   time.Time

	index     map[string]int
	deptIndex map[string]int
}

func newSnapshot(issues []domain.Issue, departments []domain.Department, version uint64, at time.Time) *Snapshot {
	snap := &Snapshot{
		Issues:      issues,
		Departments: withCounters(departments, issues),
		Version:     version,
		UpdatedAt:   at,
		index:       make(map[string]int, len(issues)),
		deptIndex:   make(map[string]int, len(departments)),
	}
	for i, issue := range issues {
		snap.index[issue.ID] = i
	}
	for i, dept := range snap.Departments {
		snap.deptIndex[dept.ID] = i
	}
	return snap
}

// Len returns the number of issues.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Issues)
}

// Issue returns a copy of the issue with the given id.
func (s *Snapshot) Issue(id string) (domain.Issue, bool) {
	if s == nil {
		return domain.Issue{}, false
	}
	idx, ok := s.index[id]
	if !ok {
		return domain.Issue{}, false
	}
	return s.Issues[idx].Clone(), true
}

// Department returns the department with the given id.
func (s *Snapshot) Department(id string) (domain.Department, bool) {
	if s == nil {
		return domain.Department{}, false
	}
	idx, ok := s.deptIndex[id]
	if !ok {
		return domain.Department{}, false
	}
	return s.Departments[idx], true
}

// IssuesCopy returns deep copies of all issues in store order.
func (s *Snapshot) IssuesCopy() []domain.Issue {
	if s == nil {
		return nil
	}
	out := make([]domain.Issue, len(s.Issues))
	for i, issue := range s.Issues {
		out[i] = issue.Clone()
	}
	return out
}

// withCounters copies departments and derives their issue counters from issues.
func withCounters(departments []domain.Department, issues []domain.Issue) []domain.Department {
	out := make([]domain.Department, len(departments))
	pos := make(map[string]int, len(departments))
	for i, dept := range departments {
		dept.TotalIssues = 0
		dept.CompletedIssues = 0
		out[i] = dept
		pos[dept.ID] = i
	}
	for _, issue := range issues {
		for _, id := range uniqueIDs(issue.AssignedDepartments) {
			idx, ok := pos[id]
			if !ok {
				continue
			}
			out[idx].TotalIssues++
			if issue.Status == domain.IssueStatusCompleted {
				out[idx].CompletedIssues++
			}
		}
	}
	return out
}

func uniqueIDs(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
