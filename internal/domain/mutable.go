package domain

import "time"

// MutableFields are the issue fields a local mutation may change. While a
// mutation is unreconciled they take priority over polled values.
type MutableFields struct {
	Status              IssueStatus
	AssignedDepartments []string
	AssignedAt          *time.Time
	InProgressAt        *time.Time
	CompletedAt         *time.Time
}

// Mutable extracts a copy of the mutation-owned fields.
func (i Issue) Mutable() MutableFields {
	return MutableFields{
		Status:              i.Status,
		AssignedDepartments: append([]string(nil), i.AssignedDepartments...),
		AssignedAt:          cloneTime(i.AssignedAt),
		InProgressAt:        cloneTime(i.InProgressAt),
		CompletedAt:         cloneTime(i.CompletedAt),
	}
}

// WithMutable returns a copy of the issue carrying f.
func (i Issue) WithMutable(f MutableFields) Issue {
	out := i.Clone()
	out.Status = f.Status
	out.AssignedDepartments = append([]string(nil), f.AssignedDepartments...)
	out.AssignedAt = cloneTime(f.AssignedAt)
	out.InProgressAt = cloneTime(f.InProgressAt)
	out.CompletedAt = cloneTime(f.CompletedAt)
	return out
}

// Matches reports whether two field sets agree on status and department set.
// Timestamps are ignored since the backend stores them at its own precision.
func (f MutableFields) Matches(other MutableFields) bool {
	return f.Status == other.Status && SameDepartments(f.AssignedDepartments, other.AssignedDepartments)
}
