package domain

import (
	"fmt"
	"strings"
)

// IssueStatus enumerates lifecycle states; values match the backend wire format.
type IssueStatus string

const (
	IssueStatusPending    IssueStatus = "pending"
	IssueStatusAssigned   IssueStatus = "assigned"
	IssueStatusInProgress IssueStatus = "in-progress"
	IssueStatusCompleted  IssueStatus = "completed"
)

var allowedTransitions = map[IssueStatus][]IssueStatus{
	IssueStatusPending:    {IssueStatusAssigned},
	IssueStatusAssigned:   {IssueStatusInProgress},
	IssueStatusInProgress: {IssueStatusCompleted},
	IssueStatusCompleted:  {IssueStatusPending},
}

// IsValidTransition reports whether next is directly reachable from current.
func IsValidTransition(current, next IssueStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s IssueStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// ParseStatus accepts the spellings seen upstream ("In Progress", "in_progress", "IN-PROGRESS").
func ParseStatus(raw string) (IssueStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer(" ", "-", "_", "-").Replace(norm)
	if norm == "inprogress" {
		norm = string(IssueStatusInProgress)
	}
	status := IssueStatus(norm)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}

// ParsePriority maps any casing to a priority; unknown values yield "".
func ParsePriority(raw string) IssuePriority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return IssuePriorityHigh
	case "medium":
		return IssuePriorityMedium
	case "low":
		return IssuePriorityLow
	default:
		return ""
	}
}

// Color is the marker color used by map consumers.
func (p IssuePriority) Color() string {
	switch p {
	case IssuePriorityHigh:
		return "#ef4444"
	case IssuePriorityMedium:
		return "#f59e0b"
	case IssuePriorityLow:
		return "#10b981"
	default:
		return "#6b7280"
	}
}

// Weight ranks priorities for consumers that want them ordered; higher is more urgent.
func (p IssuePriority) Weight() int {
	switch p {
	case IssuePriorityHigh:
		return 3
	case IssuePriorityMedium:
		return 2
	case IssuePriorityLow:
		return 1
	default:
		return 0
	}
}
