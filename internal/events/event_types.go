package events

import (
	"time"

	"github.com/civic-desk/issue-sync/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventStoreUpdated        EventType = "store_updated"
	EventIssuesArrived       EventType = "issues_arrived"
	EventFlagsCleared        EventType = "flags_cleared"
	EventDepartmentsReplaced EventType = "departments_replaced"
	EventMutationConfirmed   EventType = "mutation_confirmed"
	EventMutationRolledBack  EventType = "mutation_rolled_back"
)

// Event represents a store or mutation change.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	IssueID   string      `json:"issue_id,omitempty"`
	Version   uint64      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// IssuesArrivedPayload lists ids that appeared for the first time in a cycle.
type IssuesArrivedPayload struct {
	Cohort uint64   `json:"cohort"`
	IDs    []string `json:"ids"`
}

// FlagsClearedPayload identifies the cohort whose highlight expired.
type FlagsClearedPayload struct {
	Cohort uint64 `json:"cohort"`
	Count  int    `json:"count"`
}

// MutationPayload describes an optimistic write outcome.
type MutationPayload struct {
	Kind        string             `json:"kind"`
	Status      domain.IssueStatus `json:"status"`
	Departments []string           `json:"departments,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}
