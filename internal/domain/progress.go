package domain

import "time"

// ProgressStepID names a step in an issue's resolution timeline.
type ProgressStepID string

const (
	StepCreated    ProgressStepID = "created"
	StepAssigned   ProgressStepID = "assigned"
	StepInProgress ProgressStepID = "in-progress"
	StepCompleted  ProgressStepID = "completed"
)

// ProgressStep is one entry of the timeline.
type ProgressStep struct {
	ID        ProgressStepID
	Completed bool
	At        *time.Time
}

// Progress derives the resolution timeline from status and timestamps.
func (i Issue) Progress() []ProgressStep {
	reached := func(statuses ...IssueStatus) bool {
		for _, s := range statuses {
			if i.Status == s {
				return true
			}
		}
		return false
	}
	created := i.CreatedAt
	return []ProgressStep{
		{ID: StepCreated, Completed: true, At: &created},
		{ID: StepAssigned, Completed: reached(IssueStatusAssigned, IssueStatusInProgress, IssueStatusCompleted), At: cloneTime(i.AssignedAt)},
		{ID: StepInProgress, Completed: reached(IssueStatusInProgress, IssueStatusCompleted), At: cloneTime(i.InProgressAt)},
		{ID: StepCompleted, Completed: reached(IssueStatusCompleted), At: cloneTime(i.CompletedAt)},
	}
}
