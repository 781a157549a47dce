package dto

import (
	"time"

	"github.com/civic-desk/issue-sync/internal/domain"
)

// LocationResponse carries coordinates and the derived address.
type LocationResponse struct {
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	Address      string   `json:"address"`
	AddressState string   `json:"address_state"`
}

// ImageResponse is one media item.
type ImageResponse struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// SubmitterResponse is the resolved citizen profile.
type SubmitterResponse struct {
	UserID   string `json:"user_id,omitempty"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Resolved bool   `json:"resolved"`
}

// IssueResponse is the list and detail representation of an issue.
type IssueResponse struct {
	ID                  string               `json:"id"`
	ComplaintNumber     string               `json:"complaint_number,omitempty"`
	Title               string               `json:"title"`
	Description         string               `json:"description,omitempty"`
	Category            string               `json:"category,omitempty"`
	Priority            domain.IssuePriority `json:"priority"`
	PriorityColor       string               `json:"priority_color"`
	PriorityWeight      int                  `json:"priority_weight"`
	Status              domain.IssueStatus   `json:"status"`
	Location            LocationResponse     `json:"location"`
	Images              []ImageResponse      `json:"images"`
	AssignedDepartments []string             `json:"assigned_departments"`
	CreatedAt           time.Time            `json:"created_at"`
	AssignedAt          *time.Time           `json:"assigned_at"`
	InProgressAt        *time.Time           `json:"in_progress_at"`
	CompletedAt         *time.Time           `json:"completed_at"`
	IsNew               bool                 `json:"is_new"`
	Submitter           SubmitterResponse    `json:"submitter"`
}

// ProgressStepResponse is one step of the resolution timeline.
type ProgressStepResponse struct {
	ID        domain.ProgressStepID `json:"id"`
	Completed bool                  `json:"completed"`
	At        *time.Time            `json:"at"`
}

// AssignDepartmentsRequest payload.
type AssignDepartmentsRequest struct {
	Departments []string `json:"departments"`
	Comment     string   `json:"comment"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// NewIssueResponse maps a domain issue.
func NewIssueResponse(issue domain.Issue) IssueResponse {
	loc := LocationResponse{
		Address:      issue.Location.Address.Value,
		AddressState: string(issue.Location.Address.State),
	}
	if issue.Location.HasCoords {
		lat, lng := issue.Location.Lat, issue.Location.Lng
		loc.Lat, loc.Lng = &lat, &lng
	}
	images := make([]ImageResponse, 0, len(issue.Images))
	for _, img := range issue.Images {
		images = append(images, ImageResponse{URL: img.URL, Caption: img.Caption})
	}
	depts := issue.AssignedDepartments
	if depts == nil {
		depts = []string{}
	}
	return IssueResponse{
		ID:                  issue.ID,
		ComplaintNumber:     issue.ComplaintNumber,
		Title:               issue.Title,
		Description:         issue.Description,
		Category:            issue.Category,
		Priority:            issue.Priority,
		PriorityColor:       issue.Priority.Color(),
		PriorityWeight:      issue.Priority.Weight(),
		Status:              issue.Status,
		Location:            loc,
		Images:              images,
		AssignedDepartments: depts,
		CreatedAt:           issue.CreatedAt,
		AssignedAt:          issue.AssignedAt,
		InProgressAt:        issue.InProgressAt,
		CompletedAt:         issue.CompletedAt,
		IsNew:               issue.IsNew,
		Submitter: SubmitterResponse{
			UserID:   issue.Submitter.UserID,
			Name:     issue.Submitter.Name,
			Phone:    issue.Submitter.Phone,
			Resolved: issue.Submitter.Resolved,
		},
	}
}

// NewIssueList maps a slice of issues.
func NewIssueList(issues []domain.Issue) []IssueResponse {
	out := make([]IssueResponse, 0, len(issues))
	for _, issue := range issues {
		out = append(out, NewIssueResponse(issue))
	}
	return out
}

// NewProgressResponse maps a timeline.
func NewProgressResponse(steps []domain.ProgressStep) []ProgressStepResponse {
	out := make([]ProgressStepResponse, 0, len(steps))
	for _, step := range steps {
		out = append(out, ProgressStepResponse{ID: step.ID, Completed: step.Completed, At: step.At})
	}
	return out
}
