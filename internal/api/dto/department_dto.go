package dto

import (
	"github.com/civic-desk/issue-sync/internal/domain"
	"github.com/civic-desk/issue-sync/internal/service"
)

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	HeadName    string `json:"head_name"`
	HeadEmail   string `json:"head_email"`
	HeadPhone   string `json:"head_phone"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// DepartmentHeadResponse is the department contact.
type DepartmentHeadResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// DepartmentResponse includes derived counters.
type DepartmentResponse struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	Head            DepartmentHeadResponse `json:"head"`
	Phone           string                 `json:"phone"`
	Email           string                 `json:"email"`
	TotalIssues     int                    `json:"total_issues"`
	CompletedIssues int                    `json:"completed_issues"`
	CompletionRate  float64                `json:"completion_rate"`
}

// ComplainantResponse aggregates one submitter's issues.
type ComplainantResponse struct {
	UserID     string          `json:"user_id"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone"`
	Total      int             `json:"total"`
	ByStatus   map[string]int  `json:"by_status"`
	ByPriority map[string]int  `json:"by_priority"`
	Recent     []IssueResponse `json:"recent"`
}

// Input converts the request to a service input.
func (r CreateDepartmentRequest) Input() service.DepartmentCreateInput {
	return service.DepartmentCreateInput{
		Name:        r.Name,
		Description: r.Description,
		HeadName:    r.HeadName,
		HeadEmail:   r.HeadEmail,
		HeadPhone:   r.HeadPhone,
		Phone:       r.Phone,
		Email:       r.Email,
	}
}

// NewDepartmentResponse maps a department.
func NewDepartmentResponse(d domain.Department) DepartmentResponse {
	return DepartmentResponse{
		ID:              d.ID,
		Name:            d.Name,
		Description:     d.Description,
		Head:            DepartmentHeadResponse{Name: d.Head.Name, Email: d.Head.Email, Phone: d.Head.Phone},
		Phone:           d.Phone,
		Email:           d.Email,
		TotalIssues:     d.TotalIssues,
		CompletedIssues: d.CompletedIssues,
		CompletionRate:  d.CompletionRate(),
	}
}

// NewComplainantResponse maps a complainant aggregate.
func NewComplainantResponse(c service.Complainant) ComplainantResponse {
	byStatus := make(map[string]int, len(c.ByStatus))
	for k, v := range c.ByStatus {
		byStatus[string(k)] = v
	}
	byPriority := make(map[string]int, len(c.ByPriority))
	for k, v := range c.ByPriority {
		byPriority[string(k)] = v
	}
	return ComplainantResponse{
		UserID:     c.UserID,
		Name:       c.Name,
		Phone:      c.Phone,
		Total:      c.Total,
		ByStatus:   byStatus,
		ByPriority: byPriority,
		Recent:     NewIssueList(c.Recent),
	}
}
