package domain

// DepartmentHead is the contact responsible for a department.
type DepartmentHead struct {
	Name  string
	Email string
	Phone string
}

// Department is a municipal unit issues can be assigned to.
// TotalIssues and CompletedIssues are derived from the current snapshot.
type Department struct {
	ID              string
	Name            string
	Description     string
	Head            DepartmentHead
	Phone           string
	Email           string
	TotalIssues     int
	CompletedIssues int
}

// CompletionRate returns completed/total as a percentage.
func (d Department) CompletionRate() float64 {
	if d.TotalIssues == 0 {
		return 0
	}
	return float64(d.CompletedIssues) * 100 / float64(d.TotalIssues)
}
