package domain

import (
	"sort"
	"time"
)

// IssuePriority enumerates citizen-reported urgency.
type IssuePriority string

const (
	IssuePriorityHigh   IssuePriority = "High"
	IssuePriorityMedium IssuePriority = "Medium"
	IssuePriorityLow    IssuePriority = "Low"
)

// AddressState distinguishes a lookup still to run from a resolved or failed one.
type AddressState string

const (
	AddressPending  AddressState = "PENDING"
	AddressResolved AddressState = "RESOLVED"
	AddressUnknown  AddressState = "UNKNOWN"
)

// Fallback values used when an enrichment lookup times out or fails.
const (
	UnknownAddress = "unknown address"
	UnknownUser    = "unknown user"
	UnknownPhone   = "unknown phone"
	DefaultCaption = "Issue image"
)

// Address is the display address derived from a coordinate.
type Address struct {
	Value string
	State AddressState
}

// PendingAddress is the zero-information address of a record not yet enriched.
func PendingAddress() Address {
	return Address{State: AddressPending}
}

// FallbackAddress is used when geocoding times out, fails or yields nothing usable.
func FallbackAddress() Address {
	return Address{Value: UnknownAddress, State: AddressUnknown}
}

// ResolvedAddress wraps a successfully derived display string.
func ResolvedAddress(value string) Address {
	return Address{Value: value, State: AddressResolved}
}

// Location pairs a coordinate with its derived address.
type Location struct {
	Lat       float64
	Lng       float64
	HasCoords bool
	Address   Address
}

// Image is a media item attached to an issue.
type Image struct {
	URL     string
	Caption string
}

// Submitter references the citizen profile behind an issue.
type Submitter struct {
	UserID   string
	Name     string
	Phone    string
	Resolved bool
}

// FallbackSubmitter is used when the profile lookup fails or finds nothing.
func FallbackSubmitter(userID string) Submitter {
	return Submitter{UserID: userID, Name: UnknownUser, Phone: UnknownPhone}
}

// Gap marks an issue field the backend omitted or sent unreadable, and that
// was filled with a placeholder during normalization.
type Gap uint8

const (
	GapCreatedAt Gap = 1 << iota
	GapStatus
)

// Has reports whether g includes other.
func (g Gap) Has(other Gap) bool {
	return g&other != 0
}

// Issue is the canonical citizen complaint record held by the store.
type Issue struct {
	ID                  string
	ComplaintNumber     string
	ComplaintID         string
	UserID              string
	Title               string
	Description         string
	Category            string
	Priority            IssuePriority
	Status              IssueStatus
	Location            Location
	Images              []Image
	AssignedDepartments []string
	CreatedAt           time.Time
	AssignedAt          *time.Time
	InProgressAt        *time.Time
	CompletedAt         *time.Time
	IsNew               bool
	Submitter           Submitter
	Gaps                Gap
}

// Clone returns a deep copy so snapshots never share mutable slices or pointers.
func (i Issue) Clone() Issue {
	out := i
	if i.Images != nil {
		out.Images = append([]Image(nil), i.Images...)
	}
	if i.AssignedDepartments != nil {
		out.AssignedDepartments = append([]string(nil), i.AssignedDepartments...)
	}
	out.AssignedAt = cloneTime(i.AssignedAt)
	out.InProgressAt = cloneTime(i.InProgressAt)
	out.CompletedAt = cloneTime(i.CompletedAt)
	return out
}

// HasDepartment reports whether the department id is assigned.
func (i Issue) HasDepartment(id string) bool {
	for _, dept := range i.AssignedDepartments {
		if dept == id {
			return true
		}
	}
	return false
}

// SortIssues orders by creation time descending, ties by id ascending.
func SortIssues(issues []Issue) {
	sort.SliceStable(issues, func(a, b int) bool {
		if !issues[a].CreatedAt.Equal(issues[b].CreatedAt) {
			return issues[a].CreatedAt.After(issues[b].CreatedAt)
		}
		return issues[a].ID < issues[b].ID
	})
}

// SameDepartments compares department sets ignoring order.
func SameDepartments(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
