package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/civic-desk/issue-sync/internal/domain"
)

// Timestamp accepts the shapes the backend has used for dates: a Firestore
// {_seconds,_nanoseconds} object, an RFC 3339 string, or epoch seconds or
// milliseconds.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	switch data[0] {
	case '{':
		var obj struct {
			Seconds      *int64 `json:"_seconds"`
			Nanoseconds  int64  `json:"_nanoseconds"`
			PlainSeconds *int64 `json:"seconds"`
			PlainNanos   int64  `json:"nanoseconds"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("timestamp object: %w", err)
		}
		switch {
		case obj.Seconds != nil:
			*t = Timestamp{Time: time.Unix(*obj.Seconds, obj.Nanoseconds).UTC(), Valid: true}
		case obj.PlainSeconds != nil:
			*t = Timestamp{Time: time.Unix(*obj.PlainSeconds, obj.PlainNanos).UTC(), Valid: true}
		default:
			*t = Timestamp{}
		}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*t = Timestamp{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp string: %w", err)
		}
		*t = Timestamp{Time: parsed.UTC(), Valid: true}
		return nil
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("timestamp number: %w", err)
		}
		if n > 1e12 {
			*t = Timestamp{Time: time.UnixMilli(int64(n)).UTC(), Valid: true}
		} else {
			*t = Timestamp{Time: time.Unix(int64(n), 0).UTC(), Valid: true}
		}
		return nil
	}
}

// Ptr returns nil for an absent timestamp.
func (t Timestamp) Ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Coordinate accepts a number, a numeric string, or null.
type Coordinate struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = Coordinate{}
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*c = Coordinate{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("coordinate: %w", err)
	}
	*c = Coordinate{Value: v, Valid: true}
	return nil
}

// RawComplaint is the nested complaint a citizen filed.
type RawComplaint struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	DeptID      string `json:"dept_id"`
	Transcribe  string `json:"transcribe"`
	Translate   string `json:"translate"`
}

// RawUser is the nested user reference some records carry.
type RawUser struct {
	ID string `json:"id"`
}

// RawIssue is one record of the issue list endpoint.
type RawIssue struct {
	ID                  string        `json:"id"`
	IssueID             string        `json:"issue_id"`
	ComplaintNumber     string        `json:"complaint_number"`
	Title               string        `json:"title"`
	Priority            string        `json:"priority"`
	Status              string        `json:"status"`
	Latitude            Coordinate    `json:"latitude"`
	Longitude           Coordinate    `json:"longitude"`
	CreatedAt           Timestamp     `json:"created_at"`
	AssignedAt          Timestamp     `json:"assigned_at"`
	InProgressAt        Timestamp     `json:"in_progress_at"`
	CompletedAt         Timestamp     `json:"completed_at"`
	AssignedDepartments []string      `json:"assigned_departments"`
	Complaint           *RawComplaint `json:"complaint"`
	ComplaintID         string        `json:"complaintId"`
	UserID              string        `json:"userId"`
	User                *RawUser      `json:"user"`
}

type issuesEnvelope struct {
	Issues []json.RawMessage `json:"issues"`
}

// Normalize converts a raw record to a domain issue. fetchedAt stands in for a
// missing creation time and Pending for an unreadable status; both are marked
// in Gaps so the merge can keep earlier values.
func Normalize(raw RawIssue, fetchedAt time.Time) (domain.Issue, error) {
	id := firstNonEmpty(raw.ID, raw.IssueID)
	if id == "" {
		return domain.Issue{}, fmt.Errorf("record has neither id nor issue_id")
	}

	var gaps domain.Gap
	status := domain.IssueStatusPending
	if strings.TrimSpace(raw.Status) != "" {
		parsed, err := domain.ParseStatus(raw.Status)
		if err != nil {
			gaps |= domain.GapStatus
		} else {
			status = parsed
		}
	}

	issue := domain.Issue{
		ID:                  id,
		ComplaintNumber:     firstNonEmpty(raw.ComplaintNumber, raw.IssueID),
		Title:               strings.TrimSpace(raw.Title),
		Priority:            domain.ParsePriority(raw.Priority),
		Status:              status,
		UserID:              raw.UserID,
		ComplaintID:         raw.ComplaintID,
		AssignedDepartments: append([]string(nil), raw.AssignedDepartments...),
		CreatedAt:           fetchedAt.UTC(),
		AssignedAt:          raw.AssignedAt.Ptr(),
		InProgressAt:        raw.InProgressAt.Ptr(),
		CompletedAt:         raw.CompletedAt.Ptr(),
		Images:              []domain.Image{},
	}
	if raw.CreatedAt.Valid {
		issue.CreatedAt = raw.CreatedAt.Time
	} else {
		gaps |= domain.GapCreatedAt
	}
	issue.Gaps = gaps
	if raw.User != nil && raw.User.ID != "" {
		issue.UserID = raw.User.ID
	}
	if c := raw.Complaint; c != nil {
		issue.ComplaintID = firstNonEmpty(c.ID, issue.ComplaintID)
		issue.Description = firstNonEmpty(c.Description, c.Translate, c.Transcribe)
		issue.Category = c.DeptID
	}
	if issue.Title == "" {
		issue.Title = issue.Description
	}

	issue.Location = domain.Location{Address: domain.PendingAddress()}
	if raw.Latitude.Valid && raw.Longitude.Valid && !(raw.Latitude.Value == 0 && raw.Longitude.Value == 0) {
		issue.Location.Lat = raw.Latitude.Value
		issue.Location.Lng = raw.Longitude.Value
		issue.Location.HasCoords = true
	}
	return issue, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
