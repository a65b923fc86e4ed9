package attendance

import (
	"fmt"
	"strings"
	"time"
)

// Status is the attendance state of one student in one session.
type Status string

const (
	StatusPending Status = "pending"
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusExcused Status = "excused"
)

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPresent, StatusAbsent, StatusExcused:
		return true
	default:
		return false
	}
}

// ParseStatus normalizes a caller supplied status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
	}
	return s, nil
}

// SessionState is the one-way lifecycle of a session.
type SessionState string

const (
	StateNotStarted SessionState = "not-started"
	StateInProgress SessionState = "in-progress"
	StateCompleted  SessionState = "completed"
)

// DeliveryMode says whether a session is held online or on site.
type DeliveryMode string

const (
	ModeOnline DeliveryMode = "online"
	ModeOnsite DeliveryMode = "onsite"
)

// Role of a human acting on attendance records.
type Role string

const (
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// Action classifies an audit entry.
type Action string

const (
	ActionOverride   Action = "override"
	ActionBulkUpdate Action = "bulk_update"
	ActionExcuse     Action = "excuse"
)

// Source records what produced a status change.
type Source string

const (
	SourceCheckIn    Source = "checkin"
	SourceOverride   Source = Source(ActionOverride)
	SourceBulkUpdate Source = Source(ActionBulkUpdate)
	SourceExcuse     Source = Source(ActionExcuse)
)

// Actor identifies the faculty member or admin behind an override.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidActor)
	}
	switch a.Role {
	case RoleFaculty, RoleAdmin:
		return nil
	default:
		return fmt.Errorf("%w: role %q", ErrInvalidActor, a.Role)
	}
}

// Student is immutable reference data owned by the roster.
type Student struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number,omitempty"`
}

// CourseSection is one teaching group of a course and its enrolled students.
type CourseSection struct {
	ID         string   `json:"id"`
	CourseID   string   `json:"course_id"`
	Name       string   `json:"name"`
	FacultyID  string   `json:"faculty_id"`
	StudentIDs []string `json:"student_ids"`
}

// SessionParams describes a session to be scheduled.
type SessionParams struct {
	ID        string
	SectionID string
	StartsAt  time.Time
	EndsAt    time.Time
	Location  string
	Mode      DeliveryMode
}

// Session is a point-in-time copy of a scheduled meeting.
type Session struct {
	ID          string       `json:"id"`
	SectionID   string       `json:"section_id"`
	CourseID    string       `json:"course_id"`
	FacultyID   string       `json:"faculty_id,omitempty"`
	StartsAt    time.Time    `json:"starts_at"`
	EndsAt      time.Time    `json:"ends_at"`
	Location    string       `json:"location,omitempty"`
	Mode        DeliveryMode `json:"mode"`
	State       SessionState `json:"state"`
	Token       *Token       `json:"token,omitempty"`
	Remaining   int          `json:"remaining_ticks"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Record is the attendance of one student in one session.
type Record struct {
	SessionID        string    `json:"session_id"`
	StudentID        string    `json:"student_id"`
	Status           Status    `json:"status"`
	IsManualOverride bool      `json:"is_manual_override"`
	OverrideReason   string    `json:"override_reason,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Change is one applied status write, kept in application order.
type Change struct {
	At        time.Time `json:"at"`
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Source    Source    `json:"source"`
}

// AuditEntry is an immutable trace of a manual correction.
type AuditEntry struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	ActorID        string    `json:"actor_id"`
	ActorRole      Role      `json:"actor_role"`
	StudentID      string    `json:"student_id"`
	SessionID      string    `json:"session_id"`
	CourseID       string    `json:"course_id"`
	SectionID      string    `json:"section_id"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	Reason         *string   `json:"reason"`
	Action         Action    `json:"action"`
}
