package attendance

import "errors"

var (
	// ErrInvalidState is returned for an illegal lifecycle transition.
	ErrInvalidState = errors.New("invalid session state")
	// ErrExpired is returned when a token is past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrSessionMismatch is returned when a token does not belong to an active session.
	ErrSessionMismatch = errors.New("session mismatch")
	// ErrUnknownStudent is returned when a student is not on the session's roster snapshot.
	ErrUnknownStudent = errors.New("unknown student")
	// ErrReasonRequired is returned when excusing a student without a reason.
	ErrReasonRequired = errors.New("reason required")
	// ErrNotOwner is returned when a faculty member acts on another faculty's section.
	ErrNotOwner = errors.New("actor does not own the session")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
	ErrSectionNotFound = errors.New("course section not found")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidActor    = errors.New("invalid actor")
	ErrEmptyBatch      = errors.New("no students in batch")
	ErrInvalidRoster   = errors.New("invalid roster entry")
	ErrInvalidSchedule = errors.New("invalid session schedule")
)
