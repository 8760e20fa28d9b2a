package domain

import "time"

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session is an instance of device use, nested within (or independent
// of) a Reservation (spec.md §3).
type Session struct {
	ID        string
	DeviceID  string
	UserID    string
	StartTime time.Time
	EndTime   *time.Time
	Status    SessionStatus
}

// IsActive reports whether the session is still ongoing.
func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}
