package domain

import "time"

// Status is the lifecycle state of an analysis session.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

// Terminal reports whether polling can stop at s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// transitions lists the moves made by the normal pipeline flow and by the sweeps.
var transitions = map[Status][]Status{
	StatusUploading:  {StatusProcessing, StatusFailed, StatusExpired},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusExpired},
	StatusCompleted:  {StatusExpired},
}

// CanTransition reports whether a session may move from s to next.
// A move to the same status is never a transition.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowTransition reports whether every status in from may move to next.
// An empty from never allows a move.
func AllowTransition(from []Status, next Status) bool {
	if len(from) == 0 {
		return false
	}
	for _, st := range from {
		if !st.CanTransition(next) {
			return false
		}
	}
	return true
}

// ArchiveStatuses are the statuses a session can hold once its input archive was built.
var ArchiveStatuses = []Status{StatusProcessing, StatusCompleted, StatusFailed}

// Session tracks one unit of work from upload to completion.
type Session struct {
	SessionID             string     `json:"session_id"`
	UserID                string     `json:"user_id"`
	Status                Status     `json:"status"`
	FileCount             int        `json:"file_count"`
	InputArchiveURL       string     `json:"input_archive_url,omitempty"`
	InputArchiveExpiresAt *time.Time `json:"input_archive_expires_at,omitempty"`
	ResultArchiveURL      string     `json:"result_archive_url,omitempty"`
	FailureReason         string     `json:"failure_reason,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// HasInputArchive reports whether the session recorded an input archive that the
// expiration sweep has not reclaimed yet.
func (s *Session) HasInputArchive() bool {
	if s.InputArchiveURL == "" {
		return false
	}
	for _, st := range ArchiveStatuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// SessionPatch carries optional field updates applied with a status transition.
// Empty values leave the stored field unchanged.
type SessionPatch struct {
	InputArchiveURL       string
	InputArchiveExpiresAt *time.Time
	ResultArchiveURL      string
	FailureReason         string
}

// StaleFilter selects sessions for the sweeps.
type StaleFilter struct {
	// UserID limits the match to one owner; empty matches every user.
	UserID        string
	Statuses      []Status
	CreatedBefore time.Time
}

// Matches reports whether session satisfies the filter.
func (f StaleFilter) Matches(session *Session) bool {
	if f.UserID != "" && session.UserID != f.UserID {
		return false
	}
	if !session.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	for _, st := range f.Statuses {
		if session.Status == st {
			return true
		}
	}
	return false
}

// SessionEvent is one observation emitted by the session poller.
type SessionEvent struct {
	Session *Session
	Err     error
}

// SweepReport summarizes one expiration sweep.
type SweepReport struct {
	UploadsDeleted  int       `json:"uploads_deleted"`
	ArchivesDeleted int       `json:"archives_deleted"`
	SessionsExpired int       `json:"sessions_expired"`
	UploadErrors    int       `json:"upload_errors"`
	ArchiveErrors   int       `json:"archive_errors"`
	SessionErrors   int       `json:"session_errors"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Failed reports whether any category recorded an error.
func (r *SweepReport) Failed() bool {
	return r.UploadErrors+r.ArchiveErrors+r.SessionErrors > 0
}
