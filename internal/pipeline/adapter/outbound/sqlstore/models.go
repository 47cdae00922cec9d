package sqlstore

import (
	"time"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
)

// sessionRecord is the row layout of the sessions table.
type sessionRecord struct {
	SessionID             string     `gorm:"column:session_id;primaryKey;size:128"`
	UserID                string     `gorm:"column:user_id;size:128;not null;index:idx_sessions_user_created,priority:1"`
	Status                string     `gorm:"column:status;size:16;not null;index:idx_sessions_status_created,priority:1"`
	FileCount             int        `gorm:"column:file_count;not null;default:0"`
	InputArchiveURL       string     `gorm:"column:input_archive_url;type:text"`
	InputArchiveExpiresAt *time.Time `gorm:"column:input_archive_expires_at"`
	ResultArchiveURL      string     `gorm:"column:result_archive_url;type:text"`
	FailureReason         string     `gorm:"column:failure_reason;type:text"`
	CreatedAt             time.Time  `gorm:"column:created_at;not null;index:idx_sessions_user_created,priority:2;index:idx_sessions_status_created,priority:2"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;not null"`
}

func toRecord(s *domain.Session) sessionRecord {
	rec := sessionRecord{
		SessionID:        s.SessionID,
		UserID:           s.UserID,
		Status:           string(s.Status),
		FileCount:        s.FileCount,
		InputArchiveURL:  s.InputArchiveURL,
		ResultArchiveURL: s.ResultArchiveURL,
		FailureReason:    s.FailureReason,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
	if s.InputArchiveExpiresAt != nil {
		t := s.InputArchiveExpiresAt.UTC()
		rec.InputArchiveExpiresAt = &t
	}
	return rec
}

func (r *sessionRecord) toDomain() *domain.Session {
	s := &domain.Session{
		SessionID:        r.SessionID,
		UserID:           r.UserID,
		Status:           domain.Status(r.Status),
		FileCount:        r.FileCount,
		InputArchiveURL:  r.InputArchiveURL,
		ResultArchiveURL: r.ResultArchiveURL,
		FailureReason:    r.FailureReason,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.InputArchiveExpiresAt != nil {
		t := r.InputArchiveExpiresAt.UTC()
		s.InputArchiveExpiresAt = &t
	}
	return s
}
