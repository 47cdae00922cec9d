package dynamostore

import (
	"time"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
)

// sessionItem is the stored item. Times are unix nanoseconds so range
// conditions compare numerically.
type sessionItem struct {
	SessionID             string `dynamodbav:"session_id"`
	UserID                string `dynamodbav:"user_id"`
	Status                string `dynamodbav:"status"`
	FileCount             int    `dynamodbav:"file_count"`
	InputArchiveURL       string `dynamodbav:"input_archive_url,omitempty"`
	InputArchiveExpiresAt int64  `dynamodbav:"input_archive_expires_at,omitempty"`
	ResultArchiveURL      string `dynamodbav:"result_archive_url,omitempty"`
	FailureReason         string `dynamodbav:"failure_reason,omitempty"`
	CreatedAt             int64  `dynamodbav:"created_at"`
	UpdatedAt             int64  `dynamodbav:"updated_at"`
}

func toItem(s *domain.Session) sessionItem {
	it := sessionItem{
		SessionID:        s.SessionID,
		UserID:           s.UserID,
		Status:           string(s.Status),
		FileCount:        s.FileCount,
		InputArchiveURL:  s.InputArchiveURL,
		ResultArchiveURL: s.ResultArchiveURL,
		FailureReason:    s.FailureReason,
		CreatedAt:        s.CreatedAt.UnixNano(),
		UpdatedAt:        s.UpdatedAt.UnixNano(),
	}
	if s.InputArchiveExpiresAt != nil {
		it.InputArchiveExpiresAt = s.InputArchiveExpiresAt.UnixNano()
	}
	return it
}

func (it *sessionItem) toDomain() *domain.Session {
	s := &domain.Session{
		SessionID:        it.SessionID,
		UserID:           it.UserID,
		Status:           domain.Status(it.Status),
		FileCount:        it.FileCount,
		InputArchiveURL:  it.InputArchiveURL,
		ResultArchiveURL: it.ResultArchiveURL,
		FailureReason:    it.FailureReason,
		CreatedAt:        time.Unix(0, it.CreatedAt).UTC(),
		UpdatedAt:        time.Unix(0, it.UpdatedAt).UTC(),
	}
	if it.InputArchiveExpiresAt != 0 {
		t := time.Unix(0, it.InputArchiveExpiresAt).UTC()
		s.InputArchiveExpiresAt = &t
	}
	return s
}
