package port

import (
	"context"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
)

//go:generate mockgen -destination=../service/mocks/session_store_mock.go -package=mocks -source=session.go

// SessionStore persists one row per session.
//
// Writers are not coordinated: the pipeline, the recovery sweep and the
// expiration sweep may update the same row concurrently and the last write
// wins. Every status change is conditional on the current status, which keeps
// a forced failed/expired row from moving back into the normal flow. Moves
// not allowed by domain.AllowTransition return ErrInvalidTransition.
type SessionStore interface {
	// Create inserts a new session. Duplicate ids return ErrSessionExists.
	Create(ctx context.Context, session *domain.Session) error

	// Get returns the session or ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListByUser returns the user's sessions, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)

	// Transition moves the session to status `to` only when its current status is
	// one of `from`, applying patch in the same write. It reports whether the row changed.
	Transition(ctx context.Context, sessionID string, from []domain.Status, to domain.Status, patch domain.SessionPatch) (bool, error)

	// Patch applies patch without changing the status, only while the current status
	// is one of `from`. It reports whether the row changed.
	Patch(ctx context.Context, sessionID string, from []domain.Status, patch domain.SessionPatch) (bool, error)

	// MarkStale forces every session matching filter to status `to` and returns their ids.
	// A non-empty reason is stored as the failure reason.
	MarkStale(ctx context.Context, filter domain.StaleFilter, to domain.Status, reason string) ([]string, error)

	// DeleteByStatus removes the user's sessions in the given statuses and returns the count.
	DeleteByStatus(ctx context.Context, userID string, statuses []domain.Status) (int, error)
}
