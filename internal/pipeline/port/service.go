package port

import (
	"context"
	"time"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
)

//go:generate mockgen -destination=../service/mocks/pipeline_service_mock.go -package=mocks -source=service.go

// PipelineService defines the session lifecycle and archive pipeline operations.
type PipelineService interface {
	// StartSession validates the files, records the session as uploading and
	// runs upload, archive build and backend parse in the background.
	StartSession(ctx context.Context, req domain.StartRequest) (*domain.Session, error)

	// Upload stores the files under {userID}/{sessionID}/ and reports progress per file.
	Upload(ctx context.Context, files []domain.UploadFile, sessionID, userID string, progress domain.ProgressFunc) ([]string, error)

	// BuildArchive packs every object below prefix into one zip and signs it.
	BuildArchive(ctx context.Context, bucket, prefix string) (*domain.ArchiveResult, error)

	// ReissueArchiveURL signs the stored input archive of a session again.
	ReissueArchiveURL(ctx context.Context, sessionID string) (*domain.ArchiveResult, error)

	// ExtractArtifacts downloads an archive and classifies its entries.
	ExtractArtifacts(ctx context.Context, archiveURL string) ([]domain.Artifact, error)

	// GetSession returns one session.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListSessions returns the user's sessions, newest first.
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)

	// WatchSession polls the session until it reaches a terminal status or ctx ends.
	WatchSession(ctx context.Context, sessionID string, interval time.Duration) <-chan domain.SessionEvent

	// ResetStuck forces the user's stale uploading/processing sessions to failed.
	ResetStuck(ctx context.Context, userID string, staleness time.Duration) (int, error)

	// PurgeFailed deletes the user's failed and expired session rows.
	PurgeFailed(ctx context.Context, userID string) (int, error)

	// Sweep deletes stale uploads and archives system-wide and expires their sessions.
	Sweep(ctx context.Context, staleness time.Duration) (*domain.SweepReport, error)
}
