package service

import (
	"context"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
)

// expirationService reclaims storage of abandoned sessions across all users.
type expirationService struct {
	core *PipelineServiceImpl
}

// newExpirationService creates the expiration sweep use-case service.
func newExpirationService(core *PipelineServiceImpl) *expirationService {
	return &expirationService{core: core}
}

// startWorker runs the sweep on every tick until ctx is cancelled.
func (s *expirationService) startWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.sweep(ctx, 0); err != nil {
				logger.Warnw("Scheduled expiration sweep stopped", "error", err.Error())
			}
		}
	}
}

// sweep deletes uploads and archives older than staleness and expires their sessions.
// Failures are counted per category and never stop the walk.
func (s *expirationService) sweep(ctx context.Context, staleness time.Duration) (*domain.SweepReport, error) {
	if staleness <= 0 {
		staleness = s.core.cfg.ExpirationStaleness()
	}
	now := s.core.now().UTC()
	cutoff := now.Add(-staleness)

	report := &domain.SweepReport{StartedAt: now}
	logger.Infow("Expiration sweep started", "cutoff", cutoff, "staleness", staleness.String())

	s.sweepUploads(ctx, cutoff, report)
	s.sweepArchives(ctx, cutoff, report)
	s.expireSessions(ctx, cutoff, report)

	report.FinishedAt = s.core.now().UTC()
	logger.Infow("Expiration sweep finished",
		"uploads_deleted", report.UploadsDeleted,
		"archives_deleted", report.ArchivesDeleted,
		"sessions_expired", report.SessionsExpired,
		"upload_errors", report.UploadErrors,
		"archive_errors", report.ArchiveErrors,
		"session_errors", report.SessionErrors,
	)
	return report, ctx.Err()
}

// sweepUploads walks users, then their session folders, deleting stale folders.
func (s *expirationService) sweepUploads(ctx context.Context, cutoff time.Time, report *domain.SweepReport) {
	bucket := s.core.uploadsBucket()

	users, err := s.core.blobs.ListFolders(ctx, bucket, "")
	if err != nil {
		logger.Warnw("Sweep: listing upload users failed", "bucket", bucket, "error", err.Error())
		report.UploadErrors++
		return
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return
		}
		folders, err := s.core.blobs.ListFolders(ctx, bucket, user)
		if err != nil {
			logger.Warnw("Sweep: listing session folders failed", "user", user, "error", err.Error())
			report.UploadErrors++
			continue
		}
		for _, folder := range folders {
			if ctx.Err() != nil {
				return
			}
			report.UploadsDeleted += s.sweepUploadFolder(ctx, bucket, folder, cutoff, report)
		}
	}
}

// sweepUploadFolder deletes every object of one session folder when the folder is stale.
// The folder's creation time is that of its oldest object.
func (s *expirationService) sweepUploadFolder(ctx context.Context, bucket, folder string, cutoff time.Time, report *domain.SweepReport) int {
	objects, err := s.core.blobs.List(ctx, bucket, folder)
	if err != nil {
		logger.Warnw("Sweep: listing session folder failed", "folder", folder, "error", err.Error())
		report.UploadErrors++
		return 0
	}
	if len(objects) == 0 {
		return 0
	}

	created := objects[0].CreatedAt
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		if obj.CreatedAt.Before(created) {
			created = obj.CreatedAt
		}
		keys = append(keys, obj.Key)
	}
	if !created.Before(cutoff) {
		return 0
	}

	if err := s.core.blobs.Delete(ctx, bucket, keys); err != nil {
		logger.Warnw("Sweep: deleting session folder failed", "folder", folder, "objects", len(keys), "error", err.Error())
		report.UploadErrors++
		return 0
	}
	logger.Debugw("Sweep: deleted session folder", "folder", folder, "objects", len(keys))
	return len(keys)
}

// sweepArchives deletes archives older than cutoff, user by user.
func (s *expirationService) sweepArchives(ctx context.Context, cutoff time.Time, report *domain.SweepReport) {
	bucket := s.core.archivesBucket()

	users, err := s.core.blobs.ListFolders(ctx, bucket, "")
	if err != nil {
		logger.Warnw("Sweep: listing archive users failed", "bucket", bucket, "error", err.Error())
		report.ArchiveErrors++
		return
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return
		}
		archives, err := s.core.blobs.List(ctx, bucket, user)
		if err != nil {
			logger.Warnw("Sweep: listing archives failed", "user", user, "error", err.Error())
			report.ArchiveErrors++
			continue
		}

		stale := staleKeys(archives, cutoff)
		if len(stale) == 0 {
			continue
		}
		if err := s.core.blobs.Delete(ctx, bucket, stale); err != nil {
			logger.Warnw("Sweep: deleting archives failed", "user", user, "archives", len(stale), "error", err.Error())
			report.ArchiveErrors++
			continue
		}
		report.ArchivesDeleted += len(stale)
	}
}

// expireSessions marks stale in-flight and completed sessions as expired.
func (s *expirationService) expireSessions(ctx context.Context, cutoff time.Time, report *domain.SweepReport) {
	if ctx.Err() != nil {
		return
	}
	ids, err := s.core.sessions.MarkStale(ctx, domain.StaleFilter{
		Statuses:      []domain.Status{domain.StatusUploading, domain.StatusProcessing, domain.StatusCompleted},
		CreatedBefore: cutoff,
	}, domain.StatusExpired, "")
	if err != nil {
		logger.Warnw("Sweep: expiring sessions failed", "error", err.Error())
		report.SessionErrors++
		return
	}
	report.SessionsExpired = len(ids)
}

func staleKeys(objects []port.ObjectInfo, cutoff time.Time) []string {
	var keys []string
	for _, obj := range objects {
		if obj.CreatedAt.Before(cutoff) {
			keys = append(keys, obj.Key)
		}
	}
	return keys
}
