package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/anthanhphan/statement-pipeline/pkg/resilience"
	"github.com/google/uuid"
)

const statusWriteTimeout = 10 * time.Second

// analysisService drives one session from upload to a terminal status.
type analysisService struct {
	core *PipelineServiceImpl
}

// newAnalysisService creates the pipeline orchestration use-case service.
func newAnalysisService(core *PipelineServiceImpl) *analysisService {
	return &analysisService{core: core}
}

// start validates the request, records the session as uploading and queues the run.
func (s *analysisService) start(ctx context.Context, req domain.StartRequest) (*domain.Session, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if err := s.core.uploadUseCase.validate(req.Files, req.SessionID, req.UserID); err != nil {
		return nil, err
	}
	if req.FileCount <= 0 {
		req.FileCount = len(req.Files)
	}

	now := s.core.now().UTC()
	session := &domain.Session{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Status:    domain.StatusUploading,
		FileCount: req.FileCount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.core.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session %s: %w", req.SessionID, err)
	}

	files := req.Files
	if err := s.core.pool.TrySubmit(func(jobCtx context.Context) {
		s.run(jobCtx, session.SessionID, session.UserID, files)
	}); err != nil {
		s.fail(ctx, session.SessionID, []domain.Status{domain.StatusUploading}, "pipeline queue unavailable")
		if errors.Is(err, resilience.ErrQueueFull) {
			return nil, fmt.Errorf("queue session %s: %w", session.SessionID, port.ErrQueueFull)
		}
		return nil, fmt.Errorf("queue session %s: %w", session.SessionID, err)
	}

	logger.Infow("Session started", "session_id", session.SessionID, "user_id", session.UserID, "file_count", session.FileCount)
	return session, nil
}

// run uploads the files, builds the input archive, calls the backend and
// records the outcome. Every failure ends in status failed.
func (s *analysisService) run(ctx context.Context, sessionID, userID string, files []domain.UploadFile) {
	if timeout := s.core.cfg.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	uploading := []domain.Status{domain.StatusUploading}
	if _, err := s.core.uploadUseCase.upload(ctx, files, sessionID, userID, nil); err != nil {
		s.fail(ctx, sessionID, uploading, "upload failed: "+err.Error())
		return
	}

	release, err := s.lock(ctx, sessionID)
	if err != nil {
		logger.Warnw("Archive build skipped", "session_id", sessionID, "error", err.Error())
		if !errors.Is(err, port.ErrBuildInProgress) {
			s.fail(ctx, sessionID, uploading, "archive lock failed: "+err.Error())
		}
		return
	}
	defer release()

	archive, err := s.core.builderUseCase.buildArchive(ctx, s.core.uploadsBucket(), userID+"/"+sessionID)
	if err != nil {
		s.fail(ctx, sessionID, uploading, "archive build failed: "+err.Error())
		return
	}

	expiresAt := archive.ExpiresAt
	applied, err := s.core.sessions.Transition(ctx, sessionID, uploading, domain.StatusProcessing, domain.SessionPatch{
		InputArchiveURL:       archive.URL,
		InputArchiveExpiresAt: &expiresAt,
	})
	if err != nil {
		s.fail(ctx, sessionID, uploading, "status update failed: "+err.Error())
		return
	}
	if !applied {
		logger.Warnw("Session left uploading before processing, run abandoned", "session_id", sessionID)
		return
	}

	resultURL, err := s.core.backend.Parse(ctx, port.ParseRequest{
		SessionID:  sessionID,
		ArchiveURL: archive.URL,
		UserID:     userID,
	})
	processing := []domain.Status{domain.StatusProcessing}
	if err != nil {
		s.fail(ctx, sessionID, processing, "backend call failed: "+err.Error())
		return
	}

	applied, err = s.core.sessions.Transition(ctx, sessionID, processing, domain.StatusCompleted, domain.SessionPatch{
		ResultArchiveURL: resultURL,
	})
	switch {
	case err != nil:
		logger.Errorw("Failed to complete session", "session_id", sessionID, "error", err.Error())
	case !applied:
		logger.Warnw("Session left processing before completion", "session_id", sessionID)
	default:
		logger.Infow("Session completed", "session_id", sessionID, "file_count", archive.FileCount)
	}
}

// lock takes the per-session build lock. The returned release func is safe to defer.
func (s *analysisService) lock(ctx context.Context, sessionID string) (func(), error) {
	if s.core.locker == nil {
		return func() {}, nil
	}

	unlock, err := s.core.locker.TryLock(ctx, "build:"+sessionID, s.core.cfg.BuildLockTTL())
	if errors.Is(err, port.ErrLockHeld) {
		return nil, fmt.Errorf("%w: %s", port.ErrBuildInProgress, sessionID)
	}
	if err != nil {
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			logger.Warnw("Failed to release build lock", "session_id", sessionID, "error", err.Error())
		}
	}, nil
}

// fail moves the session from one of the given statuses to failed. It writes with a
// fresh deadline so a run that timed out is still recorded.
func (s *analysisService) fail(ctx context.Context, sessionID string, from []domain.Status, reason string) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	logger.Warnw("Session failed", "session_id", sessionID, "reason", reason)
	applied, err := s.core.sessions.Transition(writeCtx, sessionID, from, domain.StatusFailed, domain.SessionPatch{
		FailureReason: reason,
	})
	if err != nil {
		logger.Errorw("Failed to mark session failed", "session_id", sessionID, "error", err.Error())
		return
	}
	if !applied {
		logger.Debugw("Session already left its running status", "session_id", sessionID)
	}
}
