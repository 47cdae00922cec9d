package service

import (
	"context"
	"fmt"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
)

const staleFailureReason = "stale: no progress before recovery threshold"

// recoveryService corrects a user's sessions that stopped making progress.
type recoveryService struct {
	core *PipelineServiceImpl
}

// newRecoveryService creates the recovery use-case service.
func newRecoveryService(core *PipelineServiceImpl) *recoveryService {
	return &recoveryService{core: core}
}

// resetStuck forces the user's uploading/processing sessions created before
// now-staleness to failed. Running it again right away changes nothing.
func (s *recoveryService) resetStuck(ctx context.Context, userID string, staleness time.Duration) (int, error) {
	if userID == "" {
		return 0, &port.ValidationError{Reason: "user id is required"}
	}
	if staleness <= 0 {
		staleness = s.core.cfg.RecoveryStaleness()
	}

	cutoff := s.core.now().Add(-staleness).UTC()
	ids, err := s.core.sessions.MarkStale(ctx, domain.StaleFilter{
		UserID:        userID,
		Statuses:      []domain.Status{domain.StatusUploading, domain.StatusProcessing},
		CreatedBefore: cutoff,
	}, domain.StatusFailed, staleFailureReason)
	if err != nil {
		return 0, fmt.Errorf("reset stuck sessions: %w", err)
	}

	if len(ids) > 0 {
		logger.Infow("Reset stuck sessions", "user_id", userID, "count", len(ids), "session_ids", ids, "cutoff", cutoff)
	}
	return len(ids), nil
}

// purgeFailed deletes the user's failed and expired session rows.
func (s *recoveryService) purgeFailed(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, &port.ValidationError{Reason: "user id is required"}
	}

	n, err := s.core.sessions.DeleteByStatus(ctx, userID, []domain.Status{domain.StatusFailed, domain.StatusExpired})
	if err != nil {
		return 0, fmt.Errorf("purge failed sessions: %w", err)
	}
	logger.Infow("Purged failed sessions", "user_id", userID, "count", n)
	return n, nil
}
