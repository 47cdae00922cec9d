package service

import (
	"context"
	"net/http"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/anthanhphan/statement-pipeline/pkg/resilience"
)

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PipelineServiceImpl is the facade that wires use-case services for the session pipeline.
type PipelineServiceImpl struct {
	cfg      *config.Config
	blobs    port.BlobStore
	sessions port.SessionStore
	backend  port.AnalysisBackend
	locker   port.Locker
	http     HTTPDoer
	pool     *resilience.WorkerPool
	now      func() time.Time

	uploadUseCase     *uploadService
	builderUseCase    *archiveBuilder
	extractorUseCase  *archiveExtractor
	pollerUseCase     *sessionPoller
	recoveryUseCase   *recoveryService
	expirationUseCase *expirationService
	analysisUseCase   *analysisService
}

// Ensure PipelineServiceImpl implements port.PipelineService.
var _ port.PipelineService = (*PipelineServiceImpl)(nil)

// Option customizes the pipeline service.
type Option func(*PipelineServiceImpl)

// WithHTTPClient sets the client used to download result archives.
func WithHTTPClient(client HTTPDoer) Option {
	return func(s *PipelineServiceImpl) { s.http = client }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *PipelineServiceImpl) { s.now = now }
}

// NewPipelineService builds the pipeline facade and all use-case services.
func NewPipelineService(
	cfg *config.Config,
	blobs port.BlobStore,
	sessions port.SessionStore,
	backend port.AnalysisBackend,
	locker port.Locker,
	opts ...Option,
) *PipelineServiceImpl {
	svc := &PipelineServiceImpl{
		cfg:      cfg,
		blobs:    blobs,
		sessions: sessions,
		backend:  backend,
		locker:   locker,
		http:     &http.Client{Timeout: 2 * time.Minute},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.pool = resilience.NewWorkerPool(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, func(r any) {
		logger.Errorw("Pipeline job panicked", "panic", r)
	})

	svc.uploadUseCase = newUploadService(svc)
	svc.builderUseCase = newArchiveBuilder(svc)
	svc.extractorUseCase = newArchiveExtractor(svc)
	svc.pollerUseCase = newSessionPoller(svc)
	svc.recoveryUseCase = newRecoveryService(svc)
	svc.expirationUseCase = newExpirationService(svc)
	svc.analysisUseCase = newAnalysisService(svc)

	return svc
}

// StartSession delegates to the analysis use-case service.
func (s *PipelineServiceImpl) StartSession(ctx context.Context, req domain.StartRequest) (*domain.Session, error) {
	return s.analysisUseCase.start(ctx, req)
}

// Upload delegates to the upload use-case service.
func (s *PipelineServiceImpl) Upload(ctx context.Context, files []domain.UploadFile, sessionID, userID string, progress domain.ProgressFunc) ([]string, error) {
	return s.uploadUseCase.upload(ctx, files, sessionID, userID, progress)
}

// BuildArchive delegates to the archive builder.
func (s *PipelineServiceImpl) BuildArchive(ctx context.Context, bucket, prefix string) (*domain.ArchiveResult, error) {
	return s.builderUseCase.buildArchive(ctx, bucket, prefix)
}

// ReissueArchiveURL signs the session's stored input archive again and stores the new link.
func (s *PipelineServiceImpl) ReissueArchiveURL(ctx context.Context, sessionID string) (*domain.ArchiveResult, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.builderUseCase.reissueURL(ctx, session)
}

// ExtractArtifacts delegates to the archive extractor.
func (s *PipelineServiceImpl) ExtractArtifacts(ctx context.Context, archiveURL string) ([]domain.Artifact, error) {
	return s.extractorUseCase.extract(ctx, archiveURL)
}

// GetSession reads one session row.
func (s *PipelineServiceImpl) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.Get(ctx, sessionID)
}

// ListSessions reads the user's session history.
func (s *PipelineServiceImpl) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// WatchSession delegates to the session poller.
func (s *PipelineServiceImpl) WatchSession(ctx context.Context, sessionID string, interval time.Duration) <-chan domain.SessionEvent {
	return s.pollerUseCase.watch(ctx, sessionID, interval)
}

// ResetStuck delegates to the recovery sweep.
func (s *PipelineServiceImpl) ResetStuck(ctx context.Context, userID string, staleness time.Duration) (int, error) {
	return s.recoveryUseCase.resetStuck(ctx, userID, staleness)
}

// PurgeFailed delegates to the recovery service.
func (s *PipelineServiceImpl) PurgeFailed(ctx context.Context, userID string) (int, error) {
	return s.recoveryUseCase.purgeFailed(ctx, userID)
}

// Sweep delegates to the expiration sweep.
func (s *PipelineServiceImpl) Sweep(ctx context.Context, staleness time.Duration) (*domain.SweepReport, error) {
	return s.expirationUseCase.sweep(ctx, staleness)
}

// StartSweepWorker runs the expiration sweep periodically until ctx is cancelled.
func (s *PipelineServiceImpl) StartSweepWorker(ctx context.Context, interval time.Duration) {
	s.expirationUseCase.startWorker(ctx, interval)
}

// Close stops accepting background runs and waits for queued runs until ctx ends.
func (s *PipelineServiceImpl) Close(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

// uploadsBucket returns the bucket holding source files.
func (s *PipelineServiceImpl) uploadsBucket() string {
	if s.cfg.Storage.UploadsBucket != "" {
		return s.cfg.Storage.UploadsBucket
	}
	return "user-uploads"
}

// archivesBucket returns the bucket holding built archives.
func (s *PipelineServiceImpl) archivesBucket() string {
	if s.cfg.Storage.ArchivesBucket != "" {
		return s.cfg.Storage.ArchivesBucket
	}
	return "user-zips"
}
