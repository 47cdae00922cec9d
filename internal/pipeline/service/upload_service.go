package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/anthanhphan/statement-pipeline/pkg/resilience"
)

// uploadService stores user files below the session prefix.
type uploadService struct {
	core *PipelineServiceImpl
}

// newUploadService creates the upload use-case service.
func newUploadService(core *PipelineServiceImpl) *uploadService {
	return &uploadService{core: core}
}

// upload validates every file, then stores them and stops at the first failure.
// Files stored before a failure are left in place.
func (s *uploadService) upload(ctx context.Context, files []domain.UploadFile, sessionID, userID string, progress domain.ProgressFunc) ([]string, error) {
	if err := s.validate(files, sessionID, userID); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(domain.UploadProgress) {}
	}
	for _, f := range files {
		progress(domain.UploadProgress{FileName: f.Name, Status: domain.UploadPending})
	}

	logger.Infow("Upload started", "session_id", sessionID, "files", len(files))

	var (
		paths []string
		err   error
	)
	if workers := s.core.cfg.Upload.ParallelFiles; workers > 1 && len(files) > 1 {
		paths, err = s.uploadParallel(ctx, files, sessionID, userID, workers, progress)
	} else {
		paths, err = s.uploadSequential(ctx, files, sessionID, userID, progress)
	}
	if err != nil {
		logger.Warnw("Upload aborted", "session_id", sessionID, "uploaded", len(paths), "error", err.Error())
		return paths, err
	}

	logger.Infow("Upload finished", "session_id", sessionID, "files", len(paths))
	return paths, nil
}

// validate rejects the batch before any store call.
func (s *uploadService) validate(files []domain.UploadFile, sessionID, userID string) error {
	if userID == "" || sessionID == "" {
		return &port.ValidationError{Reason: "user id and session id are required"}
	}
	if strings.Contains(userID, "/") || strings.Contains(sessionID, "/") {
		return &port.ValidationError{Reason: "user id and session id must not contain '/'"}
	}
	if len(files) == 0 {
		return &port.ValidationError{Reason: "no files selected"}
	}
	if limit := s.core.cfg.Upload.MaxFiles; limit > 0 && len(files) > limit {
		return &port.ValidationError{Reason: fmt.Sprintf("at most %d files per session", limit)}
	}

	maxSize := min(s.core.cfg.MaxFileSize(), domain.MaxUploadFileSize)
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		switch {
		case f.Name == "" || strings.ContainsAny(f.Name, `/\`):
			return &port.ValidationError{FileName: f.Name, Reason: "invalid file name"}
		case !domain.AllowedUploadExtension(f.Name):
			return &port.ValidationError{FileName: f.Name, Reason: "file type not allowed, expected PDF, CSV, JPEG or PNG"}
		case !domain.ContentTypeMatches(f.Name, f.ContentType):
			return &port.ValidationError{FileName: f.Name, Reason: fmt.Sprintf("content type %q does not match extension", f.ContentType)}
		case f.Size() == 0:
			return &port.ValidationError{FileName: f.Name, Reason: "file is empty"}
		case f.Size() > maxSize:
			return &port.ValidationError{FileName: f.Name, Reason: fmt.Sprintf("file exceeds %d bytes", maxSize)}
		}
		if _, dup := seen[f.Name]; dup {
			return &port.ValidationError{FileName: f.Name, Reason: "duplicate file name"}
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

func (s *uploadService) uploadSequential(ctx context.Context, files []domain.UploadFile, sessionID, userID string, progress domain.ProgressFunc) ([]string, error) {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		key, err := s.putFile(ctx, f, sessionID, userID, progress)
		if err != nil {
			return paths, &port.PartialUploadError{FileName: f.Name, Uploaded: paths, Err: err}
		}
		paths = append(paths, key)
	}
	return paths, nil
}

// uploadParallel uploads with bounded concurrency. No file starts after the first
// failure; files already in flight finish.
func (s *uploadService) uploadParallel(ctx context.Context, files []domain.UploadFile, sessionID, userID string, workers int, progress domain.ProgressFunc) ([]string, error) {
	pool := resilience.NewWorkerPool(workers, len(files), nil)

	var (
		mu       sync.Mutex
		stored   = make([]string, len(files))
		failure  *port.PartialUploadError
		progMu   sync.Mutex
		safeProg = func(p domain.UploadProgress) {
			progMu.Lock()
			defer progMu.Unlock()
			progress(p)
		}
	)

	for i, f := range files {
		if err := pool.Submit(ctx, func(context.Context) {
			mu.Lock()
			aborted := failure != nil
			mu.Unlock()
			if aborted {
				return
			}

			key, err := s.putFile(ctx, f, sessionID, userID, safeProg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if failure == nil {
					failure = &port.PartialUploadError{FileName: f.Name, Err: err}
				}
				return
			}
			stored[i] = key
		}); err != nil {
			mu.Lock()
			if failure == nil {
				failure = &port.PartialUploadError{FileName: f.Name, Err: err}
			}
			mu.Unlock()
			break
		}
	}
	pool.Close()
	pool.Wait()

	paths := make([]string, 0, len(files))
	for _, key := range stored {
		if key != "" {
			paths = append(paths, key)
		}
	}
	if failure != nil {
		failure.Uploaded = paths
		return paths, failure
	}
	return paths, nil
}

// putFile stores one file without overwriting an existing object.
func (s *uploadService) putFile(ctx context.Context, f domain.UploadFile, sessionID, userID string, progress domain.ProgressFunc) (string, error) {
	key := userID + "/" + sessionID + "/" + f.Name
	progress(domain.UploadProgress{FileName: f.Name, Status: domain.UploadUploading, Percent: 0})

	err := s.core.blobs.Put(ctx, s.core.uploadsBucket(), key, f.Data, port.PutOptions{
		ContentType:  f.ContentType,
		CacheControl: s.cacheControl(),
		Overwrite:    false,
	})
	if err != nil {
		progress(domain.UploadProgress{FileName: f.Name, Status: domain.UploadError, Percent: 0})
		return "", err
	}

	progress(domain.UploadProgress{FileName: f.Name, Status: domain.UploadCompleted, Percent: 100})
	return key, nil
}

func (s *uploadService) cacheControl() string {
	if s.core.cfg.Upload.CacheControl != "" {
		return s.core.cfg.Upload.CacheControl
	}
	return "3600"
}
