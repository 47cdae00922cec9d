package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

const (
	archiveContentType  = "application/zip"
	archiveCompression  = 6
	archiveCacheControl = "3600"
)

// archiveBuilder packs a session's uploaded files into one signed zip.
type archiveBuilder struct {
	core *PipelineServiceImpl
}

// newArchiveBuilder creates the archive build use-case service.
func newArchiveBuilder(core *PipelineServiceImpl) *archiveBuilder {
	return &archiveBuilder{core: core}
}

// buildArchive lists every object below prefix, zips them and uploads the archive
// to {userId}/{sessionId}.zip in the archive bucket.
func (b *archiveBuilder) buildArchive(ctx context.Context, bucket, prefix string) (*domain.ArchiveResult, error) {
	userID, sessionID, err := splitSessionPrefix(prefix)
	if err != nil {
		return nil, err
	}
	listPrefix := userID + "/" + sessionID + "/"

	objects, err := b.core.blobs.List(ctx, bucket, listPrefix)
	if err != nil {
		return nil, &port.SourceReadError{Key: listPrefix, Err: err}
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", port.ErrEmptySource, bucket, listPrefix)
	}
	logger.Infow("Archive build started", "bucket", bucket, "prefix", listPrefix, "objects", len(objects))

	payload, packed, err := b.pack(ctx, bucket, objects)
	if err != nil {
		return nil, err
	}
	if packed == 0 {
		return nil, fmt.Errorf("%w: %s/%s has only empty entries", port.ErrEmptySource, bucket, listPrefix)
	}

	archiveKey := archivePath(userID, sessionID)
	archivesBucket := b.core.archivesBucket()
	if err := b.core.blobs.Put(ctx, archivesBucket, archiveKey, payload, port.PutOptions{
		ContentType:  archiveContentType,
		CacheControl: archiveCacheControl,
		Overwrite:    true,
	}); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %w", port.ErrArchiveUpload, archivesBucket, archiveKey, err)
	}

	result, err := b.issueURL(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	result.FileCount = packed
	result.SizeBytes = int64(len(payload))

	logger.Infow("Archive build finished",
		"archive", archiveKey,
		"file_count", packed,
		"size_bytes", len(payload),
	)
	return result, nil
}

// pack downloads objects in order and writes them into an in-memory zip.
// Directory markers and empty objects are skipped.
func (b *archiveBuilder) pack(ctx context.Context, bucket string, objects []port.ObjectInfo) ([]byte, int, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, archiveCompression)
	})

	packed := 0
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") || obj.Size == 0 {
			logger.Debugw("Skipping archive source entry", "key", obj.Key, "size", obj.Size)
			continue
		}

		data, err := b.core.blobs.Get(ctx, bucket, obj.Key)
		if err != nil {
			return nil, 0, &port.SourceReadError{Key: obj.Key, Err: err}
		}
		if len(data) == 0 {
			continue
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     path.Base(obj.Key),
			Method:   zip.Deflate,
			Modified: obj.CreatedAt,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("create zip entry %s: %w", obj.Key, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, 0, fmt.Errorf("write zip entry %s: %w", obj.Key, err)
		}
		packed++
	}

	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), packed, nil
}

// issueURL signs the stored archive of a session.
func (b *archiveBuilder) issueURL(ctx context.Context, userID, sessionID string) (*domain.ArchiveResult, error) {
	archiveKey := archivePath(userID, sessionID)
	archivesBucket := b.core.archivesBucket()
	ttl := b.core.cfg.ArchiveURLTTL()

	url, err := b.core.blobs.SignedURL(ctx, archivesBucket, archiveKey, ttl)
	if err != nil {
		logger.Errorw("Archive URL issuance failed", "archive", archiveKey, "error", err.Error())
		return nil, &port.URLIssuanceError{Bucket: archivesBucket, Key: archiveKey, Err: err}
	}

	return &domain.ArchiveResult{
		URL:         url,
		ArchivePath: archiveKey,
		FileName:    sessionID + ".zip",
		ExpiresAt:   b.core.now().Add(ttl).UTC(),
	}, nil
}

// reissueURL signs a session's stored input archive again and records the new link
// on the session row. Sessions without a live archive return ErrObjectNotFound.
func (b *archiveBuilder) reissueURL(ctx context.Context, session *domain.Session) (*domain.ArchiveResult, error) {
	if !session.HasInputArchive() {
		return nil, fmt.Errorf("%w: session %s has no input archive (status %s)", port.ErrObjectNotFound, session.SessionID, session.Status)
	}

	archiveKey := archivePath(session.UserID, session.SessionID)
	archivesBucket := b.core.archivesBucket()
	objects, err := b.core.blobs.List(ctx, archivesBucket, archiveKey)
	if err != nil {
		return nil, fmt.Errorf("look up archive %s/%s: %w", archivesBucket, archiveKey, err)
	}
	var stored *port.ObjectInfo
	for i := range objects {
		if objects[i].Key == archiveKey {
			stored = &objects[i]
			break
		}
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: %s/%s", port.ErrObjectNotFound, archivesBucket, archiveKey)
	}

	result, err := b.issueURL(ctx, session.UserID, session.SessionID)
	if err != nil {
		return nil, err
	}
	result.FileCount = session.FileCount
	result.SizeBytes = stored.Size

	expiresAt := result.ExpiresAt
	applied, err := b.core.sessions.Patch(ctx, session.SessionID, domain.ArchiveStatuses, domain.SessionPatch{
		InputArchiveURL:       result.URL,
		InputArchiveExpiresAt: &expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("record archive url for %s: %w", session.SessionID, err)
	}
	if !applied {
		// expired between the read and the write; the sweep reclaims the archive
		return nil, fmt.Errorf("%w: session %s was expired", port.ErrObjectNotFound, session.SessionID)
	}

	logger.Infow("Archive URL reissued", "session_id", session.SessionID, "archive", archiveKey)
	return result, nil
}

// archivePath returns the archive object key of a session.
func archivePath(userID, sessionID string) string {
	return userID + "/" + sessionID + ".zip"
}

var errBadPrefix = errors.New("prefix must start with {userId}/{sessionId}")

// splitSessionPrefix returns the first two segments of a storage prefix.
func splitSessionPrefix(prefix string) (string, string, error) {
	parts := strings.Split(strings.Trim(prefix, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %w: %q", port.ErrValidation, errBadPrefix, prefix)
	}
	return parts[0], parts[1], nil
}
