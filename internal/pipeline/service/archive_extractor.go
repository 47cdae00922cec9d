package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/anthanhphan/gosdk/logger"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/klauspost/compress/zip"
)

// archiveExtractor downloads a result archive and classifies its entries.
type archiveExtractor struct {
	core       *PipelineServiceImpl
	extensions map[string]struct{}
}

// newArchiveExtractor creates the extraction use-case service.
func newArchiveExtractor(core *PipelineServiceImpl) *archiveExtractor {
	exts := core.cfg.Pipeline.DocumentExtensions
	if len(exts) == 0 {
		exts = domain.DefaultDocumentExtensions
	}

	recognized := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		recognized[ext] = struct{}{}
	}
	return &archiveExtractor{core: core, extensions: recognized}
}

// extract fetches archiveURL and returns one artifact per recognized regular entry.
func (e *archiveExtractor) extract(ctx context.Context, archiveURL string) ([]domain.Artifact, error) {
	payload, err := e.fetch(ctx, archiveURL)
	if err != nil {
		return nil, err
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, &port.FormatError{Err: err}
	}

	artifacts := make([]domain.Artifact, 0, len(reader.File))
	skipped := 0
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if !e.recognized(f.Name) {
			skipped++
			continue
		}

		data, err := readEntry(f)
		if err != nil {
			return nil, &port.FormatError{Entry: f.Name, Err: err}
		}

		artifact := domain.ClassifyArtifact(f.Name)
		artifact.Payload = data
		artifact.Size = len(data)
		artifacts = append(artifacts, artifact)
	}

	logger.Debugw("Archive extracted", "artifacts", len(artifacts), "skipped", skipped)
	return artifacts, nil
}

// fetch downloads the archive body, bounded by the configured size limit.
func (e *archiveExtractor) fetch(ctx context.Context, archiveURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL, nil)
	if err != nil {
		return nil, &port.FetchError{Err: err}
	}

	resp, err := e.core.http.Do(req)
	if err != nil {
		return nil, &port.FetchError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &port.FetchError{StatusCode: resp.StatusCode}
	}

	limit := e.core.cfg.MaxArchiveBytes()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &port.FetchError{Err: err}
	}
	if int64(len(payload)) > limit {
		return nil, &port.FetchError{Err: fmt.Errorf("archive exceeds %d bytes", limit)}
	}
	return payload, nil
}

func (e *archiveExtractor) recognized(name string) bool {
	_, ok := e.extensions[strings.ToLower(path.Ext(name))]
	return ok
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}
