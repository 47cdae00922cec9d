package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/service/mocks"
	"github.com/klauspost/compress/zip"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testDeps struct {
	blobs    *mocks.MockBlobStore
	sessions *mocks.MockSessionStore
	backend  *mocks.MockAnalysisBackend
	locker   *mocks.MockLocker
}

// newTestService wires the facade to fresh mocks and a fixed clock.
func newTestService(t *testing.T, ctrl *gomock.Controller, cfg *config.Config, opts ...Option) (*PipelineServiceImpl, testDeps) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	deps := testDeps{
		blobs:    mocks.NewMockBlobStore(ctrl),
		sessions: mocks.NewMockSessionStore(ctrl),
		backend:  mocks.NewMockAnalysisBackend(ctrl),
		locker:   mocks.NewMockLocker(ctrl),
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	svc := NewPipelineService(cfg, deps.blobs, deps.sessions, deps.backend, deps.locker, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc, deps
}

type zipEntry struct {
	name string
	data []byte
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("create entry %s: %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("write entry %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func readZip(t *testing.T, payload []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			t.Fatalf("read entry %s: %v", f.Name, err)
		}
		out[f.Name] = data
	}
	return out
}

func TestPipelineService_ReissueArchiveURL(t *testing.T) {
	built := &domain.Session{SessionID: "s1", UserID: "u1", Status: domain.StatusCompleted, FileCount: 2, InputArchiveURL: "https://signed/old"}
	stored := []port.ObjectInfo{{Key: "u1/s1.zip", Size: 512}}
	wantExpiry := testNow.Add(24 * time.Hour)

	tests := []struct {
		name    string
		setup   func(d testDeps)
		wantURL string
		wantErr error
	}{
		{
			name: "Success",
			setup: func(d testDeps) {
				d.sessions.EXPECT().Get(gomock.Any(), "s1").Return(built, nil)
				d.blobs.EXPECT().List(gomock.Any(), "user-zips", "u1/s1.zip").Return(stored, nil)
				d.blobs.EXPECT().SignedURL(gomock.Any(), "user-zips", "u1/s1.zip", 24*time.Hour).
					Return("https://signed/u1/s1.zip", nil)
				d.sessions.EXPECT().Patch(gomock.Any(), "s1", domain.ArchiveStatuses, domain.SessionPatch{
					InputArchiveURL:       "https://signed/u1/s1.zip",
					InputArchiveExpiresAt: &wantExpiry,
				}).Return(true, nil)
			},
			wantURL: "https://signed/u1/s1.zip",
		},
		{
			name: "SessionNotFound",
			setup: func(d testDeps) {
				d.sessions.EXPECT().Get(gomock.Any(), "s1").Return(nil, port.ErrSessionNotFound)
			},
			wantErr: port.ErrSessionNotFound,
		},
		{
			name: "StillUploading",
			setup: func(d testDeps) {
				d.sessions.EXPECT().Get(gomock.Any(), "s1").
					Return(&domain.Session{SessionID: "s1", UserID: "u1", Status: domain.StatusUploading}, nil)
			},
			wantErr: port.ErrObjectNotFound,
		},
		{
			name: "Expired",
			setup: func(d testDeps) {
				d.sessions.EXPECT().Get(gomock.Any(), "s1").
					Return(&domain.Session{SessionID: "s1", UserID: "u1", Status: domain.StatusExpired, InputArchiveURL: "https://signed/old"}, nil)
			},
			wantErr: port.ErrObjectNotFound,
		},
		{
			name: "ArchiveMissing",
			setup: func(d testDeps) {
				d.sessions.EXPECT().Get(gomock.Any(), "s1").Return(built, nil)
				d.blobs.EXPECT().List(gomock.Any(), "user-zips", "u1/s1.zip").
					Return([]port.ObjectInfo{{Key: "u1/s1.zip.tmp", Size: 3}}, nil)
			},
			wantErr: port.ErrObjectNotFound,
		},
		{
			name: "SigningFails",
			setup: func(d testDeps) {
				d.sessions.EXPECT().Get(gomock.Any(), "s1").Return(built, nil)
				d.blobs.EXPECT().List(gomock.Any(), "user-zips", "u1/s1.zip").Return(stored, nil)
				d.blobs.EXPECT().SignedURL(gomock.Any(), "user-zips", "u1/s1.zip", gomock.Any()).
					Return("", errors.New("no credentials"))
			},
			wantErr: port.ErrURLIssuance,
		},
		{
			name: "ExpiredBeforeWrite",
			setup: func(d testDeps) {
				d.sessions.EXPECT().Get(gomock.Any(), "s1").Return(built, nil)
				d.blobs.EXPECT().List(gomock.Any(), "user-zips", "u1/s1.zip").Return(stored, nil)
				d.blobs.EXPECT().SignedURL(gomock.Any(), "user-zips", "u1/s1.zip", gomock.Any()).
					Return("https://signed/u1/s1.zip", nil)
				d.sessions.EXPECT().Patch(gomock.Any(), "s1", gomock.Any(), gomock.Any()).Return(false, nil)
			},
			wantErr: port.ErrObjectNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc, deps := newTestService(t, ctrl, nil)
			tt.setup(deps)

			res, err := svc.ReissueArchiveURL(context.Background(), "s1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReissueArchiveURL() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReissueArchiveURL() unexpected error: %v", err)
			}
			if res.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", res.URL, tt.wantURL)
			}
			if res.FileName != "s1.zip" || res.ArchivePath != "u1/s1.zip" {
				t.Errorf("unexpected archive location %+v", res)
			}
			if res.SizeBytes != 512 || res.FileCount != 2 {
				t.Errorf("SizeBytes, FileCount = %d, %d, want 512, 2", res.SizeBytes, res.FileCount)
			}
			if !res.ExpiresAt.Equal(wantExpiry) {
				t.Errorf("ExpiresAt = %v, want %v", res.ExpiresAt, wantExpiry)
			}
		})
	}
}
