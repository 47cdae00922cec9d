package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/config"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"go.uber.org/mock/gomock"
)

func serveArchives(t *testing.T, archives map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := archives[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestArchiveExtractor_Extract(t *testing.T) {
	results := buildZip(t,
		zipEntry{"summary_jan.pdf.xlsx", []byte("s")},
		zipEntry{"raw_transactions_feb.xlsx", []byte("r")},
		zipEntry{"persons_of_interest.xlsx", []byte("p")},
		zipEntry{"POI_Jane Doe.xlsx", []byte("j")},
		zipEntry{"ledger.XLSX", []byte("l")},
		zipEntry{"reports/", nil},
		zipEntry{"notes.txt", []byte("ignored")},
	)
	srv := serveArchives(t, map[string][]byte{
		"/results.zip": results,
		"/garbage.zip": []byte("this is not a zip"),
	})

	tests := []struct {
		name    string
		path    string
		want    []domain.Artifact
		wantErr error
	}{
		{
			name: "ClassifiesRecognizedEntries",
			path: "/results.zip",
			want: []domain.Artifact{
				{Name: "POI_Jane Doe.xlsx", Type: domain.ArtifactPOI, SubjectName: "Jane Doe", Size: 1},
				{Name: "ledger.XLSX", Type: domain.ArtifactRawTransactions, Size: 1},
				{Name: "persons_of_interest.xlsx", Type: domain.ArtifactPersonsOfInterest, Size: 1},
				{Name: "raw_transactions_feb.xlsx", Type: domain.ArtifactRawTransactions, OriginatingFileName: "feb", Size: 1},
				{Name: "summary_jan.pdf.xlsx", Type: domain.ArtifactSummary, OriginatingFileName: "jan.pdf", Size: 1},
			},
		},
		{
			name:    "NotFound",
			path:    "/missing.zip",
			wantErr: port.ErrFetch,
		},
		{
			name:    "CorruptPayload",
			path:    "/garbage.zip",
			wantErr: port.ErrFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc, _ := newTestService(t, ctrl, nil)

			got, err := svc.ExtractArtifacts(context.Background(), srv.URL+tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ExtractArtifacts() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractArtifacts() unexpected error: %v", err)
			}

			sort.Slice(got, func(i, j int) bool { return got[i].Name < got[j].Name })
			if len(got) != len(tt.want) {
				t.Fatalf("got %d artifacts, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, want := range tt.want {
				g := got[i]
				if g.Name != want.Name || g.Type != want.Type || g.OriginatingFileName != want.OriginatingFileName ||
					g.SubjectName != want.SubjectName || g.Size != want.Size {
					t.Errorf("artifact[%d] = %+v, want %+v", i, g, want)
				}
				if len(g.Payload) != g.Size {
					t.Errorf("artifact[%d] payload length %d, size %d", i, len(g.Payload), g.Size)
				}
			}
		})
	}
}

func TestArchiveExtractor_FetchStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl, nil)

	_, err := svc.ExtractArtifacts(context.Background(), srv.URL+"/expired.zip")

	var fetchErr *port.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", fetchErr.StatusCode, http.StatusForbidden)
	}
}

func TestArchiveExtractor_PersonsOfInterestBoundary(t *testing.T) {
	srv := serveArchives(t, map[string][]byte{
		"/poi.zip": buildZip(t, zipEntry{"persons_of_interest.xlsx", []byte("people")}),
	})

	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl, nil)

	got, err := svc.ExtractArtifacts(context.Background(), srv.URL+"/poi.zip")
	if err != nil {
		t.Fatalf("ExtractArtifacts() unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(got))
	}
	if got[0].Type != domain.ArtifactPersonsOfInterest {
		t.Errorf("Type = %s, want %s", got[0].Type, domain.ArtifactPersonsOfInterest)
	}
	if string(got[0].Payload) != "people" {
		t.Errorf("Payload = %q, want %q", got[0].Payload, "people")
	}
}

func TestArchiveExtractor_ConfiguredExtensionsAndSizeLimit(t *testing.T) {
	payload := buildZip(t,
		zipEntry{"summary_q1.xlsx", []byte("skipped now")},
		zipEntry{"summary_q1.csv", []byte("kept")},
	)
	srv := serveArchives(t, map[string][]byte{"/r.zip": payload})

	cfg := config.DefaultConfig()
	cfg.Pipeline.DocumentExtensions = []string{"CSV"}

	ctrl := gomock.NewController(t)
	svc, _ := newTestService(t, ctrl, cfg)

	got, err := svc.ExtractArtifacts(context.Background(), srv.URL+"/r.zip")
	if err != nil {
		t.Fatalf("ExtractArtifacts() unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "summary_q1.csv" || got[0].OriginatingFileName != "q1" {
		t.Fatalf("unexpected artifacts %+v", got)
	}

	limited := config.DefaultConfig()
	limited.Pipeline.MaxArchiveBytes = int64(len(payload) - 1)
	small, _ := newTestService(t, gomock.NewController(t), limited)

	if _, err := small.ExtractArtifacts(context.Background(), srv.URL+"/r.zip"); !errors.Is(err, port.ErrFetch) {
		t.Fatalf("oversized archive error = %v, want %v", err, port.ErrFetch)
	}
}
