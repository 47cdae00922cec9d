package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anthanhphan/statement-pipeline/internal/pipeline/domain"
	"github.com/anthanhphan/statement-pipeline/internal/pipeline/port"
	"go.uber.org/mock/gomock"
)

func TestRecoveryService_ResetStuck(t *testing.T) {
	rows := []*domain.Session{
		{SessionID: "stuck", UserID: "U", Status: domain.StatusProcessing, CreatedAt: testNow.Add(-31 * time.Minute)},
		{SessionID: "fresh", UserID: "U", Status: domain.StatusProcessing, CreatedAt: testNow.Add(-29 * time.Minute)},
		{SessionID: "done", UserID: "U", Status: domain.StatusCompleted, CreatedAt: testNow.Add(-2 * time.Hour)},
		{SessionID: "other", UserID: "V", Status: domain.StatusUploading, CreatedAt: testNow.Add(-2 * time.Hour)},
	}

	// markStale applies the filter to rows the way a store would.
	markStale := func(_ context.Context, f domain.StaleFilter, to domain.Status, reason string) ([]string, error) {
		if reason == "" {
			t.Errorf("recovery must record a failure reason")
		}
		var ids []string
		for _, row := range rows {
			if f.Matches(row) {
				row.Status = to
				ids = append(ids, row.SessionID)
			}
		}
		return ids, nil
	}

	ctrl := gomock.NewController(t)
	svc, deps := newTestService(t, ctrl, nil)

	deps.sessions.EXPECT().
		MarkStale(gomock.Any(), domain.StaleFilter{
			UserID:        "U",
			Statuses:      []domain.Status{domain.StatusUploading, domain.StatusProcessing},
			CreatedBefore: testNow.Add(-30 * time.Minute),
		}, domain.StatusFailed, gomock.Any()).
		DoAndReturn(markStale).
		Times(2)

	count, err := svc.ResetStuck(context.Background(), "U", 0)
	if err != nil {
		t.Fatalf("ResetStuck() unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	want := map[string]domain.Status{
		"stuck": domain.StatusFailed,
		"fresh": domain.StatusProcessing,
		"done":  domain.StatusCompleted,
		"other": domain.StatusUploading,
	}
	for _, row := range rows {
		if row.Status != want[row.SessionID] {
			t.Errorf("%s status = %s, want %s", row.SessionID, row.Status, want[row.SessionID])
		}
	}

	again, err := svc.ResetStuck(context.Background(), "U", 0)
	if err != nil || again != 0 {
		t.Errorf("second ResetStuck() = %d, %v; want 0, nil", again, err)
	}
}

func TestRecoveryService_Errors(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, deps := newTestService(t, ctrl, nil)

	if _, err := svc.ResetStuck(context.Background(), "", time.Minute); !errors.Is(err, port.ErrValidation) {
		t.Errorf("empty user error = %v, want %v", err, port.ErrValidation)
	}

	storeErr := errors.New("db down")
	deps.sessions.EXPECT().MarkStale(gomock.Any(), gomock.Any(), domain.StatusFailed, gomock.Any()).Return(nil, storeErr)
	if _, err := svc.ResetStuck(context.Background(), "U", time.Minute); !errors.Is(err, storeErr) {
		t.Errorf("store error = %v, want %v", err, storeErr)
	}
}

func TestRecoveryService_PurgeFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc, deps := newTestService(t, ctrl, nil)

	deps.sessions.EXPECT().
		DeleteByStatus(gomock.Any(), "U", []domain.Status{domain.StatusFailed, domain.StatusExpired}).
		Return(3, nil)

	n, err := svc.PurgeFailed(context.Background(), "U")
	if err != nil || n != 3 {
		t.Fatalf("PurgeFailed() = %d, %v; want 3, nil", n, err)
	}

	if _, err := svc.PurgeFailed(context.Background(), ""); !errors.Is(err, port.ErrValidation) {
		t.Errorf("empty user error = %v, want %v", err, port.ErrValidation)
	}
}
