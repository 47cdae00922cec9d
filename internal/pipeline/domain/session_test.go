package domain

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusUploading, StatusProcessing, true},
		{StatusUploading, StatusFailed, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusProcessing, false},
		{StatusCompleted, StatusExpired, true},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusExpired, false},
		{StatusExpired, StatusUploading, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	for _, st := range []Status{StatusCompleted, StatusFailed, StatusExpired} {
		if !st.Terminal() {
			t.Errorf("expected %s to be terminal", st)
		}
	}
	if StatusProcessing.Terminal() {
		t.Errorf("processing must not be terminal")
	}
}

func TestAllowTransition(t *testing.T) {
	tests := []struct {
		name string
		from []Status
		to   Status
		want bool
	}{
		{"RecoveryReset", []Status{StatusUploading, StatusProcessing}, StatusFailed, true},
		{"Expiration", []Status{StatusUploading, StatusProcessing, StatusCompleted}, StatusExpired, true},
		{"OneSourceNotAllowed", []Status{StatusProcessing, StatusCompleted}, StatusFailed, false},
		{"BackFromFailed", []Status{StatusFailed}, StatusProcessing, false},
		{"NoSource", nil, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AllowTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("AllowTransition(%v, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestSessionHasInputArchive(t *testing.T) {
	tests := []struct {
		name    string
		session Session
		want    bool
	}{
		{"Processing", Session{Status: StatusProcessing, InputArchiveURL: "https://signed/a.zip"}, true},
		{"FailedAfterBuild", Session{Status: StatusFailed, InputArchiveURL: "https://signed/a.zip"}, true},
		{"FailedBeforeBuild", Session{Status: StatusFailed}, false},
		{"Uploading", Session{Status: StatusUploading}, false},
		{"Expired", Session{Status: StatusExpired, InputArchiveURL: "https://signed/a.zip"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.HasInputArchive(); got != tt.want {
				t.Errorf("HasInputArchive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStaleFilterMatches(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	filter := StaleFilter{
		UserID:        "u1",
		Statuses:      []Status{StatusUploading, StatusProcessing},
		CreatedBefore: now.Add(-30 * time.Minute),
	}

	old := &Session{UserID: "u1", Status: StatusProcessing, CreatedAt: now.Add(-31 * time.Minute)}
	if !filter.Matches(old) {
		t.Fatalf("expected stale processing session to match")
	}

	boundary := &Session{UserID: "u1", Status: StatusProcessing, CreatedAt: now.Add(-30 * time.Minute)}
	if filter.Matches(boundary) {
		t.Fatalf("session created exactly at the cutoff must not match")
	}

	otherUser := &Session{UserID: "u2", Status: StatusUploading, CreatedAt: now.Add(-time.Hour)}
	if filter.Matches(otherUser) {
		t.Fatalf("expected other user to be excluded")
	}

	completed := &Session{UserID: "u1", Status: StatusCompleted, CreatedAt: now.Add(-time.Hour)}
	if filter.Matches(completed) {
		t.Fatalf("expected completed session to be excluded")
	}
}
