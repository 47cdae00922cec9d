package port

import "context"

//go:generate mockgen -destination=../service/mocks/backend_mock.go -package=mocks -source=backend.go

// ParseRequest asks the analysis backend to process an input archive.
type ParseRequest struct {
	SessionID  string
	ArchiveURL string
	UserID     string
}

// AnalysisBackend is the external statement parsing service.
type AnalysisBackend interface {
	// Parse submits the archive and returns the URL of the result archive.
	// Any failure is reported as a *BackendError.
	Parse(ctx context.Context, req ParseRequest) (string, error)
}
