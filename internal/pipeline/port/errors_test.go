package port

import (
	"errors"
	"io"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"source read", &SourceReadError{Key: "u/s/a.pdf", Err: io.ErrUnexpectedEOF}, ErrSourceRead},
		{"url issuance", &URLIssuanceError{Bucket: "user-zips", Key: "u/s.zip", Err: io.EOF}, ErrURLIssuance},
		{"fetch", &FetchError{StatusCode: 404}, ErrFetch},
		{"format", &FormatError{Err: io.ErrUnexpectedEOF}, ErrFormat},
		{"validation", &ValidationError{FileName: "a.exe", Reason: "type not allowed"}, ErrValidation},
		{"partial upload", &PartialUploadError{FileName: "b.png", Err: ErrObjectExists}, ErrPartialUpload},
		{"backend", &BackendError{StatusCode: 500}, ErrBackendCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Fatalf("expected %v to match %v", tt.err, tt.target)
			}
		})
	}

	wrapped := &PartialUploadError{FileName: "b.png", Err: ErrObjectExists}
	if !errors.Is(wrapped, ErrObjectExists) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}

func TestBackendErrorTemporary(t *testing.T) {
	if !(&BackendError{StatusCode: 503}).Temporary() {
		t.Fatalf("503 should be temporary")
	}
	if (&BackendError{StatusCode: 400}).Temporary() {
		t.Fatalf("400 should not be temporary")
	}
	if !(&BackendError{Err: io.ErrUnexpectedEOF}).Temporary() {
		t.Fatalf("transport errors should be temporary")
	}
	if (&BackendError{StatusCode: 200, Status: "error"}).Temporary() {
		t.Fatalf("non-success body should not be temporary")
	}
}
