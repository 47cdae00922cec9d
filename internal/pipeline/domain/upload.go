package domain

import (
	"path"
	"strings"
)

// MaxUploadFileSize is the per-file ceiling for user uploads.
const MaxUploadFileSize int64 = 10 << 20

// uploadTypes maps each accepted extension to the content types it may carry.
var uploadTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".csv":  {"text/csv", "application/csv", "application/vnd.ms-excel", "text/plain"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
}

// UploadFile is one user-selected file held in memory.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (f UploadFile) Size() int64 {
	return int64(len(f.Data))
}

// AllowedUploadExtension reports whether the file name carries a whitelisted extension.
func AllowedUploadExtension(name string) bool {
	_, ok := uploadTypes[strings.ToLower(path.Ext(name))]
	return ok
}

// ContentTypeMatches reports whether contentType is consistent with the name's extension.
// Empty and generic binary types are accepted since browsers send them for unknown files.
func ContentTypeMatches(name, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		return true
	}
	for _, allowed := range uploadTypes[strings.ToLower(path.Ext(name))] {
		if ct == allowed {
			return true
		}
	}
	return false
}

// UploadStatus is the per-file state reported while uploading.
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadError     UploadStatus = "error"
)

// UploadProgress is one progress notification for a file.
type UploadProgress struct {
	FileName string       `json:"file_name"`
	Status   UploadStatus `json:"status"`
	Percent  int          `json:"percent"`
}

// ProgressFunc receives upload progress. It may be called from several goroutines
// when uploads run in parallel.
type ProgressFunc func(UploadProgress)

// StartRequest starts a new analysis session.
type StartRequest struct {
	SessionID string
	UserID    string
	// FileCount is the declared number of files; zero means len(Files).
	FileCount int
	Files     []UploadFile
}
