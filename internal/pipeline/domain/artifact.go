package domain

import (
	"path"
	"strings"
	"time"
)

// ArtifactType is the semantic kind of a file found in a result archive.
type ArtifactType string

const (
	ArtifactSummary           ArtifactType = "summary"
	ArtifactRawTransactions   ArtifactType = "raw_transactions"
	ArtifactPersonsOfInterest ArtifactType = "persons_of_interest"
	ArtifactPOI               ArtifactType = "poi"
)

const (
	summaryPrefix          = "summary_"
	rawTransactionsPrefix  = "raw_transactions_"
	personsOfInterestStem  = "persons_of_interest"
	personOfInterestPrefix = "POI_"
)

// DefaultDocumentExtensions are the entry extensions the extractor classifies.
var DefaultDocumentExtensions = []string{".xlsx", ".pdf", ".csv", ".jpg", ".jpeg", ".png"}

// Artifact is one classified entry of an extracted archive. It lives in memory only.
type Artifact struct {
	Name                string       `json:"name"`
	Type                ArtifactType `json:"type"`
	OriginatingFileName string       `json:"originating_file_name,omitempty"`
	SubjectName         string       `json:"subject_name,omitempty"`
	Size                int          `json:"size"`
	Payload             []byte       `json:"-"`
}

// ClassifyArtifact derives the artifact type from an archive entry name.
// Patterns are checked in priority order and the first match wins.
func ClassifyArtifact(name string) Artifact {
	stem := strings.TrimSuffix(name, path.Ext(name))
	artifact := Artifact{Name: name, Type: ArtifactRawTransactions}

	if x, ok := cutNonEmptyPrefix(stem, summaryPrefix); ok {
		artifact.Type = ArtifactSummary
		artifact.OriginatingFileName = x
		return artifact
	}
	if x, ok := cutNonEmptyPrefix(stem, rawTransactionsPrefix); ok {
		artifact.OriginatingFileName = x
		return artifact
	}
	if stem == personsOfInterestStem {
		artifact.Type = ArtifactPersonsOfInterest
		return artifact
	}
	if y, ok := cutNonEmptyPrefix(stem, personOfInterestPrefix); ok {
		artifact.Type = ArtifactPOI
		artifact.SubjectName = y
	}
	return artifact
}

func cutNonEmptyPrefix(s, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// ArchiveResult describes an archive produced by the builder.
type ArchiveResult struct {
	URL         string    `json:"url"`
	FileCount   int       `json:"file_count"`
	ArchivePath string    `json:"archive_path"`
	FileName    string    `json:"file_name"`
	SizeBytes   int64     `json:"size_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
}
