package model

import "time"

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeScreenshot ArtifactType = iota
	ArtifactTypeReportJSON
	ArtifactTypeReportHTML
	ArtifactTypeArchive
)

func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeScreenshot:
		return "screenshot"
	case ArtifactTypeReportJSON:
		return "report-json"
	case ArtifactTypeReportHTML:
		return "report-html"
	case ArtifactTypeArchive:
		return "archive"
	}
	return "unknown"
}

// Artifact represents an immutable file produced during a suite run
type Artifact struct {
	Type ArtifactType `json:"type"`
	// Label the artifact was captured under
	Name string `json:"name"`
	Size uint64 `json:"size"`
	File string `json:"file"` // relative to report root, slash separated
	// Lowercase base32 sha256 of the content
	Digest  string    `json:"digest,omitempty"`
	Created time.Time `json:"created"`
}
