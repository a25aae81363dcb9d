// Package model defines the types shared between discovery, parsing and ingestion.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ArtifactStatus is the lifecycle state of a discovered document.
type ArtifactStatus string

// Artifact lifecycle states.
const (
	StatusPending  ArtifactStatus = "PENDING"
	StatusApproved ArtifactStatus = "APPROVED"
	StatusIngested ArtifactStatus = "INGESTED"
	StatusFailed   ArtifactStatus = "FAILED"
)

// Classification records whether discovery could fully classify a document.
type Classification string

// Discovery classifications.
const (
	KnownPattern   Classification = "KNOWN_PATTERN"
	UnknownPattern Classification = "UNKNOWN_PATTERN"
)

// Artifact is a discovered candidate source document.
type Artifact struct {
	ID                   uuid.UUID      `json:"id"`
	ExamCode             string         `json:"exam_code"`
	Year                 int            `json:"year"`
	PDFPath              string         `json:"pdf_path"`
	NotificationURL      string         `json:"notification_url"`
	OriginalName         string         `json:"original_name"`
	RoundNumber          *int           `json:"round_number,omitempty"`
	RoundName            string         `json:"round_name"`
	SeatType             string         `json:"seat_type"`
	DetectionReason      string         `json:"detection_reason"`
	Classification       Classification `json:"pattern_classification"`
	DetectedSource       string         `json:"detected_source"`
	Status               ArtifactStatus `json:"status"`
	ReviewedBy           string         `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time     `json:"reviewed_at,omitempty"`
	ReviewNotes          string         `json:"review_notes,omitempty"`
	RawMetadata          map[string]any `json:"raw_metadata,omitempty"`
	RequiresReprocessing bool           `json:"requires_reprocessing"`
	ContentHash          string         `json:"content_hash,omitempty"`
	PreviousContentHash  string         `json:"previous_content_hash,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Round returns the artifact's round number, or 0 when none was recorded.
func (a *Artifact) Round() int {
	if a.RoundNumber == nil {
		return 0
	}
	return *a.RoundNumber
}

// MetaString returns a string value from the raw discovery metadata.
func (a *Artifact) MetaString(key string) string {
	if a.RawMetadata == nil {
		return ""
	}
	if s, ok := a.RawMetadata[key].(string); ok {
		return s
	}
	return ""
}

// Mode is an exam's ingestion strictness.
type Mode string

// Ingestion modes.
const (
	ModeBootstrap  Mode = "BOOTSTRAP"
	ModeContinuous Mode = "CONTINUOUS"
)

// ParseMode validates a mode string. There is no default.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBootstrap, ModeContinuous:
		return Mode(s), nil
	default:
		return "", eris.Errorf("model: invalid ingestion mode %q", s)
	}
}

// RunStatus is the state of one ingestion run.
type RunStatus string

// Run states.
const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// IngestionRun is the flight record of one orchestration attempt.
type IngestionRun struct {
	ID          uuid.UUID      `json:"run_id"`
	ArtifactID  uuid.UUID      `json:"artifact_id"`
	ExamCode    string         `json:"exam_code"`
	Status      RunStatus      `json:"status"`
	Stats       map[string]any `json:"stats,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
