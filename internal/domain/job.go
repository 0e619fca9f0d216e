package domain

import (
	"strings"
	"time"
)

// JobFlow enumerates how a generation job was requested.
type JobFlow string

const (
	JobFlowBrief  JobFlow = "brief"
	JobFlowPrompt JobFlow = "prompt"
)

// JobStatus enumerates the states reported by the generation backend.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus normalizes a backend status string. Unknown values are kept
// as-is and treated as in progress by IsTerminal.
func ParseJobStatus(raw string) JobStatus {
	return JobStatus(strings.ToLower(strings.TrimSpace(raw)))
}

// IsTerminal reports whether polling should stop on this status.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Snapshot is a single observation of a job returned by the status endpoint.
type Snapshot struct {
	JobID    string
	Status   JobStatus
	Progress *int
	Message  string
	Error    string
	Results  []Result
}

// FailureMessage returns the best available explanation for a failed job.
func (s Snapshot) FailureMessage() string {
	if msg := strings.TrimSpace(s.Error); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(s.Message); msg != "" {
		return msg
	}
	return "generation failed"
}

// Outcome enumerates the ways a tracked job can end on the client side.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// Generation is the persisted record of a job submitted by this client.
type Generation struct {
	ID           string
	SessionID    string
	BriefID      string
	Flow         JobFlow
	Prompt       string
	Count        int
	AspectRatio  string
	Outcome      Outcome
	ResultJSON   []byte
	ErrorMessage string
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
