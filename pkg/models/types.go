package models

import (
	"time"
)

// ==================== Page Load Types ====================

// LoadStatus is the terminal status reported by a page host for one page-open attempt
type LoadStatus string

const (
	LoadSuccess LoadStatus = "success"
	LoadFail    LoadStatus = "fail"
)

// Exit codes of a verification run
const (
	ExitPass = 0
	ExitFail = 1
)

// ==================== Verification Types ====================

// VerificationResult is the outcome of a single page verification
type VerificationResult struct {
	RunID           string     `json:"run_id"`
	Status          RunStatus  `json:"status"`
	PageURL         string     `json:"page_url"`
	ExpectedMessage string     `json:"expected_message,omitempty"`
	LoadStatus      LoadStatus `json:"load_status,omitempty"`
	MessageObserved bool       `json:"message_observed"`
	Verdict         bool       `json:"verdict"`
	ExitCode        int        `json:"exit_code"`
	ConsoleMessages []string   `json:"console_messages,omitempty"`
	Duration        int64      `json:"duration_ms"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// VerificationInput is the input of the page verification workflow
type VerificationInput struct {
	RunID           string `json:"run_id"`
	PageURL         string `json:"page_url"`
	ExpectedMessage string `json:"expected_message,omitempty"`
	Headless        bool   `json:"headless"`
	Timeout         int    `json:"timeout_seconds"`
	RetryAttempts   int    `json:"retry_attempts"`
}

// ==================== Verification Run Types ====================

// VerificationRun represents a stored verification run
type VerificationRun struct {
	ID                 string     `json:"id" db:"id"`
	TemporalWorkflowID string     `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	TemporalRunID      string     `json:"temporal_run_id" db:"temporal_run_id"`
	PageURL            string     `json:"page_url" db:"page_url"`
	ExpectedMessage    string     `json:"expected_message,omitempty" db:"expected_message"`
	Status             RunStatus  `json:"status" db:"status"`
	LoadStatus         LoadStatus `json:"load_status,omitempty" db:"load_status"`
	MessageObserved    bool       `json:"message_observed" db:"message_observed"`
	Verdict            bool       `json:"verdict" db:"verdict"`
	ExitCode           *int       `json:"exit_code,omitempty" db:"exit_code"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`
	Duration           int64      `json:"duration_ms" db:"duration_ms"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`

	// Computed fields
	ConsoleMessages []ConsoleMessage `json:"console_messages,omitempty"`
}

// ConsoleMessage is one console line captured during a run
type ConsoleMessage struct {
	RunID    string `json:"run_id" db:"run_id"`
	Sequence int    `json:"sequence" db:"sequence"`
	Message  string `json:"message" db:"message"`
}

// RunStatus represents the status of a verification run
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusCanceled RunStatus = "canceled"
)

// IsTerminal reports whether no further transitions are expected
func (s RunStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// StatusFromVerdict maps a final verdict to a run status
func StatusFromVerdict(verdict bool) RunStatus {
	if verdict {
		return StatusSuccess
	}
	return StatusFailed
}

// ==================== API Request/Response Types ====================

// VerifyRequest represents a request to verify a page
type VerifyRequest struct {
	PageURL         string `json:"page_url"`
	ExpectedMessage string `json:"expected_message"`
	Headless        *bool  `json:"headless,omitempty"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
