package models

import "time"

// Run statuses
const (
	RunStatusCompleted      = "completed"
	RunStatusPartialFailure = "partial_failure"
	RunStatusCancelled      = "cancelled"
)

// RunRecord is the persisted summary of one graph run
type RunRecord struct {
	ID          string                    `json:"id" bson:"_id"`
	ProjectID   string                    `json:"project_id" bson:"projectId"`
	Status      string                    `json:"status" bson:"status"` // completed, partial_failure, cancelled
	Order       []string                  `json:"order" bson:"order"`
	Skipped     []string                  `json:"skipped,omitempty" bson:"skipped,omitempty"`
	BlockStates map[string]*BlockRunState `json:"block_states,omitempty" bson:"blockStates,omitempty"`
	Failed      int                       `json:"failed" bson:"failed"`
	StartedAt   time.Time                 `json:"started_at" bson:"startedAt"`
	CompletedAt time.Time                 `json:"completed_at" bson:"completedAt"`
	DurationMs  int64                     `json:"duration_ms" bson:"durationMs"`
}

// BlockRunState represents the execution state of a single block within a run
type BlockRunState struct {
	Status      string         `json:"status" bson:"status"` // pending, running, retrying, completed, failed, skipped
	Inputs      map[string]any `json:"inputs,omitempty" bson:"inputs,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty" bson:"outputs,omitempty"`
	Error       string         `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty" bson:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty" bson:"completedAt,omitempty"`

	// Retry tracking for API calls
	RetryCount   int            `json:"retry_count,omitempty" bson:"retryCount,omitempty"`
	RetryHistory []RetryAttempt `json:"retry_history,omitempty" bson:"retryHistory,omitempty"`
}

// RetryAttempt records a single retried outbound call
type RetryAttempt struct {
	Attempt   int       `json:"attempt" bson:"attempt"`
	Error     string    `json:"error" bson:"error"`
	ErrorType string    `json:"error_type" bson:"errorType"` // "timeout", "rate_limit", "server_error", ...
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
