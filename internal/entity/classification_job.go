package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/collateral-classifier/constants"
)

// ClassificationJob is the audit record of one classification request.
type ClassificationJob struct {
	ID            uuid.UUID           `json:"id"`
	Filename      string              `json:"filename"`
	ContentSHA256 string              `json:"content_sha256"`
	SizeBytes     int64               `json:"size_bytes"`
	PageCount     int                 `json:"page_count"`
	Status        constants.JobStatus `json:"status"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	Threshold     float64             `json:"threshold"`
	ModelType     string              `json:"model_type,omitempty"`
	Predictions   json.RawMessage     `json:"predictions,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    *time.Time          `json:"finished_at,omitempty"`
}

// Duration is the wall time of a finished job, zero while running.
func (j *ClassificationJob) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
