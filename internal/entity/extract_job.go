package entity

import (
	"time"

	"github.com/google/uuid"
)

// ExtractJob is one ledger row per process-invoice call. It never carries
// extracted text or record fields.
type ExtractJob struct {
	ID           uuid.UUID  `json:"id"`
	RequestID    string     `json:"request_id,omitempty"`
	Subject      string     `json:"subject"`
	FileName     string     `json:"file_name"`
	ContentType  string     `json:"content_type"`
	Method       *string    `json:"method,omitempty"`
	Outcome      *string    `json:"outcome,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ElapsedMS    *int64     `json:"elapsed_ms,omitempty"`
}
