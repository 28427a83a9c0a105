package models

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint status enums. REJECTED is transient: a rejection returns the
// checkpoint to PENDING so the worker can resubmit.
const (
	CheckpointStatusPending   = "PENDING"
	CheckpointStatusSubmitted = "SUBMITTED"
	CheckpointStatusApproved  = "APPROVED"
	CheckpointStatusRejected  = "REJECTED"
	CheckpointStatusCancelled = "CANCELLED"
)

// Checkpoint is the priced unit of deliverable work the ledger settles against.
type Checkpoint struct {
	ID            uuid.UUID  `json:"id"`
	ContractID    uuid.UUID  `json:"contract_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	SubmissionURL *string    `json:"submission_url,omitempty"`
	ReviewNotes   *string    `json:"review_notes,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
