package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract status enums.
const (
	ContractStatusDraft     = "DRAFT"
	ContractStatusActive    = "ACTIVE"
	ContractStatusCompleted = "COMPLETED"
	ContractStatusCancelled = "CANCELLED"
	ContractStatusDisputed  = "DISPUTED"
)

// Contract escrows a job's budget against its checkpoints. TotalAmount always
// equals the sum of the contract's checkpoint amounts. FundsLocked is false
// only for carry-forward contracts spawned by termination, whose budget is
// re-locked when a worker is hired.
type Contract struct {
	ID                    uuid.UUID  `json:"id"`
	JobID                 uuid.UUID  `json:"job_id"`
	ClientID              uuid.UUID  `json:"client_id"`
	WorkerID              *uuid.UUID `json:"worker_id,omitempty"`
	TotalAmount           int64      `json:"total_amount"`
	Status                string     `json:"status"`
	FundsLocked           bool       `json:"funds_locked"`
	ClientSignature       *string    `json:"client_signature,omitempty"`
	WorkerSignature       *string    `json:"worker_signature,omitempty"`
	SignedAt              *time.Time `json:"signed_at,omitempty"`
	SettlementRequestedAt *time.Time `json:"settlement_requested_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
