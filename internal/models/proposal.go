package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProposalStatusPending   = "PENDING"
	ProposalStatusAccepted  = "ACCEPTED"
	ProposalStatusWithdrawn = "WITHDRAWN"
)

type Proposal struct {
	ID            uuid.UUID `json:"id"`
	JobID         uuid.UUID `json:"job_id"`
	WorkerID      uuid.UUID `json:"worker_id"`
	CoverLetter   string    `json:"cover_letter,omitempty"`
	ProposedPrice int64     `json:"proposed_price"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
