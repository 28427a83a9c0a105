package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusOpen     = "OPEN"
	DisputeStatusResolved = "RESOLVED"

	ResolutionClientWins = "CLIENT_WINS"
	ResolutionWorkerWins = "WORKER_WINS"
)

// Dispute is resolved exactly once by an arbitrator; the OPEN status is the
// idempotency guard.
type Dispute struct {
	ID         uuid.UUID  `json:"id"`
	ContractID uuid.UUID  `json:"contract_id"`
	RaisedBy   uuid.UUID  `json:"raised_by"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	Resolution *string    `json:"resolution,omitempty"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
