package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification type enums for settlement events.
const (
	NotifyCheckpointSubmitted = "CHECKPOINT_SUBMITTED"
	NotifyCheckpointApproved  = "CHECKPOINT_APPROVED"
	NotifyCheckpointRejected  = "CHECKPOINT_REJECTED"
	NotifyContractActivated   = "CONTRACT_ACTIVATED"
	NotifyContractCompleted   = "CONTRACT_COMPLETED"
	NotifyContractTerminated  = "CONTRACT_TERMINATED"
	NotifySettlementRequested = "SETTLEMENT_REQUESTED"
	NotifySettlementFinalized = "SETTLEMENT_FINALIZED"
	NotifyDisputeOpened       = "DISPUTE_OPENED"
	NotifyDisputeResolved     = "DISPUTE_RESOLVED"
)

type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
