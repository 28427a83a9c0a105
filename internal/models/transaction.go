package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction type enums. FEE is the platform-wallet leg of a release.
const (
	TransactionLock    = "LOCK"
	TransactionRelease = "RELEASE"
	TransactionRefund  = "REFUND"
	TransactionDeposit = "DEPOSIT"
	TransactionFee     = "FEE"
)

const TransactionStatusSuccess = "SUCCESS"

// Reference types tie a transaction to the entity that caused it.
const (
	ReferenceContract            = "CONTRACT"
	ReferenceCheckpoint          = "CHECKPOINT"
	ReferenceContractTermination = "CONTRACT_TERMINATION"
	ReferenceContractSettlement  = "CONTRACT_SETTLEMENT"
	ReferenceDisputeResolution   = "DISPUTE_RESOLUTION"
	ReferenceDeposit             = "DEPOSIT"
)

// Transaction is an append-only ledger entry: never updated, never deleted.
type Transaction struct {
	ID            uuid.UUID `json:"id"`
	WalletID      uuid.UUID `json:"wallet_id"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   uuid.UUID `json:"reference_id"`
	CreatedAt     time.Time `json:"created_at"`
}
