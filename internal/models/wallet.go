package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformUserID owns the system wallet that collects the 5% release fee.
var PlatformUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type Wallet struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	BalancePoints int64     `json:"balance_points"`
	LockedPoints  int64     `json:"locked_points"`
	UpdatedAt     time.Time `json:"updated_at"`
}
