package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionType values. The sign convention per type:
//
//	lock          available -amount, locked +amount
//	release       locked of the payer -amount, available of the payee +amount
//	refund        locked -amount, available +amount (same account)
//	admin_adjust  available +/-amount (the only way credits enter or leave
//	              the system)
type TransactionType string

const (
	TxLock        TransactionType = "lock"
	TxRelease     TransactionType = "release"
	TxRefund      TransactionType = "refund"
	TxAdminAdjust TransactionType = "admin_adjust"
)

// Transaction is an immutable ledger entry. Written exactly once per
// balance-affecting operation, in the same database transaction as the
// account mutation it describes. Never updated or deleted.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Type          TransactionType `json:"type"`
	Amount        int             `json:"amount"`
	BalanceBefore int             `json:"balance_before"`
	BalanceAfter  int             `json:"balance_after"`
	LockedBefore  int             `json:"locked_before"`
	LockedAfter   int             `json:"locked_after"`
	EscrowID      *uuid.UUID      `json:"escrow_id,omitempty"`
	TaskID        *uuid.UUID      `json:"task_id,omitempty"`
	Meta          json.RawMessage `json:"meta,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
