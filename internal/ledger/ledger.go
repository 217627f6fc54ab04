package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hourbank/backend/internal/models"
)

// Errors returned by Adjust. All are terminal for the request; the caller's
// transaction must be rolled back.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrNotFound            = errors.New("account not found")
)

// AccountStore is the minimal account repository interface for the ledger.
type AccountStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	SetBalances(ctx context.Context, tx pgx.Tx, id uuid.UUID, credits, lockedCredits int) error
}

// TransactionStore appends immutable ledger entries.
type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

// Meta describes the operation a balance adjustment belongs to.
type Meta struct {
	Type     models.TransactionType
	EscrowID *uuid.UUID
	TaskID   *uuid.UUID
	Detail   json.RawMessage
}

// Store is the single choke point for balance mutation. Every call locks
// the account row, applies both deltas, and appends a Transaction whose
// before/after snapshots match the pre/post state, all inside the caller's
// transaction, so either everything commits or nothing does.
type Store struct {
	accounts     AccountStore
	transactions TransactionStore
}

// New returns a ledger Store over the given repositories.
func New(accounts AccountStore, transactions TransactionStore) *Store {
	return &Store{accounts: accounts, transactions: transactions}
}

// Adjust applies delta to available credits and lockedDelta to locked
// credits of one account. The signed deltas must match the sign convention
// of meta.Type and must not drive either balance below zero.
func (s *Store) Adjust(ctx context.Context, tx pgx.Tx, userID uuid.UUID, delta, lockedDelta int, meta Meta) (*models.Transaction, error) {
	if err := checkSigns(meta.Type, delta, lockedDelta); err != nil {
		return nil, err
	}

	acc, err := s.accounts.GetForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	balanceAfter := acc.Credits + delta
	lockedAfter := acc.LockedCredits + lockedDelta
	if balanceAfter < 0 {
		return nil, ErrInsufficientBalance
	}
	if lockedAfter < 0 {
		return nil, ErrInvalidAmount
	}

	if err := s.accounts.SetBalances(ctx, tx, userID, balanceAfter, lockedAfter); err != nil {
		return nil, err
	}

	entry := &models.Transaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          meta.Type,
		Amount:        magnitude(delta, lockedDelta),
		BalanceBefore: acc.Credits,
		BalanceAfter:  balanceAfter,
		LockedBefore:  acc.LockedCredits,
		LockedAfter:   lockedAfter,
		EscrowID:      meta.EscrowID,
		TaskID:        meta.TaskID,
		Meta:          meta.Detail,
	}
	if err := s.transactions.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// checkSigns enforces the per-type sign convention:
//
//	lock          available -n, locked +n         (conservation)
//	release       payer: locked -n  |  payee: available +n
//	refund        available +n, locked -n         (conservation)
//	admin_adjust  available +/-n only
func checkSigns(typ models.TransactionType, delta, lockedDelta int) error {
	if delta == 0 && lockedDelta == 0 {
		return ErrInvalidAmount
	}
	switch typ {
	case models.TxLock:
		if delta >= 0 || lockedDelta <= 0 || delta != -lockedDelta {
			return ErrInvalidAmount
		}
	case models.TxRelease:
		payer := delta == 0 && lockedDelta < 0
		payee := delta > 0 && lockedDelta == 0
		if !payer && !payee {
			return ErrInvalidAmount
		}
	case models.TxRefund:
		if delta <= 0 || lockedDelta >= 0 || delta != -lockedDelta {
			return ErrInvalidAmount
		}
	case models.TxAdminAdjust:
		if delta == 0 || lockedDelta != 0 {
			return ErrInvalidAmount
		}
	default:
		return ErrInvalidAmount
	}
	return nil
}

func magnitude(delta, lockedDelta int) int {
	n := delta
	if n < 0 {
		n = -n
	}
	if l := lockedDelta; l > n {
		n = l
	} else if -l > n {
		n = -l
	}
	return n
}
