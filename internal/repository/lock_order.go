package repository

import (
	"context"
	"fmt"
	"sync"

	"warehouse-billing/internal/model"
	"warehouse-billing/pkg/apperror"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockRank orders row-lock acquisition inside one transaction. A transaction
// may take locks of equal or higher rank than the last one it took, never
// lower. Invoice generation follows
// invoice -> exchange rate -> invoice sequence -> billing events.
type LockRank int

const (
	LockStockBalance LockRank = 10 + iota*10
	LockStockTransaction
	LockSettlementBatch
	LockInvoice
	LockExchangeRate
	LockInvoiceSequence
	LockBillingEvent
	LockReopenRequest
)

func (r LockRank) String() string {
	switch r {
	case LockStockBalance:
		return "stock_balance"
	case LockStockTransaction:
		return "stock_transaction"
	case LockSettlementBatch:
		return "settlement_batch"
	case LockInvoice:
		return "invoice"
	case LockExchangeRate:
		return "exchange_rate"
	case LockInvoiceSequence:
		return "invoice_sequence"
	case LockBillingEvent:
		return "billing_event"
	case LockReopenRequest:
		return "reopen_request"
	}
	return fmt.Sprintf("rank_%d", int(r))
}

type lockTracker struct {
	mu       sync.Mutex
	highest  LockRank
	acquired []LockRank
}

func newLockTracker() *lockTracker {
	return &lockTracker{}
}

func (t *lockTracker) acquire(rank LockRank) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rank < t.highest {
		return apperror.Wrap(apperror.KindInternal, apperror.CodeLockOrderViolation,
			fmt.Sprintf("lock %s requested after %s", rank, t.highest), nil)
	}
	t.highest = rank
	t.acquired = append(t.acquired, rank)
	return nil
}

// AcquiredLocks returns the ranks locked so far in the transaction carried by ctx.
func AcquiredLocks(ctx context.Context) []LockRank {
	t, ok := ctx.Value(trackerKey).(*lockTracker)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LockRank, len(t.acquired))
	copy(out, t.acquired)
	return out
}

// lockFor records the acquisition in the transaction's tracker and returns a
// query that takes exclusive row locks. Outside a transaction it is a plain query.
func lockFor(ctx context.Context, db *gorm.DB, rank LockRank) (*gorm.DB, error) {
	t, ok := ctx.Value(trackerKey).(*lockTracker)
	if !ok {
		return db, nil
	}
	if err := t.acquire(rank); err != nil {
		return nil, err
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"}), nil
}

// active filters out tombstoned rows.
func active(db *gorm.DB) *gorm.DB {
	return db.Where("state = ?", string(model.RowActive))
}
