package service

import (
	"context"
	"time"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"

	"github.com/google/uuid"
)

// MovementInput is the ledger entry a caller wants recorded.
type MovementInput struct {
	TxnType       model.StockTxnType
	ReferenceType string
	ReferenceID   string
	Key           model.StockKey
	QtyIn         int64
	QtyOut        int64
	TxnDate       time.Time
	Note          string
	ActorID       uuid.UUID
}

// StockLedger owns balances and the movement log. Its operations join the
// caller's transaction when ctx carries one.
type StockLedger interface {
	// AdjustBalance adds delta to available_qty, creating the row at zero on
	// first use. It does not enforce a lower bound.
	AdjustBalance(ctx context.Context, key model.StockKey, delta int64) (*model.StockBalance, error)
	// LockBalance creates the balance row when missing and locks it.
	LockBalance(ctx context.Context, key model.StockKey) (*model.StockBalance, error)
	// RecordMovement updates the active entry with the same natural key in
	// place, or inserts a new one.
	RecordMovement(ctx context.Context, in MovementInput) (*model.StockTransaction, error)
	// ReverseMovement tombstones the active entry. Balances are untouched.
	ReverseMovement(ctx context.Context, txnType model.StockTxnType, refType, refID string) error
}

type stockLedger struct {
	repo      repository.StockRepository
	txManager repository.TransactionManager
}

func NewStockLedger(repo repository.StockRepository, txManager repository.TransactionManager) StockLedger {
	return &stockLedger{repo: repo, txManager: txManager}
}

func (l *stockLedger) LockBalance(ctx context.Context, key model.StockKey) (*model.StockBalance, error) {
	if !key.Valid() {
		return nil, apperror.Validation("stock key requires client, product, lot, warehouse and location")
	}
	if err := l.repo.EnsureBalance(ctx, key); err != nil {
		return nil, apperror.FromStorage("stock balance", err)
	}
	balance, err := l.repo.FindBalanceForUpdate(ctx, key)
	if err != nil {
		return nil, apperror.FromStorage("stock balance", err)
	}
	return balance, nil
}

func (l *stockLedger) AdjustBalance(ctx context.Context, key model.StockKey, delta int64) (*model.StockBalance, error) {
	var balance *model.StockBalance
	err := l.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := l.LockBalance(txCtx, key)
		if err != nil {
			return err
		}
		if delta != 0 {
			if err := l.repo.AddAvailable(txCtx, locked.ID, delta); err != nil {
				return apperror.FromStorage("stock balance", err)
			}
			locked.AvailableQty += delta
		}
		balance = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (l *stockLedger) RecordMovement(ctx context.Context, in MovementInput) (*model.StockTransaction, error) {
	if !in.TxnType.Valid() {
		return nil, apperror.Validation("unknown txn_type " + string(in.TxnType))
	}
	if in.ReferenceType == "" || in.ReferenceID == "" {
		return nil, apperror.Validation("reference_type and reference_id are required")
	}
	if in.QtyIn < 0 || in.QtyOut < 0 {
		return nil, apperror.Validation("qty_in and qty_out must not be negative")
	}
	if err := requireActor(in.ActorID); err != nil {
		return nil, err
	}

	var txn *model.StockTransaction
	err := l.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := l.repo.FindActiveTxnForUpdate(txCtx, in.TxnType, in.ReferenceType, in.ReferenceID)
		if err != nil {
			return apperror.FromStorage("stock transaction", err)
		}

		if existing == nil {
			txn = &model.StockTransaction{
				StockKey:      in.Key,
				TxnType:       in.TxnType,
				ReferenceType: in.ReferenceType,
				ReferenceID:   in.ReferenceID,
				QtyIn:         in.QtyIn,
				QtyOut:        in.QtyOut,
				TxnDate:       in.TxnDate,
				Note:          in.Note,
				CreatedBy:     in.ActorID,
				Lifecycle:     model.ActiveLifecycle(),
			}
			return apperror.FromStorage("stock transaction", l.repo.CreateTxn(txCtx, txn))
		}

		existing.StockKey = in.Key
		existing.QtyIn = in.QtyIn
		existing.QtyOut = in.QtyOut
		existing.TxnDate = in.TxnDate
		existing.Note = in.Note
		txn = existing
		return apperror.FromStorage("stock transaction", l.repo.UpdateTxn(txCtx, txn))
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (l *stockLedger) ReverseMovement(ctx context.Context, txnType model.StockTxnType, refType, refID string) error {
	return l.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := l.repo.FindActiveTxnForUpdate(txCtx, txnType, refType, refID)
		if err != nil {
			return apperror.FromStorage("stock transaction", err)
		}
		if existing == nil {
			return apperror.NotFound("stock transaction")
		}
		return apperror.FromStorage("stock transaction", l.repo.TombstoneTxn(txCtx, existing.ID, time.Now().UTC()))
	})
}
