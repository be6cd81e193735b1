package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type contextKey string

const (
	txKey      contextKey = "gorm_tx"
	trackerKey contextKey = "lock_tracker"
)

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

// NewTransactionManagerWithOptions runs every transaction with the given
// isolation settings.
func NewTransactionManagerWithOptions(db *gorm.DB, opts *sql.TxOptions) TransactionManager {
	return &transactionManager{db: db, opts: opts}
}

// RunInTx executes fn in one all-or-nothing transaction. Nested calls join
// the outer transaction. Every transaction gets a fresh lock-order tracker.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	run := func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		txCtx = context.WithValue(txCtx, trackerKey, newLockTracker())
		return fn(txCtx)
	}
	if t.opts != nil {
		return t.db.WithContext(ctx).Transaction(run, t.opts)
	}
	return t.db.WithContext(ctx).Transaction(run)
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey).(*gorm.DB)
	return ok
}
