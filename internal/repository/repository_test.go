package repository_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"warehouse-billing/internal/database"
	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newKey() model.StockKey {
	return model.StockKey{
		ClientID:    uuid.New(),
		ProductID:   uuid.New(),
		LotID:       uuid.New(),
		WarehouseID: uuid.New(),
		LocationID:  uuid.New(),
	}
}

func TestLockOrder_LowerRankAfterHigherIsRejected(t *testing.T) {
	db := openDB(t)
	txm := repository.NewTransactionManager(db)
	invoices := repository.NewInvoiceRepository(db)
	stock := repository.NewStockRepository(db)

	err := txm.RunInTx(context.Background(), func(ctx context.Context) error {
		_, _ = invoices.FindByIDForUpdate(ctx, uuid.New())
		_, err := stock.FindBalanceForUpdate(ctx, newKey())
		return err
	})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeLockOrderViolation, apperror.CodeOf(err))
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
}

func TestLockOrder_AscendingAndRepeatedRanksAreAllowed(t *testing.T) {
	db := openDB(t)
	txm := repository.NewTransactionManager(db)
	stock := repository.NewStockRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	key := newKey()

	var got []repository.LockRank
	err := txm.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := stock.EnsureBalance(ctx, key); err != nil {
			return err
		}
		if _, err := stock.FindBalanceForUpdate(ctx, key); err != nil {
			return err
		}
		if _, err := stock.FindBalanceForUpdate(ctx, key); err != nil {
			return err
		}
		if _, err := invoices.FindByIDForUpdate(ctx, uuid.New()); !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		got = repository.AcquiredLocks(ctx)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []repository.LockRank{
		repository.LockStockBalance, repository.LockStockBalance, repository.LockInvoice,
	}, got)
}

func TestLockOrder_NestedTransactionSharesTracker(t *testing.T) {
	db := openDB(t)
	txm := repository.NewTransactionManager(db)
	invoices := repository.NewInvoiceRepository(db)
	stock := repository.NewStockRepository(db)

	err := txm.RunInTx(context.Background(), func(ctx context.Context) error {
		_, _ = invoices.FindByIDForUpdate(ctx, uuid.New())
		return txm.RunInTx(ctx, func(inner context.Context) error {
			_, err := stock.FindBalanceForUpdate(inner, newKey())
			return err
		})
	})
	assert.Equal(t, apperror.CodeLockOrderViolation, apperror.CodeOf(err))
}

func TestLockOrder_OutsideTransactionIsUntracked(t *testing.T) {
	db := openDB(t)
	stock := repository.NewStockRepository(db)

	ctx := context.Background()
	_, err := stock.FindBalanceForUpdate(ctx, newKey())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Nil(t, repository.AcquiredLocks(ctx))
	assert.False(t, repository.InTx(ctx))
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	db := openDB(t)
	txm := repository.NewTransactionManager(db)
	stock := repository.NewStockRepository(db)
	key := newKey()

	boom := errors.New("boom")
	err := txm.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := stock.EnsureBalance(ctx, key); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = stock.FindBalance(context.Background(), key)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSequence_ConcurrentAllocationIsGapless(t *testing.T) {
	db := openDB(t)
	txm := repository.NewTransactionManager(db)
	seq := repository.NewSequenceRepository(db)
	client := uuid.New()

	const n = 20
	var (
		mu     sync.Mutex
		values []int64
		wg     sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := txm.RunInTx(context.Background(), func(ctx context.Context) error {
				v, err := seq.Next(ctx, client, "202602")
				if err != nil {
					return err
				}
				mu.Lock()
				values = append(values, v)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, values, n)
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		assert.Equal(t, int64(i+1), v)
	}
}

func TestSequence_PeriodsAreIndependent(t *testing.T) {
	db := openDB(t)
	txm := repository.NewTransactionManager(db)
	seq := repository.NewSequenceRepository(db)
	client := uuid.New()

	next := func(period string) int64 {
		var v int64
		require.NoError(t, txm.RunInTx(context.Background(), func(ctx context.Context) error {
			var err error
			v, err = seq.Next(ctx, client, period)
			return err
		}))
		return v
	}
	assert.Equal(t, int64(1), next("202601"))
	assert.Equal(t, int64(2), next("202601"))
	assert.Equal(t, int64(1), next("202602"))
	assert.Equal(t, int64(1), func() int64 {
		var v int64
		require.NoError(t, txm.RunInTx(context.Background(), func(ctx context.Context) error {
			var err error
			v, err = seq.Next(ctx, uuid.New(), "202601")
			return err
		}))
		return v
	}())
}
