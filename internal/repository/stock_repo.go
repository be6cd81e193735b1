package repository

import (
	"context"
	"errors"
	"time"

	"warehouse-billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StockRepository interface {
	// EnsureBalance creates the zero balance row for key if it does not exist.
	EnsureBalance(ctx context.Context, key model.StockKey) error
	FindBalance(ctx context.Context, key model.StockKey) (*model.StockBalance, error)
	FindBalanceForUpdate(ctx context.Context, key model.StockKey) (*model.StockBalance, error)
	AddAvailable(ctx context.Context, balanceID uuid.UUID, delta int64) error
	ListBalances(ctx context.Context, clientID uuid.UUID, page, limit int) ([]model.StockBalance, int64, error)

	FindActiveTxn(ctx context.Context, txnType model.StockTxnType, refType, refID string) (*model.StockTransaction, error)
	FindActiveTxnForUpdate(ctx context.Context, txnType model.StockTxnType, refType, refID string) (*model.StockTransaction, error)
	CreateTxn(ctx context.Context, txn *model.StockTransaction) error
	UpdateTxn(ctx context.Context, txn *model.StockTransaction) error
	TombstoneTxn(ctx context.Context, id uuid.UUID, at time.Time) error
	SumActiveDelta(ctx context.Context, key model.StockKey) (int64, error)
	ListTxns(ctx context.Context, filter StockTxnFilter) ([]model.StockTransaction, int64, error)
}

type StockTxnFilter struct {
	ClientID      *uuid.UUID
	ReferenceType string
	ReferenceID   string
	IncludeAll    bool // include tombstoned rows
	Page          int
	Limit         int
}

type stockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepository{db: db}
}

func whereKey(db *gorm.DB, key model.StockKey) *gorm.DB {
	return db.Where("client_id = ? AND product_id = ? AND lot_id = ? AND warehouse_id = ? AND location_id = ?",
		key.ClientID, key.ProductID, key.LotID, key.WarehouseID, key.LocationID)
}

func (r *stockRepository) EnsureBalance(ctx context.Context, key model.StockKey) error {
	balance := model.StockBalance{
		ClientID:    key.ClientID,
		ProductID:   key.ProductID,
		LotID:       key.LotID,
		WarehouseID: key.WarehouseID,
		LocationID:  key.LocationID,
	}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "client_id"}, {Name: "product_id"}, {Name: "lot_id"}, {Name: "warehouse_id"}, {Name: "location_id"},
		},
		DoNothing: true,
	}).Create(&balance).Error
}

func (r *stockRepository) FindBalance(ctx context.Context, key model.StockKey) (*model.StockBalance, error) {
	var balance model.StockBalance
	if err := whereKey(GetDB(ctx, r.db), key).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *stockRepository) FindBalanceForUpdate(ctx context.Context, key model.StockKey) (*model.StockBalance, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockStockBalance)
	if err != nil {
		return nil, err
	}
	var balance model.StockBalance
	if err := whereKey(db, key).First(&balance).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *stockRepository) AddAvailable(ctx context.Context, balanceID uuid.UUID, delta int64) error {
	return GetDB(ctx, r.db).Model(&model.StockBalance{}).Where("id = ?", balanceID).
		Update("available_qty", gorm.Expr("available_qty + ?", delta)).Error
}

func (r *stockRepository) ListBalances(ctx context.Context, clientID uuid.UUID, page, limit int) ([]model.StockBalance, int64, error) {
	var balances []model.StockBalance
	var total int64

	db := GetDB(ctx, r.db).Model(&model.StockBalance{}).Where("client_id = ?", clientID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := db.Order("product_id, lot_id, warehouse_id, location_id").Offset(offset).Limit(limit).Find(&balances).Error; err != nil {
		return nil, 0, err
	}
	return balances, total, nil
}

func (r *stockRepository) findActiveTxn(db *gorm.DB, txnType model.StockTxnType, refType, refID string) (*model.StockTransaction, error) {
	var txn model.StockTransaction
	err := active(db).
		Where("txn_type = ? AND reference_type = ? AND reference_id = ?", txnType, refType, refID).
		Order("id DESC").
		First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindActiveTxn returns nil, nil when no active entry matches the natural key.
func (r *stockRepository) FindActiveTxn(ctx context.Context, txnType model.StockTxnType, refType, refID string) (*model.StockTransaction, error) {
	return r.findActiveTxn(GetDB(ctx, r.db), txnType, refType, refID)
}

func (r *stockRepository) FindActiveTxnForUpdate(ctx context.Context, txnType model.StockTxnType, refType, refID string) (*model.StockTransaction, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockStockTransaction)
	if err != nil {
		return nil, err
	}
	return r.findActiveTxn(db, txnType, refType, refID)
}

func (r *stockRepository) CreateTxn(ctx context.Context, txn *model.StockTransaction) error {
	return GetDB(ctx, r.db).Create(txn).Error
}

func (r *stockRepository) UpdateTxn(ctx context.Context, txn *model.StockTransaction) error {
	return GetDB(ctx, r.db).Save(txn).Error
}

func (r *stockRepository) TombstoneTxn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.StockTransaction{}).Where("id = ?", id).
		Updates(map[string]interface{}{"state": model.RowTombstoned, "tombstoned_at": at}).Error
}

func (r *stockRepository) SumActiveDelta(ctx context.Context, key model.StockKey) (int64, error) {
	var sum struct{ Total int64 }
	err := whereKey(active(GetDB(ctx, r.db).Model(&model.StockTransaction{})), key).
		Select("COALESCE(SUM(qty_in - qty_out), 0) AS total").
		Scan(&sum).Error
	return sum.Total, err
}

func (r *stockRepository) ListTxns(ctx context.Context, filter StockTxnFilter) ([]model.StockTransaction, int64, error) {
	var txns []model.StockTransaction
	var total int64

	db := GetDB(ctx, r.db).Model(&model.StockTransaction{})
	if !filter.IncludeAll {
		db = active(db)
	}
	if filter.ClientID != nil {
		db = db.Where("client_id = ?", *filter.ClientID)
	}
	if filter.ReferenceType != "" {
		db = db.Where("reference_type = ?", filter.ReferenceType)
	}
	if filter.ReferenceID != "" {
		db = db.Where("reference_id = ?", filter.ReferenceID)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Order("txn_date desc, id desc").Offset(offset).Limit(filter.Limit).Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}
