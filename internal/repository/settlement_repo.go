package repository

import (
	"context"
	"errors"

	"warehouse-billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SettlementRepository interface {
	CreateBatch(ctx context.Context, batch *model.SettlementBatch) error
	SaveBatch(ctx context.Context, batch *model.SettlementBatch) error
	FindBatchByID(ctx context.Context, id uuid.UUID) (*model.SettlementBatch, error)
	FindBatchByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.SettlementBatch, error)
	// FindBatchForUpdate locks the batch of the client and month, returning nil when absent.
	FindBatchForUpdate(ctx context.Context, clientID uuid.UUID, month string) (*model.SettlementBatch, error)
	ListBatches(ctx context.Context, clientID *uuid.UUID, status model.SettlementBatchStatus, page, limit int) ([]model.SettlementBatch, int64, error)

	DeleteLines(ctx context.Context, batchID uuid.UUID) error
	CreateLines(ctx context.Context, lines []model.SettlementLine) error
	ListLines(ctx context.Context, batchID uuid.UUID) ([]model.SettlementLine, error)

	CreateRequest(ctx context.Context, req *model.SettlementReopenRequest) error
	SaveRequest(ctx context.Context, req *model.SettlementReopenRequest) error
	FindRequestByID(ctx context.Context, id uuid.UUID) (*model.SettlementReopenRequest, error)
	FindRequestByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.SettlementReopenRequest, error)
	HasOpenRequest(ctx context.Context, batchID uuid.UUID) (bool, error)
	ListRequests(ctx context.Context, batchID uuid.UUID) ([]model.SettlementReopenRequest, error)

	AppendLog(ctx context.Context, entry *model.SettlementReopenLog) error
	ListLogs(ctx context.Context, batchID uuid.UUID) ([]model.SettlementReopenLog, error)
}

type settlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) SettlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) CreateBatch(ctx context.Context, batch *model.SettlementBatch) error {
	return GetDB(ctx, r.db).Omit("Lines").Create(batch).Error
}

func (r *settlementRepository) SaveBatch(ctx context.Context, batch *model.SettlementBatch) error {
	return GetDB(ctx, r.db).Omit("Lines").Save(batch).Error
}

func (r *settlementRepository) FindBatchByID(ctx context.Context, id uuid.UUID) (*model.SettlementBatch, error) {
	var batch model.SettlementBatch
	err := GetDB(ctx, r.db).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("event_date, id") }).
		First(&batch, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *settlementRepository) FindBatchByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.SettlementBatch, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockSettlementBatch)
	if err != nil {
		return nil, err
	}
	var batch model.SettlementBatch
	if err := db.First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *settlementRepository) FindBatchForUpdate(ctx context.Context, clientID uuid.UUID, month string) (*model.SettlementBatch, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockSettlementBatch)
	if err != nil {
		return nil, err
	}
	var batch model.SettlementBatch
	err = db.Where("client_id = ? AND billing_month = ?", clientID, month).First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *settlementRepository) ListBatches(ctx context.Context, clientID *uuid.UUID, status model.SettlementBatchStatus, page, limit int) ([]model.SettlementBatch, int64, error) {
	var batches []model.SettlementBatch
	var total int64

	query := GetDB(ctx, r.db).Model(&model.SettlementBatch{})
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("billing_month desc, id desc").Offset(offset).Limit(limit).Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// DeleteLines removes the batch lines outright; they are recomputed on every generate.
func (r *settlementRepository) DeleteLines(ctx context.Context, batchID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("batch_id = ?", batchID).Delete(&model.SettlementLine{}).Error
}

func (r *settlementRepository) CreateLines(ctx context.Context, lines []model.SettlementLine) error {
	if len(lines) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&lines).Error
}

func (r *settlementRepository) ListLines(ctx context.Context, batchID uuid.UUID) ([]model.SettlementLine, error) {
	var lines []model.SettlementLine
	err := GetDB(ctx, r.db).Where("batch_id = ?", batchID).Order("event_date, id").Find(&lines).Error
	return lines, err
}

func (r *settlementRepository) CreateRequest(ctx context.Context, req *model.SettlementReopenRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *settlementRepository) SaveRequest(ctx context.Context, req *model.SettlementReopenRequest) error {
	return GetDB(ctx, r.db).Save(req).Error
}

func (r *settlementRepository) FindRequestByID(ctx context.Context, id uuid.UUID) (*model.SettlementReopenRequest, error) {
	var req model.SettlementReopenRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *settlementRepository) FindRequestByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.SettlementReopenRequest, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockReopenRequest)
	if err != nil {
		return nil, err
	}
	var req model.SettlementReopenRequest
	if err := db.First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *settlementRepository) HasOpenRequest(ctx context.Context, batchID uuid.UUID) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.SettlementReopenRequest{}).
		Where("batch_id = ? AND status = ?", batchID, model.ReopenRequested).
		Count(&count).Error
	return count > 0, err
}

func (r *settlementRepository) ListRequests(ctx context.Context, batchID uuid.UUID) ([]model.SettlementReopenRequest, error) {
	var requests []model.SettlementReopenRequest
	err := GetDB(ctx, r.db).Where("batch_id = ?", batchID).Order("created_at desc").Find(&requests).Error
	return requests, err
}

func (r *settlementRepository) AppendLog(ctx context.Context, entry *model.SettlementReopenLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *settlementRepository) ListLogs(ctx context.Context, batchID uuid.UUID) ([]model.SettlementReopenLog, error) {
	var logs []model.SettlementReopenLog
	err := GetDB(ctx, r.db).Where("batch_id = ?", batchID).Order("created_at, id").Find(&logs).Error
	return logs, err
}
