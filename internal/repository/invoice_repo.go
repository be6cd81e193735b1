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

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	CreateItems(ctx context.Context, items []model.InvoiceItem) error
	Save(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	// LockGenerationSlot creates and locks the (client, month) generation row.
	// Callers take it before FindGeneratedForUpdate.
	LockGenerationSlot(ctx context.Context, clientID uuid.UUID, month string) error
	// FindGeneratedForUpdate locks the active GENERATED invoice of the client
	// and month, returning nil when there is none.
	FindGeneratedForUpdate(ctx context.Context, clientID uuid.UUID, month string) (*model.Invoice, error)
	FindActiveByBatchForUpdate(ctx context.Context, batchID uuid.UUID) (*model.Invoice, error)
	ExistsActiveForBatch(ctx context.Context, batchID uuid.UUID) (bool, error)
	ListItems(ctx context.Context, invoiceID uuid.UUID) ([]model.InvoiceItem, error)
	TombstoneItems(ctx context.Context, invoiceID uuid.UUID, at time.Time) error
	Tombstone(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, int64, error)
}

type InvoiceFilter struct {
	ClientID     *uuid.UUID
	BillingMonth string
	Status       model.InvoiceStatus
	Page         int
	Limit        int
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Omit("Items").Create(invoice).Error
}

func (r *invoiceRepository) CreateItems(ctx context.Context, items []model.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Create(&items).Error
}

func (r *invoiceRepository) Save(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Omit("Items").Save(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).
		Preload("Items", "state = ?", string(model.RowActive), func(db *gorm.DB) *gorm.DB {
			return db.Order("item_type, service_code")
		}).
		First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockInvoice)
	if err != nil {
		return nil, err
	}
	var invoice model.Invoice
	if err := active(db).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func firstOrNil(db *gorm.DB) (*model.Invoice, error) {
	var invoice model.Invoice
	err := db.First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *invoiceRepository) LockGenerationSlot(ctx context.Context, clientID uuid.UUID, month string) error {
	tx := GetDB(ctx, r.db)

	seed := model.InvoiceGenerationSlot{ClientID: clientID, BillingMonth: month}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}, {Name: "billing_month"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return err
	}

	locked, err := lockFor(ctx, tx, LockInvoice)
	if err != nil {
		return err
	}
	var slot model.InvoiceGenerationSlot
	return locked.Where("client_id = ? AND billing_month = ?", clientID, month).First(&slot).Error
}

func (r *invoiceRepository) FindGeneratedForUpdate(ctx context.Context, clientID uuid.UUID, month string) (*model.Invoice, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockInvoice)
	if err != nil {
		return nil, err
	}
	return firstOrNil(active(db).
		Where("client_id = ? AND billing_month = ? AND origin = ?", clientID, month, model.InvoiceOriginGenerated).
		Order("id DESC"))
}

func (r *invoiceRepository) FindActiveByBatchForUpdate(ctx context.Context, batchID uuid.UUID) (*model.Invoice, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockInvoice)
	if err != nil {
		return nil, err
	}
	return firstOrNil(active(db).Where("settlement_batch_id = ?", batchID).Order("id DESC"))
}

func (r *invoiceRepository) ExistsActiveForBatch(ctx context.Context, batchID uuid.UUID) (bool, error) {
	var count int64
	err := active(GetDB(ctx, r.db).Model(&model.Invoice{})).
		Where("settlement_batch_id = ?", batchID).
		Count(&count).Error
	return count > 0, err
}

func (r *invoiceRepository) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]model.InvoiceItem, error) {
	var items []model.InvoiceItem
	err := active(GetDB(ctx, r.db)).
		Where("invoice_id = ?", invoiceID).
		Order("item_type, service_code").
		Find(&items).Error
	return items, err
}

func (r *invoiceRepository) TombstoneItems(ctx context.Context, invoiceID uuid.UUID, at time.Time) error {
	return active(GetDB(ctx, r.db).Model(&model.InvoiceItem{})).
		Where("invoice_id = ?", invoiceID).
		Updates(map[string]interface{}{"state": model.RowTombstoned, "tombstoned_at": at}).Error
}

func (r *invoiceRepository) Tombstone(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"state": model.RowTombstoned, "tombstoned_at": at}).Error
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	query := active(GetDB(ctx, r.db).Model(&model.Invoice{}))
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.BillingMonth != "" {
		query = query.Where("billing_month = ?", filter.BillingMonth)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Order("created_at desc").Offset(offset).Limit(filter.Limit).Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}
