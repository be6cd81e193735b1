package repository

import (
	"context"
	"errors"
	"time"

	"warehouse-billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BillingEventRepository interface {
	Create(ctx context.Context, event *model.BillingEvent) error
	Save(ctx context.Context, event *model.BillingEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BillingEvent, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.BillingEvent, error)
	// FindByReference returns the newest event for the reference regardless of
	// its lifecycle state, or nil when there is none.
	FindByReference(ctx context.Context, refType, refID string) (*model.BillingEvent, error)
	FindByReferenceForUpdate(ctx context.Context, refType, refID string) (*model.BillingEvent, error)
	// LockByIDs locks the active events among ids.
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]model.BillingEvent, error)
	LockPendingInRange(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]model.BillingEvent, error)
	ListActiveInRange(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]model.BillingEvent, error)
	ReleaseByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error)
	List(ctx context.Context, filter BillingEventFilter) ([]model.BillingEvent, int64, error)
}

type BillingEventFilter struct {
	ClientID    *uuid.UUID
	Status      model.BillingEventStatus
	ServiceCode string
	InvoiceID   *uuid.UUID
	From        *time.Time
	To          *time.Time // exclusive
	Page        int
	Limit       int
}

type billingEventRepository struct {
	db *gorm.DB
}

func NewBillingEventRepository(db *gorm.DB) BillingEventRepository {
	return &billingEventRepository{db: db}
}

func (r *billingEventRepository) Create(ctx context.Context, event *model.BillingEvent) error {
	return GetDB(ctx, r.db).Create(event).Error
}

func (r *billingEventRepository) Save(ctx context.Context, event *model.BillingEvent) error {
	return GetDB(ctx, r.db).Save(event).Error
}

func (r *billingEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.BillingEvent, error) {
	var event model.BillingEvent
	if err := active(GetDB(ctx, r.db)).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *billingEventRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.BillingEvent, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockBillingEvent)
	if err != nil {
		return nil, err
	}
	var event model.BillingEvent
	if err := active(db).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *billingEventRepository) findByReference(db *gorm.DB, refType, refID string) (*model.BillingEvent, error) {
	var event model.BillingEvent
	err := db.Where("reference_type = ? AND reference_id = ?", refType, refID).
		Order("id DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *billingEventRepository) FindByReference(ctx context.Context, refType, refID string) (*model.BillingEvent, error) {
	return r.findByReference(GetDB(ctx, r.db), refType, refID)
}

func (r *billingEventRepository) FindByReferenceForUpdate(ctx context.Context, refType, refID string) (*model.BillingEvent, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockBillingEvent)
	if err != nil {
		return nil, err
	}
	return r.findByReference(db, refType, refID)
}

// LockPendingInRange locks the client's PENDING events dated in [from, to).
func (r *billingEventRepository) LockPendingInRange(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]model.BillingEvent, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockBillingEvent)
	if err != nil {
		return nil, err
	}
	var events []model.BillingEvent
	err = active(db).
		Where("client_id = ? AND status = ? AND event_date >= ? AND event_date < ?",
			clientID, model.BillingEventPending, from, to).
		Order("event_date, id").
		Find(&events).Error
	return events, err
}

func (r *billingEventRepository) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]model.BillingEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockBillingEvent)
	if err != nil {
		return nil, err
	}
	var events []model.BillingEvent
	err = active(db).Where("id IN ?", ids).Order("id").Find(&events).Error
	return events, err
}

func (r *billingEventRepository) ListActiveInRange(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]model.BillingEvent, error) {
	var events []model.BillingEvent
	err := active(GetDB(ctx, r.db)).
		Where("client_id = ? AND event_date >= ? AND event_date < ?", clientID, from, to).
		Order("event_date, id").
		Find(&events).Error
	return events, err
}

// ReleaseByInvoice puts every event linked to the invoice back to PENDING.
func (r *billingEventRepository) ReleaseByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.BillingEvent{}).
		Where("invoice_id = ?", invoiceID).
		Updates(map[string]interface{}{
			"status":       model.BillingEventPending,
			"invoice_id":   nil,
			"fx_rate_used": nil,
			"invoiced_krw": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *billingEventRepository) List(ctx context.Context, filter BillingEventFilter) ([]model.BillingEvent, int64, error) {
	var events []model.BillingEvent
	var total int64

	db := active(GetDB(ctx, r.db).Model(&model.BillingEvent{}))
	if filter.ClientID != nil {
		db = db.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.ServiceCode != "" {
		db = db.Where("service_code = ?", filter.ServiceCode)
	}
	if filter.InvoiceID != nil {
		db = db.Where("invoice_id = ?", *filter.InvoiceID)
	}
	if filter.From != nil {
		db = db.Where("event_date >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("event_date < ?", *filter.To)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Order("event_date desc, id desc").Offset(offset).Limit(filter.Limit).Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}
