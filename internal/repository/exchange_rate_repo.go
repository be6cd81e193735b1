package repository

import (
	"context"
	"errors"
	"time"

	"warehouse-billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ExchangeRateRepository interface {
	Create(ctx context.Context, rate *model.ExchangeRate) error
	Save(ctx context.Context, rate *model.ExchangeRate) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ExchangeRate, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ExchangeRate, error)
	// FindOnOrBefore returns the latest active rate dated on or before date, or nil.
	FindOnOrBefore(ctx context.Context, base, quote string, date time.Time) (*model.ExchangeRate, error)
	FindOnOrBeforeForUpdate(ctx context.Context, base, quote string, date time.Time) (*model.ExchangeRate, error)
	MarkLocked(ctx context.Context, id uuid.UUID, at time.Time) error
	ExistsForDate(ctx context.Context, base, quote string, date time.Time, excludeID *uuid.UUID) (bool, error)
	// CountInvoiceUsage counts active invoices that reference the rate or
	// store its exact value for the same currency pair.
	CountInvoiceUsage(ctx context.Context, rate *model.ExchangeRate) (int64, error)
	List(ctx context.Context, base, quote string, page, limit int) ([]model.ExchangeRate, int64, error)
}

type exchangeRateRepository struct {
	db *gorm.DB
}

func NewExchangeRateRepository(db *gorm.DB) ExchangeRateRepository {
	return &exchangeRateRepository{db: db}
}

func (r *exchangeRateRepository) Create(ctx context.Context, rate *model.ExchangeRate) error {
	return GetDB(ctx, r.db).Create(rate).Error
}

func (r *exchangeRateRepository) Save(ctx context.Context, rate *model.ExchangeRate) error {
	return GetDB(ctx, r.db).Save(rate).Error
}

func (r *exchangeRateRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ExchangeRate, error) {
	var rate model.ExchangeRate
	if err := active(GetDB(ctx, r.db)).First(&rate, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *exchangeRateRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.ExchangeRate, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockExchangeRate)
	if err != nil {
		return nil, err
	}
	var rate model.ExchangeRate
	if err := active(db).First(&rate, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *exchangeRateRepository) findOnOrBefore(db *gorm.DB, base, quote string, date time.Time) (*model.ExchangeRate, error) {
	var rate model.ExchangeRate
	err := active(db).
		Where("base_currency = ? AND quote_currency = ? AND status = ? AND rate_date <= ?",
			base, quote, model.ExchangeRateActive, date).
		Order("rate_date DESC").
		Order("id DESC").
		First(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

func (r *exchangeRateRepository) FindOnOrBefore(ctx context.Context, base, quote string, date time.Time) (*model.ExchangeRate, error) {
	return r.findOnOrBefore(GetDB(ctx, r.db), base, quote, date)
}

func (r *exchangeRateRepository) FindOnOrBeforeForUpdate(ctx context.Context, base, quote string, date time.Time) (*model.ExchangeRate, error) {
	db, err := lockFor(ctx, GetDB(ctx, r.db), LockExchangeRate)
	if err != nil {
		return nil, err
	}
	return r.findOnOrBefore(db, base, quote, date)
}

func (r *exchangeRateRepository) MarkLocked(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.ExchangeRate{}).
		Where("id = ? AND locked = ?", id, false).
		Updates(map[string]interface{}{"locked": true, "locked_at": at}).Error
}

func (r *exchangeRateRepository) ExistsForDate(ctx context.Context, base, quote string, date time.Time, excludeID *uuid.UUID) (bool, error) {
	var count int64
	query := active(GetDB(ctx, r.db).Model(&model.ExchangeRate{})).
		Where("base_currency = ? AND quote_currency = ? AND rate_date = ?", base, quote, date)
	if excludeID != nil {
		query = query.Where("id != ?", *excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *exchangeRateRepository) CountInvoiceUsage(ctx context.Context, rate *model.ExchangeRate) (int64, error) {
	var count int64
	err := active(GetDB(ctx, r.db).Model(&model.Invoice{})).
		Where("exchange_rate_id = ? OR (fx_base = ? AND fx_quote = ? AND fx_rate = ?)",
			rate.ID, rate.BaseCurrency, rate.QuoteCurrency, rate.Rate).
		Count(&count).Error
	return count, err
}

func (r *exchangeRateRepository) List(ctx context.Context, base, quote string, page, limit int) ([]model.ExchangeRate, int64, error) {
	var rates []model.ExchangeRate
	var total int64

	query := active(GetDB(ctx, r.db).Model(&model.ExchangeRate{}))
	if base != "" {
		query = query.Where("base_currency = ?", base)
	}
	if quote != "" {
		query = query.Where("quote_currency = ?", quote)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("rate_date desc, id desc").Offset(offset).Limit(limit).Find(&rates).Error; err != nil {
		return nil, 0, err
	}
	return rates, total, nil
}
