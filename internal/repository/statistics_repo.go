package repository

import (
	"context"
	"fmt"
	"time"

	"warehouse-billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StatisticsRepository interface {
	// RevenueByMonth sums issued and paid invoices per billing month, both bounds inclusive.
	RevenueByMonth(ctx context.Context, clientID *uuid.UUID, fromMonth, toMonth string) ([]model.RevenuePoint, error)
	// TopServices ranks services by event count for event dates in [from, to).
	TopServices(ctx context.Context, clientID *uuid.UUID, from, to time.Time, limit int) ([]model.ServiceRanking, error)
	CountPendingEvents(ctx context.Context, clientID *uuid.UUID, from, to time.Time) (int64, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func forClient(db *gorm.DB, clientID *uuid.UUID) *gorm.DB {
	if clientID != nil {
		return db.Where("client_id = ?", *clientID)
	}
	return db
}

func (r *statisticsRepository) RevenueByMonth(ctx context.Context, clientID *uuid.UUID, fromMonth, toMonth string) ([]model.RevenuePoint, error) {
	var points []model.RevenuePoint
	db := active(GetDB(ctx, r.db).Model(&model.Invoice{})).
		Select("billing_month, COUNT(*) AS invoices, COALESCE(SUM(subtotal), 0) AS subtotal, COALESCE(SUM(vat), 0) AS vat, COALESCE(SUM(total), 0) AS total").
		Where("status IN ?", []model.InvoiceStatus{model.InvoiceIssued, model.InvoicePaid}).
		Where("billing_month >= ? AND billing_month <= ?", fromMonth, toMonth)
	if err := forClient(db, clientID).
		Group("billing_month").
		Order("billing_month").
		Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to query revenue by month: %w", err)
	}
	return points, nil
}

func (r *statisticsRepository) TopServices(ctx context.Context, clientID *uuid.UUID, from, to time.Time, limit int) ([]model.ServiceRanking, error) {
	var rankings []model.ServiceRanking
	db := active(GetDB(ctx, r.db).Model(&model.BillingEvent{})).
		Select("service_code, COUNT(*) AS events, COALESCE(SUM(qty), 0) AS total_qty, COALESCE(SUM(amount_thb), 0) AS amount_thb, COALESCE(SUM(amount_krw), 0) AS amount_krw").
		Where("event_date >= ? AND event_date < ?", from, to)
	if err := forClient(db, clientID).
		Group("service_code").
		Order("events DESC, service_code").
		Limit(limit).
		Scan(&rankings).Error; err != nil {
		return nil, fmt.Errorf("failed to query top services: %w", err)
	}
	return rankings, nil
}

func (r *statisticsRepository) CountPendingEvents(ctx context.Context, clientID *uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	db := active(GetDB(ctx, r.db).Model(&model.BillingEvent{})).
		Where("status = ? AND event_date >= ? AND event_date < ?", model.BillingEventPending, from, to)
	err := forClient(db, clientID).Count(&count).Error
	return count, err
}
