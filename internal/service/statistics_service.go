package service

import (
	"context"
	"time"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"
)

type StatisticsQuery struct {
	ClientID  string
	FromMonth string // YYYY-MM, defaults to ToMonth
	ToMonth   string // YYYY-MM, defaults to the current month
	Limit     int    // top services, default 5
}

type StatisticsService interface {
	GetBillingStatistics(ctx context.Context, q StatisticsQuery) (model.BillingStatistics, error)
}

type statisticsService struct {
	repo repository.StatisticsRepository
	now  func() time.Time
}

func NewStatisticsService(repo repository.StatisticsRepository) StatisticsService {
	return &statisticsService{repo: repo, now: time.Now}
}

// GetBillingStatistics summarizes invoiced revenue and service usage over a month range.
func (s *statisticsService) GetBillingStatistics(ctx context.Context, q StatisticsQuery) (model.BillingStatistics, error) {
	clientID, err := parseOptionalID("client_id", q.ClientID)
	if err != nil {
		return model.BillingStatistics{}, err
	}

	to := BillingMonth{Start: time.Date(s.now().UTC().Year(), s.now().UTC().Month(), 1, 0, 0, 0, 0, time.UTC)}
	if q.ToMonth != "" {
		if to, err = ParseBillingMonth(q.ToMonth); err != nil {
			return model.BillingStatistics{}, err
		}
	}
	from := to
	if q.FromMonth != "" {
		if from, err = ParseBillingMonth(q.FromMonth); err != nil {
			return model.BillingStatistics{}, err
		}
	}
	if from.Start.After(to.Start) {
		return model.BillingStatistics{}, apperror.Validation("from_month must not be after to_month")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	stats := model.BillingStatistics{FromMonth: from.String(), ToMonth: to.String()}
	if stats.Revenue, err = s.repo.RevenueByMonth(ctx, clientID, from.String(), to.String()); err != nil {
		return model.BillingStatistics{}, apperror.Internal("revenue statistics", err)
	}
	if stats.TopServices, err = s.repo.TopServices(ctx, clientID, from.Start, to.Next(), limit); err != nil {
		return model.BillingStatistics{}, apperror.Internal("service statistics", err)
	}
	if stats.PendingEvents, err = s.repo.CountPendingEvents(ctx, clientID, from.Start, to.Next()); err != nil {
		return model.BillingStatistics{}, apperror.FromStorage("billing event", err)
	}
	return stats, nil
}
