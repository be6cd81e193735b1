package service

import (
	"context"
	"strings"
	"time"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"
	"warehouse-billing/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateExchangeRateRequest struct {
	BaseCurrency  string `json:"base_currency" binding:"required"`
	QuoteCurrency string `json:"quote_currency" binding:"required"`
	RateDate      string `json:"rate_date" binding:"required"` // YYYY-MM-DD
	Rate          string `json:"rate" binding:"required"`
	Status        string `json:"status"` // defaults to active
	Source        string `json:"source"`
}

type UpdateExchangeRateRequest struct {
	RateDate string `json:"rate_date"`
	Rate     string `json:"rate"`
	Status   string `json:"status"`
	Source   string `json:"source"`
}

// --- Interface ---

type ExchangeRateService interface {
	// FindRateOnOrBefore returns nil, nil when no active rate is dated on or before date.
	FindRateOnOrBefore(ctx context.Context, base, quote string, date time.Time) (*model.ExchangeRate, error)
	// LockRate freezes the rate. Locking an already locked rate is a no-op.
	LockRate(ctx context.Context, id string, actorID uuid.UUID) (*model.ExchangeRate, error)
	Create(ctx context.Context, req CreateExchangeRateRequest, actorID uuid.UUID) (*model.ExchangeRate, error)
	Update(ctx context.Context, id string, req UpdateExchangeRateRequest, actorID uuid.UUID) (*model.ExchangeRate, error)
	Delete(ctx context.Context, id string, actorID uuid.UUID) error
	Get(ctx context.Context, id string) (*model.ExchangeRate, error)
	List(ctx context.Context, base, quote string, page, limit int) ([]model.ExchangeRate, int64, error)
}

type exchangeRateService struct {
	rateRepo  repository.ExchangeRateRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	obs       Observers
}

func NewExchangeRateService(
	rateRepo repository.ExchangeRateRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	obs Observers,
) ExchangeRateService {
	return &exchangeRateService{
		rateRepo:  rateRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		obs:       obs.withDefaults(),
	}
}

func normalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case model.CurrencyTHB, model.CurrencyKRW:
		return code, nil
	}
	return "", apperror.Validation("unsupported currency " + code)
}

func parseRate(raw string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !rate.IsPositive() {
		return decimal.Decimal{}, apperror.Validation("rate must be a positive decimal")
	}
	return rate, nil
}

// --- Implementation ---

func (s *exchangeRateService) FindRateOnOrBefore(ctx context.Context, base, quote string, date time.Time) (*model.ExchangeRate, error) {
	rate, err := s.rateRepo.FindOnOrBefore(ctx, strings.ToUpper(base), strings.ToUpper(quote), dateOnly(date))
	if err != nil {
		return nil, apperror.FromStorage("exchange rate", err)
	}
	return rate, nil
}

func (s *exchangeRateService) Get(ctx context.Context, id string) (*model.ExchangeRate, error) {
	rateID, err := parseID("exchange rate id", id)
	if err != nil {
		return nil, err
	}
	rate, err := s.rateRepo.FindByID(ctx, rateID)
	if err != nil {
		return nil, apperror.FromStorage("exchange rate", err)
	}
	return rate, nil
}

func (s *exchangeRateService) List(ctx context.Context, base, quote string, page, limit int) ([]model.ExchangeRate, int64, error) {
	p := pagination.New(page, limit)
	page, limit = p.Page, p.Limit
	rates, total, err := s.rateRepo.List(ctx, strings.ToUpper(base), strings.ToUpper(quote), page, limit)
	if err != nil {
		return nil, 0, apperror.FromStorage("exchange rate", err)
	}
	return rates, total, nil
}

func (s *exchangeRateService) Create(ctx context.Context, req CreateExchangeRateRequest, actorID uuid.UUID) (*model.ExchangeRate, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	base, err := normalizeCurrency(req.BaseCurrency)
	if err != nil {
		return nil, err
	}
	quote, err := normalizeCurrency(req.QuoteCurrency)
	if err != nil {
		return nil, err
	}
	if base == quote {
		return nil, apperror.Validation("base and quote currency must differ")
	}
	rateDate, err := parseDate("rate_date", req.RateDate)
	if err != nil {
		return nil, err
	}
	value, err := parseRate(req.Rate)
	if err != nil {
		return nil, err
	}
	status := model.ExchangeRateActive
	if req.Status != "" {
		status = model.ExchangeRateStatus(strings.ToLower(req.Status))
		if !status.Valid() {
			return nil, apperror.Validation("invalid status")
		}
	}

	rate := &model.ExchangeRate{
		BaseCurrency:  base,
		QuoteCurrency: quote,
		RateDate:      rateDate,
		Rate:          value,
		Status:        status,
		Source:        req.Source,
		CreatedBy:     actorID,
		Lifecycle:     model.ActiveLifecycle(),
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		exists, err := s.rateRepo.ExistsForDate(txCtx, base, quote, rateDate, nil)
		if err != nil {
			return apperror.FromStorage("exchange rate", err)
		}
		if exists {
			return apperror.Conflict(apperror.CodeDuplicateRate, "a rate for "+base+"/"+quote+" on "+req.RateDate+" already exists")
		}
		if err := s.rateRepo.Create(txCtx, rate); err != nil {
			return apperror.FromStorage("exchange rate", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionCreateRate, "exchange_rate", rate.ID.String(), req)
	})
	if err != nil {
		return nil, s.obs.fail("fx.create", err)
	}
	return rate, nil
}

// ensureMutable rejects edits of a locked rate and of a rate whose value an
// invoice already carries.
func (s *exchangeRateService) ensureMutable(ctx context.Context, rate *model.ExchangeRate) error {
	if rate.Locked {
		return apperror.Locked("exchange rate is locked")
	}
	used, err := s.rateRepo.CountInvoiceUsage(ctx, rate)
	if err != nil {
		return apperror.FromStorage("exchange rate", err)
	}
	if used > 0 {
		return apperror.Locked("exchange rate is referenced by an invoice")
	}
	return nil
}

func (s *exchangeRateService) Update(ctx context.Context, id string, req UpdateExchangeRateRequest, actorID uuid.UUID) (*model.ExchangeRate, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	rateID, err := parseID("exchange rate id", id)
	if err != nil {
		return nil, err
	}

	var rate *model.ExchangeRate
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		rate, findErr = s.rateRepo.FindByIDForUpdate(txCtx, rateID)
		if findErr != nil {
			return apperror.FromStorage("exchange rate", findErr)
		}
		if err := s.ensureMutable(txCtx, rate); err != nil {
			return err
		}

		before := *rate
		if req.Rate != "" {
			value, err := parseRate(req.Rate)
			if err != nil {
				return err
			}
			rate.Rate = value
		}
		if req.RateDate != "" {
			rateDate, err := parseDate("rate_date", req.RateDate)
			if err != nil {
				return err
			}
			exists, err := s.rateRepo.ExistsForDate(txCtx, rate.BaseCurrency, rate.QuoteCurrency, rateDate, &rate.ID)
			if err != nil {
				return apperror.FromStorage("exchange rate", err)
			}
			if exists {
				return apperror.Conflict(apperror.CodeDuplicateRate, "a rate for that date already exists")
			}
			rate.RateDate = rateDate
		}
		if req.Status != "" {
			status := model.ExchangeRateStatus(strings.ToLower(req.Status))
			if !status.Valid() {
				return apperror.Validation("invalid status")
			}
			rate.Status = status
		}
		if req.Source != "" {
			rate.Source = req.Source
		}

		if err := s.rateRepo.Save(txCtx, rate); err != nil {
			return apperror.FromStorage("exchange rate", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionUpdateRate, "exchange_rate", rate.ID.String(),
			map[string]interface{}{"old_rate": before.Rate.String(), "new_rate": rate.Rate.String()})
	})
	if err != nil {
		return nil, s.obs.fail("fx.update", err)
	}
	return rate, nil
}

func (s *exchangeRateService) Delete(ctx context.Context, id string, actorID uuid.UUID) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	rateID, err := parseID("exchange rate id", id)
	if err != nil {
		return err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rate, err := s.rateRepo.FindByIDForUpdate(txCtx, rateID)
		if err != nil {
			return apperror.FromStorage("exchange rate", err)
		}
		if err := s.ensureMutable(txCtx, rate); err != nil {
			return err
		}
		rate.Tombstone(time.Now().UTC())
		if err := s.rateRepo.Save(txCtx, rate); err != nil {
			return apperror.FromStorage("exchange rate", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionDeleteRate, "exchange_rate", rate.ID.String(), nil)
	})
	return s.obs.fail("fx.delete", err)
}

func (s *exchangeRateService) LockRate(ctx context.Context, id string, actorID uuid.UUID) (*model.ExchangeRate, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	rateID, err := parseID("exchange rate id", id)
	if err != nil {
		return nil, err
	}

	var rate *model.ExchangeRate
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		rate, findErr = s.rateRepo.FindByIDForUpdate(txCtx, rateID)
		if findErr != nil {
			return apperror.FromStorage("exchange rate", findErr)
		}
		if rate.Locked {
			return nil
		}
		if err := lockRateRow(txCtx, s.rateRepo, rate); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionLockRate, "exchange_rate", rate.ID.String(), nil)
	})
	if err != nil {
		return nil, s.obs.fail("fx.lock", err)
	}
	return rate, nil
}

// lockRateRow sets the irreversible locked flag on a row the caller already holds.
func lockRateRow(ctx context.Context, repo repository.ExchangeRateRepository, rate *model.ExchangeRate) error {
	if rate.Locked {
		return nil
	}
	now := time.Now().UTC()
	if err := repo.MarkLocked(ctx, rate.ID, now); err != nil {
		return apperror.FromStorage("exchange rate", err)
	}
	rate.Locked = true
	rate.LockedAt = &now
	return nil
}
