package service

import (
	"context"
	"strings"
	"time"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CreateTaxRuleRequest struct {
	TaxType       string `json:"tax_type" binding:"required,oneof=VAT"`
	Rate          string `json:"rate" binding:"required"`           // Decimal string, e.g. "0.07"
	EffectiveFrom string `json:"effective_from" binding:"required"` // YYYY-MM-DD
	EffectiveTo   string `json:"effective_to"`                      // YYYY-MM-DD, nullable
	Description   string `json:"description"`
}

type TaxRuleResponse struct {
	ID            string  `json:"id"`
	TaxType       string  `json:"tax_type"`
	Rate          string  `json:"rate"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to"`
	Description   string  `json:"description"`
	CreatedAt     string  `json:"created_at"`
}

// --- Interface ---

type TaxService interface {
	GetTaxRules(ctx context.Context) ([]TaxRuleResponse, error)
	CreateTaxRule(ctx context.Context, req CreateTaxRuleRequest, actorID uuid.UUID) (TaxRuleResponse, error)
	// VATRate is the rate of the VAT rule in force on date, or the configured
	// fallback when no rule covers it.
	VATRate(ctx context.Context, date time.Time) (decimal.Decimal, error)
}

type taxService struct {
	ruleRepo  repository.TaxRuleRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	fallback  decimal.Decimal
}

func NewTaxService(
	ruleRepo repository.TaxRuleRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	fallbackVAT decimal.Decimal,
) TaxService {
	return &taxService{
		ruleRepo:  ruleRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		fallback:  fallbackVAT,
	}
}

// --- Implementation ---

func (s *taxService) GetTaxRules(ctx context.Context) ([]TaxRuleResponse, error) {
	rules, err := s.ruleRepo.List(ctx, "")
	if err != nil {
		return nil, apperror.FromStorage("tax rule", err)
	}
	res := make([]TaxRuleResponse, 0, len(rules))
	for _, r := range rules {
		res = append(res, toTaxRuleResponse(r))
	}
	return res, nil
}

func (s *taxService) CreateTaxRule(ctx context.Context, req CreateTaxRuleRequest, actorID uuid.UUID) (TaxRuleResponse, error) {
	if err := requireActor(actorID); err != nil {
		return TaxRuleResponse{}, err
	}
	taxType := strings.ToUpper(strings.TrimSpace(req.TaxType))
	if taxType != model.TaxTypeVAT {
		return TaxRuleResponse{}, apperror.Validation("unsupported tax_type " + req.TaxType)
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil || rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return TaxRuleResponse{}, apperror.Validation("rate must be a decimal in [0, 1)")
	}
	from, err := parseDate("effective_from", req.EffectiveFrom)
	if err != nil {
		return TaxRuleResponse{}, err
	}
	var to *time.Time
	if req.EffectiveTo != "" {
		parsed, err := parseDate("effective_to", req.EffectiveTo)
		if err != nil {
			return TaxRuleResponse{}, err
		}
		if parsed.Before(from) {
			return TaxRuleResponse{}, apperror.Validation("effective_to must not be before effective_from")
		}
		to = &parsed
	}

	rule := model.TaxRule{
		TaxType:       taxType,
		Rate:          rate,
		EffectiveFrom: from,
		EffectiveTo:   to,
		Description:   req.Description,
		CreatedBy:     &actorID,
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		overlapping, err := s.ruleRepo.CountOverlapping(txCtx, taxType, from, to)
		if err != nil {
			return apperror.FromStorage("tax rule", err)
		}
		if overlapping > 0 {
			return apperror.Conflict(apperror.CodeConflict, "a "+taxType+" rule already covers part of that period")
		}
		if err := s.ruleRepo.Create(txCtx, &rule); err != nil {
			return apperror.FromStorage("tax rule", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionCreateTaxRule, "tax_rule", rule.ID.String(), req)
	})
	if err != nil {
		return TaxRuleResponse{}, err
	}
	return toTaxRuleResponse(rule), nil
}

func (s *taxService) VATRate(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	rule, err := s.ruleRepo.FindActiveByType(ctx, model.TaxTypeVAT, dateOnly(date))
	if err != nil {
		return decimal.Zero, apperror.FromStorage("tax rule", err)
	}
	if rule == nil {
		return s.fallback, nil
	}
	return rule.Rate, nil
}

// --- Mapping ---

func toTaxRuleResponse(r model.TaxRule) TaxRuleResponse {
	resp := TaxRuleResponse{
		ID:            r.ID.String(),
		TaxType:       r.TaxType,
		Rate:          r.Rate.StringFixed(4),
		EffectiveFrom: r.EffectiveFrom.Format("2006-01-02"),
		Description:   r.Description,
		CreatedAt:     r.CreatedAt.Format(time.RFC3339),
	}
	if r.EffectiveTo != nil {
		s := r.EffectiveTo.Format("2006-01-02")
		resp.EffectiveTo = &s
	}
	return resp
}
