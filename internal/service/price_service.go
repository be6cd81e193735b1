package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"warehouse-billing/internal/model"
	"warehouse-billing/internal/repository"
	"warehouse-billing/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type CreateServiceRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	BillingBasis string `json:"billing_basis" binding:"required,oneof=QTY BOX ORDER MANUAL"`
}

type CreatePricePolicyRequest struct {
	ClientID      string `json:"client_id" binding:"required"`
	ServiceCode   string `json:"service_code" binding:"required"`
	PricingPolicy string `json:"pricing_policy" binding:"required,oneof=THB_BASED KRW_FIXED"`
	UnitPrice     string `json:"unit_price" binding:"required"`
	EffectiveFrom string `json:"effective_from" binding:"required"` // YYYY-MM-DD
	EffectiveTo   string `json:"effective_to"`                      // YYYY-MM-DD, empty = open-ended
}

type PricePolicyResponse struct {
	ID            string  `json:"id"`
	ClientID      string  `json:"client_id"`
	ServiceCode   string  `json:"service_code"`
	PricingPolicy string  `json:"pricing_policy"`
	UnitPrice     string  `json:"unit_price"`
	EffectiveFrom string  `json:"effective_from"`
	EffectiveTo   *string `json:"effective_to"`
}

// ResolvedPrice is the contract rate in force for a client and service on a date.
type ResolvedPrice struct {
	Service model.BillableService
	Policy  model.PricePolicy
}

// ComputeBasisUnits converts a usage into the number of billable units of basis.
func ComputeBasisUnits(basis model.BillingBasis, qty decimal.Decimal, boxCount int64) decimal.Decimal {
	switch basis {
	case model.BillingBasisQty:
		return qty
	case model.BillingBasisBox:
		return decimal.NewFromInt(boxCount)
	case model.BillingBasisOrder:
		return decimal.NewFromInt(1)
	}
	return decimal.Zero
}

// ComputeAmount is unit price times basis units, rounded to 4 places.
func ComputeAmount(unitPrice decimal.Decimal, basis model.BillingBasis, qty decimal.Decimal, boxCount int64) decimal.Decimal {
	return Round4(unitPrice.Mul(ComputeBasisUnits(basis, qty, boxCount)))
}

// --- Interface ---

type PriceService interface {
	// ResolveActivePrice returns nil, nil when the client has no rate in force.
	ResolveActivePrice(ctx context.Context, clientID uuid.UUID, serviceCode string, onDate time.Time) (*ResolvedPrice, error)
	CreateService(ctx context.Context, req CreateServiceRequest, actorID uuid.UUID) (*model.BillableService, error)
	ListServices(ctx context.Context) ([]model.BillableService, error)
	CreatePricePolicy(ctx context.Context, req CreatePricePolicyRequest, actorID uuid.UUID) (PricePolicyResponse, error)
	ListPricePolicies(ctx context.Context, clientID string) ([]PricePolicyResponse, error)
}

type priceService struct {
	serviceRepo repository.ServiceRepository
	policyRepo  repository.PricePolicyRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
}

func NewPriceService(
	serviceRepo repository.ServiceRepository,
	policyRepo repository.PricePolicyRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) PriceService {
	return &priceService{
		serviceRepo: serviceRepo,
		policyRepo:  policyRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
	}
}

// --- Implementation ---

func (s *priceService) ResolveActivePrice(ctx context.Context, clientID uuid.UUID, serviceCode string, onDate time.Time) (*ResolvedPrice, error) {
	svc, err := s.serviceRepo.FindByCode(ctx, serviceCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("billable service " + serviceCode)
	}
	if err != nil {
		return nil, apperror.FromStorage("billable service", err)
	}

	policy, err := s.policyRepo.FindActive(ctx, clientID, svc.ID, dateOnly(onDate))
	if err != nil {
		return nil, apperror.FromStorage("price policy", err)
	}
	if policy == nil {
		return nil, nil
	}
	return &ResolvedPrice{Service: *svc, Policy: *policy}, nil
}

func (s *priceService) CreateService(ctx context.Context, req CreateServiceRequest, actorID uuid.UUID) (*model.BillableService, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || code == model.VATServiceCode {
		return nil, apperror.Validation("invalid service code")
	}

	basis := model.BillingBasis(req.BillingBasis)
	if !basis.Valid() {
		return nil, apperror.Validation("invalid billing_basis")
	}

	svc := &model.BillableService{
		Code:         code,
		Name:         strings.TrimSpace(req.Name),
		BillingBasis: basis,
	}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.serviceRepo.Create(txCtx, svc); err != nil {
			return apperror.FromStorage("billable service", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionCreateService, "billable_service", svc.ID.String(), svc)
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *priceService) ListServices(ctx context.Context) ([]model.BillableService, error) {
	services, err := s.serviceRepo.List(ctx)
	if err != nil {
		return nil, apperror.FromStorage("billable service", err)
	}
	return services, nil
}

func (s *priceService) CreatePricePolicy(ctx context.Context, req CreatePricePolicyRequest, actorID uuid.UUID) (PricePolicyResponse, error) {
	if err := requireActor(actorID); err != nil {
		return PricePolicyResponse{}, err
	}
	clientID, err := parseID("client_id", req.ClientID)
	if err != nil {
		return PricePolicyResponse{}, err
	}
	policyType := model.PricingPolicy(req.PricingPolicy)
	if !policyType.Valid() {
		return PricePolicyResponse{}, apperror.Validation("invalid pricing_policy")
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil || unitPrice.IsNegative() {
		return PricePolicyResponse{}, apperror.Validation("unit_price must be a non-negative decimal")
	}
	from, err := parseDate("effective_from", req.EffectiveFrom)
	if err != nil {
		return PricePolicyResponse{}, err
	}
	var to *time.Time
	if req.EffectiveTo != "" {
		parsed, err := parseDate("effective_to", req.EffectiveTo)
		if err != nil {
			return PricePolicyResponse{}, err
		}
		if parsed.Before(from) {
			return PricePolicyResponse{}, apperror.Validation("effective_to must not be before effective_from")
		}
		to = &parsed
	}

	svc, err := s.serviceRepo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(req.ServiceCode)))
	if err != nil {
		return PricePolicyResponse{}, apperror.FromStorage("billable service", err)
	}

	policy := model.PricePolicy{
		ClientID:      clientID,
		ServiceID:     svc.ID,
		PricingPolicy: policyType,
		UnitPrice:     unitPrice,
		EffectiveFrom: from,
		EffectiveTo:   to,
		CreatedBy:     actorID,
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.policyRepo.Create(txCtx, &policy); err != nil {
			return apperror.FromStorage("price policy", err)
		}
		return writeAudit(txCtx, s.auditRepo, actorID, model.ActionCreatePrice, "price_policy", policy.ID.String(), req)
	})
	if err != nil {
		return PricePolicyResponse{}, err
	}
	policy.Service = *svc
	return toPricePolicyResponse(policy), nil
}

func (s *priceService) ListPricePolicies(ctx context.Context, clientID string) ([]PricePolicyResponse, error) {
	id, err := parseID("client_id", clientID)
	if err != nil {
		return nil, err
	}
	policies, err := s.policyRepo.ListByClient(ctx, id)
	if err != nil {
		return nil, apperror.FromStorage("price policy", err)
	}
	res := make([]PricePolicyResponse, 0, len(policies))
	for _, p := range policies {
		res = append(res, toPricePolicyResponse(p))
	}
	return res, nil
}

// --- Mapping ---

func toPricePolicyResponse(p model.PricePolicy) PricePolicyResponse {
	resp := PricePolicyResponse{
		ID:            p.ID.String(),
		ClientID:      p.ClientID.String(),
		ServiceCode:   p.Service.Code,
		PricingPolicy: string(p.PricingPolicy),
		UnitPrice:     p.UnitPrice.StringFixed(4),
		EffectiveFrom: p.EffectiveFrom.Format("2006-01-02"),
	}
	if p.EffectiveTo != nil {
		s := p.EffectiveTo.Format("2006-01-02")
		resp.EffectiveTo = &s
	}
	return resp
}
