package repository

import (
	"context"
	"errors"
	"time"

	"warehouse-billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ServiceRepository interface {
	Create(ctx context.Context, svc *model.BillableService) error
	FindByCode(ctx context.Context, code string) (*model.BillableService, error)
	List(ctx context.Context) ([]model.BillableService, error)
}

type serviceRepository struct {
	db *gorm.DB
}

func NewServiceRepository(db *gorm.DB) ServiceRepository {
	return &serviceRepository{db: db}
}

func (r *serviceRepository) Create(ctx context.Context, svc *model.BillableService) error {
	return GetDB(ctx, r.db).Create(svc).Error
}

func (r *serviceRepository) FindByCode(ctx context.Context, code string) (*model.BillableService, error) {
	var svc model.BillableService
	if err := GetDB(ctx, r.db).First(&svc, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *serviceRepository) List(ctx context.Context) ([]model.BillableService, error) {
	var services []model.BillableService
	err := GetDB(ctx, r.db).Order("code").Find(&services).Error
	return services, err
}

type PricePolicyRepository interface {
	Create(ctx context.Context, policy *model.PricePolicy) error
	// FindActive returns nil, nil when no policy covers onDate.
	FindActive(ctx context.Context, clientID, serviceID uuid.UUID, onDate time.Time) (*model.PricePolicy, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]model.PricePolicy, error)
}

type pricePolicyRepository struct {
	db *gorm.DB
}

func NewPricePolicyRepository(db *gorm.DB) PricePolicyRepository {
	return &pricePolicyRepository{db: db}
}

func (r *pricePolicyRepository) Create(ctx context.Context, policy *model.PricePolicy) error {
	return GetDB(ctx, r.db).Omit("Service").Create(policy).Error
}

func (r *pricePolicyRepository) FindActive(ctx context.Context, clientID, serviceID uuid.UUID, onDate time.Time) (*model.PricePolicy, error) {
	var policy model.PricePolicy
	err := GetDB(ctx, r.db).
		Where("client_id = ? AND service_id = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)",
			clientID, serviceID, onDate, onDate).
		Order("effective_from DESC").
		Order("id DESC").
		First(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *pricePolicyRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]model.PricePolicy, error) {
	var policies []model.PricePolicy
	err := GetDB(ctx, r.db).Preload("Service").
		Where("client_id = ?", clientID).
		Order("effective_from desc, id desc").
		Find(&policies).Error
	return policies, err
}
