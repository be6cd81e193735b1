package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingBasis is the unit a service is priced on.
type BillingBasis string

const (
	BillingBasisQty    BillingBasis = "QTY"
	BillingBasisBox    BillingBasis = "BOX"
	BillingBasisOrder  BillingBasis = "ORDER"
	BillingBasisManual BillingBasis = "MANUAL"
)

func (b BillingBasis) Valid() bool {
	switch b {
	case BillingBasisQty, BillingBasisBox, BillingBasisOrder, BillingBasisManual:
		return true
	}
	return false
}

// PricingPolicy decides which currency an amount is carried in.
type PricingPolicy string

const (
	PricingTHBBased PricingPolicy = "THB_BASED"
	PricingKRWFixed PricingPolicy = "KRW_FIXED"
)

func (p PricingPolicy) Valid() bool {
	switch p {
	case PricingTHBBased, PricingKRWFixed:
		return true
	}
	return false
}

// BillableService is a catalog entry referenced by its code.
type BillableService struct {
	Base
	Code         string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name         string       `gorm:"type:varchar(255);not null" json:"name"`
	BillingBasis BillingBasis `gorm:"type:varchar(10);not null" json:"billing_basis"`
}

// PricePolicy is a client contract rate for one service, valid for a date range.
// EffectiveTo nil means open-ended.
type PricePolicy struct {
	Base
	ClientID      uuid.UUID       `gorm:"type:uuid;not null;index:ix_price_policy_lookup,priority:1" json:"client_id"`
	ServiceID     uuid.UUID       `gorm:"type:uuid;not null;index:ix_price_policy_lookup,priority:2" json:"service_id"`
	Service       BillableService `gorm:"foreignKey:ServiceID" json:"-"`
	PricingPolicy PricingPolicy   `gorm:"type:varchar(12);not null" json:"pricing_policy"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	EffectiveFrom time.Time       `gorm:"type:date;not null;index:ix_price_policy_lookup,priority:3" json:"effective_from"`
	EffectiveTo   *time.Time      `gorm:"type:date" json:"effective_to"`
	CreatedBy     uuid.UUID       `gorm:"type:uuid;not null" json:"created_by"`
}
