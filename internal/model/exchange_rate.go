package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency codes
const (
	CurrencyTHB = "THB"
	CurrencyKRW = "KRW"
)

// ExchangeRateStatus enum
type ExchangeRateStatus string

const (
	ExchangeRateDraft      ExchangeRateStatus = "draft"
	ExchangeRateActive     ExchangeRateStatus = "active"
	ExchangeRateSuperseded ExchangeRateStatus = "superseded"
)

func (s ExchangeRateStatus) Valid() bool {
	switch s {
	case ExchangeRateDraft, ExchangeRateActive, ExchangeRateSuperseded:
		return true
	}
	return false
}

// ExchangeRate is a dated conversion rate: 1 Base = Rate Quote.
// Once Locked, or once an invoice stores its value, it can no longer change.
type ExchangeRate struct {
	Base
	BaseCurrency  string             `gorm:"type:varchar(3);not null;index:ix_exchange_rate_lookup,priority:1" json:"base_currency"`
	QuoteCurrency string             `gorm:"type:varchar(3);not null;index:ix_exchange_rate_lookup,priority:2" json:"quote_currency"`
	RateDate      time.Time          `gorm:"type:date;not null;index:ix_exchange_rate_lookup,priority:3" json:"rate_date"`
	Rate          decimal.Decimal    `gorm:"type:decimal(18,6);not null" json:"rate"`
	Status        ExchangeRateStatus `gorm:"type:varchar(12);not null;default:'active'" json:"status"`
	Locked        bool               `gorm:"not null;default:false" json:"locked"`
	LockedAt      *time.Time         `json:"locked_at"`
	Source        string             `gorm:"type:varchar(100)" json:"source"`
	CreatedBy     uuid.UUID          `gorm:"type:uuid;not null" json:"created_by"`
	Lifecycle
}
