package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxType enum constants
const (
	TaxTypeVAT = "VAT"
)

// TaxRule stores tax rates with temporal validity
type TaxRule struct {
	Base
	TaxType       string          `gorm:"type:varchar(20);not null;index" json:"tax_type"`
	Rate          decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"rate"`        // e.g. 0.07 = 7%
	EffectiveFrom time.Time       `gorm:"type:date;not null;index" json:"effective_from"` // Start date
	EffectiveTo   *time.Time      `gorm:"type:date;index" json:"effective_to"`            // End date, nullable = currently active
	Description   string          `gorm:"type:text" json:"description"`
	CreatedBy     *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
}
