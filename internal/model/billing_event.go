package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingEventStatus enum
type BillingEventStatus string

const (
	BillingEventPending  BillingEventStatus = "PENDING"
	BillingEventInvoiced BillingEventStatus = "INVOICED"
)

// CanTransitionTo reports whether the status change is allowed.
func (s BillingEventStatus) CanTransitionTo(next BillingEventStatus) bool {
	switch s {
	case BillingEventPending:
		return next == BillingEventInvoiced
	case BillingEventInvoiced:
		return next == BillingEventPending
	}
	return false
}

// Billing event reference types
const (
	EventRefStockTransaction = "STOCK_TRANSACTION"
	EventRefManual           = "MANUAL"
)

// BillingEvent is one billable service usage, also called a service event.
// AmountTHB is set only for THB_BASED events and AmountKRW only for
// KRW_FIXED events.
type BillingEvent struct {
	Base
	ClientID      uuid.UUID           `gorm:"type:uuid;not null;index:ix_billing_event_pending,priority:1" json:"client_id"`
	ServiceID     uuid.UUID           `gorm:"type:uuid;not null;index" json:"service_id"`
	ServiceCode   string              `gorm:"type:varchar(50);not null" json:"service_code"`
	ReferenceType string              `gorm:"type:varchar(30);not null;index:ix_billing_event_reference,priority:1" json:"reference_type"`
	ReferenceID   string              `gorm:"type:varchar(64);not null;index:ix_billing_event_reference,priority:2" json:"reference_id"`
	EventDate     time.Time           `gorm:"type:date;not null;index:ix_billing_event_pending,priority:3" json:"event_date"`
	Qty           decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"qty"`
	BoxCount      int64               `gorm:"not null;default:0" json:"box_count"`
	PricingPolicy PricingPolicy       `gorm:"type:varchar(12);not null" json:"pricing_policy"`
	UnitPrice     decimal.Decimal     `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	AmountTHB     decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"amount_thb"`
	AmountKRW     decimal.NullDecimal `gorm:"type:decimal(18,4)" json:"amount_krw"`
	FxRateUsed    decimal.NullDecimal `gorm:"type:decimal(18,6)" json:"fx_rate_used"`
	InvoicedKRW   decimal.NullDecimal `gorm:"column:invoiced_krw;type:decimal(18,4)" json:"invoiced_krw"`
	Status        BillingEventStatus  `gorm:"type:varchar(10);not null;default:'PENDING';index:ix_billing_event_pending,priority:2" json:"status"`
	InvoiceID     *uuid.UUID          `gorm:"type:uuid;index" json:"invoice_id"`
	CreatedBy     uuid.UUID           `gorm:"type:uuid;not null" json:"created_by"`
	Lifecycle
}

// SetAmount stores amount in the field matching the pricing policy and
// clears the other one.
func (e *BillingEvent) SetAmount(amount decimal.Decimal) {
	switch e.PricingPolicy {
	case PricingTHBBased:
		e.AmountTHB = decimal.NewNullDecimal(amount)
		e.AmountKRW = decimal.NullDecimal{}
	case PricingKRWFixed:
		e.AmountKRW = decimal.NewNullDecimal(amount)
		e.AmountTHB = decimal.NullDecimal{}
	}
}

// Release puts an invoiced event back into the pending pool.
func (e *BillingEvent) Release() {
	e.Status = BillingEventPending
	e.InvoiceID = nil
	e.FxRateUsed = decimal.NullDecimal{}
	e.InvoicedKRW = decimal.NullDecimal{}
}
