package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus enum
type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "draft"
	InvoiceIssued InvoiceStatus = "issued"
	InvoicePaid   InvoiceStatus = "paid"
)

// CanTransitionTo reports whether the status change is allowed.
// Regeneration of a draft is not a transition; it replaces the row.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoiceDraft:
		return next == InvoiceIssued
	case InvoiceIssued:
		return next == InvoicePaid
	case InvoicePaid:
		return false
	}
	return false
}

// InvoiceOrigin records which path created the invoice.
type InvoiceOrigin string

const (
	InvoiceOriginGenerated  InvoiceOrigin = "GENERATED"
	InvoiceOriginDuplicate  InvoiceOrigin = "DUPLICATE"
	InvoiceOriginSettlement InvoiceOrigin = "SETTLEMENT"
)

// Invoice belongs to one client and one billing month (or one settlement batch).
// Only one ACTIVE GENERATED invoice may exist per (client, month).
type Invoice struct {
	Base
	InvoiceNo         string              `gorm:"type:varchar(80);uniqueIndex;not null" json:"invoice_no"`
	ClientID          uuid.UUID           `gorm:"type:uuid;not null;index:ix_invoice_client_month,priority:1;uniqueIndex:ux_invoice_generated_month,priority:1,where:origin = 'GENERATED' AND state = 'ACTIVE'" json:"client_id"`
	BillingMonth      string              `gorm:"type:varchar(7);not null;index:ix_invoice_client_month,priority:2;uniqueIndex:ux_invoice_generated_month,priority:2" json:"billing_month"`
	Origin            InvoiceOrigin       `gorm:"type:varchar(12);not null;default:'GENERATED'" json:"origin"`
	Currency          string              `gorm:"type:varchar(3);not null" json:"currency"`
	Status            InvoiceStatus       `gorm:"type:varchar(10);not null;default:'draft';index" json:"status"`
	InvoiceDate       time.Time           `gorm:"type:date;not null" json:"invoice_date"`
	ExchangeRateID    *uuid.UUID          `gorm:"type:uuid;index" json:"exchange_rate_id"`
	FxBase            string              `gorm:"type:varchar(3)" json:"fx_base"`
	FxQuote           string              `gorm:"type:varchar(3)" json:"fx_quote"`
	FxRate            decimal.NullDecimal `gorm:"type:decimal(18,6)" json:"fx_rate"`
	VATRate           decimal.Decimal     `gorm:"column:vat_rate;type:decimal(10,4);not null" json:"vat_rate"`
	Subtotal          decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0" json:"subtotal"`
	VAT               decimal.Decimal     `gorm:"column:vat;type:decimal(18,4);not null;default:0" json:"vat"`
	Total             decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0" json:"total"`
	SettlementBatchID *uuid.UUID          `gorm:"type:uuid;index" json:"settlement_batch_id"`
	DuplicatedFromID  *uuid.UUID          `gorm:"type:uuid" json:"duplicated_from_id"`
	CreatedBy         uuid.UUID           `gorm:"type:uuid;not null" json:"created_by"`
	IssuedBy          *uuid.UUID          `gorm:"type:uuid" json:"issued_by"`
	IssuedAt          *time.Time          `json:"issued_at"`
	PaidBy            *uuid.UUID          `gorm:"type:uuid" json:"paid_by"`
	PaidAt            *time.Time          `json:"paid_at"`
	Items             []InvoiceItem       `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
	Lifecycle
}

// InvoiceItemType enum
type InvoiceItemType string

const (
	InvoiceItemService    InvoiceItemType = "SERVICE"
	InvoiceItemSettlement InvoiceItemType = "SETTLEMENT"
	InvoiceItemVAT        InvoiceItemType = "VAT"
)

// VATServiceCode is the service code of the synthetic VAT line.
const VATServiceCode = "VAT"

// InvoiceItem aggregates the billing events of one service code, or carries
// the synthetic VAT line.
type InvoiceItem struct {
	Base
	InvoiceID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ItemType         InvoiceItemType `gorm:"type:varchar(12);not null" json:"item_type"`
	ServiceCode      string          `gorm:"type:varchar(50);not null" json:"service_code"`
	Description      string          `gorm:"type:text" json:"description"`
	Qty              decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"qty"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	SettlementLineID *uuid.UUID      `gorm:"type:uuid" json:"settlement_line_id,omitempty"`
	Lifecycle
}

// InvoiceSequence allocates invoice numbers per (client, yyyymm).
type InvoiceSequence struct {
	Base
	ClientID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_invoice_sequence_key,priority:1" json:"client_id"`
	Period    string    `gorm:"type:varchar(6);not null;uniqueIndex:ux_invoice_sequence_key,priority:2" json:"period"`
	LastValue int64     `gorm:"not null;default:0" json:"last_value"`
}

// InvoiceGenerationSlot is locked by monthly generation so that concurrent
// first-time runs for one (client, month) queue behind each other.
type InvoiceGenerationSlot struct {
	Base
	ClientID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_invoice_generation_slot,priority:1" json:"client_id"`
	BillingMonth string    `gorm:"type:varchar(7);not null;uniqueIndex:ux_invoice_generation_slot,priority:2" json:"billing_month"`
}
