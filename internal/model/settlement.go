package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementBatchStatus enum
type SettlementBatchStatus string

const (
	SettlementCalculating SettlementBatchStatus = "calculating"
	SettlementReviewed    SettlementBatchStatus = "reviewed"
	SettlementClosed      SettlementBatchStatus = "closed"
)

// CanTransitionTo reports whether the status change is allowed.
// closed -> reviewed is only reachable through an approved reopen request.
func (s SettlementBatchStatus) CanTransitionTo(next SettlementBatchStatus) bool {
	switch s {
	case SettlementCalculating:
		return next == SettlementReviewed
	case SettlementReviewed:
		return next == SettlementClosed || next == SettlementCalculating
	case SettlementClosed:
		return next == SettlementReviewed
	}
	return false
}

// SettlementBatch is the provisional monthly aggregation of a client's
// service events.
type SettlementBatch struct {
	Base
	ClientID       uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:ux_settlement_batch_month,priority:1" json:"client_id"`
	BillingMonth   string                `gorm:"type:varchar(7);not null;uniqueIndex:ux_settlement_batch_month,priority:2" json:"billing_month"`
	Status         SettlementBatchStatus `gorm:"type:varchar(12);not null;default:'calculating';index" json:"status"`
	ExchangeRateID *uuid.UUID            `gorm:"type:uuid" json:"exchange_rate_id"`
	FxRate         decimal.Decimal       `gorm:"type:decimal(18,6);not null;default:0" json:"fx_rate"`
	SubtotalKRW    decimal.Decimal       `gorm:"column:subtotal_krw;type:decimal(18,4);not null;default:0" json:"subtotal_krw"`
	SubtotalTHB    decimal.Decimal       `gorm:"column:subtotal_thb;type:decimal(18,4);not null;default:0" json:"subtotal_thb"`
	TotalKRW       decimal.Decimal       `gorm:"column:total_krw;type:decimal(18,4);not null;default:0" json:"total_krw"`
	LineCount      int                   `gorm:"not null;default:0" json:"line_count"`
	CreatedBy      uuid.UUID             `gorm:"type:uuid;not null" json:"created_by"`
	ClosedAt       *time.Time            `json:"closed_at"`
	ClosedBy       *uuid.UUID            `gorm:"type:uuid" json:"closed_by"`
	Lines          []SettlementLine      `gorm:"foreignKey:BatchID" json:"lines,omitempty"`
}

// SettlementLine mirrors one source service event inside a batch.
type SettlementLine struct {
	Base
	BatchID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	BillingEventID uuid.UUID       `gorm:"type:uuid;not null;index" json:"billing_event_id"`
	ServiceCode    string          `gorm:"type:varchar(50);not null" json:"service_code"`
	EventDate      time.Time       `gorm:"type:date;not null" json:"event_date"`
	Qty            decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"qty"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
}

// ReopenRequestStatus enum
type ReopenRequestStatus string

const (
	ReopenRequested ReopenRequestStatus = "requested"
	ReopenApproved  ReopenRequestStatus = "approved"
	ReopenRejected  ReopenRequestStatus = "rejected"
)

func (s ReopenRequestStatus) CanTransitionTo(next ReopenRequestStatus) bool {
	switch s {
	case ReopenRequested:
		return next == ReopenApproved || next == ReopenRejected
	case ReopenApproved, ReopenRejected:
		return false
	}
	return false
}

// SettlementReopenRequest asks for a closed batch to become editable again.
// At most one request per batch may be in the requested state.
type SettlementReopenRequest struct {
	Base
	BatchID      uuid.UUID           `gorm:"type:uuid;not null;index;uniqueIndex:ux_reopen_request_open,where:status = 'requested'" json:"batch_id"`
	Status       ReopenRequestStatus `gorm:"type:varchar(12);not null;default:'requested';index" json:"status"`
	Reason       string              `gorm:"type:text;not null" json:"reason"`
	RequestedBy  uuid.UUID           `gorm:"type:uuid;not null" json:"requested_by"`
	DecidedBy    *uuid.UUID          `gorm:"type:uuid" json:"decided_by"`
	DecidedAt    *time.Time          `json:"decided_at"`
	DecisionNote string              `gorm:"type:text" json:"decision_note"`
}

// Settlement log actions
const (
	SettlementActionClose         = "close"
	SettlementActionReopenRequest = "reopen_request"
	SettlementActionReopen        = "reopen"
	SettlementActionReject        = "reject"
)

// ErrAppendOnly is returned when code tries to rewrite the reopen audit trail.
var ErrAppendOnly = errors.New("settlement reopen log is append-only")

// SettlementReopenLog is the append-only audit trail of close/reopen actions.
type SettlementReopenLog struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"batch_id"`
	RequestID *uuid.UUID `gorm:"type:uuid" json:"request_id"`
	Action    string     `gorm:"type:varchar(20);not null" json:"action"`
	ActorID   uuid.UUID  `gorm:"type:uuid;not null" json:"actor_id"`
	Reason    string     `gorm:"type:text" json:"reason"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
}

func (l *SettlementReopenLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		l.ID = id
	}
	return nil
}

func (l *SettlementReopenLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAppendOnly
}

func (l *SettlementReopenLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAppendOnly
}
