package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionPostMovement     = "POST_STOCK_MOVEMENT"
	ActionReverseMovement  = "REVERSE_STOCK_MOVEMENT"
	ActionRecordUsage      = "RECORD_SERVICE_USAGE"
	ActionDeleteUsage      = "DELETE_SERVICE_USAGE"
	ActionUnmarkEvent      = "UNMARK_BILLING_EVENT"
	ActionCreatePrice      = "CREATE_PRICE_POLICY"
	ActionCreateService    = "CREATE_BILLABLE_SERVICE"
	ActionCreateRate       = "CREATE_EXCHANGE_RATE"
	ActionUpdateRate       = "UPDATE_EXCHANGE_RATE"
	ActionDeleteRate       = "DELETE_EXCHANGE_RATE"
	ActionLockRate         = "LOCK_EXCHANGE_RATE"
	ActionGenerateInvoice  = "GENERATE_INVOICE"
	ActionIssueInvoice     = "ISSUE_INVOICE"
	ActionMarkInvoicePaid  = "MARK_INVOICE_PAID"
	ActionDuplicateInvoice = "DUPLICATE_INVOICE"
	ActionGenerateBatch    = "GENERATE_SETTLEMENT_BATCH"
	ActionIssueFromBatch   = "ISSUE_INVOICE_FROM_BATCH"
	ActionCreateTaxRule    = "CREATE_TAX_RULE"
)

// AuditLog tracks Who, What, and When for critical billing changes
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `gorm:"type:jsonb" json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		a.ID = id
	}
	return nil
}
