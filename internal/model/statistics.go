package model

import (
	"github.com/shopspring/decimal"
)

// RevenuePoint aggregates the issued and paid invoices of one billing month.
type RevenuePoint struct {
	BillingMonth string          `gorm:"column:billing_month" json:"billing_month"`
	Invoices     int64           `gorm:"column:invoices" json:"invoices"`
	Subtotal     decimal.Decimal `gorm:"column:subtotal" json:"subtotal"`
	VAT          decimal.Decimal `gorm:"column:vat" json:"vat"`
	Total        decimal.Decimal `gorm:"column:total" json:"total"`
}

// ServiceRanking ranks a service by how often it was billed in a period.
type ServiceRanking struct {
	ServiceCode string          `gorm:"column:service_code" json:"service_code"`
	Events      int64           `gorm:"column:events" json:"events"`
	TotalQty    decimal.Decimal `gorm:"column:total_qty" json:"total_qty"`
	AmountTHB   decimal.Decimal `gorm:"column:amount_thb" json:"amount_thb"`
	AmountKRW   decimal.Decimal `gorm:"column:amount_krw" json:"amount_krw"`
}

// BillingStatistics is the dashboard summary for a range of billing months.
type BillingStatistics struct {
	FromMonth     string           `json:"from_month"`
	ToMonth       string           `json:"to_month"`
	Revenue       []RevenuePoint   `json:"revenue"`
	TopServices   []ServiceRanking `json:"top_services"`
	PendingEvents int64            `json:"pending_events"`
}
