package model

import (
	"time"

	"github.com/google/uuid"
)

// StockKey identifies one stock position.
type StockKey struct {
	ClientID    uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`
	ProductID   uuid.UUID `gorm:"type:uuid;not null" json:"product_id"`
	LotID       uuid.UUID `gorm:"type:uuid;not null" json:"lot_id"`
	WarehouseID uuid.UUID `gorm:"type:uuid;not null" json:"warehouse_id"`
	LocationID  uuid.UUID `gorm:"type:uuid;not null" json:"location_id"`
}

func (k StockKey) Valid() bool {
	return k.ClientID != uuid.Nil && k.ProductID != uuid.Nil && k.LotID != uuid.Nil &&
		k.WarehouseID != uuid.Nil && k.LocationID != uuid.Nil
}

// StockBalance holds the authoritative quantities of one stock position.
// Rows are never deleted; they are only adjusted, possibly to zero.
type StockBalance struct {
	Base
	ClientID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_stock_balance_key,priority:1" json:"client_id"`
	ProductID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_stock_balance_key,priority:2" json:"product_id"`
	LotID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_stock_balance_key,priority:3" json:"lot_id"`
	WarehouseID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_stock_balance_key,priority:4" json:"warehouse_id"`
	LocationID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_stock_balance_key,priority:5" json:"location_id"`
	AvailableQty int64     `gorm:"not null;default:0" json:"available_qty"`
	ReservedQty  int64     `gorm:"not null;default:0" json:"reserved_qty"`
}

func (b StockBalance) Key() StockKey {
	return StockKey{
		ClientID:    b.ClientID,
		ProductID:   b.ProductID,
		LotID:       b.LotID,
		WarehouseID: b.WarehouseID,
		LocationID:  b.LocationID,
	}
}

// StockTxnType enum
type StockTxnType string

const (
	StockTxnInbound       StockTxnType = "INBOUND"
	StockTxnOutbound      StockTxnType = "OUTBOUND"
	StockTxnReturnRestock StockTxnType = "RETURN_RESTOCK"
	StockTxnReturnDispose StockTxnType = "RETURN_DISPOSE"
	StockTxnAdjustment    StockTxnType = "ADJUSTMENT"
)

func (t StockTxnType) Valid() bool {
	switch t {
	case StockTxnInbound, StockTxnOutbound, StockTxnReturnRestock, StockTxnReturnDispose, StockTxnAdjustment:
		return true
	}
	return false
}

// StockReferenceType enum constants
const (
	RefTypeOutboundItem = "OUTBOUND_ITEM"
	RefTypeInboundItem  = "INBOUND_ITEM"
	RefTypeReturnItem   = "RETURN_ITEM"
	RefTypeAdjustment   = "ADJUSTMENT"
)

// StockTransaction is one ledger entry. Its natural key is
// (TxnType, ReferenceType, ReferenceID) among ACTIVE rows.
type StockTransaction struct {
	Base
	StockKey
	TxnType       StockTxnType `gorm:"type:varchar(20);not null;index:ix_stock_txn_natural_key,priority:1" json:"txn_type"`
	ReferenceType string       `gorm:"type:varchar(30);not null;index:ix_stock_txn_natural_key,priority:2" json:"reference_type"`
	ReferenceID   string       `gorm:"type:varchar(64);not null;index:ix_stock_txn_natural_key,priority:3" json:"reference_id"`
	QtyIn         int64        `gorm:"not null;default:0" json:"qty_in"`
	QtyOut        int64        `gorm:"not null;default:0" json:"qty_out"`
	TxnDate       time.Time    `gorm:"not null;index" json:"txn_date"`
	Note          string       `gorm:"type:text" json:"note"`
	CreatedBy     uuid.UUID    `gorm:"type:uuid;not null" json:"created_by"`
	Lifecycle
}

// Delta is the signed effect of the entry on available quantity.
func (t StockTransaction) Delta() int64 {
	return t.QtyIn - t.QtyOut
}
