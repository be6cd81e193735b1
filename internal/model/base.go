package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the identity and timestamps shared by every table.
// IDs are UUIDv7, so ordering by id follows creation order.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a time-ordered id when the caller did not set one.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID != uuid.Nil {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

// RowState is the tombstone lifecycle of soft-deletable rows.
type RowState string

const (
	RowActive     RowState = "ACTIVE"
	RowTombstoned RowState = "TOMBSTONED"
)

// Lifecycle replaces nullable deleted_at columns: a row is either ACTIVE or
// TOMBSTONED, and TombstonedAt records when it left the active set.
type Lifecycle struct {
	State        RowState   `gorm:"type:varchar(12);not null;default:'ACTIVE';index" json:"state"`
	TombstonedAt *time.Time `json:"tombstoned_at,omitempty"`
}

func ActiveLifecycle() Lifecycle {
	return Lifecycle{State: RowActive}
}

func (l Lifecycle) IsActive() bool {
	return l.State == RowActive
}

func (l *Lifecycle) Tombstone(at time.Time) {
	l.State = RowTombstoned
	l.TombstonedAt = &at
}

func (l *Lifecycle) Reactivate() {
	l.State = RowActive
	l.TombstonedAt = nil
}
