package repository

import (
	"context"

	"warehouse-billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SequenceRepository interface {
	// Next allocates the next invoice sequence value for (client, period).
	// It must run inside a transaction; the counter row stays locked until commit.
	Next(ctx context.Context, clientID uuid.UUID, period string) (int64, error)
}

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

func (r *sequenceRepository) Next(ctx context.Context, clientID uuid.UUID, period string) (int64, error) {
	tx := GetDB(ctx, r.db)

	seed := model.InvoiceSequence{ClientID: clientID, Period: period}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}, {Name: "period"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return 0, err
	}

	locked, err := lockFor(ctx, tx, LockInvoiceSequence)
	if err != nil {
		return 0, err
	}
	var seq model.InvoiceSequence
	if err := locked.Where("client_id = ? AND period = ?", clientID, period).First(&seq).Error; err != nil {
		return 0, err
	}

	seq.LastValue++
	if err := tx.Model(&model.InvoiceSequence{}).
		Where("id = ?", seq.ID).
		Update("last_value", seq.LastValue).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}
