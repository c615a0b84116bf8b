package repository

import (
	"context"

	"billing/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SequenceRepository interface {
	// FindForUpdate returns the counter row for (tenant, type) under a row
	// lock, or gorm.ErrRecordNotFound when no counter exists yet.
	FindForUpdate(ctx context.Context, tenantID, sequenceType string) (*model.SequenceCounter, error)
	Create(ctx context.Context, counter *model.SequenceCounter) error
	Save(ctx context.Context, counter *model.SequenceCounter) error
}

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

func (r *sequenceRepository) FindForUpdate(ctx context.Context, tenantID, sequenceType string) (*model.SequenceCounter, error) {
	var counter model.SequenceCounter
	err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND sequence_type = ?", tenantID, sequenceType).
		First(&counter).Error
	if err != nil {
		return nil, err
	}
	return &counter, nil
}

func (r *sequenceRepository) Create(ctx context.Context, counter *model.SequenceCounter) error {
	return GetDB(ctx, r.db).Create(counter).Error
}

func (r *sequenceRepository) Save(ctx context.Context, counter *model.SequenceCounter) error {
	return GetDB(ctx, r.db).Save(counter).Error
}
