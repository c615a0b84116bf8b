package repository

import (
	"context"

	"billing/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FiscalSequenceRepository interface {
	Create(ctx context.Context, seq *model.FiscalSequence) error
	Save(ctx context.Context, seq *model.FiscalSequence) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.FiscalSequence, error)
	// FindActiveForUpdate returns the single active sequence for
	// (tenant, fiscal type) under a row lock.
	FindActiveForUpdate(ctx context.Context, tenantID, fiscalType string) (*model.FiscalSequence, error)
	ListActive(ctx context.Context, tenantID string) ([]model.FiscalSequence, error)
	ListAllActive(ctx context.Context) ([]model.FiscalSequence, error)
}

type fiscalSequenceRepository struct {
	db *gorm.DB
}

func NewFiscalSequenceRepository(db *gorm.DB) FiscalSequenceRepository {
	return &fiscalSequenceRepository{db: db}
}

func (r *fiscalSequenceRepository) Create(ctx context.Context, seq *model.FiscalSequence) error {
	return GetDB(ctx, r.db).Create(seq).Error
}

func (r *fiscalSequenceRepository) Save(ctx context.Context, seq *model.FiscalSequence) error {
	return GetDB(ctx, r.db).Save(seq).Error
}

func (r *fiscalSequenceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.FiscalSequence, error) {
	var seq model.FiscalSequence
	if err := GetDB(ctx, r.db).First(&seq, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &seq, nil
}

func (r *fiscalSequenceRepository) FindActiveForUpdate(ctx context.Context, tenantID, fiscalType string) (*model.FiscalSequence, error) {
	var seq model.FiscalSequence
	err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND type = ? AND active = ?", tenantID, fiscalType, true).
		First(&seq).Error
	if err != nil {
		return nil, err
	}
	return &seq, nil
}

func (r *fiscalSequenceRepository) ListActive(ctx context.Context, tenantID string) ([]model.FiscalSequence, error) {
	var seqs []model.FiscalSequence
	err := GetDB(ctx, r.db).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("created_at asc").
		Find(&seqs).Error
	if err != nil {
		return nil, err
	}
	return seqs, nil
}

func (r *fiscalSequenceRepository) ListAllActive(ctx context.Context) ([]model.FiscalSequence, error) {
	var seqs []model.FiscalSequence
	if err := GetDB(ctx, r.db).Where("active = ?", true).Find(&seqs).Error; err != nil {
		return nil, err
	}
	return seqs, nil
}
