package service

import (
	"context"
	"errors"
	"fmt"

	"billing/internal/model"
	"billing/internal/repository"

	"gorm.io/gorm"
)

// DefaultPadding is the zero-pad width for document numbers (INV-000007).
const DefaultPadding = 6

// SequenceService issues gap-free sequential document numbers scoped to
// (tenant, sequence type). For N concurrent calls against the same scope the
// returned numbers are exactly current+1 .. current+N, no duplicates, no
// gaps: the counter row is read under a row lock inside the surrounding
// transaction, so a failed caller rolls its increment back.
type SequenceService interface {
	NextNumber(ctx context.Context, tenantID, sequenceType, prefix string, padding int) (string, error)
}

type sequenceService struct {
	seqRepo   repository.SequenceRepository
	txManager repository.TransactionManager
}

func NewSequenceService(seqRepo repository.SequenceRepository, txManager repository.TransactionManager) SequenceService {
	return &sequenceService{seqRepo: seqRepo, txManager: txManager}
}

func (s *sequenceService) NextNumber(ctx context.Context, tenantID, sequenceType, prefix string, padding int) (string, error) {
	if padding <= 0 {
		padding = DefaultPadding
	}

	var next int64
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		counter, findErr := s.seqRepo.FindForUpdate(txCtx, tenantID, sequenceType)
		if findErr != nil {
			if !errors.Is(findErr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to read sequence counter: %w", findErr)
			}
			counter = &model.SequenceCounter{
				TenantID:     tenantID,
				SequenceType: sequenceType,
			}
			if createErr := s.seqRepo.Create(txCtx, counter); createErr != nil {
				return fmt.Errorf("failed to create sequence counter: %w", createErr)
			}
		}

		counter.Current++
		next = counter.Current
		if saveErr := s.seqRepo.Save(txCtx, counter); saveErr != nil {
			return fmt.Errorf("failed to persist sequence counter: %w", saveErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	number := fmt.Sprintf("%0*d", padding, next)
	if prefix != "" {
		number = prefix + "-" + number
	}
	return number, nil
}
