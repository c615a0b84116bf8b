package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"billing/internal/apperr"
	"billing/internal/model"
	"billing/internal/repository"
	ws "billing/internal/websocket"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ncfPadding is the zero-pad width mandated for NCF numbers.
const ncfPadding = 8

// --- DTOs ---

type CreateFiscalSequenceRequest struct {
	Name        string `json:"name" binding:"required"`
	Type        string `json:"type" binding:"required"`
	Prefix      string `json:"prefix" binding:"required"`
	StartNumber int64  `json:"start_number" binding:"required,gt=0"`
	EndNumber   int64  `json:"end_number" binding:"required,gtfield=StartNumber"`
	ExpiresAt   string `json:"expires_at"` // RFC3339, optional
}

// FiscalWarning flags an active sequence running low on numbers.
type FiscalWarning struct {
	SequenceID string `json:"sequence_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Remaining  int64  `json:"remaining"`
	Threshold  int64  `json:"threshold"`
}

// FiscalService allocates NCF numbers from pre-provisioned bounded ranges
// and manages the ranges themselves.
type FiscalService interface {
	NextFiscalNumber(ctx context.Context, tenantID, fiscalType string) (string, error)
	CheckLowRemaining(ctx context.Context, tenantID string) ([]FiscalWarning, error)
	CreateSequence(ctx context.Context, tenantID string, req CreateFiscalSequenceRequest) (*model.FiscalSequence, error)
	ListSequences(ctx context.Context, tenantID string) ([]model.FiscalSequence, error)
	DeactivateSequence(ctx context.Context, tenantID string, id string) error
	// SweepLowRemaining runs the advisory check across all tenants; wired to
	// the cron scheduler.
	SweepLowRemaining(ctx context.Context)
}

type fiscalService struct {
	fiscalRepo repository.FiscalSequenceRepository
	txManager  repository.TransactionManager
	hub        *ws.Hub
	log        zerolog.Logger
}

func NewFiscalService(
	fiscalRepo repository.FiscalSequenceRepository,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	log zerolog.Logger,
) FiscalService {
	return &fiscalService{fiscalRepo: fiscalRepo, txManager: txManager, hub: hub, log: log}
}

func (s *fiscalService) NextFiscalNumber(ctx context.Context, tenantID, fiscalType string) (string, error) {
	if fiscalType == "" || fiscalType == model.FiscalTypeNone {
		return "", nil
	}

	var number string
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seq, findErr := s.fiscalRepo.FindActiveForUpdate(txCtx, tenantID, fiscalType)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperr.NotFound("no active fiscal sequence for type %s", fiscalType)
			}
			return fmt.Errorf("failed to read fiscal sequence: %w", findErr)
		}

		if seq.Exhausted() {
			return apperr.FailedPrecondition("fiscal sequence %s exhausted", seq.Name)
		}
		if seq.Expired(time.Now()) {
			return apperr.FailedPrecondition("fiscal sequence %s expired", seq.Name)
		}

		number = fmt.Sprintf("%s%0*d", seq.Prefix, ncfPadding, seq.Current)
		seq.Current++
		if saveErr := s.fiscalRepo.Save(txCtx, seq); saveErr != nil {
			return fmt.Errorf("failed to persist fiscal sequence: %w", saveErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// lowThreshold is the advisory floor: max(50, 10% of the range size).
func lowThreshold(seq *model.FiscalSequence) int64 {
	threshold := (seq.EndNumber - seq.StartNumber) / 10
	if threshold < 50 {
		threshold = 50
	}
	return threshold
}

func (s *fiscalService) CheckLowRemaining(ctx context.Context, tenantID string) ([]FiscalWarning, error) {
	seqs, err := s.fiscalRepo.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fiscal sequences: %w", err)
	}

	warnings := make([]FiscalWarning, 0)
	for i := range seqs {
		seq := &seqs[i]
		threshold := lowThreshold(seq)
		if seq.Remaining() < threshold {
			warnings = append(warnings, FiscalWarning{
				SequenceID: seq.ID.String(),
				Name:       seq.Name,
				Type:       seq.Type,
				Remaining:  seq.Remaining(),
				Threshold:  threshold,
			})
		}
	}
	return warnings, nil
}

func (s *fiscalService) CreateSequence(ctx context.Context, tenantID string, req CreateFiscalSequenceRequest) (*model.FiscalSequence, error) {
	seq := &model.FiscalSequence{
		TenantID:    tenantID,
		Name:        req.Name,
		Type:        req.Type,
		Prefix:      req.Prefix,
		Current:     req.StartNumber,
		StartNumber: req.StartNumber,
		EndNumber:   req.EndNumber,
		Active:      true,
	}

	if req.ExpiresAt != "" {
		expires, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			return nil, apperr.InvalidArgument("invalid expires_at: %v", err)
		}
		seq.ExpiresAt = &expires
	}

	if err := s.fiscalRepo.Create(ctx, seq); err != nil {
		return nil, fmt.Errorf("failed to create fiscal sequence: %w", err)
	}
	return seq, nil
}

func (s *fiscalService) ListSequences(ctx context.Context, tenantID string) ([]model.FiscalSequence, error) {
	return s.fiscalRepo.ListActive(ctx, tenantID)
}

func (s *fiscalService) DeactivateSequence(ctx context.Context, tenantID string, id string) error {
	seqID, err := parseID(id, "sequence")
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		seq, findErr := s.fiscalRepo.FindByID(txCtx, seqID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperr.NotFound("fiscal sequence not found")
			}
			return fmt.Errorf("failed to read fiscal sequence: %w", findErr)
		}
		if seq.TenantID != tenantID {
			return apperr.PermissionDenied("fiscal sequence belongs to another tenant")
		}

		seq.Active = false
		if saveErr := s.fiscalRepo.Save(txCtx, seq); saveErr != nil {
			return fmt.Errorf("failed to deactivate fiscal sequence: %w", saveErr)
		}
		return nil
	})
}

func (s *fiscalService) SweepLowRemaining(ctx context.Context) {
	seqs, err := s.fiscalRepo.ListAllActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("fiscal low-remaining sweep failed")
		return
	}

	for i := range seqs {
		seq := &seqs[i]
		threshold := lowThreshold(seq)
		if seq.Remaining() >= threshold {
			continue
		}

		s.log.Warn().
			Str("tenant_id", seq.TenantID).
			Str("sequence", seq.Name).
			Int64("remaining", seq.Remaining()).
			Int64("threshold", threshold).
			Msg("fiscal sequence running low")

		if s.hub != nil {
			payload, _ := json.Marshal(ws.Event{
				Event: ws.EventNCFLow,
				Data: map[string]interface{}{
					"tenant_id":   seq.TenantID,
					"sequence_id": seq.ID.String(),
					"name":        seq.Name,
					"remaining":   seq.Remaining(),
				},
			})
			s.hub.Broadcast <- payload
		}
	}
}
