package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing/internal/apperr"
	"billing/internal/model"
	"billing/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DTOs
type CreateQuoteRequest struct {
	ClientID      string               `json:"client_id"`
	Items         []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
	Subtotal      string               `json:"subtotal" binding:"required"`
	DiscountTotal string               `json:"discount_total"`
	TaxTotal      string               `json:"tax_total"`
	Total         string               `json:"total" binding:"required"`
	Currency      string               `json:"currency"`
	ValidUntil    string               `json:"valid_until"` // RFC3339, optional
	Notes         string               `json:"notes"`
}

// QuoteService handles priced offers. Quotes draw numbers from the same
// sequence allocator as invoices (separate type, COT prefix) but never touch
// inventory or payments.
type QuoteService interface {
	Create(ctx context.Context, tenantID string, req CreateQuoteRequest) (*model.Quote, error)
	Get(ctx context.Context, tenantID, id string) (*model.Quote, error)
	List(ctx context.Context, tenantID string, page, limit int) ([]model.Quote, int64, error)
	UpdateStatus(ctx context.Context, tenantID, id, status string) (*model.Quote, error)
	Delete(ctx context.Context, tenantID, id string) error
}

type quoteService struct {
	quoteRepo   repository.QuoteRepository
	sequenceSvc SequenceService
	txManager   repository.TransactionManager
}

func NewQuoteService(quoteRepo repository.QuoteRepository, sequenceSvc SequenceService, txManager repository.TransactionManager) QuoteService {
	return &quoteService{quoteRepo: quoteRepo, sequenceSvc: sequenceSvc, txManager: txManager}
}

func (s *quoteService) Create(ctx context.Context, tenantID string, req CreateQuoteRequest) (*model.Quote, error) {
	quote := &model.Quote{
		ID:       uuid.New(),
		TenantID: tenantID,
		Currency: req.Currency,
		Status:   model.QuoteStatusDraft,
		Notes:    req.Notes,
	}
	if quote.Currency == "" {
		quote.Currency = "DOP"
	}

	var err error
	if quote.Subtotal, err = parseAmount(req.Subtotal, "subtotal"); err != nil {
		return nil, err
	}
	if quote.DiscountTotal, err = parseAmount(req.DiscountTotal, "discount_total"); err != nil {
		return nil, err
	}
	if quote.TaxTotal, err = parseAmount(req.TaxTotal, "tax_total"); err != nil {
		return nil, err
	}
	if quote.Total, err = parseAmount(req.Total, "total"); err != nil {
		return nil, err
	}

	if req.ClientID != "" {
		clientID, idErr := parseID(req.ClientID, "client")
		if idErr != nil {
			return nil, idErr
		}
		quote.ClientID = &clientID
	}
	if req.ValidUntil != "" {
		validUntil, parseErr := time.Parse(time.RFC3339, req.ValidUntil)
		if parseErr != nil {
			return nil, apperr.InvalidArgument("invalid valid_until: %v", parseErr)
		}
		quote.ValidUntil = &validUntil
	}

	items := make(model.LineItems, 0, len(req.Items))
	for _, r := range req.Items {
		productID, idErr := parseID(r.ProductID, "product")
		if idErr != nil {
			return nil, idErr
		}
		unitPrice, amtErr := parseAmount(r.UnitPrice, "unit_price")
		if amtErr != nil {
			return nil, amtErr
		}
		discount, amtErr := parseAmount(r.DiscountPct, "discount_pct")
		if amtErr != nil {
			return nil, amtErr
		}
		taxRate, amtErr := parseAmount(r.TaxRate, "tax_rate")
		if amtErr != nil {
			return nil, amtErr
		}
		items = append(items, model.LineItem{
			ProductID:   productID,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   unitPrice,
			DiscountPct: discount,
			TaxRate:     taxRate,
		})
	}
	quote.Items = items

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		number, seqErr := s.sequenceSvc.NextNumber(txCtx, tenantID, model.SeqTypeQuote, "COT", DefaultPadding)
		if seqErr != nil {
			return fmt.Errorf("failed to allocate quote number: %w", seqErr)
		}
		quote.Number = number

		if createErr := s.quoteRepo.Create(txCtx, quote); createErr != nil {
			return fmt.Errorf("failed to create quote: %w", createErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

func (s *quoteService) Get(ctx context.Context, tenantID, id string) (*model.Quote, error) {
	return s.findOwned(ctx, tenantID, id)
}

func (s *quoteService) List(ctx context.Context, tenantID string, page, limit int) ([]model.Quote, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.quoteRepo.List(ctx, tenantID, page, limit)
}

func (s *quoteService) UpdateStatus(ctx context.Context, tenantID, id, status string) (*model.Quote, error) {
	switch status {
	case model.QuoteStatusDraft, model.QuoteStatusSent, model.QuoteStatusAccepted, model.QuoteStatusRejected:
	default:
		return nil, apperr.InvalidArgument("unknown quote status %q", status)
	}

	quote, err := s.findOwned(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	quote.Status = status
	if err := s.quoteRepo.Save(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}
	return quote, nil
}

func (s *quoteService) Delete(ctx context.Context, tenantID, id string) error {
	quote, err := s.findOwned(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return s.quoteRepo.Delete(ctx, quote.ID)
}

func (s *quoteService) findOwned(ctx context.Context, tenantID, id string) (*model.Quote, error) {
	quoteID, err := parseID(id, "quote")
	if err != nil {
		return nil, err
	}

	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("quote not found")
		}
		return nil, fmt.Errorf("failed to read quote: %w", err)
	}
	if quote.TenantID != tenantID {
		return nil, apperr.PermissionDenied("quote belongs to another tenant")
	}
	return quote, nil
}
