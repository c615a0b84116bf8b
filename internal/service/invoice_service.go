package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billing/internal/apperr"
	"billing/internal/model"
	"billing/internal/repository"
	ws "billing/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type InvoiceItemRequest struct {
	ProductID   string `json:"product_id" binding:"required"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice   string `json:"unit_price" binding:"required"`
	DiscountPct string `json:"discount_pct"`
	TaxRate     string `json:"tax_rate"`
}

// CreateInvoiceRequest carries pre-validated, pre-totalled data: callers are
// the trusted boundary and totals are written verbatim.
type CreateInvoiceRequest struct {
	ClientID      string               `json:"client_id"`
	Items         []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
	Subtotal      string               `json:"subtotal" binding:"required"`
	DiscountTotal string               `json:"discount_total"`
	TaxTotal      string               `json:"tax_total"`
	Total         string               `json:"total" binding:"required"`
	Currency      string               `json:"currency"`
	IssueDate     string               `json:"issue_date"` // RFC3339
	DueDate       string               `json:"due_date"`   // RFC3339
	NCFType       string               `json:"ncf_type"`
	Notes         string               `json:"notes"`
}

// UpdateInvoiceRequest is a partial patch. Nil fields are left untouched;
// when Items is present the stock revert/apply steps run.
type UpdateInvoiceRequest struct {
	ClientID      *string              `json:"client_id"`
	Items         []InvoiceItemRequest `json:"items"`
	Subtotal      *string              `json:"subtotal"`
	DiscountTotal *string              `json:"discount_total"`
	TaxTotal      *string              `json:"tax_total"`
	Total         *string              `json:"total"`
	DueDate       *string              `json:"due_date"`
	Notes         *string              `json:"notes"`
}

type InvoiceListFilter struct {
	Status string
	Page   int
	Limit  int
}

type PaymentResponse struct {
	ID            string `json:"id"`
	Amount        string `json:"amount"`
	Method        string `json:"method"`
	Date          string `json:"date"`
	Note          string `json:"note"`
	ReceiptNumber string `json:"receipt_number"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

type InvoiceResponse struct {
	ID            string            `json:"id"`
	Number        string            `json:"number"`
	NCF           string            `json:"ncf,omitempty"`
	NCFType       string            `json:"ncf_type,omitempty"`
	ClientID      *string           `json:"client_id"`
	Items         []model.LineItem  `json:"items"`
	Subtotal      string            `json:"subtotal"`
	DiscountTotal string            `json:"discount_total"`
	TaxTotal      string            `json:"tax_total"`
	Total         string            `json:"total"`
	Currency      string            `json:"currency"`
	IssueDate     string            `json:"issue_date"`
	DueDate       string            `json:"due_date"`
	Status        string            `json:"status"`
	BalanceDue    string            `json:"balance_due"`
	Payments      []PaymentResponse `json:"payments"`
	Notes         string            `json:"notes,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

// --- Interface ---

// InvoiceService is the invoice lifecycle engine. Creation, update and
// deletion each run as one atomic transaction composing the sequence
// allocator, the fiscal allocator and the embedded stock steps; a failure
// anywhere aborts the whole operation with no visible side effects.
type InvoiceService interface {
	Create(ctx context.Context, tenantID string, req CreateInvoiceRequest, allowBackorder bool) (string, error)
	Update(ctx context.Context, tenantID, id string, req UpdateInvoiceRequest, allowBackorder bool) error
	Delete(ctx context.Context, tenantID, id string) error
	Get(ctx context.Context, tenantID, id string) (InvoiceResponse, error)
	List(ctx context.Context, tenantID string, filter InvoiceListFilter) ([]InvoiceResponse, int64, error)
	GetReceivables(ctx context.Context, tenantID string) ([]InvoiceResponse, error)
}

type invoiceService struct {
	invoiceRepo repository.InvoiceRepository
	productRepo repository.ProductRepository
	sequenceSvc SequenceService
	fiscalSvc   FiscalService
	txManager   repository.TransactionManager
	hub         *ws.Hub
	log         zerolog.Logger
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	productRepo repository.ProductRepository,
	sequenceSvc SequenceService,
	fiscalSvc FiscalService,
	txManager repository.TransactionManager,
	hub *ws.Hub,
	log zerolog.Logger,
) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		productRepo: productRepo,
		sequenceSvc: sequenceSvc,
		fiscalSvc:   fiscalSvc,
		txManager:   txManager,
		hub:         hub,
		log:         log,
	}
}

// --- Implementation ---

func (s *invoiceService) Create(ctx context.Context, tenantID string, req CreateInvoiceRequest, allowBackorder bool) (string, error) {
	invoice := model.Invoice{
		ID:       uuid.New(),
		TenantID: tenantID,
		NCFType:  req.NCFType,
		Currency: req.Currency,
		Status:   model.StatusPending,
		Notes:    req.Notes,
		Payments: model.Payments{},
	}
	if invoice.Currency == "" {
		invoice.Currency = "DOP"
	}

	var err error
	if invoice.Subtotal, err = parseAmount(req.Subtotal, "subtotal"); err != nil {
		return "", err
	}
	if invoice.DiscountTotal, err = parseAmount(req.DiscountTotal, "discount_total"); err != nil {
		return "", err
	}
	if invoice.TaxTotal, err = parseAmount(req.TaxTotal, "tax_total"); err != nil {
		return "", err
	}
	if invoice.Total, err = parseAmount(req.Total, "total"); err != nil {
		return "", err
	}
	invoice.BalanceDue = invoice.Total

	if invoice.IssueDate, err = parseDate(req.IssueDate, time.Now()); err != nil {
		return "", apperr.InvalidArgument("invalid issue_date: %v", err)
	}
	if invoice.DueDate, err = parseDate(req.DueDate, invoice.IssueDate); err != nil {
		return "", apperr.InvalidArgument("invalid due_date: %v", err)
	}

	if req.ClientID != "" {
		clientID, idErr := parseID(req.ClientID, "client")
		if idErr != nil {
			return "", idErr
		}
		invoice.ClientID = &clientID
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		number, seqErr := s.sequenceSvc.NextNumber(txCtx, tenantID, model.SeqTypeInvoice, "INV", DefaultPadding)
		if seqErr != nil {
			return fmt.Errorf("failed to allocate invoice number: %w", seqErr)
		}
		invoice.Number = number

		ncf, ncfErr := s.fiscalSvc.NextFiscalNumber(txCtx, tenantID, req.NCFType)
		if ncfErr != nil {
			return ncfErr
		}
		invoice.NCF = ncf

		items, itemErr := s.resolveItems(txCtx, tenantID, req.Items)
		if itemErr != nil {
			return itemErr
		}
		invoice.Items = items

		deltas := stockDeltas{}
		deltas.add(items, -1)
		if stockErr := s.applyStockDeltas(txCtx, tenantID, deltas, allowBackorder); stockErr != nil {
			return stockErr
		}

		if createErr := s.invoiceRepo.Create(txCtx, &invoice); createErr != nil {
			return fmt.Errorf("failed to create invoice: %w", createErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("invoice_id", invoice.ID.String()).
		Str("number", invoice.Number).
		Msg("invoice created")
	return invoice.ID.String(), nil
}

func (s *invoiceService) Update(ctx context.Context, tenantID, id string, req UpdateInvoiceRequest, allowBackorder bool) error {
	invoiceID, err := parseID(id, "invoice")
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, findErr := s.findOwned(txCtx, tenantID, invoiceID)
		if findErr != nil {
			return findErr
		}

		if req.Items != nil {
			newItems, itemErr := s.resolveItems(txCtx, tenantID, req.Items)
			if itemErr != nil {
				return itemErr
			}

			// Revert the old quantities, then apply the new ones: only the
			// net delta per product touches stock, so a quantity change on
			// the same product neither double-counts nor briefly dips.
			deltas := stockDeltas{}
			deltas.add(invoice.Items, +1)
			deltas.add(newItems, -1)
			if stockErr := s.applyStockDeltas(txCtx, tenantID, deltas, allowBackorder); stockErr != nil {
				return stockErr
			}
			invoice.Items = newItems
		}

		if mergeErr := mergeInvoiceFields(invoice, req); mergeErr != nil {
			return mergeErr
		}

		if saveErr := s.invoiceRepo.Save(txCtx, invoice); saveErr != nil {
			return fmt.Errorf("failed to update invoice: %w", saveErr)
		}
		return nil
	})
}

func (s *invoiceService) Delete(ctx context.Context, tenantID, id string) error {
	invoiceID, err := parseID(id, "invoice")
	if err != nil {
		return err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, findErr := s.findOwned(txCtx, tenantID, invoiceID)
		if findErr != nil {
			return findErr
		}

		// Deleting a paid or partially paid invoice would corrupt historical
		// cash records.
		if invoice.HasPayments() {
			return apperr.FailedPrecondition("invoice %s has recorded payments", invoice.Number)
		}

		deltas := stockDeltas{}
		deltas.add(invoice.Items, +1)
		if stockErr := s.applyStockDeltas(txCtx, tenantID, deltas, true); stockErr != nil {
			return stockErr
		}

		if delErr := s.invoiceRepo.Delete(txCtx, invoiceID); delErr != nil {
			return fmt.Errorf("failed to delete invoice: %w", delErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("invoice_id", id).
		Msg("invoice deleted")
	return nil
}

func (s *invoiceService) Get(ctx context.Context, tenantID, id string) (InvoiceResponse, error) {
	invoiceID, err := parseID(id, "invoice")
	if err != nil {
		return InvoiceResponse{}, err
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return InvoiceResponse{}, apperr.NotFound("invoice not found")
		}
		return InvoiceResponse{}, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	if invoice.TenantID != tenantID {
		return InvoiceResponse{}, apperr.PermissionDenied("invoice belongs to another tenant")
	}

	return toInvoiceResponse(*invoice), nil
}

func (s *invoiceService) List(ctx context.Context, tenantID string, filter InvoiceListFilter) ([]InvoiceResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	invoices, total, err := s.invoiceRepo.List(ctx, tenantID, repository.InvoiceListFilter{
		Status: filter.Status,
		Page:   filter.Page,
		Limit:  filter.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}

	result := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		result = append(result, toInvoiceResponse(inv))
	}
	return result, total, nil
}

func (s *invoiceService) GetReceivables(ctx context.Context, tenantID string) ([]InvoiceResponse, error) {
	invoices, err := s.invoiceRepo.ListReceivables(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch receivables: %w", err)
	}

	result := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		result = append(result, toInvoiceResponse(inv))
	}
	return result, nil
}

// --- Helpers ---

// findOwned reads an invoice under a row lock and verifies tenant ownership.
func (s *invoiceService) findOwned(ctx context.Context, tenantID string, id uuid.UUID) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invoice not found")
		}
		return nil, fmt.Errorf("failed to fetch invoice: %w", err)
	}
	if invoice.TenantID != tenantID {
		return nil, apperr.PermissionDenied("invoice belongs to another tenant")
	}
	return invoice, nil
}

// resolveItems turns item requests into line items, snapshotting the
// product's type and cost at issue time.
func (s *invoiceService) resolveItems(ctx context.Context, tenantID string, reqs []InvoiceItemRequest) (model.LineItems, error) {
	items := make(model.LineItems, 0, len(reqs))
	for _, r := range reqs {
		productID, err := parseID(r.ProductID, "product")
		if err != nil {
			return nil, err
		}

		product, err := s.productRepo.FindByID(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.NotFound("product %s not found", r.ProductID)
			}
			return nil, fmt.Errorf("failed to find product %s: %w", r.ProductID, err)
		}
		if product.TenantID != tenantID {
			return nil, apperr.PermissionDenied("product %s belongs to another tenant", r.ProductID)
		}

		unitPrice, err := parseAmount(r.UnitPrice, "unit_price")
		if err != nil {
			return nil, err
		}
		discount, err := parseAmount(r.DiscountPct, "discount_pct")
		if err != nil {
			return nil, err
		}
		taxRate, err := parseAmount(r.TaxRate, "tax_rate")
		if err != nil {
			return nil, err
		}

		description := r.Description
		if description == "" {
			description = product.Name
		}

		items = append(items, model.LineItem{
			ProductID:   productID,
			Description: description,
			Type:        product.Type,
			Quantity:    r.Quantity,
			UnitPrice:   unitPrice,
			UnitCost:    product.Cost,
			DiscountPct: discount,
			TaxRate:     taxRate,
		})
	}
	return items, nil
}

// mergeInvoiceFields writes the patch's non-nil fields verbatim. Totals are
// trusted from the caller, never recomputed here.
func mergeInvoiceFields(invoice *model.Invoice, req UpdateInvoiceRequest) error {
	if req.ClientID != nil {
		if *req.ClientID == "" {
			invoice.ClientID = nil
		} else {
			clientID, err := parseID(*req.ClientID, "client")
			if err != nil {
				return err
			}
			invoice.ClientID = &clientID
		}
	}

	var err error
	if req.Subtotal != nil {
		if invoice.Subtotal, err = parseAmount(*req.Subtotal, "subtotal"); err != nil {
			return err
		}
	}
	if req.DiscountTotal != nil {
		if invoice.DiscountTotal, err = parseAmount(*req.DiscountTotal, "discount_total"); err != nil {
			return err
		}
	}
	if req.TaxTotal != nil {
		if invoice.TaxTotal, err = parseAmount(*req.TaxTotal, "tax_total"); err != nil {
			return err
		}
	}
	if req.Total != nil {
		if invoice.Total, err = parseAmount(*req.Total, "total"); err != nil {
			return err
		}
		// Balance follows the new total minus what has already been paid,
		// clamped to zero.
		paid := decimal.Zero
		for _, p := range invoice.Payments {
			paid = paid.Add(p.Amount)
		}
		balance := invoice.Total.Sub(paid)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		invoice.BalanceDue = balance
	}
	if req.DueDate != nil {
		due, parseErr := time.Parse(time.RFC3339, *req.DueDate)
		if parseErr != nil {
			return apperr.InvalidArgument("invalid due_date: %v", parseErr)
		}
		invoice.DueDate = due
	}
	if req.Notes != nil {
		invoice.Notes = *req.Notes
	}
	return nil
}

func parseDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// --- Mapping ---

func toInvoiceResponse(inv model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID.String(),
		Number:        inv.Number,
		NCF:           inv.NCF,
		NCFType:       inv.NCFType,
		Items:         inv.Items,
		Subtotal:      inv.Subtotal.StringFixed(2),
		DiscountTotal: inv.DiscountTotal.StringFixed(2),
		TaxTotal:      inv.TaxTotal.StringFixed(2),
		Total:         inv.Total.StringFixed(2),
		Currency:      inv.Currency,
		IssueDate:     inv.IssueDate.Format(time.RFC3339),
		DueDate:       inv.DueDate.Format(time.RFC3339),
		Status:        inv.EffectiveStatus(time.Now()),
		BalanceDue:    inv.BalanceDue.StringFixed(2),
		Notes:         inv.Notes,
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
	}

	if inv.ClientID != nil {
		cid := inv.ClientID.String()
		resp.ClientID = &cid
	}

	resp.Payments = make([]PaymentResponse, 0, len(inv.Payments))
	for _, p := range inv.Payments {
		resp.Payments = append(resp.Payments, PaymentResponse{
			ID:            p.ID.String(),
			Amount:        p.Amount.StringFixed(2),
			Method:        p.Method,
			Date:          p.Date.Format(time.RFC3339),
			Note:          p.Note,
			ReceiptNumber: p.ReceiptNumber,
			Currency:      p.Currency,
			Status:        p.Status,
		})
	}
	return resp
}
