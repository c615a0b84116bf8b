package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"billing/internal/apperr"
	"billing/internal/model"
	"billing/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// paymentEpsilon absorbs sub-cent rounding residue in balance comparisons.
// A tolerance, not a business rule: a payment up to 0.001 over the balance
// is accepted and a balance at or below 0.001 counts as settled.
var paymentEpsilon = decimal.NewFromFloat(0.001)

// --- DTOs ---

type AddPaymentRequest struct {
	Amount string `json:"amount" binding:"required"`
	Method string `json:"method" binding:"required"`
	Date   string `json:"date"` // RFC3339, defaults to now
	Note   string `json:"note"`
}

// PaymentService applies payments to invoices: it recomputes the running
// balance, drives the status state machine and appends the payment record,
// all inside one atomic transaction per call. Two concurrent calls on the
// same invoice serialize on the invoice row; the later one re-reads the
// post-first-payment balance.
type PaymentService interface {
	AddPayment(ctx context.Context, tenantID, invoiceID string, req AddPaymentRequest) (PaymentResponse, error)
}

type paymentService struct {
	invoiceRepo repository.InvoiceRepository
	txManager   repository.TransactionManager
	log         zerolog.Logger
}

func NewPaymentService(invoiceRepo repository.InvoiceRepository, txManager repository.TransactionManager, log zerolog.Logger) PaymentService {
	return &paymentService{invoiceRepo: invoiceRepo, txManager: txManager, log: log}
}

func (s *paymentService) AddPayment(ctx context.Context, tenantID, invoiceID string, req AddPaymentRequest) (PaymentResponse, error) {
	id, err := parseID(invoiceID, "invoice")
	if err != nil {
		return PaymentResponse{}, err
	}

	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		return PaymentResponse{}, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return PaymentResponse{}, apperr.InvalidArgument("payment amount must be positive")
	}

	date := time.Now()
	if req.Date != "" {
		parsed, parseErr := time.Parse(time.RFC3339, req.Date)
		if parseErr != nil {
			return PaymentResponse{}, apperr.InvalidArgument("invalid date: %v", parseErr)
		}
		date = parsed
	}

	var payment model.Payment
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		invoice, findErr := s.invoiceRepo.FindByIDForUpdate(txCtx, id)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperr.NotFound("invoice not found")
			}
			return fmt.Errorf("failed to fetch invoice: %w", findErr)
		}
		if invoice.TenantID != tenantID {
			return apperr.PermissionDenied("invoice belongs to another tenant")
		}

		// Documents predating the balance field fall back to the total.
		current := invoice.BalanceDue
		if current.IsZero() && !invoice.HasPayments() {
			current = invoice.Total
		}
		current = current.Round(2)

		if amount.GreaterThan(current.Add(paymentEpsilon)) {
			return apperr.FailedPrecondition(
				"payment %s exceeds balance due %s",
				amount.StringFixed(2), current.StringFixed(2))
		}

		payment = model.Payment{
			ID:            uuid.New(),
			Amount:        amount,
			Method:        req.Method,
			Date:          date,
			Note:          req.Note,
			ReceiptNumber: "REC-" + strconv.FormatInt(time.Now().UnixMilli(), 10),
			Currency:      invoice.Currency,
			Status:        "paid",
			CreatedAt:     time.Now(),
		}

		newBalance := current.Sub(amount).Round(2)
		switch {
		case newBalance.LessThanOrEqual(paymentEpsilon):
			invoice.Status = model.StatusPaid
			newBalance = decimal.Zero
		case newBalance.LessThan(invoice.Total):
			invoice.Status = model.StatusPartiallyPaid
		}

		invoice.BalanceDue = newBalance
		invoice.Payments = append(invoice.Payments, payment)

		if saveErr := s.invoiceRepo.Save(txCtx, invoice); saveErr != nil {
			return fmt.Errorf("failed to record payment: %w", saveErr)
		}
		return nil
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	s.log.Info().
		Str("tenant_id", tenantID).
		Str("invoice_id", invoiceID).
		Str("amount", amount.StringFixed(2)).
		Msg("payment recorded")

	return PaymentResponse{
		ID:            payment.ID.String(),
		Amount:        payment.Amount.StringFixed(2),
		Method:        payment.Method,
		Date:          payment.Date.Format(time.RFC3339),
		Note:          payment.Note,
		ReceiptNumber: payment.ReceiptNumber,
		Currency:      payment.Currency,
		Status:        payment.Status,
	}, nil
}
