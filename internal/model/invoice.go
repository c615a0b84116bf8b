package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice status constants. Overdue ("vencida") is derived at read time from
// the due date and is never persisted.
const (
	StatusPending       = "pending"
	StatusPartiallyPaid = "parcialmente pagada"
	StatusPaid          = "pagada"
	StatusOverdue       = "vencida"
)

// Line item type constants. Only goods participate in stock accounting.
const (
	ItemTypeGood    = "good"
	ItemTypeService = "service"
)

// LineItem is a row of an invoice or quote. It has no identity of its own;
// it lives inside the parent document's jsonb column.
type LineItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	Description string          `json:"description"`
	Type        string          `json:"type"` // good, service
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	UnitCost    decimal.Decimal `json:"unit_cost"`    // cost snapshot at issue time
	DiscountPct decimal.Decimal `json:"discount_pct"` // 0-100
	TaxRate     decimal.Decimal `json:"tax_rate"`     // ITBIS rate, e.g. 0.18
}

// LineItems is stored as a jsonb column on the parent document.
type LineItems []LineItem

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		l = LineItems{}
	}
	return json.Marshal(l)
}

func (l *LineItems) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// Payment is an applied payment. Payments are append-only: created by the
// payment state machine, never mutated or deleted afterwards.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method"`
	Date          time.Time       `json:"date"`
	Note          string          `json:"note"`
	ReceiptNumber string          `json:"receipt_number"`
	Currency      string          `json:"currency"` // inherited from the invoice
	Status        string          `json:"status"`   // always "paid"
	CreatedAt     time.Time       `json:"created_at"`
}

// Payments is stored as a jsonb column on the invoice.
type Payments []Payment

func (p Payments) Value() (driver.Value, error) {
	if p == nil {
		p = Payments{}
	}
	return json.Marshal(p)
}

func (p *Payments) Scan(value interface{}) error {
	return scanJSON(value, p)
}

// Invoice is the billing document. Line items and payments are embedded so
// the whole invoice is written atomically as one row.
// Invariant: BalanceDue = Total - sum(Payments.Amount), clamped to zero.
type Invoice struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID      string          `gorm:"type:varchar(128);not null;index" json:"tenant_id"`
	Number        string          `gorm:"type:varchar(30);not null;index" json:"number"` // e.g. INV-000007
	NCF           string          `gorm:"type:varchar(19);column:ncf" json:"ncf"`
	NCFType       string          `gorm:"type:varchar(20);column:ncf_type" json:"ncf_type"`
	ClientID      *uuid.UUID      `gorm:"type:uuid;index" json:"client_id"`
	Items         LineItems       `gorm:"type:jsonb;default:'[]'" json:"items"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"discount_total"`
	TaxTotal      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tax_total"`
	Total         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	Currency      string          `gorm:"type:varchar(10);not null;default:'DOP'" json:"currency"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	Status        string          `gorm:"type:varchar(30);not null;default:'pending';index" json:"status"`
	BalanceDue    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"balance_due"`
	Payments      Payments        `gorm:"type:jsonb;default:'[]'" json:"payments"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// HasPayments reports whether any payment has been recorded.
func (i *Invoice) HasPayments() bool {
	return len(i.Payments) > 0
}

// EffectiveStatus derives the read-time status: an unpaid invoice reads as
// overdue starting the day after its due date, without a persisted
// transition. The invoice stays current through the whole due day.
func (i *Invoice) EffectiveStatus(now time.Time) string {
	if i.Status != StatusPending && i.Status != StatusPartiallyPaid {
		return i.Status
	}
	if i.DueDate.IsZero() {
		return i.Status
	}
	y, m, d := i.DueDate.Date()
	graceEnd := time.Date(y, m, d+1, 0, 0, 0, 0, i.DueDate.Location())
	if !now.Before(graceEnd) {
		return StatusOverdue
	}
	return i.Status
}
