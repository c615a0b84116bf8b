package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quote statuses.
const (
	QuoteStatusDraft    = "draft"
	QuoteStatusSent     = "sent"
	QuoteStatusAccepted = "accepted"
	QuoteStatusRejected = "rejected"
)

// Quote is a priced offer. Quotes share the line-item shape with invoices
// but never touch inventory or payments.
type Quote struct {
	ID            uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID      string          `gorm:"type:varchar(128);not null;index" json:"tenant_id"`
	Number        string          `gorm:"type:varchar(30);not null;index" json:"number"` // e.g. COT-000003
	ClientID      *uuid.UUID      `gorm:"type:uuid;index" json:"client_id"`
	Items         LineItems       `gorm:"type:jsonb;default:'[]'" json:"items"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	DiscountTotal decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"discount_total"`
	TaxTotal      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"tax_total"`
	Total         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	Currency      string          `gorm:"type:varchar(10);not null;default:'DOP'" json:"currency"`
	Status        string          `gorm:"type:varchar(20);not null;default:'draft'" json:"status"`
	ValidUntil    *time.Time      `json:"valid_until,omitempty"`
	Notes         string          `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}
