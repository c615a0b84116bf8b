package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Batch is a sub-lot of a product's stock with its own cost and expiration.
// Batches are an advisory decomposition; the flat Stock field on the product
// stays authoritative.
type Batch struct {
	Label     string          `json:"label"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// Batches is stored as a jsonb column on the product.
type Batches []Batch

func (b Batches) Value() (driver.Value, error) {
	if b == nil {
		b = Batches{}
	}
	return json.Marshal(b)
}

func (b *Batches) Scan(value interface{}) error {
	return scanJSON(value, b)
}

// Product represents a sellable good or service. Stock may go negative when
// a backorder is explicitly authorized, signalling a purchasing priority.
type Product struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID  string          `gorm:"type:varchar(128);not null;index" json:"tenant_id"`
	SKU       string          `gorm:"type:varchar(100);index" json:"sku"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Type      string          `gorm:"type:varchar(20);not null;default:'good'" json:"type"` // good, service
	Price     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"price"`
	Cost      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"cost"`
	TaxRate   decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0" json:"tax_rate"` // ITBIS
	Stock     int             `gorm:"type:int;not null;default:0" json:"stock"`
	Batches   Batches         `gorm:"type:jsonb;default:'[]'" json:"batches"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// IsGood reports whether the product participates in stock accounting.
func (p *Product) IsGood() bool {
	return p.Type != ItemTypeService
}
