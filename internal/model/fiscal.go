package model

import (
	"time"

	"github.com/google/uuid"
)

// NCF type codes as used by the DGII. FiscalTypeNone means the caller did
// not request a fiscal receipt and no number is allocated.
const (
	FiscalTypeNone         = "none"
	FiscalTypeCreditoFiscal = "credito_fiscal" // B01
	FiscalTypeConsumo       = "consumo"        // B02
	FiscalTypeGubernamental = "gubernamental"  // B15
)

// FiscalSequence is a pre-provisioned, bounded, expirable NCF range for one
// (tenant, fiscal type). Current increases monotonically until it passes
// EndNumber, after which the sequence is exhausted and unusable.
type FiscalSequence struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID    string     `gorm:"type:varchar(128);not null;index:idx_fiscal_tenant_type" json:"tenant_id"`
	Name        string     `gorm:"type:varchar(100);not null" json:"name"`
	Type        string     `gorm:"type:varchar(30);not null;index:idx_fiscal_tenant_type" json:"type"`
	Prefix      string     `gorm:"type:varchar(10);not null" json:"prefix"` // e.g. B01
	Current     int64      `gorm:"type:bigint;not null" json:"current"`
	StartNumber int64      `gorm:"type:bigint;not null" json:"start_number"`
	EndNumber   int64      `gorm:"type:bigint;not null" json:"end_number"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `gorm:"not null;default:true;index" json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Remaining returns how many numbers are still allocatable.
func (f *FiscalSequence) Remaining() int64 {
	left := f.EndNumber - f.Current + 1
	if left < 0 {
		return 0
	}
	return left
}

// Exhausted reports whether the range has been fully consumed.
func (f *FiscalSequence) Exhausted() bool {
	return f.Current > f.EndNumber
}

// Expired reports whether the range's expiration date has passed.
func (f *FiscalSequence) Expired(now time.Time) bool {
	return f.ExpiresAt != nil && now.After(*f.ExpiresAt)
}
