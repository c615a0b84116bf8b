package model

import (
	"time"

	"github.com/google/uuid"
)

// Sequence type constants for human-readable document numbers.
const (
	SeqTypeInvoice = "invoice"
	SeqTypeQuote   = "quote"
)

// SequenceCounter holds the current value of one (tenant, type) document
// number sequence. Mutated only by the sequence allocator, inside a
// transaction, under a row lock; monotonically increasing, never reused.
type SequenceCounter struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID     string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_seq_tenant_type,priority:1" json:"tenant_id"`
	SequenceType string    `gorm:"type:varchar(30);not null;uniqueIndex:idx_seq_tenant_type,priority:2" json:"sequence_type"`
	Current      int64     `gorm:"type:bigint;not null;default:0" json:"current"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
