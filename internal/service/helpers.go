package service

import (
	"billing/internal/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// parseID parses a path-parameter uuid, mapping failures to InvalidArgument.
func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.InvalidArgument("invalid %s id: %v", what, err)
	}
	return id, nil
}

// parseAmount parses a decimal string field, mapping failures to
// InvalidArgument. Empty input yields zero.
func parseAmount(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.InvalidArgument("invalid %s: %v", field, err)
	}
	return d, nil
}
