package repository

import (
	"context"
	"errors"

	"billing/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// maxTxRetries bounds how often a conflicted transaction is re-run before
// the operation fails with Internal.
const maxTxRetries = 3

// TransactionManager is the atomic primitive every core component is built
// on: fn runs inside one database transaction and is re-run from scratch
// when the commit loses a write conflict, up to maxTxRetries attempts. No
// partial writes are ever visible.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	// Already inside a transaction: join it instead of nesting. Business
	// failures must abort the whole outer operation, not a savepoint.
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= maxTxRetries; attempt++ {
		lastErr = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txCtx := context.WithValue(ctx, txKey, tx)
			return fn(txCtx)
		})
		if lastErr == nil || !isRetryableTxError(lastErr) {
			return lastErr
		}
		log.Warn().Int("attempt", attempt).Err(lastErr).Msg("transaction conflict, retrying")
	}
	return apperr.Internal("transaction retries exhausted", lastErr)
}

// isRetryableTxError matches the SQLSTATEs Postgres raises when a concurrent
// transaction invalidated our work: serialization failure, deadlock, and
// unique violation (two transactions bootstrapping the same counter row race
// on its unique index; the loser finds the row on the next attempt).
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "23505"
	}
	return false
}

// GetDB extracts the transaction DB from context if present, otherwise
// returns the root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
