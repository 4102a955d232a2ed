package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/database"
)

// PgBalanceRepository credits profiles.balance and records the recharge in one
// transaction. recharges.reference is UNIQUE, which is what makes a credit
// happen at most once per UTR or order.
type PgBalanceRepository struct {
	db     database.DB
	logger *slog.Logger
	newID  func() uuid.UUID
}

func NewPgBalanceRepository(db database.DB, logger *slog.Logger) *PgBalanceRepository {
	return &PgBalanceRepository{
		db:     db,
		logger: logger.With("component", "balance_repository"),
		newID:  uuid.New,
	}
}

func (r *PgBalanceRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM recharges WHERE reference = $1)`, reference).Scan(&exists)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error checking recharge reference", "error", err, "reference", reference)
		return false, fmt.Errorf("check recharge reference: %w", err)
	}
	return exists, nil
}

func (r *PgBalanceRepository) Credit(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin credit transaction: %w", err)
	}

	rechargeID := r.newID()
	now := time.Now().UTC()

	insertQuery := `
		INSERT INTO recharges (id, user_id, amount, reference, provider, order_id, status, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, NULLIF($6, ''), 'completed', $7)
		ON CONFLICT (reference) DO NOTHING
	`
	tag, err := tx.Exec(ctx, insertQuery, rechargeID, req.UserID, req.Amount.String(), req.Reference, string(req.Provider), req.OrderID, now)
	if err != nil {
		_ = tx.Rollback(ctx)
		r.logger.ErrorContext(ctx, "Error inserting recharge", "error", err, "reference", req.Reference)
		return nil, fmt.Errorf("insert recharge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		r.logger.InfoContext(ctx, "Recharge reference already credited", "reference", req.Reference, "user_id", req.UserID)
		return nil, domain.ErrAlreadyCredited
	}

	updateQuery := `
		UPDATE profiles
		SET balance = COALESCE(balance, 0) + $1::numeric, updated_at = $2
		WHERE id = $3
		RETURNING balance::text
	`
	var balanceText string
	if err := tx.QueryRow(ctx, updateQuery, req.Amount.String(), now, req.UserID).Scan(&balanceText); err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		r.logger.ErrorContext(ctx, "Error updating balance", "error", err, "user_id", req.UserID)
		return nil, fmt.Errorf("update balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credit transaction: %w", err)
	}

	newBalance, err := decimal.NewFromString(balanceText)
	if err != nil {
		return nil, fmt.Errorf("parse new balance %q: %w", balanceText, err)
	}

	r.logger.InfoContext(ctx, "Balance credited",
		"user_id", req.UserID,
		"amount", req.Amount.String(),
		"reference", req.Reference,
		"provider", req.Provider,
	)
	return &domain.CreditResult{RechargeID: rechargeID, NewBalance: newBalance}, nil
}
