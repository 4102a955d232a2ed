package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/database"
)

type PgOrderRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgOrderRepository(db database.DB, logger *slog.Logger) *PgOrderRepository {
	return &PgOrderRepository{db: db, logger: logger.With("component", "order_repository")}
}

func (r *PgOrderRepository) Create(ctx context.Context, o *domain.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders (order_id, user_id, provider, amount, currency, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		o.OrderID, o.UserID, string(o.Provider), o.Amount.String(), o.Currency, string(o.Status),
		o.ExpiresAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating payment order", "error", err, "order_id", o.OrderID)
		return fmt.Errorf("insert payment order: %w", err)
	}
	return nil
}

func (r *PgOrderRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	query := `
		SELECT order_id, user_id, provider, amount::text, currency, status, gateway_txn_id, bank_txn_id, gateway_message, expires_at, created_at, updated_at
		FROM payment_orders
		WHERE order_id = $1
	`
	var (
		o                        domain.PaymentOrder
		provider, status, amount string
	)
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&o.OrderID, &o.UserID, &provider, &amount, &o.Currency, &status,
		&o.GatewayTxnID, &o.BankTxnID, &o.GatewayMessage, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting payment order", "error", err, "order_id", orderID)
		return nil, fmt.Errorf("get payment order: %w", err)
	}
	o.Provider = domain.Provider(provider)
	o.Status = domain.OrderStatus(status)
	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse order amount %q: %w", amount, err)
	}
	return &o, nil
}

func (r *PgOrderRepository) MarkSuccess(ctx context.Context, orderID, gatewayTxnID, bankTxnID, message string) (bool, error) {
	query := `
		UPDATE payment_orders
		SET status = $1, gateway_txn_id = NULLIF($2, ''), bank_txn_id = NULLIF($3, ''), gateway_message = NULLIF($4, ''), updated_at = $5
		WHERE order_id = $6 AND status = $7
	`
	return r.transition(ctx, orderID, domain.OrderStatusSuccess, query,
		string(domain.OrderStatusSuccess), gatewayTxnID, bankTxnID, message, time.Now().UTC(), orderID, string(domain.OrderStatusPending))
}

func (r *PgOrderRepository) MarkFailed(ctx context.Context, orderID, message string) (bool, error) {
	query := `
		UPDATE payment_orders
		SET status = $1, gateway_message = NULLIF($2, ''), updated_at = $3
		WHERE order_id = $4 AND status = $5
	`
	return r.transition(ctx, orderID, domain.OrderStatusFailed, query,
		string(domain.OrderStatusFailed), message, time.Now().UTC(), orderID, string(domain.OrderStatusPending))
}

func (r *PgOrderRepository) MarkExpired(ctx context.Context, orderID string) (bool, error) {
	query := `
		UPDATE payment_orders
		SET status = $1, updated_at = $2
		WHERE order_id = $3 AND status = $4
	`
	return r.transition(ctx, orderID, domain.OrderStatusExpired, query,
		string(domain.OrderStatusExpired), time.Now().UTC(), orderID, string(domain.OrderStatusPending))
}

func (r *PgOrderRepository) transition(ctx context.Context, orderID string, to domain.OrderStatus, query string, args ...any) (bool, error) {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating payment order status", "error", err, "order_id", orderID, "new_status", to)
		return false, fmt.Errorf("update payment order %s to %s: %w", orderID, to, err)
	}
	moved := tag.RowsAffected() > 0
	if moved {
		r.logger.InfoContext(ctx, "Payment order status updated", "order_id", orderID, "new_status", to)
	}
	return moved, nil
}
