package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/otpbazaar/golang_services/internal/cancellation_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/database"
)

const pendingCancellationColumns = `id, activation_id, server_id, phone_number, user_id, status, cancel_after, attempts, last_error, cancelled_at, created_at, updated_at`

type PgPendingCancellationRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgPendingCancellationRepository(db database.DB, logger *slog.Logger) *PgPendingCancellationRepository {
	return &PgPendingCancellationRepository{db: db, logger: logger.With("component", "pending_cancellation_repository")}
}

func (r *PgPendingCancellationRepository) Create(ctx context.Context, pc *domain.PendingCancellation) error {
	query := `
		INSERT INTO pending_cancellations (id, activation_id, server_id, phone_number, user_id, status, cancel_after, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		pc.ID, pc.ActivationID, pc.ServerID, pc.PhoneNumber, pc.UserID, string(pc.Status),
		pc.CancelAfter, pc.Attempts, pc.CreatedAt, pc.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating pending cancellation", "error", err, "cancellation_id", pc.ID)
		return fmt.Errorf("insert pending cancellation: %w", err)
	}
	return nil
}

func (r *PgPendingCancellationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingCancellation, error) {
	query := `SELECT ` + pendingCancellationColumns + ` FROM pending_cancellations WHERE id = $1`
	pc, err := scanPendingCancellation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting pending cancellation", "error", err, "cancellation_id", id)
		return nil, err
	}
	return pc, nil
}

func (r *PgPendingCancellationRepository) ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*domain.PendingCancellation, error) {
	query := `SELECT ` + pendingCancellationColumns + `
		FROM pending_cancellations
		WHERE status = $1 AND cancel_after <= $2 AND attempts < $3
		ORDER BY cancel_after ASC
		LIMIT $4`

	rows, err := r.db.Query(ctx, query, string(domain.StatusPending), now, maxAttempts, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying due cancellations", "error", err)
		return nil, fmt.Errorf("query due cancellations: %w", err)
	}
	defer rows.Close()

	var result []*domain.PendingCancellation
	for rows.Next() {
		pc, err := scanPendingCancellation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due cancellation: %w", err)
		}
		result = append(result, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due cancellations: %w", err)
	}
	return result, nil
}

// MarkCancelled only applies to pending rows, so a cancelled record never reverts.
func (r *PgPendingCancellationRepository) MarkCancelled(ctx context.Context, id uuid.UUID, cancelledAt time.Time) error {
	query := `
		UPDATE pending_cancellations
		SET status = $1, cancelled_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, string(domain.StatusCancelled), cancelledAt, id, string(domain.StatusPending))
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking cancellation cancelled", "error", err, "cancellation_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgPendingCancellationRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	query := `
		UPDATE pending_cancellations
		SET status = $1, attempts = GREATEST(attempts, $2), last_error = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	tag, err := r.db.Exec(ctx, query, string(domain.StatusFailed), attempts, lastError, time.Now().UTC(), id, string(domain.StatusPending))
	if err != nil {
		r.logger.ErrorContext(ctx, "Error marking cancellation failed", "error", err, "cancellation_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordAttempt never lowers attempts.
func (r *PgPendingCancellationRepository) RecordAttempt(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextCancelAfter *time.Time) error {
	query := `
		UPDATE pending_cancellations
		SET attempts = GREATEST(attempts, $1), last_error = $2, cancel_after = COALESCE($3::timestamptz, cancel_after), updated_at = $4
		WHERE id = $5 AND status = $6
	`
	tag, err := r.db.Exec(ctx, query, attempts, lastError, nextCancelAfter, time.Now().UTC(), id, string(domain.StatusPending))
	if err != nil {
		r.logger.ErrorContext(ctx, "Error recording cancellation attempt", "error", err, "cancellation_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPendingCancellation(row pgx.Row) (*domain.PendingCancellation, error) {
	var (
		pc     domain.PendingCancellation
		status string
	)
	err := row.Scan(
		&pc.ID, &pc.ActivationID, &pc.ServerID, &pc.PhoneNumber, &pc.UserID, &status,
		&pc.CancelAfter, &pc.Attempts, &pc.LastError, &pc.CancelledAt, &pc.CreatedAt, &pc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	pc.Status = domain.CancellationStatus(status)
	return &pc, nil
}
