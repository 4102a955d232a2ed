package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/otpbazaar/golang_services/internal/cancellation_service/domain"
)

// EnqueueRequest registers a lease that has to be released upstream.
type EnqueueRequest struct {
	ActivationID string     `json:"activation_id" validate:"required,max=64"`
	ServerID     string     `json:"server_id" validate:"required,max=64"`
	PhoneNumber  string     `json:"phone_number" validate:"required,max=32"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	DelaySeconds int        `json:"delay_seconds" validate:"gte=0,lte=86400"`
}

type Enqueuer struct {
	repo   domain.PendingCancellationRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewEnqueuer(repo domain.PendingCancellationRepository, logger *slog.Logger) *Enqueuer {
	return &Enqueuer{
		repo:   repo,
		logger: logger.With("component", "cancellation_enqueuer"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue stores a pending record eligible after DelaySeconds.
func (e *Enqueuer) Enqueue(ctx context.Context, req EnqueueRequest) (*domain.PendingCancellation, error) {
	now := e.now()
	pc := &domain.PendingCancellation{
		ID:           uuid.New(),
		ActivationID: req.ActivationID,
		ServerID:     req.ServerID,
		PhoneNumber:  req.PhoneNumber,
		UserID:       req.UserID,
		Status:       domain.StatusPending,
		CancelAfter:  now.Add(time.Duration(req.DelaySeconds) * time.Second),
		Attempts:     0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.repo.Create(ctx, pc); err != nil {
		return nil, fmt.Errorf("enqueue cancellation for activation %s: %w", req.ActivationID, err)
	}
	e.logger.InfoContext(ctx, "Cancellation queued", "cancellation_id", pc.ID, "server_id", pc.ServerID, "cancel_after", pc.CancelAfter)
	return pc, nil
}
