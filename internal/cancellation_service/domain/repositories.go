package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PendingCancellationRepository persists the cancellation queue.
type PendingCancellationRepository interface {
	Create(ctx context.Context, pc *PendingCancellation) error
	GetByID(ctx context.Context, id uuid.UUID) (*PendingCancellation, error)
	// ListDue returns pending rows with cancel_after <= now and attempts < maxAttempts,
	// oldest cancel_after first.
	ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*PendingCancellation, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, cancelledAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
	// RecordAttempt stores a retryable outcome; nextCancelAfter nil keeps the current schedule.
	RecordAttempt(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextCancelAfter *time.Time) error
}

// ServerConfigLookup resolves a provider definition by server id.
type ServerConfigLookup interface {
	FindServerConfig(ctx context.Context, serverID string) (*ServerConfig, error)
}

// ProviderCanceller issues the cancel call and returns the raw response body.
type ProviderCanceller interface {
	Cancel(ctx context.Context, cfg ServerConfig, activationID string) (string, error)
}
