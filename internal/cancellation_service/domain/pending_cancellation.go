package domain

import (
	"time"

	"github.com/google/uuid"
)

type CancellationStatus string

const (
	StatusPending   CancellationStatus = "pending"
	StatusCancelled CancellationStatus = "cancelled"
	StatusFailed    CancellationStatus = "failed"
)

// PendingCancellation is a number lease that was abandoned before an OTP
// arrived and still has to be released with the upstream provider.
// Rows are never deleted; they stay as an audit trail.
type PendingCancellation struct {
	ID           uuid.UUID          `json:"id"`
	ActivationID string             `json:"activation_id"`
	ServerID     string             `json:"server_id"`
	PhoneNumber  string             `json:"phone_number"`
	UserID       *uuid.UUID         `json:"user_id,omitempty"`
	Status       CancellationStatus `json:"status"`
	CancelAfter  time.Time          `json:"cancel_after"`
	Attempts     int                `json:"attempts"`
	LastError    *string            `json:"last_error,omitempty"`
	CancelledAt  *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// RunSummary is reported after every reconciler pass.
type RunSummary struct {
	Processed   int `json:"processed"`
	Cancelled   int `json:"cancelled"`
	Failed      int `json:"failed"`
	Rescheduled int `json:"rescheduled"`
}
