package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/messagebroker"
)

// creditRecorder applies credits and emits the bookkeeping that follows a
// successful one. All three providers share it.
type creditRecorder struct {
	balances  domain.BalanceCreditor
	publisher messagebroker.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func (c *creditRecorder) credit(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
	res, err := c.balances.Credit(ctx, req)
	if err != nil {
		return nil, err
	}
	paymentsCreditedCounter.WithLabelValues(string(req.Provider)).Inc()

	event := domain.PaymentCreditedEvent{
		UserID:     req.UserID,
		Provider:   req.Provider,
		Reference:  req.Reference,
		OrderID:    req.OrderID,
		Amount:     req.Amount.String(),
		NewBalance: res.NewBalance.String(),
		CreditedAt: c.now().UTC(),
	}
	if c.publisher != nil {
		if err := messagebroker.PublishJSON(ctx, c.publisher, domain.SubjectPaymentCredited, event); err != nil {
			c.logger.WarnContext(ctx, "Failed to publish payment credited event", "error", err, "reference", req.Reference)
		}
	}
	return res, nil
}
