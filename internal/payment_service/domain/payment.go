package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderCryptomus Provider = "cryptomus"
	ProviderPaytm     Provider = "paytm"
	ProviderBharatPe  Provider = "bharatpe"
)

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusSuccess OrderStatus = "success"
	OrderStatusFailed  OrderStatus = "failed"
	OrderStatusExpired OrderStatus = "expired"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusSuccess || s == OrderStatusFailed || s == OrderStatusExpired
}

// PaymentOrder tracks an intent locally so later verification can find it.
// Transitions out of pending happen at most once.
type PaymentOrder struct {
	OrderID        string
	UserID         uuid.UUID
	Provider       Provider
	Amount         decimal.Decimal
	Currency       string
	Status         OrderStatus
	GatewayTxnID   *string
	BankTxnID      *string
	GatewayMessage *string
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (o *PaymentOrder) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

// CreditRequest credits a user's balance once per Reference.
type CreditRequest struct {
	UserID    uuid.UUID
	Amount    decimal.Decimal
	Reference string
	Provider  Provider
	OrderID   string
}

type CreditResult struct {
	RechargeID uuid.UUID
	NewBalance decimal.Decimal
}

// PaymentCreditedEvent is published after a successful credit.
type PaymentCreditedEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	Provider   Provider  `json:"provider"`
	Reference  string    `json:"reference"`
	OrderID    string    `json:"order_id,omitempty"`
	Amount     string    `json:"amount"`
	NewBalance string    `json:"new_balance"`
	CreditedAt time.Time `json:"credited_at"`
}

const SubjectPaymentCredited = "payments.credited"
