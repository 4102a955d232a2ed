package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceCreditor credits balances exactly once per reference. Credit returns
// ErrAlreadyCredited when the reference has been used before.
type BalanceCreditor interface {
	Credit(ctx context.Context, req CreditRequest) (*CreditResult, error)
	ReferenceExists(ctx context.Context, reference string) (bool, error)
}

// OrderRepository stores payment orders. The Mark* methods only move an order
// out of pending and report whether this call made the transition.
type OrderRepository interface {
	Create(ctx context.Context, order *PaymentOrder) error
	GetByOrderID(ctx context.Context, orderID string) (*PaymentOrder, error)
	MarkSuccess(ctx context.Context, orderID, gatewayTxnID, bankTxnID, message string) (bool, error)
	MarkFailed(ctx context.Context, orderID, message string) (bool, error)
	MarkExpired(ctx context.Context, orderID string) (bool, error)
}

// SettingsRepository returns ErrSettingsNotFound when no row exists.
type SettingsRepository interface {
	GetCryptomusSettings(ctx context.Context) (*CryptomusSettings, error)
	GetPaytmSettings(ctx context.Context) (*PaytmSettings, error)
	GetUPISettings(ctx context.Context) (*UPISettings, error)
}

// --- Gateways ---

type CryptomusInvoiceRequest struct {
	Amount         decimal.Decimal
	Currency       string
	OrderID        string
	CallbackURL    string
	ReturnURL      string
	AdditionalData string
}

type CryptomusInvoice struct {
	UUID       string
	OrderID    string
	PaymentURL string
	Amount     string
}

type CryptomusGateway interface {
	CreateInvoice(ctx context.Context, settings CryptomusSettings, req CryptomusInvoiceRequest) (*CryptomusInvoice, error)
}

// PaytmTxnStatus is the gateway's order status response.
type PaytmTxnStatus struct {
	MID       string
	OrderID   string
	TxnID     string
	BankTxnID string
	TxnAmount string
	Status    string
	RespCode  string
	RespMsg   string
}

type PaytmGateway interface {
	OrderStatus(ctx context.Context, mid, orderID string) (*PaytmTxnStatus, error)
}

type BharatPeTransaction struct {
	ID               string
	BankReferenceNo  string
	Amount           decimal.Decimal
	Status           string
	PayerName        string
	PayerHandle      string
	PaymentTimestamp time.Time
}

type BharatPeGateway interface {
	ListTransactions(ctx context.Context, settings UPISettings, from, to time.Time) ([]BharatPeTransaction, error)
}
