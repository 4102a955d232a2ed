package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) GetCryptomusSettings(ctx context.Context) (*domain.CryptomusSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CryptomusSettings), args.Error(1)
}

func (m *MockSettingsRepository) GetPaytmSettings(ctx context.Context) (*domain.PaytmSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaytmSettings), args.Error(1)
}

func (m *MockSettingsRepository) GetUPISettings(ctx context.Context) (*domain.UPISettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UPISettings), args.Error(1)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *domain.PaymentOrder) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentOrder, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentOrder), args.Error(1)
}

func (m *MockOrderRepository) MarkSuccess(ctx context.Context, orderID, gatewayTxnID, bankTxnID, message string) (bool, error) {
	args := m.Called(ctx, orderID, gatewayTxnID, bankTxnID, message)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) MarkFailed(ctx context.Context, orderID, message string) (bool, error) {
	args := m.Called(ctx, orderID, message)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) MarkExpired(ctx context.Context, orderID string) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

type MockBalanceCreditor struct {
	mock.Mock
}

func (m *MockBalanceCreditor) Credit(ctx context.Context, req domain.CreditRequest) (*domain.CreditResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreditResult), args.Error(1)
}

func (m *MockBalanceCreditor) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	args := m.Called(ctx, reference)
	return args.Bool(0), args.Error(1)
}

type MockCryptomusGateway struct {
	mock.Mock
}

func (m *MockCryptomusGateway) CreateInvoice(ctx context.Context, settings domain.CryptomusSettings, req domain.CryptomusInvoiceRequest) (*domain.CryptomusInvoice, error) {
	args := m.Called(ctx, settings, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CryptomusInvoice), args.Error(1)
}

type MockPaytmGateway struct {
	mock.Mock
}

func (m *MockPaytmGateway) OrderStatus(ctx context.Context, mid, orderID string) (*domain.PaytmTxnStatus, error) {
	args := m.Called(ctx, mid, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaytmTxnStatus), args.Error(1)
}

type MockBharatPeGateway struct {
	mock.Mock
}

func (m *MockBharatPeGateway) ListTransactions(ctx context.Context, settings domain.UPISettings, from, to time.Time) ([]domain.BharatPeTransaction, error) {
	args := m.Called(ctx, settings, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BharatPeTransaction), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return m.Called(ctx, subject, data).Error(0)
}
