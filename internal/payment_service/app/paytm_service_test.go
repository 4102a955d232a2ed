package app

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
)

type paytmFixture struct {
	svc       *PaytmService
	settings  *MockSettingsRepository
	orders    *MockOrderRepository
	balances  *MockBalanceCreditor
	gateway   *MockPaytmGateway
	publisher *MockPublisher
	now       time.Time
}

func newPaytmFixture() *paytmFixture {
	f := &paytmFixture{
		settings:  new(MockSettingsRepository),
		orders:    new(MockOrderRepository),
		balances:  new(MockBalanceCreditor),
		gateway:   new(MockPaytmGateway),
		publisher: new(MockPublisher),
		now:       time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewPaytmService(f.settings, f.orders, f.balances, f.gateway, f.publisher, testLogger(), PaytmConfig{
		QRCodeBaseURL: "https://qr.example.com/?data=",
	})
	f.svc.now = func() time.Time { return f.now }
	f.svc.intn = func(int) int { return 42 }
	return f
}

func activePaytmSettings() *domain.PaytmSettings {
	return &domain.PaytmSettings{
		MerchantID:     "MID123",
		MerchantKey:    "secret-key",
		UPIID:          "shop@paytm",
		PayeeName:      "OTP Shop",
		IsActive:       true,
		MinRecharge:    decimal.NewFromInt(10),
		MaxRecharge:    decimal.NewFromInt(5000),
		TimeoutMinutes: 15,
	}
}

func pendingOrder(userID uuid.UUID, expiresAt time.Time) *domain.PaymentOrder {
	return &domain.PaymentOrder{
		OrderID:   "17172360000000042",
		UserID:    userID,
		Provider:  domain.ProviderPaytm,
		Amount:    decimal.NewFromInt(250),
		Currency:  "INR",
		Status:    domain.OrderStatusPending,
		ExpiresAt: expiresAt,
	}
}

func TestPaytmService_CreatePayment(t *testing.T) {
	f := newPaytmFixture()
	userID := uuid.New()
	f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.PaymentOrder) bool {
		return o.OrderID == "17172360000000042" &&
			o.UserID == userID &&
			o.ExpiresAt.Equal(f.now.Add(15*time.Minute))
	})).Return(nil)

	intent, err := f.svc.CreatePayment(context.Background(), userID, decimal.NewFromInt(250))
	require.NoError(t, err)

	assert.Equal(t, "17172360000000042", intent.OrderID)
	assert.Equal(t, "upi://pay?pa=shop%40paytm&pn=OTP+Shop&am=250.00&cu=INR&tn=Recharge+17172360000000042&tr=17172360000000042", intent.UPIURL)
	assert.Equal(t, "https://qr.example.com/?data="+url.QueryEscape(intent.UPIURL), intent.QRURL)
	assert.Equal(t, "OTP Shop", intent.PayeeName)
	assert.Equal(t, 15, intent.TimeoutMinutes)
	f.orders.AssertExpectations(t)
}

func TestPaytmService_CreatePayment_AmountBounds(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		msg    string
	}{
		{"zero", 0, "Invalid amount"},
		{"below minimum", 5, "Minimum recharge amount is ₹10"},
		{"above maximum", 6000, "Maximum recharge amount is ₹5000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaytmFixture()
			f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)

			_, err := f.svc.CreatePayment(context.Background(), uuid.New(), decimal.NewFromInt(tt.amount))
			status, msg := domain.StatusAndMessage(err)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.msg, msg)
			f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestPaytmService_GetSettings_HidesMerchantKey(t *testing.T) {
	f := newPaytmFixture()
	f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)

	public, err := f.svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shop@paytm", public.UPIID)
	assert.Equal(t, 5000.0, public.MaxRecharge)
}

func TestPaytmService_CheckStatus_InvalidOrderIsPending(t *testing.T) {
	for _, txn := range []*domain.PaytmTxnStatus{
		{MID: "MID123", Status: "TXN_FAILURE", RespCode: "334", RespMsg: "Invalid Order Id."},
		{MID: "MID123", Status: "TXN_FAILURE", RespCode: "999", RespMsg: "invalid order id"},
	} {
		f := newPaytmFixture()
		userID := uuid.New()
		f.orders.On("GetByOrderID", mock.Anything, "17172360000000042").Return(pendingOrder(userID, f.now.Add(time.Minute)), nil)
		f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
		f.gateway.On("OrderStatus", mock.Anything, "MID123", "17172360000000042").Return(txn, nil)

		res, err := f.svc.CheckStatus(context.Background(), userID, "17172360000000042")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)
		f.orders.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
		f.balances.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	}
}

func TestPaytmService_CheckStatus_SuccessCredits(t *testing.T) {
	f := newPaytmFixture()
	userID := uuid.New()
	orderID := "17172360000000042"
	f.orders.On("GetByOrderID", mock.Anything, orderID).Return(pendingOrder(userID, f.now.Add(time.Minute)), nil)
	f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
	f.gateway.On("OrderStatus", mock.Anything, "MID123", orderID).Return(&domain.PaytmTxnStatus{
		MID: "MID123", OrderID: orderID, TxnID: "T100", BankTxnID: "415612345678",
		TxnAmount: "250.00", Status: "TXN_SUCCESS", RespCode: "01", RespMsg: "Txn Success",
	}, nil)
	f.orders.On("MarkSuccess", mock.Anything, orderID, "T100", "415612345678", "Txn Success").Return(true, nil)
	f.balances.On("Credit", mock.Anything, mock.MatchedBy(func(r domain.CreditRequest) bool {
		return r.Reference == "paytm:"+orderID && r.UserID == userID && r.Amount.Equal(decimal.NewFromInt(250))
	})).Return(&domain.CreditResult{NewBalance: decimal.NewFromInt(300)}, nil)
	f.publisher.On("Publish", mock.Anything, domain.SubjectPaymentCredited, mock.Anything).Return(nil)

	res, err := f.svc.CheckStatus(context.Background(), userID, orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "415612345678", res.UTR)
	assert.Equal(t, "T100", res.TxnID)
	require.NotNil(t, res.NewBalance)
	assert.True(t, decimal.NewFromInt(300).Equal(*res.NewBalance))
	f.balances.AssertExpectations(t)
}

func TestPaytmService_CheckStatus_FailedCreditRetriedOnNextPoll(t *testing.T) {
	f := newPaytmFixture()
	userID := uuid.New()
	orderID := "17172360000000042"
	f.orders.On("GetByOrderID", mock.Anything, orderID).Return(pendingOrder(userID, f.now.Add(time.Minute)), nil)
	f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
	f.gateway.On("OrderStatus", mock.Anything, "MID123", orderID).Return(&domain.PaytmTxnStatus{
		MID: "MID123", OrderID: orderID, TxnID: "T100", BankTxnID: "415612345678",
		TxnAmount: "250.00", Status: "TXN_SUCCESS", RespCode: "01", RespMsg: "Txn Success",
	}, nil)
	f.balances.On("Credit", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()
	f.balances.On("Credit", mock.Anything, mock.Anything).Return(&domain.CreditResult{NewBalance: decimal.NewFromInt(250)}, nil).Once()
	f.orders.On("MarkSuccess", mock.Anything, orderID, "T100", "415612345678", "Txn Success").Return(true, nil)
	f.publisher.On("Publish", mock.Anything, domain.SubjectPaymentCredited, mock.Anything).Return(nil)

	_, err := f.svc.CheckStatus(context.Background(), userID, orderID)
	status, _ := domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	f.orders.AssertNotCalled(t, "MarkSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	res, err := f.svc.CheckStatus(context.Background(), userID, orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.NewBalance)
	assert.True(t, decimal.NewFromInt(250).Equal(*res.NewBalance))
	f.balances.AssertNumberOfCalls(t, "Credit", 2)
	f.orders.AssertNumberOfCalls(t, "MarkSuccess", 1)
}

func TestPaytmService_CheckStatus_MarkSuccessErrorStillReportsCredit(t *testing.T) {
	f := newPaytmFixture()
	userID := uuid.New()
	orderID := "17172360000000042"
	f.orders.On("GetByOrderID", mock.Anything, orderID).Return(pendingOrder(userID, f.now.Add(time.Minute)), nil)
	f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
	f.gateway.On("OrderStatus", mock.Anything, "MID123", orderID).Return(&domain.PaytmTxnStatus{
		MID: "MID123", OrderID: orderID, TxnID: "T100", Status: "TXN_SUCCESS",
	}, nil)
	f.balances.On("Credit", mock.Anything, mock.Anything).Return(nil, domain.ErrAlreadyCredited)
	f.orders.On("MarkSuccess", mock.Anything, orderID, "T100", "", "").Return(false, errors.New("conn reset"))

	res, err := f.svc.CheckStatus(context.Background(), userID, orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Payment already processed", res.Message)
	f.orders.AssertExpectations(t)
}

func TestPaytmService_CheckStatus_EchoMismatchDoesNotCredit(t *testing.T) {
	f := newPaytmFixture()
	userID := uuid.New()
	orderID := "17172360000000042"
	f.orders.On("GetByOrderID", mock.Anything, orderID).Return(pendingOrder(userID, f.now.Add(time.Minute)), nil)
	f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
	f.gateway.On("OrderStatus", mock.Anything, "MID123", orderID).Return(&domain.PaytmTxnStatus{
		MID: "OTHERMID", OrderID: orderID, Status: "TXN_SUCCESS", TxnAmount: "250.00",
	}, nil)

	res, err := f.svc.CheckStatus(context.Background(), userID, orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, res.Status)
	f.orders.AssertNotCalled(t, "MarkSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.balances.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestPaytmService_CheckStatus_Failure(t *testing.T) {
	f := newPaytmFixture()
	userID := uuid.New()
	orderID := "17172360000000042"
	f.orders.On("GetByOrderID", mock.Anything, orderID).Return(pendingOrder(userID, f.now.Add(time.Minute)), nil)
	f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
	f.gateway.On("OrderStatus", mock.Anything, "MID123", orderID).Return(&domain.PaytmTxnStatus{
		MID: "MID123", OrderID: orderID, Status: "TXN_FAILURE", RespCode: "227", RespMsg: "Payment declined by bank",
	}, nil)
	f.orders.On("MarkFailed", mock.Anything, orderID, "Payment declined by bank").Return(true, nil)

	res, err := f.svc.CheckStatus(context.Background(), userID, orderID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "Payment declined by bank", res.Message)
	f.orders.AssertExpectations(t)
}

func TestPaytmService_CheckStatus_NetworkErrorIsPendingOrExpired(t *testing.T) {
	t.Run("within window", func(t *testing.T) {
		f := newPaytmFixture()
		userID := uuid.New()
		f.orders.On("GetByOrderID", mock.Anything, mock.Anything).Return(pendingOrder(userID, f.now.Add(time.Minute)), nil)
		f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
		f.gateway.On("OrderStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

		res, err := f.svc.CheckStatus(context.Background(), userID, "17172360000000042")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Status)
	})

	t.Run("past expiry", func(t *testing.T) {
		f := newPaytmFixture()
		userID := uuid.New()
		f.orders.On("GetByOrderID", mock.Anything, mock.Anything).Return(pendingOrder(userID, f.now.Add(-time.Minute)), nil)
		f.settings.On("GetPaytmSettings", mock.Anything).Return(activePaytmSettings(), nil)
		f.gateway.On("OrderStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
		f.orders.On("MarkExpired", mock.Anything, "17172360000000042").Return(true, nil)

		res, err := f.svc.CheckStatus(context.Background(), userID, "17172360000000042")
		require.NoError(t, err)
		assert.Equal(t, StatusExpired, res.Status)
		f.orders.AssertExpectations(t)
	})
}

func TestPaytmService_CheckStatus_TerminalOrderSkipsGateway(t *testing.T) {
	f := newPaytmFixture()
	userID := uuid.New()
	utr := "415612345678"
	order := pendingOrder(userID, f.now.Add(time.Minute))
	order.Status = domain.OrderStatusSuccess
	order.BankTxnID = &utr
	f.orders.On("GetByOrderID", mock.Anything, order.OrderID).Return(order, nil)

	res, err := f.svc.CheckStatus(context.Background(), userID, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, utr, res.UTR)
	f.gateway.AssertNotCalled(t, "OrderStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaytmService_CheckStatus_Errors(t *testing.T) {
	t.Run("missing order id", func(t *testing.T) {
		f := newPaytmFixture()
		_, err := f.svc.CheckStatus(context.Background(), uuid.New(), "  ")
		status, _ := domain.StatusAndMessage(err)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newPaytmFixture()
		f.orders.On("GetByOrderID", mock.Anything, "nope").Return(nil, domain.ErrNotFound)
		_, err := f.svc.CheckStatus(context.Background(), uuid.New(), "nope")
		status, _ := domain.StatusAndMessage(err)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("someone else's order", func(t *testing.T) {
		f := newPaytmFixture()
		f.orders.On("GetByOrderID", mock.Anything, mock.Anything).Return(pendingOrder(uuid.New(), f.now.Add(time.Minute)), nil)
		_, err := f.svc.CheckStatus(context.Background(), uuid.New(), "17172360000000042")
		status, _ := domain.StatusAndMessage(err)
		assert.Equal(t, http.StatusForbidden, status)
		f.gateway.AssertNotCalled(t, "OrderStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}
