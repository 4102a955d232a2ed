package app

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/sjson"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/payment_service/signature"
)

const testCryptomusKey = "cryptomus-api-key"

type cryptomusFixture struct {
	svc       *CryptomusService
	settings  *MockSettingsRepository
	orders    *MockOrderRepository
	balances  *MockBalanceCreditor
	gateway   *MockCryptomusGateway
	publisher *MockPublisher
}

func newCryptomusFixture(strict bool) *cryptomusFixture {
	f := &cryptomusFixture{
		settings:  new(MockSettingsRepository),
		orders:    new(MockOrderRepository),
		balances:  new(MockBalanceCreditor),
		gateway:   new(MockCryptomusGateway),
		publisher: new(MockPublisher),
	}
	f.svc = NewCryptomusService(f.settings, f.orders, f.balances, f.gateway, f.publisher, testLogger(), CryptomusConfig{
		CallbackURL:     "https://example.com/functions/v1/cryptomus-webhook",
		ReturnURL:       "https://example.com/wallet",
		GatewayMinimum:  decimal.NewFromInt(81),
		StrictSignature: strict,
	})
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }
	f.svc.intn = func(int) int { return 10 }
	return f
}

func activeCryptomusSettings(min int64) *domain.CryptomusSettings {
	return &domain.CryptomusSettings{
		MerchantID:  "merchant-1",
		APIKey:      testCryptomusKey,
		IsActive:    true,
		MinRecharge: decimal.NewFromInt(min),
		Currency:    "INR",
	}
}

func signedWebhook(t *testing.T, body string) []byte {
	t.Helper()
	sign := signature.CryptomusSign([]byte(body), testCryptomusKey)
	out, err := sjson.SetBytes([]byte(body), "sign", sign)
	require.NoError(t, err)
	return out
}

func TestCryptomusService_CreatePayment_BelowEffectiveMinimum(t *testing.T) {
	f := newCryptomusFixture(false)
	f.settings.On("GetCryptomusSettings", mock.Anything).Return(activeCryptomusSettings(10), nil)

	res, err := f.svc.CreatePayment(context.Background(), uuid.New(), decimal.NewFromInt(50))
	require.Error(t, err)
	assert.Nil(t, res)

	status, msg := domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Minimum recharge amount is ₹81", msg)
	f.gateway.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything, mock.Anything)
	f.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCryptomusService_CreatePayment_Success(t *testing.T) {
	f := newCryptomusFixture(false)
	userID := uuid.New()
	settings := activeCryptomusSettings(100)
	f.settings.On("GetCryptomusSettings", mock.Anything).Return(settings, nil)
	f.orders.On("Create", mock.Anything, mock.MatchedBy(func(o *domain.PaymentOrder) bool {
		return o.UserID == userID && o.Provider == domain.ProviderCryptomus && o.Status == domain.OrderStatusPending
	})).Return(nil)
	f.gateway.On("CreateInvoice", mock.Anything, *settings, mock.MatchedBy(func(req domain.CryptomusInvoiceRequest) bool {
		return req.Amount.Equal(decimal.NewFromInt(150)) &&
			req.AdditionalData == `{"user_id":"`+userID.String()+`"}` &&
			req.CallbackURL == "https://example.com/functions/v1/cryptomus-webhook"
	})).Return(&domain.CryptomusInvoice{UUID: "inv-1", PaymentURL: "https://pay.cryptomus.com/pay/inv-1"}, nil)

	res, err := f.svc.CreatePayment(context.Background(), userID, decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.cryptomus.com/pay/inv-1", res.PaymentURL)
	assert.Regexp(t, regexp.MustCompile(`^ORD_\d{13}_[0-9a-z]{9}$`), res.OrderID)
	assert.Equal(t, "ORD_1717236000000_aaaaaaaaa", res.OrderID)
	f.orders.AssertExpectations(t)
	f.gateway.AssertExpectations(t)
}

func TestCryptomusService_CreatePayment_Inactive(t *testing.T) {
	f := newCryptomusFixture(false)
	s := activeCryptomusSettings(10)
	s.IsActive = false
	f.settings.On("GetCryptomusSettings", mock.Anything).Return(s, nil)

	_, err := f.svc.CreatePayment(context.Background(), uuid.New(), decimal.NewFromInt(500))
	status, _ := domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCryptomusService_CreatePayment_MissingCredentials(t *testing.T) {
	f := newCryptomusFixture(false)
	s := activeCryptomusSettings(10)
	s.APIKey = ""
	f.settings.On("GetCryptomusSettings", mock.Anything).Return(s, nil)

	_, err := f.svc.CreatePayment(context.Background(), uuid.New(), decimal.NewFromInt(500))
	status, _ := domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestCryptomusService_CreatePayment_GatewayError(t *testing.T) {
	f := newCryptomusFixture(false)
	f.settings.On("GetCryptomusSettings", mock.Anything).Return(activeCryptomusSettings(10), nil)
	f.orders.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.gateway.On("CreateInvoice", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("state 1"))
	f.orders.On("MarkFailed", mock.Anything, mock.Anything, "state 1").Return(true, nil)

	_, err := f.svc.CreatePayment(context.Background(), uuid.New(), decimal.NewFromInt(100))
	status, msg := domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "Failed to create payment", msg)
	f.orders.AssertExpectations(t)
}

func TestCryptomusService_HandleWebhook_PaidCreditsOnce(t *testing.T) {
	f := newCryptomusFixture(true)
	userID := uuid.New()
	body := `{"uuid":"inv-1","order_id":"ORD_1","amount":"150.00","status":"paid","txid":"0xabc","additional_data":"{\"user_id\":\"` + userID.String() + `\"}"}`
	raw := signedWebhook(t, body)

	f.settings.On("GetCryptomusSettings", mock.Anything).Return(activeCryptomusSettings(10), nil)
	creditReq := domain.CreditRequest{
		UserID:    userID,
		Amount:    decimal.RequireFromString("150.00"),
		Reference: "cryptomus:ORD_1",
		Provider:  domain.ProviderCryptomus,
		OrderID:   "ORD_1",
	}
	f.balances.On("Credit", mock.Anything, mock.MatchedBy(func(r domain.CreditRequest) bool {
		return r.Reference == creditReq.Reference && r.UserID == userID && r.Amount.Equal(creditReq.Amount)
	})).Return(&domain.CreditResult{NewBalance: decimal.NewFromInt(400)}, nil).Once()
	f.balances.On("Credit", mock.Anything, mock.Anything).Return(nil, domain.ErrAlreadyCredited).Once()
	f.orders.On("MarkSuccess", mock.Anything, "ORD_1", "inv-1", "0xabc", "paid").Return(true, nil).Once()
	f.publisher.On("Publish", mock.Anything, domain.SubjectPaymentCredited, mock.Anything).Return(nil).Once()

	first, err := f.svc.HandleWebhook(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, first.Credited)
	require.NotNil(t, first.NewBalance)
	assert.True(t, decimal.NewFromInt(400).Equal(*first.NewBalance))

	second, err := f.svc.HandleWebhook(context.Background(), raw)
	require.NoError(t, err)
	assert.False(t, second.Credited)
	assert.Equal(t, "Payment already processed", second.Message)

	f.balances.AssertNumberOfCalls(t, "Credit", 2)
	f.orders.AssertNumberOfCalls(t, "MarkSuccess", 1)
	f.publisher.AssertNumberOfCalls(t, "Publish", 1)
}

func TestCryptomusService_HandleWebhook_NonPaidStatusDoesNotCredit(t *testing.T) {
	for _, status := range []string{"check", "process", "confirm_check", "cancel", "wrong_amount"} {
		t.Run(status, func(t *testing.T) {
			f := newCryptomusFixture(false)
			body := `{"order_id":"ORD_2","amount":"100","status":"` + status + `","additional_data":{"user_id":"` + uuid.NewString() + `"}}`
			f.settings.On("GetCryptomusSettings", mock.Anything).Return(activeCryptomusSettings(10), nil)
			f.orders.On("MarkFailed", mock.Anything, "ORD_2", status).Return(true, nil).Maybe()

			res, err := f.svc.HandleWebhook(context.Background(), signedWebhook(t, body))
			require.NoError(t, err)
			assert.Equal(t, "Webhook received", res.Message)
			f.balances.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
		})
	}
}

func TestCryptomusService_HandleWebhook_MissingFields(t *testing.T) {
	f := newCryptomusFixture(false)

	_, err := f.svc.HandleWebhook(context.Background(), []byte(`{"status":"paid"}`))
	status, _ := domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusBadRequest, status)

	_, err = f.svc.HandleWebhook(context.Background(), []byte(`not json`))
	status, _ = domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCryptomusService_HandleWebhook_MissingUserID(t *testing.T) {
	f := newCryptomusFixture(false)
	f.settings.On("GetCryptomusSettings", mock.Anything).Return(activeCryptomusSettings(10), nil)

	body := `{"order_id":"ORD_3","amount":"100","status":"paid","additional_data":"{}"}`
	_, err := f.svc.HandleWebhook(context.Background(), signedWebhook(t, body))
	status, msg := domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, msg, "user_id")
	f.balances.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
}

func TestCryptomusService_HandleWebhook_BadSignature(t *testing.T) {
	userID := uuid.NewString()
	raw := []byte(`{"order_id":"ORD_4","amount":"100","status":"paid","additional_data":{"user_id":"` + userID + `"},"sign":"deadbeef"}`)

	t.Run("lenient accepts", func(t *testing.T) {
		f := newCryptomusFixture(false)
		f.settings.On("GetCryptomusSettings", mock.Anything).Return(activeCryptomusSettings(10), nil)
		f.balances.On("Credit", mock.Anything, mock.Anything).Return(&domain.CreditResult{NewBalance: decimal.NewFromInt(100)}, nil)
		f.orders.On("MarkSuccess", mock.Anything, "ORD_4", "", "", "paid").Return(true, nil)
		f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		res, err := f.svc.HandleWebhook(context.Background(), raw)
		require.NoError(t, err)
		assert.True(t, res.Credited)
	})

	t.Run("strict rejects", func(t *testing.T) {
		f := newCryptomusFixture(true)
		f.settings.On("GetCryptomusSettings", mock.Anything).Return(activeCryptomusSettings(10), nil)

		_, err := f.svc.HandleWebhook(context.Background(), raw)
		status, _ := domain.StatusAndMessage(err)
		assert.Equal(t, http.StatusUnauthorized, status)
		f.balances.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything)
	})
}

func TestCryptomusService_HandleWebhook_CreditFailure(t *testing.T) {
	f := newCryptomusFixture(false)
	body := `{"order_id":"ORD_5","amount":"100","status":"paid_over","additional_data":{"user_id":"` + uuid.NewString() + `"}}`
	f.settings.On("GetCryptomusSettings", mock.Anything).Return(activeCryptomusSettings(10), nil)
	f.balances.On("Credit", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := f.svc.HandleWebhook(context.Background(), signedWebhook(t, body))
	status, msg := domain.StatusAndMessage(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Failed to update balance", msg)
	f.orders.AssertNotCalled(t, "MarkSuccess", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookUserID(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"string encoded", `"{\"user_id\":\"` + id.String() + `\"}"`, false},
		{"object", `{"user_id":"` + id.String() + `"}`, false},
		{"null", `null`, true},
		{"empty object", `{}`, true},
		{"not a uuid", `{"user_id":"42"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := webhookUserID([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}
