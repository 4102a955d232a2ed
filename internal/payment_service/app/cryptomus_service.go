package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/payment_service/signature"
	"github.com/otpbazaar/golang_services/internal/platform/messagebroker"
)

const (
	defaultCryptomusOrderTTL = time.Hour
	referencePrefixCryptomus = "cryptomus:"
)

var cryptomusFailureStatuses = []string{"cancel", "fail", "system_fail", "wrong_amount"}

type CryptomusConfig struct {
	CallbackURL    string
	ReturnURL      string
	GatewayMinimum decimal.Decimal
	// SuccessStatuses are the webhook statuses that credit the balance.
	SuccessStatuses []string
	// StrictSignature rejects webhooks whose sign does not verify. When false
	// a mismatch is only logged and counted.
	StrictSignature bool
	Currency        string
	OrderTTL        time.Duration
}

type CryptomusService struct {
	settings domain.SettingsRepository
	orders   domain.OrderRepository
	gateway  domain.CryptomusGateway
	credits  *creditRecorder
	logger   *slog.Logger
	cfg      CryptomusConfig
	now      func() time.Time
	intn     func(int) int
}

func NewCryptomusService(
	settings domain.SettingsRepository,
	orders domain.OrderRepository,
	balances domain.BalanceCreditor,
	gateway domain.CryptomusGateway,
	publisher messagebroker.Publisher,
	logger *slog.Logger,
	cfg CryptomusConfig,
) *CryptomusService {
	if len(cfg.SuccessStatuses) == 0 {
		cfg.SuccessStatuses = []string{"paid", "paid_over"}
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = defaultCryptomusOrderTTL
	}
	l := logger.With("component", "cryptomus_service")
	return &CryptomusService{
		settings: settings,
		orders:   orders,
		gateway:  gateway,
		credits:  &creditRecorder{balances: balances, publisher: publisher, logger: l, now: time.Now},
		logger:   l,
		cfg:      cfg,
		now:      time.Now,
		intn:     rand.IntN,
	}
}

type CryptomusPayment struct {
	OrderID    string
	PaymentURL string
	Amount     decimal.Decimal
}

// CreatePayment opens a hosted checkout for amount and records the order.
func (s *CryptomusService) CreatePayment(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*CryptomusPayment, error) {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		intentsCreatedCounter.WithLabelValues(string(domain.ProviderCryptomus), "rejected").Inc()
		return nil, err
	}

	if !amount.IsPositive() {
		intentsCreatedCounter.WithLabelValues(string(domain.ProviderCryptomus), "rejected").Inc()
		return nil, domain.ValidationError("Invalid amount")
	}
	minimum := decimal.Max(settings.MinRecharge, s.cfg.GatewayMinimum)
	if amount.LessThan(minimum) {
		intentsCreatedCounter.WithLabelValues(string(domain.ProviderCryptomus), "rejected").Inc()
		return nil, domain.ValidationError("Minimum recharge amount is ₹" + minimum.String())
	}

	now := s.now().UTC()
	orderID := newCryptomusOrderID(now, s.intn)

	additional, err := json.Marshal(map[string]string{"user_id": userID.String()})
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "Internal server error", err)
	}

	currency := settings.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	order := &domain.PaymentOrder{
		OrderID:   orderID,
		UserID:    userID,
		Provider:  domain.ProviderCryptomus,
		Amount:    amount,
		Currency:  currency,
		Status:    domain.OrderStatusPending,
		ExpiresAt: now.Add(s.cfg.OrderTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, domain.NewError(domain.KindInternal, "Failed to create payment", err)
	}

	invoice, err := s.gateway.CreateInvoice(ctx, *settings, domain.CryptomusInvoiceRequest{
		Amount:         amount,
		Currency:       currency,
		OrderID:        orderID,
		CallbackURL:    s.cfg.CallbackURL,
		ReturnURL:      s.cfg.ReturnURL,
		AdditionalData: string(additional),
	})
	if err != nil {
		intentsCreatedCounter.WithLabelValues(string(domain.ProviderCryptomus), "gateway_error").Inc()
		s.logger.ErrorContext(ctx, "Cryptomus invoice creation failed", "error", err, "order_id", orderID, "user_id", userID)
		if _, markErr := s.orders.MarkFailed(ctx, orderID, err.Error()); markErr != nil {
			s.logger.WarnContext(ctx, "Failed to mark cryptomus order failed", "error", markErr, "order_id", orderID)
		}
		return nil, domain.NewError(domain.KindGateway, "Failed to create payment", err)
	}

	intentsCreatedCounter.WithLabelValues(string(domain.ProviderCryptomus), "created").Inc()
	s.logger.InfoContext(ctx, "Cryptomus payment created", "order_id", orderID, "user_id", userID, "amount", amount.String())
	return &CryptomusPayment{OrderID: orderID, PaymentURL: invoice.PaymentURL, Amount: amount}, nil
}

func (s *CryptomusService) loadSettings(ctx context.Context) (*domain.CryptomusSettings, error) {
	settings, err := s.settings.GetCryptomusSettings(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			return nil, domain.NewError(domain.KindMisconfigured, "Cryptomus is not configured", err)
		}
		return nil, domain.NewError(domain.KindInternal, "Internal server error", err)
	}
	if !settings.IsActive {
		return nil, domain.NewError(domain.KindConfig, "Cryptomus payments are currently disabled", nil)
	}
	if !settings.HasCredentials() {
		return nil, domain.NewError(domain.KindMisconfigured, "Cryptomus is not configured", nil)
	}
	return settings, nil
}

type cryptomusWebhook struct {
	OrderID        string          `json:"order_id"`
	Status         string          `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	UUID           string          `json:"uuid"`
	TxID           string          `json:"txid"`
	AdditionalData json.RawMessage `json:"additional_data"`
}

type WebhookResult struct {
	Message    string
	Credited   bool
	NewBalance *decimal.Decimal
}

// HandleWebhook processes a raw Cryptomus payment notification. Repeated
// deliveries for the same order credit the balance at most once.
func (s *CryptomusService) HandleWebhook(ctx context.Context, raw []byte) (*WebhookResult, error) {
	var payload cryptomusWebhook
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, domain.ValidationError("Invalid webhook payload")
	}
	if payload.OrderID == "" || payload.Status == "" {
		return nil, domain.ValidationError("Missing order_id or status")
	}

	logger := s.logger.With("order_id", payload.OrderID, "status", payload.Status)

	if err := s.checkSignature(ctx, raw, logger); err != nil {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderCryptomus), "bad_signature").Inc()
		return nil, err
	}

	userID, err := webhookUserID(payload.AdditionalData)
	if err != nil {
		logger.WarnContext(ctx, "Cryptomus webhook without usable user_id", "error", err)
		return nil, domain.ValidationError("Missing user_id in additional_data")
	}

	switch {
	case slices.Contains(s.cfg.SuccessStatuses, payload.Status):
		return s.creditPaid(ctx, logger, userID, payload)
	case slices.Contains(cryptomusFailureStatuses, payload.Status):
		if _, err := s.orders.MarkFailed(ctx, payload.OrderID, payload.Status); err != nil {
			logger.WarnContext(ctx, "Failed to mark cryptomus order failed", "error", err)
		}
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderCryptomus), "failed").Inc()
		logger.InfoContext(ctx, "Cryptomus payment failed")
		return &WebhookResult{Message: "Webhook received"}, nil
	default:
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderCryptomus), "ignored").Inc()
		logger.InfoContext(ctx, "Cryptomus webhook acknowledged without credit")
		return &WebhookResult{Message: "Webhook received"}, nil
	}
}

func (s *CryptomusService) creditPaid(ctx context.Context, logger *slog.Logger, userID uuid.UUID, payload cryptomusWebhook) (*WebhookResult, error) {
	if !payload.Amount.IsPositive() {
		return nil, domain.ValidationError("Invalid amount")
	}

	res, err := s.credits.credit(ctx, domain.CreditRequest{
		UserID:    userID,
		Amount:    payload.Amount,
		Reference: referencePrefixCryptomus + payload.OrderID,
		Provider:  domain.ProviderCryptomus,
		OrderID:   payload.OrderID,
	})
	if errors.Is(err, domain.ErrAlreadyCredited) {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderCryptomus), "duplicate").Inc()
		logger.InfoContext(ctx, "Cryptomus payment already processed")
		return &WebhookResult{Message: "Payment already processed"}, nil
	}
	if err != nil {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderCryptomus), "error").Inc()
		logger.ErrorContext(ctx, "Failed to credit cryptomus payment", "error", err, "user_id", userID)
		return nil, domain.NewError(domain.KindInternal, "Failed to update balance", err)
	}

	if _, err := s.orders.MarkSuccess(ctx, payload.OrderID, payload.UUID, payload.TxID, payload.Status); err != nil {
		logger.WarnContext(ctx, "Failed to mark cryptomus order paid", "error", err)
	}

	verificationOutcomeCounter.WithLabelValues(string(domain.ProviderCryptomus), "credited").Inc()
	logger.InfoContext(ctx, "Cryptomus payment credited", "user_id", userID, "amount", payload.Amount.String())
	balance := res.NewBalance
	return &WebhookResult{Message: "Payment processed successfully", Credited: true, NewBalance: &balance}, nil
}

func (s *CryptomusService) checkSignature(ctx context.Context, raw []byte, logger *slog.Logger) error {
	settings, err := s.settings.GetCryptomusSettings(ctx)
	if err != nil || !settings.HasCredentials() {
		logger.WarnContext(ctx, "Cannot verify cryptomus webhook signature without settings", "error", err)
		cryptomusSignatureMismatchCounter.Inc()
		if s.cfg.StrictSignature {
			return domain.NewError(domain.KindUnauthorized, "Invalid signature", err)
		}
		return nil
	}

	ok, err := signature.VerifyCryptomusWebhook(raw, settings.APIKey)
	if ok {
		return nil
	}
	cryptomusSignatureMismatchCounter.Inc()
	logger.WarnContext(ctx, "Cryptomus webhook signature mismatch", "error", err, "strict", s.cfg.StrictSignature)
	if s.cfg.StrictSignature {
		return domain.NewError(domain.KindUnauthorized, "Invalid signature", err)
	}
	return nil
}

// webhookUserID reads user_id from additional_data, which the gateway echoes
// back either as a JSON string or as an object.
func webhookUserID(raw json.RawMessage) (uuid.UUID, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return uuid.Nil, errors.New("additional_data is empty")
	}

	data := []byte(raw)
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		data = []byte(encoded)
	}

	var extra struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return uuid.Nil, err
	}
	if extra.UserID == "" {
		return uuid.Nil, errors.New("user_id is empty")
	}
	return uuid.Parse(extra.UserID)
}
