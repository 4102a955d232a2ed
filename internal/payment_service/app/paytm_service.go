package app

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/messagebroker"
)

const (
	referencePrefixPaytm   = "paytm:"
	defaultPaytmTimeoutMin = 10

	paytmTxnSuccess = "TXN_SUCCESS"
	paytmTxnFailure = "TXN_FAILURE"
)

// Client-visible payment statuses returned by CheckStatus.
const (
	StatusSuccess = "SUCCESS"
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"
)

type PaytmConfig struct {
	// QRCodeBaseURL is a QR image endpoint ending in the data parameter; the
	// escaped UPI link is appended to it.
	QRCodeBaseURL string
	// InvalidOrderCodes are gateway response codes meaning the order is not
	// known yet, which happens until the user completes the UPI payment.
	InvalidOrderCodes []string
}

type PaytmService struct {
	settings domain.SettingsRepository
	orders   domain.OrderRepository
	gateway  domain.PaytmGateway
	credits  *creditRecorder
	logger   *slog.Logger
	cfg      PaytmConfig
	now      func() time.Time
	intn     func(int) int
}

func NewPaytmService(
	settings domain.SettingsRepository,
	orders domain.OrderRepository,
	balances domain.BalanceCreditor,
	gateway domain.PaytmGateway,
	publisher messagebroker.Publisher,
	logger *slog.Logger,
	cfg PaytmConfig,
) *PaytmService {
	if len(cfg.InvalidOrderCodes) == 0 {
		cfg.InvalidOrderCodes = []string{"334", "335"}
	}
	if cfg.QRCodeBaseURL == "" {
		cfg.QRCodeBaseURL = "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data="
	}
	l := logger.With("component", "paytm_service")
	return &PaytmService{
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

type PaytmIntent struct {
	OrderID        string
	UPIURL         string
	QRURL          string
	PayeeName      string
	Amount         decimal.Decimal
	TimeoutMinutes int
}

// CreatePayment builds a UPI intent for the merchant VPA and records the
// order so CheckStatus can verify it later.
func (s *PaytmService) CreatePayment(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*PaytmIntent, error) {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		intentsCreatedCounter.WithLabelValues(string(domain.ProviderPaytm), "rejected").Inc()
		return nil, err
	}

	if !amount.IsPositive() {
		intentsCreatedCounter.WithLabelValues(string(domain.ProviderPaytm), "rejected").Inc()
		return nil, domain.ValidationError("Invalid amount")
	}
	if amount.LessThan(settings.MinRecharge) {
		intentsCreatedCounter.WithLabelValues(string(domain.ProviderPaytm), "rejected").Inc()
		return nil, domain.ValidationError("Minimum recharge amount is ₹" + settings.MinRecharge.String())
	}
	if settings.MaxRecharge.IsPositive() && amount.GreaterThan(settings.MaxRecharge) {
		intentsCreatedCounter.WithLabelValues(string(domain.ProviderPaytm), "rejected").Inc()
		return nil, domain.ValidationError("Maximum recharge amount is ₹" + settings.MaxRecharge.String())
	}

	timeout := settings.TimeoutMinutes
	if timeout <= 0 {
		timeout = defaultPaytmTimeoutMin
	}
	payee := settings.PayeeName
	if payee == "" {
		payee = "Merchant"
	}

	now := s.now().UTC()
	orderID := newPaytmOrderID(now, s.intn)
	upiURL := buildUPIURL(settings.UPIID, payee, amount, orderID)
	qrURL := s.cfg.QRCodeBaseURL + url.QueryEscape(upiURL)

	order := &domain.PaymentOrder{
		OrderID:   orderID,
		UserID:    userID,
		Provider:  domain.ProviderPaytm,
		Amount:    amount,
		Currency:  "INR",
		Status:    domain.OrderStatusPending,
		ExpiresAt: now.Add(time.Duration(timeout) * time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, domain.NewError(domain.KindInternal, "Failed to create payment", err)
	}

	intentsCreatedCounter.WithLabelValues(string(domain.ProviderPaytm), "created").Inc()
	s.logger.InfoContext(ctx, "Paytm UPI intent created", "order_id", orderID, "user_id", userID, "amount", amount.String())
	return &PaytmIntent{
		OrderID:        orderID,
		UPIURL:         upiURL,
		QRURL:          qrURL,
		PayeeName:      payee,
		Amount:         amount,
		TimeoutMinutes: timeout,
	}, nil
}

// GetSettings returns the settings a checkout page may show.
func (s *PaytmService) GetSettings(ctx context.Context) (*domain.PublicPaytmSettings, error) {
	settings, err := s.settings.GetPaytmSettings(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "Paytm is not configured", err)
		}
		return nil, domain.NewError(domain.KindInternal, "Internal server error", err)
	}
	public := settings.Public()
	return &public, nil
}

type PaytmStatus struct {
	Status     string
	Message    string
	OrderID    string
	UTR        string
	TxnID      string
	Amount     *decimal.Decimal
	NewBalance *decimal.Decimal
}

// CheckStatus polls the gateway for orderID and credits the owner on the
// first confirmed success. userID may be uuid.Nil to skip the ownership check.
func (s *PaytmService) CheckStatus(ctx context.Context, userID uuid.UUID, orderID string) (*PaytmStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.ValidationError("Order ID is required")
	}

	order, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "Order not found", err)
		}
		return nil, domain.NewError(domain.KindInternal, "Internal server error", err)
	}
	if userID != uuid.Nil && order.UserID != userID {
		return nil, domain.NewError(domain.KindForbidden, "Order does not belong to this user", nil)
	}

	logger := s.logger.With("order_id", orderID, "user_id", order.UserID)

	if order.Status.IsTerminal() {
		return storedStatus(order), nil
	}

	settings, err := s.settings.GetPaytmSettings(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			return nil, domain.NewError(domain.KindMisconfigured, "Paytm is not configured", err)
		}
		return nil, domain.NewError(domain.KindInternal, "Internal server error", err)
	}
	if settings.MerchantID == "" {
		return nil, domain.NewError(domain.KindMisconfigured, "Paytm is not configured", nil)
	}

	now := s.now()
	txn, err := s.gateway.OrderStatus(ctx, settings.MerchantID, orderID)
	if err != nil {
		logger.WarnContext(ctx, "Paytm status check failed", "error", err)
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "gateway_error").Inc()
		return s.pendingOrExpired(ctx, logger, order, now, "Unable to verify payment right now"), nil
	}

	if s.isInvalidOrder(txn) {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "pending").Inc()
		return s.pendingOrExpired(ctx, logger, order, now, "Payment not yet received"), nil
	}

	switch txn.Status {
	case paytmTxnSuccess:
		if txn.MID != settings.MerchantID || txn.OrderID != orderID {
			logger.WarnContext(ctx, "Paytm success response did not echo the request",
				"echoed_mid", txn.MID, "echoed_order_id", txn.OrderID)
			verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "echo_mismatch").Inc()
			return &PaytmStatus{Status: StatusPending, OrderID: orderID, Message: "Payment verification pending"}, nil
		}
		return s.creditSuccess(ctx, logger, order, txn)

	case paytmTxnFailure:
		if _, err := s.orders.MarkFailed(ctx, orderID, txn.RespMsg); err != nil {
			logger.WarnContext(ctx, "Failed to mark paytm order failed", "error", err)
		}
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "failed").Inc()
		logger.InfoContext(ctx, "Paytm payment failed", "resp_code", txn.RespCode, "resp_msg", txn.RespMsg)
		return &PaytmStatus{Status: StatusFailed, OrderID: orderID, Message: txn.RespMsg}, nil

	default:
		if order.IsExpired(now) {
			return s.pendingOrExpired(ctx, logger, order, now, txn.RespMsg), nil
		}
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "pending").Inc()
		status := txn.Status
		if status == "" {
			status = StatusPending
		}
		return &PaytmStatus{Status: status, OrderID: orderID, Message: txn.RespMsg}, nil
	}
}

func (s *PaytmService) creditSuccess(ctx context.Context, logger *slog.Logger, order *domain.PaymentOrder, txn *domain.PaytmTxnStatus) (*PaytmStatus, error) {
	amount := order.Amount
	if txn.TxnAmount != "" {
		if verified, err := decimal.NewFromString(txn.TxnAmount); err == nil && verified.IsPositive() {
			amount = verified
		} else {
			logger.WarnContext(ctx, "Unparseable paytm TXNAMOUNT, using order amount", "txn_amount", txn.TxnAmount)
		}
	}

	result := &PaytmStatus{
		Status:  StatusSuccess,
		OrderID: order.OrderID,
		UTR:     txn.BankTxnID,
		TxnID:   txn.TxnID,
		Amount:  &amount,
	}

	// The order stays pending until the credit lands, so a failed credit is
	// retried by the next poll. The recharge reference keeps it single.
	res, err := s.credits.credit(ctx, domain.CreditRequest{
		UserID:    order.UserID,
		Amount:    amount,
		Reference: referencePrefixPaytm + order.OrderID,
		Provider:  domain.ProviderPaytm,
		OrderID:   order.OrderID,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyCredited):
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "duplicate").Inc()
		result.Message = "Payment already processed"
	case err != nil:
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "error").Inc()
		logger.ErrorContext(ctx, "Failed to credit paytm payment", "error", err)
		return nil, domain.NewError(domain.KindInternal, "Failed to update balance", err)
	default:
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "credited").Inc()
		logger.InfoContext(ctx, "Paytm payment credited", "amount", amount.String(), "txn_id", txn.TxnID)
		result.Message = "Payment successful"
		result.NewBalance = &res.NewBalance
	}

	if _, err := s.orders.MarkSuccess(ctx, order.OrderID, txn.TxnID, txn.BankTxnID, txn.RespMsg); err != nil {
		logger.WarnContext(ctx, "Failed to mark paytm order successful", "error", err)
	}
	return result, nil
}

func (s *PaytmService) pendingOrExpired(ctx context.Context, logger *slog.Logger, order *domain.PaymentOrder, now time.Time, message string) *PaytmStatus {
	if !order.IsExpired(now) {
		return &PaytmStatus{Status: StatusPending, OrderID: order.OrderID, Message: message}
	}
	if _, err := s.orders.MarkExpired(ctx, order.OrderID); err != nil {
		logger.WarnContext(ctx, "Failed to mark paytm order expired", "error", err)
	}
	verificationOutcomeCounter.WithLabelValues(string(domain.ProviderPaytm), "expired").Inc()
	return &PaytmStatus{Status: StatusExpired, OrderID: order.OrderID, Message: "Payment window expired"}
}

func (s *PaytmService) isInvalidOrder(txn *domain.PaytmTxnStatus) bool {
	if slices.Contains(s.cfg.InvalidOrderCodes, txn.RespCode) {
		return true
	}
	return strings.Contains(strings.ToLower(txn.RespMsg), "invalid order")
}

func (s *PaytmService) loadSettings(ctx context.Context) (*domain.PaytmSettings, error) {
	settings, err := s.settings.GetPaytmSettings(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			return nil, domain.NewError(domain.KindMisconfigured, "Paytm is not configured", err)
		}
		return nil, domain.NewError(domain.KindInternal, "Internal server error", err)
	}
	if !settings.IsActive {
		return nil, domain.NewError(domain.KindConfig, "Paytm payments are currently disabled", nil)
	}
	if !settings.HasCredentials() {
		return nil, domain.NewError(domain.KindMisconfigured, "Paytm is not configured", nil)
	}
	return settings, nil
}

func storedStatus(order *domain.PaymentOrder) *PaytmStatus {
	res := &PaytmStatus{OrderID: order.OrderID}
	if order.GatewayMessage != nil {
		res.Message = *order.GatewayMessage
	}
	switch order.Status {
	case domain.OrderStatusSuccess:
		res.Status = StatusSuccess
		amount := order.Amount
		res.Amount = &amount
		if order.BankTxnID != nil {
			res.UTR = *order.BankTxnID
		}
		if order.GatewayTxnID != nil {
			res.TxnID = *order.GatewayTxnID
		}
	case domain.OrderStatusFailed:
		res.Status = StatusFailed
	case domain.OrderStatusExpired:
		res.Status = StatusExpired
	default:
		res.Status = StatusPending
	}
	return res
}

// buildUPIURL renders the upi://pay deep link with parameters in the order
// UPI apps expect.
func buildUPIURL(vpa, payee string, amount decimal.Decimal, orderID string) string {
	var sb strings.Builder
	sb.WriteString("upi://pay?pa=")
	sb.WriteString(url.QueryEscape(vpa))
	sb.WriteString("&pn=")
	sb.WriteString(url.QueryEscape(payee))
	sb.WriteString("&am=")
	sb.WriteString(amount.StringFixed(2))
	sb.WriteString("&cu=INR&tn=")
	sb.WriteString(url.QueryEscape("Recharge " + orderID))
	sb.WriteString("&tr=")
	sb.WriteString(url.QueryEscape(orderID))
	return sb.String()
}
