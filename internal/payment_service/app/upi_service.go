package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/messagebroker"
)

const (
	defaultUPILookback = 72 * time.Hour
	msgUTRAlreadyUsed  = "This UTR has already been used"
)

type UPIConfig struct {
	// Lookback bounds the merchant transaction window searched for a UTR.
	Lookback time.Duration
}

// UPIService verifies UPI payments by their UTR against the BharatPe
// merchant transaction list and credits the payer's balance.
type UPIService struct {
	settings domain.SettingsRepository
	balances domain.BalanceCreditor
	gateway  domain.BharatPeGateway
	credits  *creditRecorder
	logger   *slog.Logger
	cfg      UPIConfig
	now      func() time.Time
}

func NewUPIService(
	settings domain.SettingsRepository,
	balances domain.BalanceCreditor,
	gateway domain.BharatPeGateway,
	publisher messagebroker.Publisher,
	logger *slog.Logger,
	cfg UPIConfig,
) *UPIService {
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultUPILookback
	}
	l := logger.With("component", "upi_service")
	return &UPIService{
		settings: settings,
		balances: balances,
		gateway:  gateway,
		credits:  &creditRecorder{balances: balances, publisher: publisher, logger: l, now: time.Now},
		logger:   l,
		cfg:      cfg,
		now:      time.Now,
	}
}

type UPIVerification struct {
	Message    string
	UTR        string
	Amount     decimal.Decimal
	NewBalance decimal.Decimal
}

func (s *UPIService) VerifyPayment(ctx context.Context, userID uuid.UUID, utr string) (*UPIVerification, error) {
	utr = strings.TrimSpace(utr)
	if !domain.ValidUTR(utr) {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "invalid_utr").Inc()
		return nil, domain.ValidationError("Invalid UTR. It must be up to 12 letters or digits and must not start with 0")
	}
	// Bank references are case-insensitive; the upper-case form is what gets
	// stored as the recharge reference.
	utr = strings.ToUpper(utr)

	logger := s.logger.With("utr", utr, "user_id", userID)

	used, err := s.balances.ReferenceExists(ctx, utr)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "Internal server error", err)
	}
	if used {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "duplicate").Inc()
		return nil, domain.NewError(domain.KindDuplicate, msgUTRAlreadyUsed, nil)
	}

	settings, err := s.settings.GetUPISettings(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsNotFound) {
			return nil, domain.NewError(domain.KindMisconfigured, "UPI payments are not configured", err)
		}
		return nil, domain.NewError(domain.KindInternal, "Internal server error", err)
	}
	if !settings.HasCredentials() {
		return nil, domain.NewError(domain.KindMisconfigured, "UPI payments are not configured", nil)
	}
	if !settings.IsActive {
		return nil, domain.NewError(domain.KindConfig, "UPI payments are currently disabled", nil)
	}

	now := s.now()
	txns, err := s.gateway.ListTransactions(ctx, *settings, now.Add(-s.cfg.Lookback), now)
	if err != nil {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "gateway_error").Inc()
		logger.ErrorContext(ctx, "BharatPe transaction lookup failed", "error", err)
		return nil, domain.NewError(domain.KindGateway, "Unable to verify payment right now. Please try again later", err)
	}

	txn := findByUTR(txns, utr)
	if txn == nil {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "not_found").Inc()
		logger.InfoContext(ctx, "UTR not found in merchant transactions", "searched", len(txns))
		return nil, domain.NewError(domain.KindNotFound, "Transaction not found. Please check your UTR and try again", nil)
	}
	if txn.Status != "" && !strings.EqualFold(txn.Status, "SUCCESS") {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "not_successful").Inc()
		return nil, domain.ValidationError("Transaction is not successful")
	}
	if txn.Amount.LessThan(settings.MinRecharge) {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "below_minimum").Inc()
		return nil, domain.ValidationError("Minimum recharge amount is ₹" + settings.MinRecharge.String())
	}

	res, err := s.credits.credit(ctx, domain.CreditRequest{
		UserID:    userID,
		Amount:    txn.Amount,
		Reference: utr,
		Provider:  domain.ProviderBharatPe,
	})
	if errors.Is(err, domain.ErrAlreadyCredited) {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "duplicate").Inc()
		return nil, domain.NewError(domain.KindDuplicate, msgUTRAlreadyUsed, err)
	}
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.NewError(domain.KindNotFound, "User not found", err)
	}
	if err != nil {
		verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "error").Inc()
		logger.ErrorContext(ctx, "Failed to credit UPI payment", "error", err)
		return nil, domain.NewError(domain.KindInternal, "Failed to update balance", err)
	}

	verificationOutcomeCounter.WithLabelValues(string(domain.ProviderBharatPe), "credited").Inc()
	logger.InfoContext(ctx, "UPI payment credited", "amount", txn.Amount.String(), "payer", txn.PayerHandle)
	return &UPIVerification{
		Message:    "Payment verified successfully",
		UTR:        utr,
		Amount:     txn.Amount,
		NewBalance: res.NewBalance,
	}, nil
}

func findByUTR(txns []domain.BharatPeTransaction, utr string) *domain.BharatPeTransaction {
	for i := range txns {
		if strings.ToUpper(strings.TrimSpace(txns[i].BankReferenceNo)) == utr {
			return &txns[i]
		}
	}
	return nil
}
