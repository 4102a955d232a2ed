package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/platform/database"
)

// PgSettingsRepository reads the admin-managed gateway settings. Each table
// holds a single row; the most recently updated one wins if there are more.
type PgSettingsRepository struct {
	db     database.DB
	logger *slog.Logger
}

func NewPgSettingsRepository(db database.DB, logger *slog.Logger) *PgSettingsRepository {
	return &PgSettingsRepository{db: db, logger: logger.With("component", "settings_repository")}
}

func (r *PgSettingsRepository) GetCryptomusSettings(ctx context.Context) (*domain.CryptomusSettings, error) {
	query := `
		SELECT COALESCE(merchant_id, ''), COALESCE(api_key, ''), COALESCE(is_active, false),
		       COALESCE(min_recharge, 0)::text, COALESCE(currency, 'INR')
		FROM cryptomus_settings
		ORDER BY updated_at DESC NULLS LAST
		LIMIT 1
	`
	var (
		s       domain.CryptomusSettings
		minText string
	)
	err := r.db.QueryRow(ctx, query).Scan(&s.MerchantID, &s.APIKey, &s.IsActive, &minText, &s.Currency)
	if err != nil {
		return nil, r.settingsErr(ctx, "cryptomus_settings", err)
	}
	if s.MinRecharge, err = decimal.NewFromString(minText); err != nil {
		return nil, fmt.Errorf("parse cryptomus min_recharge %q: %w", minText, err)
	}
	return &s, nil
}

func (r *PgSettingsRepository) GetPaytmSettings(ctx context.Context) (*domain.PaytmSettings, error) {
	query := `
		SELECT COALESCE(merchant_id, ''), COALESCE(merchant_key, ''), COALESCE(upi_id, ''), COALESCE(payee_name, ''),
		       COALESCE(is_active, false), COALESCE(min_recharge, 0)::text, COALESCE(max_recharge, 0)::text,
		       COALESCE(timeout_minutes, 0)
		FROM paytm_settings
		ORDER BY updated_at DESC NULLS LAST
		LIMIT 1
	`
	var (
		s                domain.PaytmSettings
		minText, maxText string
	)
	err := r.db.QueryRow(ctx, query).Scan(
		&s.MerchantID, &s.MerchantKey, &s.UPIID, &s.PayeeName,
		&s.IsActive, &minText, &maxText, &s.TimeoutMinutes,
	)
	if err != nil {
		return nil, r.settingsErr(ctx, "paytm_settings", err)
	}
	if s.MinRecharge, err = decimal.NewFromString(minText); err != nil {
		return nil, fmt.Errorf("parse paytm min_recharge %q: %w", minText, err)
	}
	if s.MaxRecharge, err = decimal.NewFromString(maxText); err != nil {
		return nil, fmt.Errorf("parse paytm max_recharge %q: %w", maxText, err)
	}
	return &s, nil
}

func (r *PgSettingsRepository) GetUPISettings(ctx context.Context) (*domain.UPISettings, error) {
	query := `
		SELECT COALESCE(merchant_id, ''), COALESCE(api_token, ''), COALESCE(upi_id, ''),
		       COALESCE(is_active, false), COALESCE(min_recharge, 0)::text
		FROM upi_settings
		ORDER BY updated_at DESC NULLS LAST
		LIMIT 1
	`
	var (
		s       domain.UPISettings
		minText string
	)
	err := r.db.QueryRow(ctx, query).Scan(&s.MerchantID, &s.APIToken, &s.UPIID, &s.IsActive, &minText)
	if err != nil {
		return nil, r.settingsErr(ctx, "upi_settings", err)
	}
	if s.MinRecharge, err = decimal.NewFromString(minText); err != nil {
		return nil, fmt.Errorf("parse upi min_recharge %q: %w", minText, err)
	}
	return &s, nil
}

func (r *PgSettingsRepository) settingsErr(ctx context.Context, table string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSettingsNotFound
	}
	r.logger.ErrorContext(ctx, "Error loading gateway settings", "error", err, "table", table)
	return fmt.Errorf("load %s: %w", table, err)
}
