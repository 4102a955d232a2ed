package domain

import "github.com/shopspring/decimal"

// CryptomusSettings is the admin-managed Cryptomus configuration row.
type CryptomusSettings struct {
	MerchantID  string
	APIKey      string
	IsActive    bool
	MinRecharge decimal.Decimal
	Currency    string
}

func (s CryptomusSettings) HasCredentials() bool {
	return s.MerchantID != "" && s.APIKey != ""
}

type PaytmSettings struct {
	MerchantID     string
	MerchantKey    string
	UPIID          string
	PayeeName      string
	IsActive       bool
	MinRecharge    decimal.Decimal
	MaxRecharge    decimal.Decimal
	TimeoutMinutes int
}

func (s PaytmSettings) HasCredentials() bool {
	return s.MerchantID != "" && s.UPIID != ""
}

// PublicPaytmSettings is safe to return to the browser.
type PublicPaytmSettings struct {
	IsActive       bool    `json:"is_active"`
	UPIID          string  `json:"upi_id"`
	PayeeName      string  `json:"payee_name"`
	MinRecharge    float64 `json:"min_recharge"`
	MaxRecharge    float64 `json:"max_recharge"`
	TimeoutMinutes int     `json:"timeout_minutes"`
}

func (s PaytmSettings) Public() PublicPaytmSettings {
	return PublicPaytmSettings{
		IsActive:       s.IsActive,
		UPIID:          s.UPIID,
		PayeeName:      s.PayeeName,
		MinRecharge:    s.MinRecharge.InexactFloat64(),
		MaxRecharge:    s.MaxRecharge.InexactFloat64(),
		TimeoutMinutes: s.TimeoutMinutes,
	}
}

// UPISettings configures BharatPe UTR lookups.
type UPISettings struct {
	MerchantID  string
	APIToken    string
	UPIID       string
	IsActive    bool
	MinRecharge decimal.Decimal
}

func (s UPISettings) HasCredentials() bool {
	return s.MerchantID != "" && s.APIToken != ""
}
