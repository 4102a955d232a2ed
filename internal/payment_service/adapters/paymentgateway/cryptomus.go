package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/payment_service/signature"
)

const maxGatewayResponseBytes = 1 << 20

// CryptomusClient creates hosted invoices through the Cryptomus merchant API.
type CryptomusClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
}

func NewCryptomusClient(logger *slog.Logger, baseURL string, httpClient *http.Client) *CryptomusClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &CryptomusClient{
		logger:     logger.With("gateway", "cryptomus"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type cryptomusPaymentRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	OrderID        string `json:"order_id"`
	URLCallback    string `json:"url_callback,omitempty"`
	URLReturn      string `json:"url_return,omitempty"`
	AdditionalData string `json:"additional_data,omitempty"`
}

type cryptomusPaymentResponse struct {
	State   int    `json:"state"`
	Message string `json:"message"`
	Result  *struct {
		UUID    string `json:"uuid"`
		OrderID string `json:"order_id"`
		Amount  string `json:"amount"`
		URL     string `json:"url"`
	} `json:"result"`
	Errors map[string][]string `json:"errors"`
}

func (c *CryptomusClient) CreateInvoice(ctx context.Context, settings domain.CryptomusSettings, req domain.CryptomusInvoiceRequest) (*domain.CryptomusInvoice, error) {
	body, err := json.Marshal(cryptomusPaymentRequest{
		Amount:         req.Amount.StringFixed(2),
		Currency:       req.Currency,
		OrderID:        req.OrderID,
		URLCallback:    req.CallbackURL,
		URLReturn:      req.ReturnURL,
		AdditionalData: req.AdditionalData,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cryptomus request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create cryptomus request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("merchant", settings.MerchantID)
	httpReq.Header.Set("sign", signature.CryptomusSign(body, settings.APIKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cryptomus request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read cryptomus response (status %d): %w", resp.StatusCode, err)
	}
	c.logger.DebugContext(ctx, "Cryptomus response", "status_code", resp.StatusCode, "order_id", req.OrderID)

	var parsed cryptomusPaymentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("cryptomus returned status %d with unparseable body: %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || parsed.State != 0 || parsed.Result == nil || parsed.Result.URL == "" {
		return nil, fmt.Errorf("cryptomus rejected invoice (status %d, state %d): %s", resp.StatusCode, parsed.State, describeCryptomusError(parsed))
	}

	return &domain.CryptomusInvoice{
		UUID:       parsed.Result.UUID,
		OrderID:    parsed.Result.OrderID,
		PaymentURL: parsed.Result.URL,
		Amount:     parsed.Result.Amount,
	}, nil
}

func describeCryptomusError(r cryptomusPaymentResponse) string {
	parts := []string{}
	if r.Message != "" {
		parts = append(parts, r.Message)
	}
	for field, msgs := range r.Errors {
		parts = append(parts, field+": "+strings.Join(msgs, ", "))
	}
	if len(parts) == 0 {
		return "no error message"
	}
	return strings.Join(parts, "; ")
}
