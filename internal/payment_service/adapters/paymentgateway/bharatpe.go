package paymentgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
)

const (
	bharatPePageSize = 100
	bharatPeMaxPages = 20
)

// BharatPeClient reads the merchant's recent QR transactions.
type BharatPeClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
}

func NewBharatPeClient(logger *slog.Logger, baseURL string, httpClient *http.Client) *BharatPeClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &BharatPeClient{
		logger:     logger.With("gateway", "bharatpe"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type bharatPeListResponse struct {
	Status       bool   `json:"status"`
	ResponseCode string `json:"responseCode"`
	Message      string `json:"responseMessage"`
	Data         struct {
		Transactions []bharatPeTxn `json:"transactions"`
	} `json:"data"`
}

type bharatPeTxn struct {
	ID               json.RawMessage `json:"id"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	PayerName        string          `json:"payerName"`
	PayerHandle      string          `json:"payerHandle"`
	BankReferenceNo  string          `json:"bankReferenceNo"`
	PaymentTimestamp int64           `json:"paymentTimestamp"`
}

// ListTransactions pages through the window until a short page, capped at
// bharatPeMaxPages.
func (c *BharatPeClient) ListTransactions(ctx context.Context, settings domain.UPISettings, from, to time.Time) ([]domain.BharatPeTransaction, error) {
	var txns []domain.BharatPeTransaction
	for page := 0; page < bharatPeMaxPages; page++ {
		batch, err := c.fetchPage(ctx, settings, from, to, page)
		if err != nil {
			return nil, err
		}
		for _, t := range batch {
			txn := domain.BharatPeTransaction{
				ID:              strings.Trim(string(t.ID), `"`),
				BankReferenceNo: t.BankReferenceNo,
				Amount:          t.Amount,
				Status:          t.Status,
				PayerName:       t.PayerName,
				PayerHandle:     t.PayerHandle,
			}
			if t.PaymentTimestamp > 0 {
				txn.PaymentTimestamp = time.UnixMilli(t.PaymentTimestamp).UTC()
			}
			txns = append(txns, txn)
		}
		if len(batch) < bharatPePageSize {
			break
		}
		if page == bharatPeMaxPages-1 {
			c.logger.WarnContext(ctx, "BharatPe transaction window truncated", "pages", bharatPeMaxPages)
		}
	}
	c.logger.DebugContext(ctx, "BharatPe transactions fetched", "count", len(txns))
	return txns, nil
}

func (c *BharatPeClient) fetchPage(ctx context.Context, settings domain.UPISettings, from, to time.Time, page int) ([]bharatPeTxn, error) {
	q := url.Values{}
	q.Set("module", "PAYMENT_QR")
	q.Set("merchantId", settings.MerchantID)
	q.Set("sDate", strconv.FormatInt(from.UnixMilli(), 10))
	q.Set("eDate", strconv.FormatInt(to.UnixMilli(), 10))
	q.Set("pageSize", strconv.Itoa(bharatPePageSize))
	q.Set("pageCount", strconv.Itoa(page))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/merchant/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create bharatpe request: %w", err)
	}
	httpReq.Header.Set("token", settings.APIToken)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("bharatpe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read bharatpe response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bharatpe returned status %d", resp.StatusCode)
	}

	var parsed bharatPeListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode bharatpe response: %w", err)
	}
	if !parsed.Status {
		return nil, fmt.Errorf("bharatpe rejected transaction list request: %s", parsed.Message)
	}
	return parsed.Data.Transactions, nil
}
