package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/otpbazaar/golang_services/internal/payment_service/domain"
	"github.com/otpbazaar/golang_services/internal/payment_service/signature"
)

// PaytmClient queries the Paytm transaction status API.
type PaytmClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	statusURL  string
}

func NewPaytmClient(logger *slog.Logger, statusURL string, httpClient *http.Client) *PaytmClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &PaytmClient{
		logger:     logger.With("gateway", "paytm"),
		httpClient: httpClient,
		statusURL:  statusURL,
	}
}

type paytmStatusRequest struct {
	MID          string `json:"MID"`
	OrderID      string `json:"ORDERID"`
	ChecksumHash string `json:"CHECKSUMHASH"`
}

type paytmStatusResponse struct {
	MID       string `json:"MID"`
	OrderID   string `json:"ORDERID"`
	TxnID     string `json:"TXNID"`
	BankTxnID string `json:"BANKTXNID"`
	TxnAmount string `json:"TXNAMOUNT"`
	Status    string `json:"STATUS"`
	RespCode  string `json:"RESPCODE"`
	RespMsg   string `json:"RESPMSG"`
}

// OrderStatus returns the gateway's view of an order. Non-2xx responses with
// a parseable body are returned as a status, not as an error.
func (c *PaytmClient) OrderStatus(ctx context.Context, mid, orderID string) (*domain.PaytmTxnStatus, error) {
	body, err := json.Marshal(paytmStatusRequest{
		MID:          mid,
		OrderID:      orderID,
		ChecksumHash: signature.PaytmChecksum(mid, orderID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal paytm status request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.statusURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create paytm status request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paytm status request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read paytm status response: %w", err)
	}

	var parsed paytmStatusResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("paytm returned status %d with unparseable body: %w", resp.StatusCode, err)
	}
	c.logger.DebugContext(ctx, "Paytm status response", "order_id", orderID, "status", parsed.Status, "resp_code", parsed.RespCode)

	return &domain.PaytmTxnStatus{
		MID:       parsed.MID,
		OrderID:   parsed.OrderID,
		TxnID:     parsed.TxnID,
		BankTxnID: parsed.BankTxnID,
		TxnAmount: parsed.TxnAmount,
		Status:    parsed.Status,
		RespCode:  parsed.RespCode,
		RespMsg:   parsed.RespMsg,
	}, nil
}
