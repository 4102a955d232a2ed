package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/otpbazaar/golang_services/internal/cancellation_service/domain"
)

// maxResponseBytes bounds how much of a provider response is kept; bodies
// are short status strings such as "ACCESS_CANCEL".
const maxResponseBytes = 64 << 10

// CancelClient calls a provider's cancel endpoint with an HTTP GET.
type CancelClient struct {
	logger     *slog.Logger
	httpClient *http.Client
}

func NewCancelClient(logger *slog.Logger, httpClient *http.Client) *CancelClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &CancelClient{
		logger:     logger.With("component", "provider_cancel_client"),
		httpClient: httpClient,
	}
}

// Cancel returns the raw response body for any HTTP status; only transport
// failures are returned as errors.
func (c *CancelClient) Cancel(ctx context.Context, cfg domain.ServerConfig, activationID string) (string, error) {
	url := cfg.BuildCancelURL(activationID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create cancel request for server %s: %w", cfg.ID, err)
	}
	if cfg.HasAuthHeader() {
		req.Header.Set(cfg.AuthHeaderName, cfg.AuthHeaderValue)
	}

	c.logger.DebugContext(ctx, "Calling provider cancel endpoint", "server_id", cfg.ID, "activation_id", activationID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cancel request to server %s failed: %w", cfg.ID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read cancel response from server %s: %w", cfg.ID, err)
	}

	c.logger.DebugContext(ctx, "Provider cancel response", "server_id", cfg.ID, "status_code", resp.StatusCode, "body", string(body))
	return string(body), nil
}
