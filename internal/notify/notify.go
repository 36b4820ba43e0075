package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/models"

	"github.com/rs/zerolog"
)

// Client posts the completion callback to the order consumer. The timeout is
// generous because the consumer provisions the purchased plan inline; failure
// never touches the ledger.
type Client struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewClient(url string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

type completedPayload struct {
	Email       string `json:"email"`
	OrderID     string `json:"orderId"`
	PlanType    string `json:"planType"`
	AmountLTC   string `json:"amountLTC"`
	AmountUSD   string `json:"amountUSD"`
	TxHash      string `json:"txHash"`
	PaidAt      string `json:"paidAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

func (c *Client) PaymentCompleted(ctx context.Context, order *models.Order) error {
	if c.url == "" {
		c.logger.Warn().Str("order_id", order.OrderID).Msg("notify url not configured, skipping")
		return nil
	}

	payload := completedPayload{
		Email:     order.Email,
		OrderID:   order.OrderID,
		PlanType:  order.PlanType,
		AmountLTC: order.PriceLTC.StringFixed(8),
		AmountUSD: order.PriceUSD.StringFixed(2),
	}
	if order.TxHash != nil {
		payload.TxHash = *order.TxHash
	}
	if order.PaidAt != nil {
		payload.PaidAt = order.PaidAt.Format(time.RFC3339)
	}
	if order.CompletedAt != nil {
		payload.CompletedAt = order.CompletedAt.Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify order consumer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify order consumer: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	c.logger.Info().Str("order_id", order.OrderID).Msg("order consumer notified")
	return nil
}
