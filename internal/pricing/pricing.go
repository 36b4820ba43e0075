package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Source quotes the current LTC price in USD.
type Source interface {
	LTCPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// Fixed always quotes the same price. Used in tests and as a degraded mode.
type Fixed struct {
	PriceUSD decimal.Decimal
}

func (f Fixed) LTCPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	if !f.PriceUSD.IsPositive() {
		return decimal.Decimal{}, errors.New("fixed price must be positive")
	}
	return f.PriceUSD, nil
}

// Oracle fetches the spot price from a CoinGecko-style endpoint. A configured
// fallback keeps order creation alive through oracle outages; the fallback is
// logged so mispriced windows are auditable.
type Oracle struct {
	baseURL  string
	client   *http.Client
	fallback decimal.Decimal
	logger   zerolog.Logger
}

func NewOracle(baseURL string, fallbackUSD decimal.Decimal, logger zerolog.Logger) *Oracle {
	return &Oracle{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		fallback: fallbackUSD,
		logger:   logger.With().Str("component", "pricing").Logger(),
	}
}

func (o *Oracle) LTCPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	price, err := o.fetch(ctx)
	if err != nil {
		if o.fallback.IsPositive() {
			o.logger.Warn().Err(err).Stringer("fallback_usd", o.fallback).Msg("price oracle unavailable, using fallback")
			return o.fallback, nil
		}
		return decimal.Decimal{}, err
	}
	return price, nil
}

func (o *Oracle) fetch(ctx context.Context) (decimal.Decimal, error) {
	endpoint := o.baseURL + "/simple/price?ids=litecoin&vs_currencies=usd"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Decimal{}, fmt.Errorf("price api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Litecoin struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"litecoin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode price response: %w", err)
	}
	if !payload.Litecoin.USD.IsPositive() {
		return decimal.Decimal{}, errors.New("price api returned non-positive price")
	}
	return payload.Litecoin.USD, nil
}
