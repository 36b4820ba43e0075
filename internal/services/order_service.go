package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/models"
	"github.com/AH96HSQ/Zurtex-Global/internal/pricing"
	"github.com/AH96HSQ/Zurtex-Global/internal/wallet"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

var (
	ErrMissingEmail = errors.New("missing email")
	ErrUnknownPlan  = errors.New("unknown plan type")
)

// OrderStore is the persistence surface order management needs.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ExpireOrder(ctx context.Context, orderID string, now time.Time) (bool, error)
	ListByEmail(ctx context.Context, email string, limit int) ([]*models.Order, error)
}

type OrderService struct {
	Store     OrderStore
	Allocator *wallet.Allocator
	Pricing   pricing.Source
	Plans     map[string]decimal.Decimal
	TTL       time.Duration
	Logger    zerolog.Logger
}

// CreateOrder freezes the crypto price at creation: the LTC amount is derived
// from the live rate once and never recomputed, whatever the market does
// during the payment window.
func (s *OrderService) CreateOrder(ctx context.Context, email, planType string) (*models.Order, error) {
	if email == "" {
		return nil, ErrMissingEmail
	}
	priceUSD, ok := s.Plans[planType]
	if !ok {
		return nil, ErrUnknownPlan
	}

	rate, err := s.Pricing.LTCPriceUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch ltc price: %w", err)
	}
	priceLTC := priceUSD.DivRound(rate, 8)

	address, index, err := s.Allocator.AllocateAddress(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderID:         uuid.NewString(),
		Email:           email,
		PlanType:        planType,
		PriceUSD:        priceUSD,
		PriceLTC:        priceLTC,
		ExpectedLitoshi: models.LTCToLitoshi(priceLTC),
		PaymentAddress:  address,
		AddressIndex:    index,
		Status:          models.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.TTL),
		UpdatedAt:       now,
	}

	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.Logger.Info().
		Str("order_id", order.OrderID).
		Str("plan", planType).
		Int64("address_index", index).
		Str("amount_ltc", priceLTC.StringFixed(8)).
		Msg("order created")
	return order, nil
}

// GetOrder returns the order, lazily expiring a pending one whose window has
// elapsed so a status query never reports a payable expired order.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if order.Expired(now) {
		expired, err := s.Store.ExpireOrder(ctx, order.OrderID, now)
		if err != nil {
			return nil, err
		}
		if expired {
			order.Status = models.StatusExpired
			order.UpdatedAt = now
		}
	}
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, email string, limit int) ([]*models.Order, error) {
	if email == "" {
		return nil, ErrMissingEmail
	}
	if limit <= 0 {
		limit = 20
	}
	return s.Store.ListByEmail(ctx, email, limit)
}

type PlanQuote struct {
	Type     string
	PriceUSD decimal.Decimal
	PriceLTC decimal.Decimal
}

// QuotePlans prices every configured plan at the current rate.
func (s *OrderService) QuotePlans(ctx context.Context) ([]PlanQuote, decimal.Decimal, error) {
	rate, err := s.Pricing.LTCPriceUSD(ctx)
	if err != nil {
		return nil, decimal.Decimal{}, fmt.Errorf("fetch ltc price: %w", err)
	}

	quotes := make([]PlanQuote, 0, len(s.Plans))
	for planType, priceUSD := range s.Plans {
		quotes = append(quotes, PlanQuote{
			Type:     planType,
			PriceUSD: priceUSD,
			PriceLTC: priceUSD.DivRound(rate, 8),
		})
	}
	return quotes, rate, nil
}

// PaymentURI encodes the scannable address+amount request.
func PaymentURI(order *models.Order) string {
	return fmt.Sprintf("litecoin:%s?amount=%s&label=%s",
		order.PaymentAddress,
		order.PriceLTC.StringFixed(8),
		url.QueryEscape("Zurtex_"+order.OrderID),
	)
}

// PaymentQRCode renders the payment URI as a base64 PNG data URL.
func PaymentQRCode(order *models.Order) (string, error) {
	png, err := qrcode.Encode(PaymentURI(order), qrcode.Medium, 300)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
