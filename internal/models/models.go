package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LitoshiPerLTC is the number of minor units in one LTC.
const LitoshiPerLTC = 100_000_000

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirming OrderStatus = "confirming"
	StatusUnderpaid  OrderStatus = "underpaid"
	StatusCompleted  OrderStatus = "completed"
	StatusExpired    OrderStatus = "expired"
	StatusFailed     OrderStatus = "failed"
)

// ParseStatus rejects anything outside the known set. Persisted rows carry the
// status as text, so a stray value must surface here instead of being coerced
// into a valid state.
func ParseStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case StatusPending, StatusConfirming, StatusUnderpaid, StatusCompleted, StatusExpired, StatusFailed:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Open reports whether the monitor still watches the order.
func (s OrderStatus) Open() bool {
	return s == StatusPending || s == StatusConfirming
}

type Order struct {
	ID              int64
	OrderID         string
	Email           string
	PlanType        string
	PriceUSD        decimal.Decimal
	PriceLTC        decimal.Decimal
	ExpectedLitoshi int64
	PaymentAddress  string
	AddressIndex    int64
	Status          OrderStatus
	TxHash          *string
	Confirmations   int64
	ReceivedLitoshi int64
	CreatedAt       time.Time
	ExpiresAt       time.Time
	PaidAt          *time.Time
	CompletedAt     *time.Time
	Swept           bool
	SweptAt         *time.Time
	SweptTxHash     *string
	UpdatedAt       time.Time
}

// Expired reports whether a still-pending order has outlived its payment window.
func (o *Order) Expired(now time.Time) bool {
	return o.Status == StatusPending && now.After(o.ExpiresAt)
}

func LitoshiToLTC(v int64) decimal.Decimal {
	return decimal.New(v, 0).Div(decimal.New(LitoshiPerLTC, 0))
}

func LTCToLitoshi(d decimal.Decimal) int64 {
	return d.Mul(decimal.New(LitoshiPerLTC, 0)).Round(0).IntPart()
}
