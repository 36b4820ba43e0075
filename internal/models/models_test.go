package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseStatus(t *testing.T) {
	t.Run("known statuses round-trip", func(t *testing.T) {
		for _, s := range []string{"pending", "confirming", "underpaid", "completed", "expired", "failed"} {
			status, err := ParseStatus(s)
			if err != nil {
				t.Fatalf("ParseStatus(%q): %v", s, err)
			}
			if string(status) != s {
				t.Fatalf("ParseStatus(%q) = %q", s, status)
			}
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		if _, err := ParseStatus("paid"); err == nil {
			t.Fatal("expected error for unknown status")
		}
		if _, err := ParseStatus(""); err == nil {
			t.Fatal("expected error for empty status")
		}
	})
}

func TestStatusOpen(t *testing.T) {
	open := map[OrderStatus]bool{
		StatusPending:    true,
		StatusConfirming: true,
		StatusUnderpaid:  false,
		StatusCompleted:  false,
		StatusExpired:    false,
		StatusFailed:     false,
	}
	for status, want := range open {
		if got := status.Open(); got != want {
			t.Errorf("%s.Open() = %v, want %v", status, got, want)
		}
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	order := &Order{Status: StatusPending, ExpiresAt: now.Add(-time.Minute)}

	t.Run("pending past window", func(t *testing.T) {
		if !order.Expired(now) {
			t.Fatal("expected expired")
		}
	})

	t.Run("pending inside window", func(t *testing.T) {
		fresh := &Order{Status: StatusPending, ExpiresAt: now.Add(time.Minute)}
		if fresh.Expired(now) {
			t.Fatal("expected not expired")
		}
	})

	t.Run("confirming never expires", func(t *testing.T) {
		confirming := &Order{Status: StatusConfirming, ExpiresAt: now.Add(-time.Hour)}
		if confirming.Expired(now) {
			t.Fatal("confirming orders must not expire")
		}
	})
}

func TestLitoshiConversions(t *testing.T) {
	t.Run("litoshi to ltc", func(t *testing.T) {
		got := LitoshiToLTC(150_000_000)
		if got.StringFixed(8) != "1.50000000" {
			t.Fatalf("LitoshiToLTC = %s", got)
		}
	})

	t.Run("ltc to litoshi", func(t *testing.T) {
		d := decimal.RequireFromString("0.12345678")
		if got := LTCToLitoshi(d); got != 12_345_678 {
			t.Fatalf("LTCToLitoshi = %d", got)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		const v = int64(987_654_321)
		if got := LTCToLitoshi(LitoshiToLTC(v)); got != v {
			t.Fatalf("round trip = %d, want %d", got, v)
		}
	})

	t.Run("sub-litoshi rounds", func(t *testing.T) {
		d := decimal.RequireFromString("0.000000015")
		if got := LTCToLitoshi(d); got != 2 {
			t.Fatalf("LTCToLitoshi = %d, want 2", got)
		}
	})
}
