package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/models"

	"github.com/rs/zerolog"
)

// memWriter mirrors the store's conditional-update semantics in memory: a
// write only lands while the stored status is still open, and completion can
// be won exactly once.
type memWriter struct {
	status    map[string]models.OrderStatus
	completed map[string]bool
	failWith  error
	expired   int64
}

func newMemWriter(orders ...*models.Order) *memWriter {
	w := &memWriter{
		status:    make(map[string]models.OrderStatus),
		completed: make(map[string]bool),
	}
	for _, o := range orders {
		w.status[o.OrderID] = o.Status
	}
	return w
}

func (w *memWriter) RecordObservation(ctx context.Context, orderID string, status models.OrderStatus, txHash string, confirmations, receivedLitoshi int64, observedAt time.Time) (bool, error) {
	if w.failWith != nil {
		return false, w.failWith
	}
	if !w.status[orderID].Open() {
		return false, nil
	}
	w.status[orderID] = status
	return true, nil
}

func (w *memWriter) CompleteOrder(ctx context.Context, orderID string, txHash string, confirmations, receivedLitoshi int64, observedAt time.Time) (bool, error) {
	if w.failWith != nil {
		return false, w.failWith
	}
	if !w.status[orderID].Open() {
		return false, nil
	}
	w.status[orderID] = models.StatusCompleted
	w.completed[orderID] = true
	return true, nil
}

func (w *memWriter) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	if w.failWith != nil {
		return 0, w.failWith
	}
	return w.expired, nil
}

type countingNotifier struct {
	calls int
	last  *models.Order
	err   error
}

func (n *countingNotifier) PaymentCompleted(ctx context.Context, order *models.Order) error {
	n.calls++
	n.last = order
	return n.err
}

func testOrder(expected int64) *models.Order {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.Order{
		OrderID:         "ord-1",
		Email:           "user@example.com",
		PlanType:        "monthly",
		ExpectedLitoshi: expected,
		PaymentAddress:  "ltc1qexample",
		Status:          models.StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(30 * time.Minute),
	}
}

func newLedger(w OrderWriter, n Notifier) *Ledger {
	return &Ledger{
		Writer:                w,
		Notifier:              n,
		RequiredConfirmations: 2,
		Logger:                zerolog.Nop(),
		Now: func() time.Time {
			return time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
		},
	}
}

func TestToleranceBand(t *testing.T) {
	const expected = 100_000_000

	if got := MinAcceptable(expected); got != 97_000_000 {
		t.Fatalf("MinAcceptable = %d", got)
	}
	if got := MaxAcceptable(expected); got != 103_000_000 {
		t.Fatalf("MaxAcceptable = %d", got)
	}
}

func TestApplyObservation(t *testing.T) {
	const expected = 100_000_000
	ctx := context.Background()

	t.Run("underpayment is terminal regardless of confirmations", func(t *testing.T) {
		order := testOrder(expected)
		w := newMemWriter(order)
		n := &countingNotifier{}
		l := newLedger(w, n)

		outcome, err := l.ApplyObservation(ctx, order, Observation{
			TxHash: "aa11", Confirmations: 6, ReceivedLitoshi: 90_000_000,
		})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeUnderpaid {
			t.Fatalf("outcome = %s", outcome)
		}
		if order.Status != models.StatusUnderpaid {
			t.Fatalf("status = %s", order.Status)
		}
		if n.calls != 0 {
			t.Fatal("underpayment must not notify")
		}
	})

	t.Run("floor of the band is accepted", func(t *testing.T) {
		order := testOrder(expected)
		w := newMemWriter(order)
		l := newLedger(w, &countingNotifier{})

		outcome, err := l.ApplyObservation(ctx, order, Observation{
			TxHash: "aa22", Confirmations: 0, ReceivedLitoshi: MinAcceptable(expected),
		})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeConfirming {
			t.Fatalf("outcome = %s, want confirming", outcome)
		}
	})

	t.Run("one litoshi under the floor is not", func(t *testing.T) {
		order := testOrder(expected)
		l := newLedger(newMemWriter(order), &countingNotifier{})

		outcome, err := l.ApplyObservation(ctx, order, Observation{
			TxHash: "aa33", Confirmations: 0, ReceivedLitoshi: MinAcceptable(expected) - 1,
		})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeUnderpaid {
			t.Fatalf("outcome = %s, want underpaid", outcome)
		}
	})

	t.Run("exact payment confirms then completes", func(t *testing.T) {
		order := testOrder(expected)
		w := newMemWriter(order)
		n := &countingNotifier{}
		l := newLedger(w, n)

		outcome, err := l.ApplyObservation(ctx, order, Observation{
			TxHash: "bb11", Confirmations: 0, ReceivedLitoshi: expected,
		})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeConfirming {
			t.Fatalf("first outcome = %s", outcome)
		}
		if order.PaidAt == nil {
			t.Fatal("paid-at not set on first acceptance")
		}
		paidAt := *order.PaidAt

		outcome, err = l.ApplyObservation(ctx, order, Observation{
			TxHash: "bb11", Confirmations: 2, ReceivedLitoshi: expected,
		})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeCompleted {
			t.Fatalf("second outcome = %s", outcome)
		}
		if order.Status != models.StatusCompleted {
			t.Fatalf("status = %s", order.Status)
		}
		if order.CompletedAt == nil {
			t.Fatal("completed-at not set")
		}
		if !order.PaidAt.Equal(paidAt) {
			t.Fatal("paid-at must not move once set")
		}
		if order.CompletedAt.Before(*order.PaidAt) {
			t.Fatal("completed-at precedes paid-at")
		}
		if n.calls != 1 {
			t.Fatalf("notifier calls = %d, want 1", n.calls)
		}
	})

	t.Run("completed orders ignore further observations", func(t *testing.T) {
		order := testOrder(expected)
		w := newMemWriter(order)
		n := &countingNotifier{}
		l := newLedger(w, n)

		if _, err := l.ApplyObservation(ctx, order, Observation{TxHash: "cc11", Confirmations: 3, ReceivedLitoshi: expected}); err != nil {
			t.Fatal(err)
		}
		outcome, err := l.ApplyObservation(ctx, order, Observation{TxHash: "cc11", Confirmations: 9, ReceivedLitoshi: expected})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeIgnored {
			t.Fatalf("outcome = %s, want ignored", outcome)
		}
		if n.calls != 1 {
			t.Fatalf("notifier re-fired: %d calls", n.calls)
		}
	})

	t.Run("losing the completion race does not notify", func(t *testing.T) {
		order := testOrder(expected)
		w := newMemWriter(order)
		// Another observer already finished this order in the store.
		w.status[order.OrderID] = models.StatusCompleted
		n := &countingNotifier{}
		l := newLedger(w, n)

		outcome, err := l.ApplyObservation(ctx, order, Observation{TxHash: "dd11", Confirmations: 2, ReceivedLitoshi: expected})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeIgnored {
			t.Fatalf("outcome = %s, want ignored", outcome)
		}
		if n.calls != 0 {
			t.Fatal("loser must not notify")
		}
	})

	t.Run("overpayment is accepted", func(t *testing.T) {
		order := testOrder(expected)
		n := &countingNotifier{}
		l := newLedger(newMemWriter(order), n)

		outcome, err := l.ApplyObservation(ctx, order, Observation{TxHash: "ee11", Confirmations: 2, ReceivedLitoshi: expected * 2})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeCompleted {
			t.Fatalf("outcome = %s", outcome)
		}
		if order.ReceivedLitoshi != expected*2 {
			t.Fatalf("received = %d", order.ReceivedLitoshi)
		}
	})

	t.Run("notification failure does not undo completion", func(t *testing.T) {
		order := testOrder(expected)
		w := newMemWriter(order)
		n := &countingNotifier{err: errors.New("backend down")}
		l := newLedger(w, n)

		outcome, err := l.ApplyObservation(ctx, order, Observation{TxHash: "ff11", Confirmations: 2, ReceivedLitoshi: expected})
		if err != nil {
			t.Fatal(err)
		}
		if outcome != OutcomeCompleted {
			t.Fatalf("outcome = %s", outcome)
		}
		if w.status[order.OrderID] != models.StatusCompleted {
			t.Fatal("completion rolled back on notify failure")
		}
	})

	t.Run("writer error propagates", func(t *testing.T) {
		order := testOrder(expected)
		w := newMemWriter(order)
		w.failWith = errors.New("db down")
		l := newLedger(w, &countingNotifier{})

		if _, err := l.ApplyObservation(ctx, order, Observation{TxHash: "gg11", ReceivedLitoshi: expected}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestForceComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("completes an open order", func(t *testing.T) {
		order := testOrder(100_000_000)
		w := newMemWriter(order)
		n := &countingNotifier{}
		l := newLedger(w, n)

		ok, err := l.ForceComplete(ctx, order, "manual-tx")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("expected completion")
		}
		if order.TxHash == nil || *order.TxHash != "manual-tx" {
			t.Fatal("operator tx hash not recorded")
		}
		if n.calls != 1 {
			t.Fatalf("notifier calls = %d", n.calls)
		}
	})

	t.Run("terminal order refuses", func(t *testing.T) {
		order := testOrder(100_000_000)
		order.Status = models.StatusExpired
		l := newLedger(newMemWriter(order), &countingNotifier{})

		ok, err := l.ForceComplete(ctx, order, "manual-tx")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("expired order must not force-complete")
		}
	})
}

func TestExpireStalePending(t *testing.T) {
	w := newMemWriter()
	w.expired = 3
	l := newLedger(w, nil)

	if err := l.ExpireStalePending(context.Background()); err != nil {
		t.Fatal(err)
	}

	w.failWith = errors.New("db down")
	if err := l.ExpireStalePending(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
