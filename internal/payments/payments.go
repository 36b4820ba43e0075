package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/models"

	"github.com/rs/zerolog"
)

// Observation is the tuple both the polling path and the push paths reduce
// to. Everything that mutates an open order funnels through ApplyObservation
// so the transition table only has to be right once.
type Observation struct {
	TxHash          string
	Confirmations   int64
	ReceivedLitoshi int64
	ObservedAt      time.Time
}

type Outcome string

const (
	// OutcomeIgnored: the order was already terminal, or another observer won
	// the conditional update first.
	OutcomeIgnored    Outcome = "ignored"
	OutcomeUnderpaid  Outcome = "underpaid"
	OutcomeConfirming Outcome = "confirming"
	OutcomeCompleted  Outcome = "completed"
)

// OrderWriter is the slice of the store the state machine needs. Updates are
// conditional on the current status so concurrent observers cannot interleave
// a read-modify-write on the same order.
type OrderWriter interface {
	RecordObservation(ctx context.Context, orderID string, status models.OrderStatus, txHash string, confirmations, receivedLitoshi int64, observedAt time.Time) (bool, error)
	CompleteOrder(ctx context.Context, orderID string, txHash string, confirmations, receivedLitoshi int64, observedAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

type Notifier interface {
	PaymentCompleted(ctx context.Context, order *models.Order) error
}

type Ledger struct {
	Writer                OrderWriter
	Notifier              Notifier
	RequiredConfirmations int64
	Logger                zerolog.Logger

	// Now is overridable in tests.
	Now func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// MinAcceptable is the 97% floor of the tolerance band.
func MinAcceptable(expected int64) int64 {
	return expected - expected*3/100
}

// MaxAcceptable is the 103% ceiling. Amounts above it are still accepted as
// overpayment; the ceiling only marks where the overpay log fires.
func MaxAcceptable(expected int64) int64 {
	return expected + expected*3/100
}

// ApplyObservation advances one order through the confirmation state machine.
// Terminal orders are left untouched; repeated observations of a completed
// order are no-ops and never re-notify.
func (l *Ledger) ApplyObservation(ctx context.Context, order *models.Order, obs Observation) (Outcome, error) {
	if !order.Status.Open() {
		return OutcomeIgnored, nil
	}

	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = l.now()
	}

	logger := l.Logger.With().
		Str("order_id", order.OrderID).
		Str("tx_hash", obs.TxHash).
		Int64("confirmations", obs.Confirmations).
		Int64("received_litoshi", obs.ReceivedLitoshi).
		Logger()

	if obs.ReceivedLitoshi < MinAcceptable(order.ExpectedLitoshi) {
		updated, err := l.Writer.RecordObservation(ctx, order.OrderID, models.StatusUnderpaid, obs.TxHash, obs.Confirmations, obs.ReceivedLitoshi, observedAt)
		if err != nil {
			return OutcomeIgnored, fmt.Errorf("record underpayment: %w", err)
		}
		if !updated {
			return OutcomeIgnored, nil
		}
		logger.Warn().
			Int64("expected_litoshi", order.ExpectedLitoshi).
			Int64("shortage_litoshi", order.ExpectedLitoshi-obs.ReceivedLitoshi).
			Msg("underpaid")
		applyLocal(order, models.StatusUnderpaid, obs, observedAt)
		return OutcomeUnderpaid, nil
	}

	if obs.ReceivedLitoshi > MaxAcceptable(order.ExpectedLitoshi) {
		logger.Info().
			Int64("expected_litoshi", order.ExpectedLitoshi).
			Int64("excess_litoshi", obs.ReceivedLitoshi-order.ExpectedLitoshi).
			Msg("overpaid, accepting")
	}

	if obs.Confirmations < l.RequiredConfirmations {
		updated, err := l.Writer.RecordObservation(ctx, order.OrderID, models.StatusConfirming, obs.TxHash, obs.Confirmations, obs.ReceivedLitoshi, observedAt)
		if err != nil {
			return OutcomeIgnored, fmt.Errorf("record confirmation progress: %w", err)
		}
		if !updated {
			return OutcomeIgnored, nil
		}
		logger.Info().Int64("required", l.RequiredConfirmations).Msg("payment confirming")
		applyLocal(order, models.StatusConfirming, obs, observedAt)
		return OutcomeConfirming, nil
	}

	won, err := l.Writer.CompleteOrder(ctx, order.OrderID, obs.TxHash, obs.Confirmations, obs.ReceivedLitoshi, observedAt)
	if err != nil {
		return OutcomeIgnored, fmt.Errorf("complete order: %w", err)
	}
	if !won {
		return OutcomeIgnored, nil
	}

	applyLocal(order, models.StatusCompleted, obs, observedAt)
	order.CompletedAt = &observedAt
	logger.Info().Msg("payment completed")

	// Completion is already durable; a failed notification is logged and left
	// to manual reconciliation.
	if l.Notifier != nil {
		if err := l.Notifier.PaymentCompleted(ctx, order); err != nil {
			logger.Error().Err(err).Msg("completion notification failed")
		}
	}
	return OutcomeCompleted, nil
}

// ForceComplete is the admin escape hatch: complete an open order without a
// chain observation, recording the operator-supplied transaction hash.
func (l *Ledger) ForceComplete(ctx context.Context, order *models.Order, txHash string) (bool, error) {
	obs := Observation{
		TxHash:          txHash,
		Confirmations:   l.RequiredConfirmations,
		ReceivedLitoshi: order.ExpectedLitoshi,
		ObservedAt:      l.now(),
	}
	outcome, err := l.ApplyObservation(ctx, order, obs)
	if err != nil {
		return false, err
	}
	return outcome == OutcomeCompleted, nil
}

// ExpireStalePending bulk-transitions pending orders past their expiry.
func (l *Ledger) ExpireStalePending(ctx context.Context) error {
	n, err := l.Writer.MarkExpired(ctx, l.now())
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	if n > 0 {
		l.Logger.Info().Int64("count", n).Msg("expired stale pending orders")
	}
	return nil
}

func applyLocal(order *models.Order, status models.OrderStatus, obs Observation, observedAt time.Time) {
	order.Status = status
	order.TxHash = &obs.TxHash
	order.Confirmations = obs.Confirmations
	order.ReceivedLitoshi = obs.ReceivedLitoshi
	if order.PaidAt == nil {
		order.PaidAt = &observedAt
	}
	order.UpdatedAt = observedAt
}
