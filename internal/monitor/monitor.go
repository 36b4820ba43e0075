package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/chaindata"
	"github.com/AH96HSQ/Zurtex-Global/internal/models"
	"github.com/AH96HSQ/Zurtex-Global/internal/payments"
	"github.com/AH96HSQ/Zurtex-Global/internal/store"

	"github.com/rs/zerolog"
)

// ChainReader is the chain-data surface the monitor polls.
type ChainReader interface {
	Address(ctx context.Context, address string, unspentOnly bool) (*chaindata.AddressInfo, error)
	Transaction(ctx context.Context, hash string, includeHex bool) (*chaindata.Transaction, error)
}

// OrderSource lists the orders still worth watching.
type OrderSource interface {
	ListOpenOrders(ctx context.Context, now time.Time) ([]*models.Order, error)
	GetOpenOrderByAddress(ctx context.Context, address string) (*models.Order, error)
}

// Monitor reconciles open orders against chain data. The poll loop and the
// socket loop both reduce what they see to an Observation and hand it to the
// ledger, so their interleaving cannot disagree on terminal state.
type Monitor struct {
	Orders         OrderSource
	Chain          ChainReader
	Ledger         *payments.Ledger
	Interval       time.Duration
	RequestGap     time.Duration
	SocketEndpoint string
	SocketToken    string
	Logger         zerolog.Logger
}

func (m *Monitor) Run(ctx context.Context) {
	if m.SocketEndpoint != "" {
		go m.RunSocket(ctx)
	}

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		if err := m.CheckOnce(ctx); err != nil {
			m.Logger.Error().Err(err).Msg("monitor cycle failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckOnce runs one reconciliation sweep: expire stale orders, then poll
// every open order, pacing requests to stay inside the upstream rate limit.
func (m *Monitor) CheckOnce(ctx context.Context) error {
	if err := m.Ledger.ExpireStalePending(ctx); err != nil {
		return err
	}

	orders, err := m.Orders.ListOpenOrders(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}
	m.Logger.Debug().Int("open", len(orders)).Msg("polling open orders")

	for i, order := range orders {
		if _, err := m.CheckOrder(ctx, order); err != nil {
			m.Logger.Error().Err(err).Str("order_id", order.OrderID).Msg("order check failed")
		}
		if m.RequestGap > 0 && i < len(orders)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.RequestGap):
			}
		}
	}
	return nil
}

// CheckOrder polls one address and applies the most recent transaction that
// postdates the order. Older transactions are not this order's money: the
// address only belongs to the order from creation onward.
func (m *Monitor) CheckOrder(ctx context.Context, order *models.Order) (payments.Outcome, error) {
	info, err := m.Chain.Address(ctx, order.PaymentAddress, false)
	if err != nil {
		return payments.OutcomeIgnored, fmt.Errorf("fetch address info: %w", err)
	}

	refs := make([]chaindata.TxRef, 0, len(info.UnconfirmedTxRefs)+len(info.TxRefs))
	refs = append(refs, info.UnconfirmedTxRefs...)
	refs = append(refs, info.TxRefs...)

	var latest *chaindata.TxRef
	for i := range refs {
		ref := &refs[i]
		if !ref.ObservedAt().After(order.CreatedAt) {
			continue
		}
		if latest == nil || ref.ObservedAt().After(latest.ObservedAt()) {
			latest = ref
		}
	}
	if latest == nil {
		return payments.OutcomeIgnored, nil
	}

	tx, err := m.Chain.Transaction(ctx, latest.TxHash, false)
	if err != nil {
		if errors.Is(err, chaindata.ErrTxNotFound) {
			m.Logger.Warn().Str("order_id", order.OrderID).Str("tx_hash", latest.TxHash).Msg("referenced transaction vanished")
			return payments.OutcomeIgnored, nil
		}
		return payments.OutcomeIgnored, fmt.Errorf("fetch transaction %s: %w", latest.TxHash, err)
	}

	obs := payments.Observation{
		TxHash:          tx.Hash,
		Confirmations:   tx.Confirmations,
		ReceivedLitoshi: tx.Total,
		ObservedAt:      time.Now().UTC(),
	}
	return m.Ledger.ApplyObservation(ctx, order, obs)
}

// ProcessPush handles a webhook-style push event: address, value in minor
// units, confirmation count and transaction hash. A miss is a semantic
// not-found, not an error.
func (m *Monitor) ProcessPush(ctx context.Context, address, txHash string, confirmations, valueLitoshi int64) (*models.Order, payments.Outcome, error) {
	order, err := m.Orders.GetOpenOrderByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, payments.OutcomeIgnored, store.ErrNotFound
		}
		return nil, payments.OutcomeIgnored, err
	}

	obs := payments.Observation{
		TxHash:          txHash,
		Confirmations:   confirmations,
		ReceivedLitoshi: valueLitoshi,
		ObservedAt:      time.Now().UTC(),
	}
	outcome, err := m.Ledger.ApplyObservation(ctx, order, obs)
	return order, outcome, err
}
