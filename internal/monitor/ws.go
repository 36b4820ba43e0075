package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/AH96HSQ/Zurtex-Global/internal/chaindata"
	"github.com/AH96HSQ/Zurtex-Global/internal/store"
)

// RunSocket keeps a websocket session against the explorer's event stream,
// subscribing tx-confirmation events for every open order's address. Events
// feed the same ledger entrypoint as the poll loop; the socket only narrows
// the latency window between payment and state change.
func (m *Monitor) RunSocket(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		client := chaindata.NewSocketClient(m.SocketEndpoint, m.SocketToken)
		if err := client.Connect(ctx); err != nil {
			m.Logger.Warn().Err(err).Msg("socket connect failed")
			time.Sleep(3 * time.Second)
			continue
		}
		m.Logger.Info().Str("endpoint", m.SocketEndpoint).Msg("socket connected")

		m.runSocketSession(ctx, client)
		client.Close()
		time.Sleep(2 * time.Second)
	}
}

func (m *Monitor) runSocketSession(ctx context.Context, client *chaindata.SocketClient) {
	subscribed := make(map[string]struct{})
	if err := m.subscribeOpen(ctx, client, subscribed); err != nil {
		m.Logger.Warn().Err(err).Msg("socket subscribe failed")
		return
	}

	// Orders created after connect need their own subscriptions; refresh on
	// the poll cadence.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.subscribeOpen(ctx, client, subscribed); err != nil {
					m.Logger.Warn().Err(err).Msg("socket resubscribe failed")
					return
				}
			}
		}
	}()

	for {
		event, err := client.ReadEvent()
		if err != nil {
			m.Logger.Warn().Err(err).Msg("socket read failed")
			return
		}
		if event.Hash == "" {
			continue
		}
		m.handleSocketEvent(ctx, event)
	}
}

func (m *Monitor) subscribeOpen(ctx context.Context, client *chaindata.SocketClient, subscribed map[string]struct{}) error {
	orders, err := m.Orders.ListOpenOrders(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, order := range orders {
		if _, ok := subscribed[order.PaymentAddress]; ok {
			continue
		}
		if err := client.SubscribeTxConfirmations(order.PaymentAddress, m.Ledger.RequiredConfirmations); err != nil {
			return err
		}
		subscribed[order.PaymentAddress] = struct{}{}
	}
	return nil
}

func (m *Monitor) handleSocketEvent(ctx context.Context, event *chaindata.TxEvent) {
	seen := make(map[string]struct{})
	for _, out := range event.Outputs {
		for _, address := range out.Addresses {
			if _, ok := seen[address]; ok {
				continue
			}
			seen[address] = struct{}{}

			value := event.ValueTo(address)
			if value == 0 {
				continue
			}
			if _, _, err := m.ProcessPush(ctx, address, event.Hash, event.Confirmations, value); err != nil && !errors.Is(err, store.ErrNotFound) {
				m.Logger.Error().Err(err).Str("address", address).Str("tx_hash", event.Hash).Msg("socket event apply failed")
			}
		}
	}
}
