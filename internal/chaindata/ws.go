package chaindata

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
)

// SocketClient streams tx-confirmation events from the explorer's websocket
// endpoint. One subscription per watched address on a single connection.
type SocketClient struct {
	Endpoint string
	Token    string
	Conn     *websocket.Conn
}

func NewSocketClient(endpoint, token string) *SocketClient {
	return &SocketClient{Endpoint: endpoint, Token: token}
}

func (c *SocketClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, c.Endpoint, nil)
	if err != nil {
		return err
	}
	c.Conn = conn
	return nil
}

func (c *SocketClient) Close() {
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// SubscribeTxConfirmations asks for an event on every confirmation count
// change for txs touching the address, up to the given depth.
func (c *SocketClient) SubscribeTxConfirmations(address string, confirmations int64) error {
	payload := map[string]any{
		"event":         "tx-confirmation",
		"address":       address,
		"confirmations": confirmations,
	}
	if c.Token != "" {
		payload["token"] = c.Token
	}
	return c.Conn.WriteJSON(payload)
}

// TxEvent is the transaction payload pushed for a subscribed address.
type TxEvent struct {
	Hash          string     `json:"hash"`
	Total         int64      `json:"total"`
	Confirmations int64      `json:"confirmations"`
	Outputs       []TxOutput `json:"outputs"`
}

// ValueTo sums the event's outputs paying the given address.
func (e *TxEvent) ValueTo(address string) int64 {
	var total int64
	for _, out := range e.Outputs {
		for _, addr := range out.Addresses {
			if addr == address {
				total += out.Value
				break
			}
		}
	}
	return total
}

func (c *SocketClient) ReadEvent() (*TxEvent, error) {
	_, msg, err := c.Conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var event TxEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
