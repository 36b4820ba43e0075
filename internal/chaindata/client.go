package chaindata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrTxNotFound reports a transaction lookup miss as a semantic result.
var ErrTxNotFound = errors.New("transaction not found")

// Client talks to a BlockCypher-style block explorer API. It owns the only
// knowledge of the wire shapes; callers get typed results.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	retry   RetryPolicy
}

func NewClient(baseURL, token string, retry RetryPolicy) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
		retry:   retry,
	}
}

type TxRef struct {
	TxHash        string    `json:"tx_hash"`
	TxOutputN     int       `json:"tx_output_n"`
	Value         int64     `json:"value"`
	Confirmations int64     `json:"confirmations"`
	Confirmed     time.Time `json:"confirmed"`
	Received      time.Time `json:"received"`
}

// ObservedAt is the best timestamp available for ordering a reference against
// an order's creation time: block time once confirmed, first-seen time before.
func (r TxRef) ObservedAt() time.Time {
	if !r.Received.IsZero() {
		return r.Received
	}
	return r.Confirmed
}

type AddressInfo struct {
	Address           string  `json:"address"`
	Balance           int64   `json:"balance"`
	TotalReceived     int64   `json:"total_received"`
	TotalSent         int64   `json:"total_sent"`
	TxCount           int     `json:"n_tx"`
	TxRefs            []TxRef `json:"txrefs"`
	UnconfirmedTxRefs []TxRef `json:"unconfirmed_txrefs"`
}

type TxOutput struct {
	Value     int64    `json:"value"`
	Script    string   `json:"script"`
	Addresses []string `json:"addresses"`
}

type Transaction struct {
	Hash          string     `json:"hash"`
	Total         int64      `json:"total"`
	Fees          int64      `json:"fees"`
	Confirmations int64      `json:"confirmations"`
	BlockHeight   int64      `json:"block_height"`
	Received      time.Time  `json:"received"`
	Outputs       []TxOutput `json:"outputs"`
}

// Address returns balance and transaction references for one address. A 404
// means the address was never seen on-chain and comes back as an empty info,
// matching the "never funded" reading the sweep relies on.
func (c *Client) Address(ctx context.Context, address string, unspentOnly bool) (*AddressInfo, error) {
	params := url.Values{}
	if unspentOnly {
		params.Set("unspentOnly", "true")
	}

	var info AddressInfo
	err := c.retry.Do(ctx, func() error {
		return c.getJSON(ctx, "/addrs/"+address, params, &info)
	})
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return &AddressInfo{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	if info.Address == "" {
		info.Address = address
	}
	return &info, nil
}

func (c *Client) Transaction(ctx context.Context, hash string, includeHex bool) (*Transaction, error) {
	params := url.Values{}
	if includeHex {
		params.Set("includeHex", "true")
	}

	var tx Transaction
	err := c.retry.Do(ctx, func() error {
		return c.getJSON(ctx, "/txs/"+hash, params, &tx)
	})
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Broadcast pushes a signed raw transaction and returns its hash.
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	body, err := json.Marshal(map[string]string{"tx": rawHex})
	if err != nil {
		return "", err
	}

	var resp struct {
		Tx struct {
			Hash string `json:"hash"`
		} `json:"tx"`
	}
	err = c.retry.Do(ctx, func() error {
		return c.postJSON(ctx, "/txs/push", body, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.Tx.Hash == "" {
		return "", errors.New("broadcast response missing tx hash")
	}
	return resp.Tx.Hash, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, params), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode chain api response: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if c.token != "" {
		params.Set("token", c.token)
	}
	endpoint := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint
}
