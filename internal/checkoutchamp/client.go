// Package checkoutchamp fetches raw order records from the CheckoutChamp
// (Konnektive) order API, one day at a time. The API is treated as an opaque
// producer of order records; everything shape-related is absorbed by
// core.RawOrder's tolerant decoding.
package checkoutchamp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cogs-sync/internal/core"
)

const defaultEndpoint = "https://api.konnektive.com/order/query/"

// refundSweepStatuses are queried individually in REFUNDS_ONLY mode: the API
// returns a tiny payload per status, which makes frequent audit sweeps cheap.
var refundSweepStatuses = []string{"REFUNDED", "CANCELLED", "CHARGEBACK", "PARTIAL"}

type Client struct {
	loginID  string
	password string
	endpoint string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the production API endpoint (tests, sandboxes).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(loginID, password string, opts ...Option) *Client {
	c := &Client{
		loginID:  loginID,
		password: password,
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchOrders returns all raw orders recorded on the given day. In FULL mode
// a single unfiltered query is issued; in REFUNDS_ONLY mode one query per
// terminal status, concatenated.
func (c *Client) FetchOrders(ctx context.Context, day time.Time, mode core.SyncMode) ([]core.RawOrder, error) {
	statuses := []string{""}
	if mode == core.SyncRefundsOnly {
		statuses = refundSweepStatuses
	}

	var all []core.RawOrder
	for _, status := range statuses {
		orders, err := c.query(ctx, day, status)
		if err != nil {
			if status == "" {
				return nil, err
			}
			return nil, fmt.Errorf("status sweep %s: %w", status, err)
		}
		all = append(all, orders...)
	}
	return all, nil
}

func (c *Client) query(ctx context.Context, day time.Time, orderStatus string) ([]core.RawOrder, error) {
	params := url.Values{}
	params.Set("loginId", c.loginID)
	params.Set("password", c.password)
	// The API takes dates as MM/DD/YYYY and treats the range as inclusive.
	params.Set("startDate", day.Format("01/02/2006"))
	params.Set("endDate", day.Format("01/02/2006"))
	params.Set("resultsPerPage", "200")
	if orderStatus != "" {
		params.Set("orderStatus", orderStatus)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build order query request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order query failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read order query response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("order query returned HTTP %d", resp.StatusCode)
	}

	return decodeOrders(body)
}

// envelope is the response wrapper. Orders usually sit under data; some
// deployments nest them under message.data, and message degrades to a plain
// string when there are no records.
type envelope struct {
	Result  string          `json:"result"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeOrders(body []byte) ([]core.RawOrder, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode order query response: %w", err)
	}

	list := extractList(env.Data)
	if list == nil {
		var nested struct {
			Data json.RawMessage `json:"data"`
		}
		if len(env.Message) > 0 && env.Message[0] == '{' {
			if err := json.Unmarshal(env.Message, &nested); err == nil {
				list = extractList(nested.Data)
			}
		}
	}
	if list == nil {
		// "No records" responses carry a string message; not an error.
		return nil, nil
	}

	orders := make([]core.RawOrder, 0, len(list))
	for i, rawOrder := range list {
		var o core.RawOrder
		if err := json.Unmarshal(rawOrder, &o); err != nil {
			return nil, fmt.Errorf("failed to decode order at index %d: %w", i, err)
		}
		o.Raw = rawOrder
		orders = append(orders, o)
	}
	return orders, nil
}

func extractList(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	return list
}
