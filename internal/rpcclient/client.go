// Package rpcclient is the node-server RPC facade: an eleven-method
// capability interface, a production HTTPS implementation with
// single-permit rate limiting and retrying reads, and a recording mock
// for tests.
package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/toneloc/ldkboss/internal/types"
)

const (
	maxRetries     = 3
	retryBaseDelay = 1 * time.Second
	rateLimitDelay = 100 * time.Millisecond
)

// NodeClient is the capability surface the policy engines depend on.
// Tests supply an in-memory recording variant (see mock.go); production
// supplies the retrying HTTPS variant below.
type NodeClient interface {
	GetNodeInfo(ctx context.Context) (types.NodeInfo, error)
	GetBalances(ctx context.Context) (types.Balances, error)
	ListChannels(ctx context.Context) ([]types.Channel, error)
	ListForwardedPayments(ctx context.Context, page *types.PageToken) ([]types.ForwardedPayment, *types.PageToken, error)
	UpdateChannelConfig(ctx context.Context, userChannelID, counterpartyNodeID string, cfg types.ChannelConfig) error
	ConnectPeer(ctx context.Context, nodeID, address string, persist bool) error
	OpenChannel(ctx context.Context, nodeID, address string, amountSats uint64, announce bool) (userChannelID string, err error)
	CloseChannel(ctx context.Context, userChannelID, counterpartyNodeID string) error
	ForceCloseChannel(ctx context.Context, userChannelID, counterpartyNodeID, reason string) error
	Bolt11Receive(ctx context.Context, amountMsat uint64, description string, expirySecs uint32) (invoice string, err error)
	Bolt11Send(ctx context.Context, invoice string, amountMsat uint64, params types.RouteParameters) (paymentID string, err error)
}

// HTTPClient is the production NodeClient: JSON-over-HTTPS, rate
// limited to one in-flight call plus a fixed post-call delay, with
// exponential-backoff retry restricted to idempotent reads.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	permit     chan struct{}
}

// NewHTTPClient constructs a production client. It does not load any
// TLS certificate itself: the caller wires the node server's
// certificate into httpClient's TLS configuration before passing it in.
func NewHTTPClient(baseURL, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	permit := make(chan struct{}, 1)
	permit <- struct{}{}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, httpClient: httpClient, permit: permit}
}

// acquire takes the single call permit. The returned release must be
// deferred by the caller; it holds the permit through the fixed
// post-call delay so calls are spaced out regardless of outcome.
func (c *HTTPClient) acquire() (release func()) {
	<-c.permit
	return func() {
		time.Sleep(rateLimitDelay)
		c.permit <- struct{}{}
	}
}

// withRetry runs fn once and then retries it up to retries more times
// with exponential backoff (1s, 2s, 4s for maxRetries = 3). Only
// idempotent reads go through it: a retried OpenChannel or CloseChannel
// could double-spend, so mutating calls are issued exactly once and
// surface their first error.
func withRetry(ctx context.Context, retries int, fn func() error) error {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt <= retries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

type rpcRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error,omitempty"`
}

// call issues a single JSON-over-HTTPS request to the node server,
// matching the direct http.NewRequest + httpClient.Do + JSON envelope
// idiom used for non-wrapped RPC calls in the bitcoin RPC reference.
func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%s: marshal params: %w", method, err)
	}
	reqBody, err := json.Marshal(rpcRequest{ID: uuid.NewString(), Method: method, Params: paramsJSON})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: http request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %s", method, *rpcResp.Error)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%s: unmarshal result: %w", method, err)
		}
	}
	return nil
}

func (c *HTTPClient) GetNodeInfo(ctx context.Context) (types.NodeInfo, error) {
	var out types.NodeInfo
	err := withRetry(ctx, maxRetries, func() error {
		release := c.acquire()
		defer release()
		return c.call(ctx, "getnodeinfo", nil, &out)
	})
	return out, err
}

func (c *HTTPClient) GetBalances(ctx context.Context) (types.Balances, error) {
	var out types.Balances
	err := withRetry(ctx, maxRetries, func() error {
		release := c.acquire()
		defer release()
		return c.call(ctx, "getbalances", nil, &out)
	})
	return out, err
}

func (c *HTTPClient) ListChannels(ctx context.Context) ([]types.Channel, error) {
	var out []types.Channel
	err := withRetry(ctx, maxRetries, func() error {
		release := c.acquire()
		defer release()
		return c.call(ctx, "listchannels", nil, &out)
	})
	return out, err
}

func (c *HTTPClient) ListForwardedPayments(ctx context.Context, page *types.PageToken) ([]types.ForwardedPayment, *types.PageToken, error) {
	var out struct {
		ForwardedPayments []types.ForwardedPayment `json:"forwarded_payments"`
		NextPageToken     *types.PageToken         `json:"next_page_token"`
	}
	err := withRetry(ctx, maxRetries, func() error {
		release := c.acquire()
		defer release()
		return c.call(ctx, "listforwardedpayments", page, &out)
	})
	return out.ForwardedPayments, out.NextPageToken, err
}

func (c *HTTPClient) UpdateChannelConfig(ctx context.Context, userChannelID, counterpartyNodeID string, cfg types.ChannelConfig) error {
	release := c.acquire()
	defer release()
	params := map[string]interface{}{
		"user_channel_id":      userChannelID,
		"counterparty_node_id": counterpartyNodeID,
		"channel_config":       cfg,
	}
	return c.call(ctx, "updatechannelconfig", params, nil)
}

func (c *HTTPClient) ConnectPeer(ctx context.Context, nodeID, address string, persist bool) error {
	release := c.acquire()
	defer release()
	params := map[string]interface{}{"node_pubkey": nodeID, "address": address, "persist": persist}
	return c.call(ctx, "connectpeer", params, nil)
}

func (c *HTTPClient) OpenChannel(ctx context.Context, nodeID, address string, amountSats uint64, announce bool) (string, error) {
	release := c.acquire()
	defer release()
	params := map[string]interface{}{
		"node_pubkey":         nodeID,
		"address":             address,
		"channel_amount_sats": amountSats,
		"announce":            announce,
	}
	var out struct {
		UserChannelID string `json:"user_channel_id"`
	}
	if err := c.call(ctx, "openchannel", params, &out); err != nil {
		return "", err
	}
	return out.UserChannelID, nil
}

func (c *HTTPClient) CloseChannel(ctx context.Context, userChannelID, counterpartyNodeID string) error {
	release := c.acquire()
	defer release()
	params := map[string]interface{}{"user_channel_id": userChannelID, "counterparty_node_id": counterpartyNodeID}
	return c.call(ctx, "closechannel", params, nil)
}

func (c *HTTPClient) ForceCloseChannel(ctx context.Context, userChannelID, counterpartyNodeID, reason string) error {
	release := c.acquire()
	defer release()
	params := map[string]interface{}{
		"user_channel_id":      userChannelID,
		"counterparty_node_id": counterpartyNodeID,
		"force_close_reason":   reason,
	}
	return c.call(ctx, "forceclosechannel", params, nil)
}

func (c *HTTPClient) Bolt11Receive(ctx context.Context, amountMsat uint64, description string, expirySecs uint32) (string, error) {
	release := c.acquire()
	defer release()
	params := map[string]interface{}{"amount_msat": amountMsat, "description": description, "expiry_secs": expirySecs}
	var out struct {
		Invoice string `json:"invoice"`
	}
	if err := c.call(ctx, "bolt11receive", params, &out); err != nil {
		return "", err
	}
	return out.Invoice, nil
}

func (c *HTTPClient) Bolt11Send(ctx context.Context, invoice string, amountMsat uint64, params types.RouteParameters) (string, error) {
	release := c.acquire()
	defer release()
	reqParams := map[string]interface{}{
		"invoice":          invoice,
		"amount_msat":      amountMsat,
		"route_parameters": params,
	}
	var out struct {
		PaymentID string `json:"payment_id"`
	}
	if err := c.call(ctx, "bolt11send", reqParams, &out); err != nil {
		return "", err
	}
	return out.PaymentID, nil
}
