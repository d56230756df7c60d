package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MRAlirad/ccip-rebase-token/services/rebased/api"
)

// Error is a non-2xx response from the ledger API.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rebased: %d %s: %s", e.Status, e.Code, e.Message)
}

// Option customises a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client provides a thin wrapper around the rebased HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must include scheme and host")
	}
	c := &Client{
		base: base,
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithIdempotencyKey attaches a key to mutating calls made with ctx.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx{}, key)
}

type idempotencyKeyCtx struct{}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := *c.base
	endpoint.Path = c.base.Path + path
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if key, ok := ctx.Value(idempotencyKeyCtx{}).(string); ok && key != "" {
		req.Header.Set(api.IdempotencyHeader, key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body api.ErrorBody
		if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
			return &Error{Status: resp.StatusCode, Code: "http", Message: strings.TrimSpace(string(data))}
		}
		return &Error{Status: resp.StatusCode, Code: body.Error.Code, Message: body.Error.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, out)
}

func (c *Client) receipt(ctx context.Context, path string, body interface{}) (*api.Receipt, error) {
	var out api.Receipt
	if err := c.post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mint credits amount to to. Amounts are base-10 strings.
func (c *Client) Mint(ctx context.Context, to, amount string) (*api.Receipt, error) {
	return c.receipt(ctx, "/v1/mint", api.MintRequest{To: to, Amount: amount})
}

// Burn debits amount from from; "max" burns the whole balance.
func (c *Client) Burn(ctx context.Context, from, amount string) (*api.Receipt, error) {
	return c.receipt(ctx, "/v1/burn", api.BurnRequest{From: from, Amount: amount})
}

// Transfer moves amount from the token holder to to.
func (c *Client) Transfer(ctx context.Context, to, amount string) (*api.Receipt, error) {
	return c.receipt(ctx, "/v1/transfer", api.TransferRequest{To: to, Amount: amount})
}

// TransferFrom spends the caller's allowance over from.
func (c *Client) TransferFrom(ctx context.Context, from, to, amount string) (*api.Receipt, error) {
	return c.receipt(ctx, "/v1/transfer-from", api.TransferFromRequest{From: from, To: to, Amount: amount})
}

// Realize folds pending interest for account (the caller when empty).
func (c *Client) Realize(ctx context.Context, account string) (*api.Receipt, error) {
	return c.receipt(ctx, "/v1/realize", api.RealizeRequest{Account: account})
}

func (c *Client) Approve(ctx context.Context, spender, amount string) (*api.Allowance, error) {
	var out api.Allowance
	if err := c.post(ctx, "/v1/approve", api.ApproveRequest{Spender: spender, Amount: amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetGlobalRate(ctx context.Context, rate string) (*api.Protocol, error) {
	var out api.Protocol
	if err := c.post(ctx, "/v1/rate", api.RateRequest{Rate: rate}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Grant(ctx context.Context, account, capability string) (*api.Capabilities, error) {
	return c.capability(ctx, "/v1/capabilities/grant", account, capability)
}

func (c *Client) Revoke(ctx context.Context, account, capability string) (*api.Capabilities, error) {
	return c.capability(ctx, "/v1/capabilities/revoke", account, capability)
}

func (c *Client) capability(ctx context.Context, path, account, capability string) (*api.Capabilities, error) {
	var out api.Capabilities
	if err := c.post(ctx, path, api.CapabilityRequest{Account: account, Capability: capability}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetPaused(ctx context.Context, paused bool) (*api.Protocol, error) {
	var out api.Protocol
	if err := c.post(ctx, "/v1/pause", api.PauseRequest{Paused: paused}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Account(ctx context.Context, address string) (*api.Account, error) {
	var out api.Account
	if err := c.get(ctx, "/v1/accounts/"+url.PathEscape(address), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BalanceOf returns the effective balance including pending interest.
func (c *Client) BalanceOf(ctx context.Context, address string) (string, error) {
	return c.value(ctx, "/v1/accounts/"+url.PathEscape(address)+"/balance")
}

func (c *Client) PrincipalOf(ctx context.Context, address string) (string, error) {
	return c.value(ctx, "/v1/accounts/"+url.PathEscape(address)+"/principal")
}

func (c *Client) RateOf(ctx context.Context, address string) (string, error) {
	return c.value(ctx, "/v1/accounts/"+url.PathEscape(address)+"/rate")
}

func (c *Client) value(ctx context.Context, path string) (string, error) {
	var out api.Value
	if err := c.get(ctx, path, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

func (c *Client) Capabilities(ctx context.Context, address string) (*api.Capabilities, error) {
	var out api.Capabilities
	if err := c.get(ctx, "/v1/accounts/"+url.PathEscape(address)+"/capabilities", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Protocol(ctx context.Context) (*api.Protocol, error) {
	var out api.Protocol
	if err := c.get(ctx, "/v1/protocol", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Allowance(ctx context.Context, owner, spender string) (*api.Allowance, error) {
	var out api.Allowance
	if err := c.get(ctx, "/v1/allowances/"+url.PathEscape(owner)+"/"+url.PathEscape(spender), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EventFilter narrows Events results.
type EventFilter struct {
	Account string
	Type    string
	After   uint64
	Limit   int
}

// Events pages through the journal.
func (c *Client) Events(ctx context.Context, filter EventFilter) (*api.Events, error) {
	query := url.Values{}
	if filter.Account != "" {
		query.Set("account", filter.Account)
	}
	if filter.Type != "" {
		query.Set("type", filter.Type)
	}
	if filter.After > 0 {
		query.Set("after", strconv.FormatUint(filter.After, 10))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	var out api.Events
	if err := c.do(ctx, http.MethodGet, "/v1/events", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
