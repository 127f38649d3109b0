package upstox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KalharPandya/upstocks-mcp/internal/instrumentation"
	"github.com/KalharPandya/upstocks-mcp/internal/logging"
)

// TokenSource supplies the current access token and absorbs forced logouts.
// The auth manager satisfies it.
type TokenSource interface {
	AccessToken() (string, error)
	Logout()
}

const defaultTimeout = 30 * time.Second

// Client calls the Upstox v2 REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
}

// New creates a client against the given base URL. metrics may be nil.
func New(baseURL string, tokens TokenSource, logger *slog.Logger, metrics *instrumentation.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		tokens:     tokens,
		logger:     logger,
		metrics:    metrics,
	}
}

// GetMarketData returns full quotes keyed by instrument.
func (c *Client) GetMarketData(ctx context.Context, instruments []string) (map[string]Quote, error) {
	q := url.Values{"instrument_key": {strings.Join(instruments, ",")}}
	var out map[string]Quote
	if err := c.do(ctx, http.MethodGet, "/market-quote/quotes", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHistoricalData returns a candle series for one instrument.
func (c *Client) GetHistoricalData(ctx context.Context, p HistoricalParams) ([]Candle, error) {
	path := fmt.Sprintf("/historical-candle/%s/%s/%s",
		url.PathEscape(p.InstrumentKey), url.PathEscape(p.Interval), url.PathEscape(p.ToDate))
	if p.FromDate != "" {
		path += "/" + url.PathEscape(p.FromDate)
	}
	var out struct {
		Candles []Candle `json:"candles"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Candles, nil
}

// GetFunds returns available funds and margin.
func (c *Client) GetFunds(ctx context.Context) (*Funds, error) {
	var out Funds
	if err := c.do(ctx, http.MethodGet, "/user/get-funds-and-margin", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPositions returns current open positions.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var out []Position
	if err := c.do(ctx, http.MethodGet, "/portfolio/short-term-positions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHoldings returns long-term holdings.
func (c *Client) GetHoldings(ctx context.Context) ([]Holding, error) {
	var out []Holding
	if err := c.do(ctx, http.MethodGet, "/portfolio/long-term-holdings", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrders returns the day's order book.
func (c *Client) GetOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := c.do(ctx, http.MethodGet, "/order/retrieve-all", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrder returns one order by id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	q := url.Values{"order_id": {orderID}}
	var out []Order
	if err := c.do(ctx, http.MethodGet, "/order/details", q, nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "order not found: " + orderID}
	}
	return &out[0], nil
}

// PlaceOrder submits a new order.
func (c *Client) PlaceOrder(ctx context.Context, p PlaceOrderParams) (*OrderResult, error) {
	var out OrderResult
	if err := c.do(ctx, http.MethodPost, "/order/place", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	q := url.Values{"order_id": {orderID}}
	var out OrderResult
	if err := c.do(ctx, http.MethodDelete, "/order/cancel", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile returns the account profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "/user/profile", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInstruments returns the instrument master for one exchange.
func (c *Client) GetInstruments(ctx context.Context, exchange string) ([]Instrument, error) {
	q := url.Values{"exchange": {exchange}}
	var out []Instrument
	if err := c.do(ctx, http.MethodGet, "/market/instruments", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do performs one authenticated API call and unwraps the response envelope
// into out. A 401 forces a logout on the token source before returning.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	start := time.Now()
	err := c.doOnce(ctx, method, path, query, body, out)

	status := logging.StatusSuccess
	if err != nil {
		status = logging.StatusError
	}
	c.metrics.RecordBrokerCall(ctx, path, status, time.Since(start))
	c.logger.Debug("broker call", "path", path, logging.Status(status), logging.Err(err))
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out any) error {
	token, err := c.tokens.AccessToken()
	if err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstox request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("broker rejected token, forcing logout", "path", path)
		c.tokens.Logout()
		return &APIError{StatusCode: resp.StatusCode, Message: upstreamMessage(data, "unauthorized")}
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: upstreamMessage(data, resp.Status)}
	}

	if out == nil {
		return nil
	}
	var wrapped struct {
		apiEnvelope
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(wrapped.Data) > 0 {
		if err := json.Unmarshal(wrapped.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// upstreamMessage pulls the first error message out of an Upstox error body,
// falling back when the body is not the expected shape.
func upstreamMessage(data []byte, fallback string) string {
	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err == nil && len(env.Errors) > 0 && env.Errors[0].Message != "" {
		return env.Errors[0].Message
	}
	return fallback
}
