package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"broker/internal/schema"
	"broker/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

const (
	BaseURL        = "https://api.binance.com"
	BaseURLTestnet = "https://testnet.binance.vision"

	StreamURL        = "wss://stream.binance.com:9443/ws"
	StreamURLTestnet = "wss://stream.testnet.binance.vision/ws"

	_headerAPIKey     = "X-MBX-APIKEY"
	_defaultTimeout   = 15 * time.Second
	_defaultRecvWinMs = 5000
)

// Config holds the REST endpoint and credentials.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow time.Duration
	Timeout    time.Duration
}

// APIError is an error payload returned by the REST API.
type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: status=%d code=%d msg=%s", e.Status, e.Code, e.Msg)
}

// Unwrap classifies the failure. Server side failures count as connectivity.
func (e *APIError) Unwrap() error {
	if e.Status >= http.StatusInternalServerError {
		return exception.ErrConnectivity
	}
	return exception.ErrExchangeRejected
}

// Client is a signed spot REST client. It satisfies broker.Session.
type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	secret     []byte
	recvWindow int64
	timeout    time.Duration
	now        func() time.Time
}

// NewClient creates a REST client. A nil http client uses http.DefaultClient.
func NewClient(client *http.Client, cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, exception.ErrMissingCredential
	}
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	recvWindow := int64(_defaultRecvWinMs)
	if cfg.RecvWindow > 0 {
		recvWindow = cfg.RecvWindow.Milliseconds()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = _defaultTimeout
	}

	return &Client{
		client:     client,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secret:     []byte(cfg.APISecret),
		recvWindow: recvWindow,
		timeout:    timeout,
		now:        time.Now,
	}, nil
}

// SubmitOrder places a new order and returns the full acknowledgment.
func (c *Client) SubmitOrder(ctx context.Context, req schema.OrderRequest) (schema.Ack, error) {
	params, err := orderParams(req)
	if err != nil {
		return schema.Ack{}, err
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true, &resp); err != nil {
		return schema.Ack{}, err
	}
	return resp.toAck(), nil
}

func orderParams(req schema.OrderRequest) (url.Values, error) {
	side, ok := binanceSide(req.Side)
	if !ok {
		return nil, exception.ErrOrderUnsupportedSide
	}
	typ, ok := binanceOrderType(req.Type)
	if !ok {
		return nil, exception.ErrOrderUnsupportedType
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", side)
	params.Set("type", typ)
	params.Set("quantity", req.Size.String())
	params.Set("newOrderRespType", "FULL")
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	switch req.Type {
	case schema.OrderTypeLimit:
		params.Set("price", req.Price.String())
		params.Set("timeInForce", "GTC")
	case schema.OrderTypeStop:
		if req.Price.IsPositive() {
			params.Set("stopPrice", req.Price.String())
		}
	case schema.OrderTypeStopLimit:
		params.Set("price", req.Price.String())
		params.Set("stopPrice", req.Price.String())
		params.Set("timeInForce", "GTC")
	}

	for k, v := range req.Params {
		params.Set(k, v)
	}

	if (req.Type == schema.OrderTypeStop || req.Type == schema.OrderTypeStopLimit) && params.Get("stopPrice") == "" {
		return nil, exception.ErrOrderMissingPrice
	}
	return params, nil
}

// CancelOrder requests the cancellation of an order.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	return c.do(ctx, http.MethodDelete, "/api/v3/order", params, true, nil)
}

// Balances returns the free balance of every asset on the account.
func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	var resp accountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(resp.Balances))
	for _, b := range resp.Balances {
		out[b.Asset] = parseDecimal(b.Free)
	}
	return out, nil
}

// Balance returns the free balance of one asset. Unknown assets are zero.
func (c *Client) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return balances[asset], nil
}

// ExchangeInfo loads the trading rules of the given symbols.
func (c *Client) ExchangeInfo(ctx context.Context, symbols ...string) (map[string]schema.Instrument, error) {
	params := url.Values{}
	if len(symbols) > 0 {
		payload, err := sonic.ConfigFastest.Marshal(symbols)
		if err != nil {
			return nil, err
		}
		params.Set("symbols", string(payload))
	}

	var resp exchangeInfoResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/exchangeInfo", params, false, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]schema.Instrument, len(resp.Symbols))
	for _, s := range resp.Symbols {
		out[s.Symbol] = s.toInstrument()
	}
	return out, nil
}

// CreateListenKey opens a user data stream.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	var resp listenKeyResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/userDataStream", nil, false, &resp); err != nil {
		return "", err
	}
	if resp.ListenKey == "" {
		return "", exception.ErrEmptyListenKey
	}
	return resp.ListenKey, nil
}

// KeepAliveListenKey extends the validity of a listen key by 60 minutes.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)
	return c.do(ctx, http.MethodPut, "/api/v3/userDataStream", params, false, nil)
}

// CloseListenKey closes a user data stream.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)
	return c.do(ctx, http.MethodDelete, "/api/v3/userDataStream", params, false, nil)
}

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool, out any) error {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	}
	query := params.Encode()
	if signed {
		query += "&signature=" + c.sign(query)
	}

	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	r, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	r.Header.Set(_headerAPIKey, c.apiKey)

	resp, err := c.client.Do(r)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", exception.ErrConnectivity, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		body, _ := io.ReadAll(resp.Body)
		var payload apiErrorResponse
		if err := sonic.Unmarshal(body, &payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Msg = payload.Msg
		} else {
			apiErr.Msg = string(body)
		}
		logs.Errorf("binance %s %s failed, err: %s", method, path, apiErr)
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", exception.ErrOrderDecodeResponse, method, path, err)
	}
	return nil
}
