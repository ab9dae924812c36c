package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dipbot/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultRestURL is the Binance spot REST endpoint.
const DefaultRestURL = "https://api.binance.com"

// Client is the Binance spot REST API client (boundary layer). It
// implements domain.Exchange. Failures are classified so the caller's
// retry wrapper only retries transient ones: transport errors,
// timeouts, rate limits (429/418) and 5xx responses.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *Signer
	stream     *Stream
	logger     *slog.Logger
}

// NewClient creates a new Binance API client.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	if baseURL == "" {
		baseURL = DefaultRestURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: NewSigner(apiKey, apiSecret),
		logger: slog.Default().With("module", "binance_client"),
	}
}

// AttachStream makes FetchTicker prefer fresh websocket prices over REST.
func (c *Client) AttachStream(s *Stream) {
	c.stream = s
}

// FetchTicker returns the last traded price for a pair like "BTC/USDT".
func (c *Client) FetchTicker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	const op = "fetch ticker"

	if c.stream != nil {
		if price, ok := c.stream.LastPrice(symbol); ok {
			return price, nil
		}
	}

	q := url.Values{}
	q.Set("symbol", exchangeSymbol(symbol))

	var out tickerPriceResponse
	if err := c.doRequest(ctx, op, http.MethodGet, "/api/v3/ticker/price", q, false, &out); err != nil {
		return decimal.Decimal{}, err
	}

	price, err := decimal.NewFromString(out.Price)
	if err != nil {
		return decimal.Decimal{}, domain.NewFatalExchangeError(op, fmt.Errorf("bad price %q: %w", out.Price, err))
	}
	return price, nil
}

// FetchBalance returns all non-zero asset balances of the account.
func (c *Client) FetchBalance(ctx context.Context) (map[string]domain.AssetBalance, error) {
	const op = "fetch balance"

	var out accountResponse
	if err := c.doRequest(ctx, op, http.MethodGet, "/api/v3/account", url.Values{}, true, &out); err != nil {
		return nil, err
	}

	balances := make(map[string]domain.AssetBalance, len(out.Balances))
	for _, b := range out.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			continue
		}
		locked, err := decimal.NewFromString(b.Locked)
		if err != nil {
			continue
		}
		total := free.Add(locked)
		if total.IsZero() {
			continue
		}
		balances[b.Asset] = domain.AssetBalance{Total: total, Free: free}
	}
	return balances, nil
}

// CreateOrder places a GTC limit order and reports the filled amount
// and the summed fill commissions. A non-transient decline surfaces as
// an OrderRejectedError so the caller aborts the transition without retrying.
func (c *Client) CreateOrder(ctx context.Context, symbol, side string, amount, price decimal.Decimal) (domain.OrderResult, error) {
	const op = "create order"

	q := url.Values{}
	q.Set("symbol", exchangeSymbol(symbol))
	q.Set("side", side)
	q.Set("type", "LIMIT")
	q.Set("timeInForce", "GTC")
	q.Set("quantity", amount.String())
	q.Set("price", price.String())
	q.Set("newClientOrderId", uuid.NewString())
	q.Set("newOrderRespType", "FULL")

	var out orderResponse
	if err := c.doRequest(ctx, op, http.MethodPost, "/api/v3/order", q, true, &out); err != nil {
		var ee *domain.ExchangeError
		if errors.As(err, &ee) && !ee.Retriable {
			return domain.OrderResult{}, &domain.OrderRejectedError{Symbol: symbol, Side: side, Err: ee.Err}
		}
		return domain.OrderResult{}, err
	}

	filled, err := decimal.NewFromString(out.ExecutedQty)
	if err != nil || filled.IsZero() {
		filled = amount
	}
	fee := decimal.Zero
	for _, f := range out.Fills {
		if commission, err := decimal.NewFromString(f.Commission); err == nil {
			fee = fee.Add(commission)
		}
	}

	c.logger.Info("order placed",
		slog.String("symbol", symbol),
		slog.String("side", side),
		slog.String("status", out.Status),
		slog.String("filled", filled.String()),
	)
	return domain.OrderResult{FilledAmount: filled, Fee: fee}, nil
}

// doRequest performs one HTTP round-trip and classifies the outcome.
func (c *Client) doRequest(ctx context.Context, op, method, path string, q url.Values, signed bool, out any) error {
	query := q.Encode()
	if signed {
		q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		q.Set("recvWindow", "5000")
		query = q.Encode()
		query += "&signature=" + c.signer.Sign(query)
	}

	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return domain.NewFatalExchangeError(op, err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.signer.APIKey())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure: connection refused, timeout, DNS.
		return domain.NewExchangeError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewExchangeError(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return domain.NewFatalExchangeError(op, fmt.Errorf("failed to parse response: %w", err))
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		return domain.NewExchangeError(op, fmt.Errorf("%w: status=%d", domain.ErrRateLimited, resp.StatusCode))
	case resp.StatusCode >= 500:
		return domain.NewExchangeError(op, fmt.Errorf("server error: status=%d body=%s", resp.StatusCode, string(body)))
	default:
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
			return domain.NewFatalExchangeError(op, fmt.Errorf("api error %d: %s", apiErr.Code, apiErr.Msg))
		}
		return domain.NewFatalExchangeError(op, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}
}
