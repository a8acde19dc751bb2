package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"arbitrage-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	binanceBaseURL = "https://api.binance.com"
	// How long a signed request is valid in milliseconds.
	binanceRecvWindow = "5000"
)

// BinanceClient implements Client for the Binance REST API.
type BinanceClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

var _ Client = (*BinanceClient)(nil)

// NewBinanceClient creates a Binance REST client. Credentials come from the
// environment (BINANCE_API_KEY / BINANCE_API_SECRET).
func NewBinanceClient(cfg *config.Exchanges, logger *zap.Logger) *BinanceClient {
	return &BinanceClient{
		client:    resty.New().SetBaseURL(binanceBaseURL).SetTimeout(10 * time.Second),
		apiKey:    os.Getenv("BINANCE_API_KEY"),
		secretKey: os.Getenv("BINANCE_API_SECRET"),
		logger:    logger.With(zap.String("exchange", "binance")),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

func (c *BinanceClient) Name() string { return "binance" }

// binanceSymbol converts "BTC/USDT" to Binance's notation ("BTCUSDT").
func binanceSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// binanceAPIError is the error payload Binance returns alongside 4xx statuses.
type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type binanceBookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// GetTicker fetches best bid/ask from the public bookTicker endpoint.
func (c *BinanceClient) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	var result binanceBookTicker
	req := c.client.R().
		SetQueryParam("symbol", binanceSymbol(symbol)).
		SetResult(&result)

	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "GET", "/api/v3/ticker/bookTicker", req); err != nil {
		return nil, err
	}

	bid, err1 := strconv.ParseFloat(result.BidPrice, 64)
	ask, err2 := strconv.ParseFloat(result.AskPrice, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("binance ticker: unparsable quote for %s", symbol)
	}
	return &Ticker{Symbol: symbol, Exchange: c.Name(), Bid: bid, Ask: ask}, nil
}

type binanceAccount struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// GetBalances fetches free balances via the signed account endpoint.
func (c *BinanceClient) GetBalances(ctx context.Context) (map[string]float64, error) {
	params := url.Values{}
	var result binanceAccount
	req := c.signedRequest(params, &result, nil)

	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "GET", "/api/v3/account?"+params.Encode(), req); err != nil {
		return nil, err
	}

	balances := make(map[string]float64, len(result.Balances))
	for _, b := range result.Balances {
		amount, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			continue
		}
		balances[b.Asset] = amount
	}
	return balances, nil
}

type binanceOrderResult struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
}

// CreateOrder submits an order via the signed order endpoint. Binance answers
// rejections with a structured {code, msg} payload.
func (c *BinanceClient) CreateOrder(ctx context.Context, symbol, side, orderType string, amount, price float64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", binanceSymbol(symbol))
	params.Set("side", strings.ToUpper(side))
	params.Set("type", strings.ToUpper(orderType))
	params.Set("quantity", strconv.FormatFloat(amount, 'f', -1, 64))
	params.Set("newClientOrderId", strings.ReplaceAll(uuid.NewString(), "-", ""))
	if orderType == OrderTypeLimit {
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}

	var result binanceOrderResult
	apiErr := &binanceAPIError{}
	req := c.signedRequest(params, &result, apiErr).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(params.Encode())

	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "POST", "/api/v3/order", req); err != nil {
		if apiErr.Code != 0 || apiErr.Msg != "" {
			return nil, &RejectedError{Exchange: c.Name(), Code: strconv.Itoa(apiErr.Code), Message: apiErr.Msg}
		}
		return nil, err
	}

	return &Order{
		ID:       strconv.FormatInt(result.OrderID, 10),
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Amount:   amount,
		Price:    price,
		Status:   "open",
		Exchange: c.Name(),
	}, nil
}

// signedRequest appends the timestamp and HMAC-SHA256 hex signature to the
// query parameters and builds a request carrying the API key header.
func (c *BinanceClient) signedRequest(params url.Values, result interface{}, apiErr *binanceAPIError) *resty.Request {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", binanceRecvWindow)

	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(params.Encode()))
	params.Set("signature", hex.EncodeToString(mac.Sum(nil)))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetResult(result)
	if apiErr != nil {
		req.SetError(apiErr)
	}
	return req
}
