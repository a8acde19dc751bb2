package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
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

const okxBaseURL = "https://www.okx.com"

// OKXClient implements Client for the OKX v5 REST API.
type OKXClient struct {
	client     *resty.Client
	apiKey     string
	secretKey  string
	passphrase string
	logger     *zap.Logger
	limiter    *rate.Limiter
}

var _ Client = (*OKXClient)(nil)

// NewOKXClient creates an OKX REST client. Credentials come from the
// environment (OKX_API_KEY / OKX_API_SECRET / OKX_PASSPHRASE).
func NewOKXClient(cfg *config.Exchanges, logger *zap.Logger) *OKXClient {
	return &OKXClient{
		client:     resty.New().SetBaseURL(okxBaseURL).SetTimeout(10 * time.Second),
		apiKey:     os.Getenv("OKX_API_KEY"),
		secretKey:  os.Getenv("OKX_API_SECRET"),
		passphrase: os.Getenv("OKX_PASSPHRASE"),
		logger:     logger.With(zap.String("exchange", "okx")),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

func (c *OKXClient) Name() string { return "okx" }

// okxInstID converts "BTC/USDT" to OKX's instrument id ("BTC-USDT").
func okxInstID(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}

type okxResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type okxTicker struct {
	BidPx string `json:"bidPx"`
	AskPx string `json:"askPx"`
	Last  string `json:"last"`
}

// GetTicker fetches best bid/ask from the public market ticker endpoint.
func (c *OKXClient) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	var result okxResponse
	req := c.client.R().
		SetQueryParam("instId", okxInstID(symbol)).
		SetResult(&result)

	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "GET", "/api/v5/market/ticker", req); err != nil {
		return nil, err
	}
	if result.Code != "0" {
		return nil, fmt.Errorf("okx ticker error %s: %s", result.Code, result.Msg)
	}

	var tickers []okxTicker
	if err := json.Unmarshal(result.Data, &tickers); err != nil || len(tickers) == 0 {
		return nil, fmt.Errorf("okx ticker: no quote for %s", symbol)
	}

	bid, err1 := strconv.ParseFloat(tickers[0].BidPx, 64)
	ask, err2 := strconv.ParseFloat(tickers[0].AskPx, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("okx ticker: unparsable quote for %s", symbol)
	}
	return &Ticker{Symbol: symbol, Exchange: c.Name(), Bid: bid, Ask: ask}, nil
}

type okxBalanceDetail struct {
	Currency string `json:"ccy"`
	Avail    string `json:"availBal"`
}

// GetBalances fetches free balances via the signed account balance endpoint.
func (c *OKXClient) GetBalances(ctx context.Context) (map[string]float64, error) {
	const path = "/api/v5/account/balance"
	var result okxResponse
	req := c.signedRequest("GET", path, "", &result)

	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "GET", path, req); err != nil {
		return nil, err
	}
	if result.Code != "0" {
		return nil, fmt.Errorf("okx balance error %s: %s", result.Code, result.Msg)
	}

	var data []struct {
		Details []okxBalanceDetail `json:"details"`
	}
	if err := json.Unmarshal(result.Data, &data); err != nil {
		return nil, fmt.Errorf("okx balance: malformed response: %w", err)
	}

	balances := make(map[string]float64)
	for _, account := range data {
		for _, d := range account.Details {
			amount, err := strconv.ParseFloat(d.Avail, 64)
			if err != nil {
				continue
			}
			balances[d.Currency] = amount
		}
	}
	return balances, nil
}

type okxOrderResult struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

// CreateOrder submits an order via the signed trade order endpoint.
func (c *OKXClient) CreateOrder(ctx context.Context, symbol, side, orderType string, amount, price float64) (*Order, error) {
	const path = "/api/v5/trade/order"
	payload := map[string]string{
		"instId":  okxInstID(symbol),
		"tdMode":  "cash",
		"side":    side,
		"ordType": orderType,
		"sz":      strconv.FormatFloat(amount, 'f', -1, 64),
		"clOrdId": strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
	if orderType == OrderTypeLimit {
		payload["px"] = strconv.FormatFloat(price, 'f', -1, 64)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("okx order: failed to encode payload: %w", err)
	}

	var result okxResponse
	req := c.signedRequest("POST", path, string(body), &result).SetBody(body)

	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "POST", path, req); err != nil {
		return nil, err
	}
	if result.Code != "0" {
		return nil, &RejectedError{Exchange: c.Name(), Code: result.Code, Message: result.Msg}
	}

	var orders []okxOrderResult
	if err := json.Unmarshal(result.Data, &orders); err != nil || len(orders) == 0 {
		return nil, fmt.Errorf("okx order: empty response")
	}
	if orders[0].SCode != "" && orders[0].SCode != "0" {
		return nil, &RejectedError{Exchange: c.Name(), Code: orders[0].SCode, Message: orders[0].SMsg}
	}

	return &Order{
		ID:       orders[0].OrdID,
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Amount:   amount,
		Price:    price,
		Status:   "open",
		Exchange: c.Name(),
	}, nil
}

// signedRequest builds a request carrying OKX's access headers:
// sign = base64(HMAC-SHA256(timestamp + method + path + body, secret)).
func (c *OKXClient) signedRequest(method, path, body string, result interface{}) *resty.Request {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + method + path + body))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return c.client.R().
		SetHeader("OK-ACCESS-KEY", c.apiKey).
		SetHeader("OK-ACCESS-SIGN", signature).
		SetHeader("OK-ACCESS-TIMESTAMP", timestamp).
		SetHeader("OK-ACCESS-PASSPHRASE", c.passphrase).
		SetHeader("Content-Type", "application/json").
		SetResult(result)
}
