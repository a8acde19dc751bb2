package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
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

const krakenBaseURL = "https://api.kraken.com"

// KrakenClient implements Client for the Kraken REST API.
type KrakenClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

var _ Client = (*KrakenClient)(nil)

// NewKrakenClient creates a Kraken REST client. API credentials are read from
// the environment (KRAKEN_API_KEY / KRAKEN_API_SECRET).
func NewKrakenClient(cfg *config.Exchanges, logger *zap.Logger) *KrakenClient {
	return &KrakenClient{
		client:    resty.New().SetBaseURL(krakenBaseURL).SetTimeout(10 * time.Second),
		apiKey:    os.Getenv("KRAKEN_API_KEY"),
		secretKey: os.Getenv("KRAKEN_API_SECRET"),
		logger:    logger.With(zap.String("exchange", "kraken")),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

func (c *KrakenClient) Name() string { return "kraken" }

// krakenPair converts "BTC/USDT" to Kraken's pair notation ("XBTUSDT").
func krakenPair(symbol string) string {
	pair := strings.ReplaceAll(symbol, "/", "")
	return strings.ReplaceAll(pair, "BTC", "XBT")
}

type krakenTickerResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		Ask []string `json:"a"`
		Bid []string `json:"b"`
		Low []string `json:"c"`
	} `json:"result"`
}

// GetTicker fetches best bid/ask from the public Ticker endpoint.
func (c *KrakenClient) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	var result krakenTickerResponse
	req := c.client.R().
		SetQueryParam("pair", krakenPair(symbol)).
		SetResult(&result)

	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "GET", "/0/public/Ticker", req); err != nil {
		return nil, err
	}
	if len(result.Error) > 0 {
		return nil, fmt.Errorf("kraken ticker error: %s", strings.Join(result.Error, "; "))
	}

	for _, t := range result.Result {
		if len(t.Ask) == 0 || len(t.Bid) == 0 {
			break
		}
		ask, err1 := strconv.ParseFloat(t.Ask[0], 64)
		bid, err2 := strconv.ParseFloat(t.Bid[0], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("kraken ticker: unparsable quote for %s", symbol)
		}
		return &Ticker{Symbol: symbol, Exchange: c.Name(), Bid: bid, Ask: ask}, nil
	}
	return nil, fmt.Errorf("kraken ticker: no quote for %s", symbol)
}

type krakenBalanceResponse struct {
	Error  []string          `json:"error"`
	Result map[string]string `json:"result"`
}

// GetBalances fetches free balances via the signed Balance endpoint.
func (c *KrakenClient) GetBalances(ctx context.Context) (map[string]float64, error) {
	const path = "/0/private/Balance"
	form := url.Values{}
	resp := &krakenBalanceResponse{}

	req, err := c.signedRequest(path, form, resp)
	if err != nil {
		return nil, err
	}
	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "POST", path, req); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken balance error: %s", strings.Join(resp.Error, "; "))
	}

	balances := make(map[string]float64, len(resp.Result))
	for asset, amountStr := range resp.Result {
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil {
			continue
		}
		// Kraken reports XBT/XXBT style asset codes.
		asset = strings.TrimPrefix(asset, "X")
		asset = strings.TrimPrefix(asset, "Z")
		balances[strings.ReplaceAll(asset, "XBT", "BTC")] = amount
	}
	return balances, nil
}

type krakenOrderResponse struct {
	Error  []string `json:"error"`
	Result struct {
		TxIDs []string `json:"txid"`
	} `json:"result"`
}

// CreateOrder submits an order via the signed AddOrder endpoint.
func (c *KrakenClient) CreateOrder(ctx context.Context, symbol, side, orderType string, amount, price float64) (*Order, error) {
	const path = "/0/private/AddOrder"
	form := url.Values{}
	form.Set("pair", krakenPair(symbol))
	form.Set("type", side)
	form.Set("ordertype", orderType)
	form.Set("volume", strconv.FormatFloat(amount, 'f', -1, 64))
	form.Set("cl_ord_id", uuid.NewString())
	if orderType == OrderTypeLimit {
		form.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}

	resp := &krakenOrderResponse{}
	req, err := c.signedRequest(path, form, resp)
	if err != nil {
		return nil, err
	}
	if _, err := doRequest(ctx, c.client, c.limiter, c.logger, "POST", path, req); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, &RejectedError{Exchange: c.Name(), Message: strings.Join(resp.Error, "; ")}
	}

	order := &Order{
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Amount:   amount,
		Price:    price,
		Status:   "open",
		Exchange: c.Name(),
	}
	if len(resp.Result.TxIDs) > 0 {
		order.ID = resp.Result.TxIDs[0]
	}
	return order, nil
}

// signedRequest builds a request carrying Kraken's API-Key/API-Sign headers:
// sign = HMAC-SHA512(path + SHA256(nonce + postdata), base64-decoded secret).
func (c *KrakenClient) signedRequest(path string, form url.Values, result interface{}) (*resty.Request, error) {
	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	form.Set("nonce", nonce)
	postData := form.Encode()

	secret, err := base64.StdEncoding.DecodeString(c.secretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid kraken secret: %w", err)
	}

	sha := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return c.client.R().
		SetHeader("API-Key", c.apiKey).
		SetHeader("API-Sign", signature).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(postData).
		SetResult(result), nil
}
