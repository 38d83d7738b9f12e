package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nardis556/ikon-loadGenerator/pkg/crypto"
)

const (
	headerAPIKey    = "IDEX-API-Key"
	headerSignature = "IDEX-HMAC-Signature"

	defaultBaseURL        = "https://api.idex.io"
	defaultSandboxBaseURL = "https://api-sandbox.idex.io"
)

// Config describes one account's authenticated session.
type Config struct {
	BaseURL           string
	Sandbox           bool
	APIKey            string
	APISecret         string
	WalletPrivateKey  string
	ChainID           int64
	ExchangeContract  string
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// RESTClient implements TradingAPI over the venue's v4 REST API.
// Every request carries an HMAC signature of its payload; order and cancel
// requests additionally carry an EIP-712 wallet signature.
type RESTClient struct {
	baseURL   string
	apiKey    string
	apiSecret []byte
	signer    *crypto.Signer
	eip712    *crypto.EIP712Signer
	http      *http.Client
	limiter   *rate.Limiter
	newNonce  func() (string, error)
	log       *zap.SugaredLogger
}

var _ TradingAPI = (*RESTClient)(nil)

func NewRESTClient(cfg Config, log *zap.SugaredLogger) (*RESTClient, error) {
	signer, err := crypto.FromPrivateKeyHex(cfg.WalletPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("venue: wallet key: %w", err)
	}

	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
		if cfg.Sandbox {
			base = defaultSandboxBaseURL
		}
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("venue: base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &RESTClient{
		baseURL:   strings.TrimRight(base, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: []byte(cfg.APISecret),
		signer:    signer,
		eip712:    crypto.NewEIP712Signer(crypto.NewDomain(cfg.ChainID, cfg.ExchangeContract)),
		http:      httpClient,
		limiter:   rate.NewLimiter(limit, burst),
		newNonce:  newV1Nonce,
		log:       log.With("wallet", signer.Address().Hex()),
	}, nil
}

func newV1Nonce() (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("venue: nonce: %w", err)
	}
	return id.String(), nil
}

func (c *RESTClient) Wallet() string { return c.signer.Address().Hex() }

func (c *RESTClient) GetMarkets(ctx context.Context) ([]Market, error) {
	var out []Market
	if err := c.get(ctx, "/v4/markets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) GetPositions(ctx context.Context, market string) ([]Position, error) {
	q, err := c.walletQuery()
	if err != nil {
		return nil, err
	}
	if market != "" {
		q.Set("market", market)
	}
	var out []Position
	if err := c.get(ctx, "/v4/positions", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) GetOrders(ctx context.Context, limit int) ([]Order, error) {
	q, err := c.walletQuery()
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Order
	if err := c.get(ctx, "/v4/orders", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) GetOrderBookLevel2(ctx context.Context, market string, limit int) (OrderBook, error) {
	q := url.Values{}
	q.Set("market", market)
	q.Set("level", "2")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out OrderBook
	if err := c.get(ctx, "/v4/orderbook", q, &out); err != nil {
		return OrderBook{}, err
	}
	return out, nil
}

type orderParameters struct {
	Nonce  string `json:"nonce"`
	Wallet string `json:"wallet"`
	OrderSpec
}

type cancelParameters struct {
	Nonce  string `json:"nonce"`
	Wallet string `json:"wallet"`
	Market string `json:"market,omitempty"`
}

type signedRequest struct {
	Parameters any    `json:"parameters"`
	Signature  string `json:"signature"`
}

func (c *RESTClient) CreateOrder(ctx context.Context, spec OrderSpec) (Order, error) {
	nonce, err := c.newNonce()
	if err != nil {
		return Order{}, err
	}
	sig, err := c.eip712.SignOrder(c.signer, &crypto.OrderEIP712{
		Nonce:        nonce,
		Wallet:       c.signer.Address(),
		Market:       spec.Market,
		Type:         string(spec.Type),
		Side:         string(spec.Side),
		Quantity:     spec.Quantity,
		Price:        spec.Price,
		TriggerPrice: spec.TriggerPrice,
		TriggerType:  string(spec.TriggerType),
	})
	if err != nil {
		return Order{}, fmt.Errorf("venue: %w", err)
	}

	req := signedRequest{
		Parameters: orderParameters{Nonce: nonce, Wallet: c.Wallet(), OrderSpec: spec},
		Signature:  sig,
	}
	var out Order
	if err := c.send(ctx, http.MethodPost, "/v4/orders", req, &out); err != nil {
		return Order{}, err
	}
	return out, nil
}

func (c *RESTClient) CancelOrders(ctx context.Context, market string) ([]CancelledOrder, error) {
	nonce, err := c.newNonce()
	if err != nil {
		return nil, err
	}
	sig, err := c.eip712.SignCancel(c.signer, &crypto.CancelEIP712{
		Nonce:  nonce,
		Wallet: c.signer.Address(),
		Market: market,
	})
	if err != nil {
		return nil, fmt.Errorf("venue: %w", err)
	}

	req := signedRequest{
		Parameters: cancelParameters{Nonce: nonce, Wallet: c.Wallet(), Market: market},
		Signature:  sig,
	}
	var out []CancelledOrder
	if err := c.send(ctx, http.MethodDelete, "/v4/orders", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) walletQuery() (url.Values, error) {
	nonce, err := c.newNonce()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("nonce", nonce)
	q.Set("wallet", c.Wallet())
	return q, nil
}

func (c *RESTClient) get(ctx context.Context, path string, q url.Values, out any) error {
	payload := q.Encode()
	target := c.baseURL + path
	if payload != "" {
		target += "?" + payload
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("venue: build request: %w", err)
	}
	return c.do(req, []byte(payload), out)
}

func (c *RESTClient) send(ctx context.Context, method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("venue: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("venue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, payload, out)
}

func (c *RESTClient) do(req *http.Request, payload []byte, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("venue: rate limit: %w", err)
	}

	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerSignature, c.hmacSignature(payload))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("venue: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("venue: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp.StatusCode, body)
		c.log.Debugw("venue_request_failed",
			"method", req.Method,
			"path", req.URL.Path,
			"status", resp.StatusCode,
			"code", apiErr.Code,
		)
		return apiErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("venue: decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *RESTClient) hmacSignature(payload []byte) string {
	mac := hmac.New(sha256.New, c.apiSecret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || (apiErr.Code == "" && apiErr.Message == "") {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	return apiErr
}

// IsTemporary reports whether err is worth retrying: transport failures,
// request timeouts and venue 5xx or throttling responses. Expiry of the
// caller's own context is left to the caller, which checks ctx.Err().
func IsTemporary(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
