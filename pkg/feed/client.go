// Package feed streams level-1 quotes from the venue's WebSocket API into a
// PriceBook.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nardis556/ikon-loadGenerator/pkg/util"
)

const (
	SubscriptionL1OrderBook = "l1orderbook"

	defaultPingPeriod       = 15 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadLimit        = 1 << 20
	defaultBaseBackoff      = time.Second
	defaultMaxBackoff       = time.Minute
)

// ErrGaveUp is returned by Run once MaxReconnects consecutive attempts
// have failed.
var ErrGaveUp = errors.New("feed: max reconnection attempts reached")

type Config struct {
	Endpoint      string
	Markets       []string
	Weights       BlendWeights
	MaxReconnects int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	PingPeriod    time.Duration
	Clock         util.Clock
}

// Message is a decoded frame envelope.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type subscribeRequest struct {
	Method        string   `json:"method"`
	Markets       []string `json:"markets"`
	Subscriptions []string `json:"subscriptions"`
}

// l1Update is the l1orderbook payload. Bid and ask may be absent on an
// empty side of the book; the index price never is.
type l1Update struct {
	Market     string `json:"market" validate:"required"`
	BidPrice   string `json:"bidPrice" validate:"omitempty,numeric"`
	AskPrice   string `json:"askPrice" validate:"omitempty,numeric"`
	IndexPrice string `json:"indexPrice" validate:"required,numeric"`
}

// Client owns the feed connection and is the single writer of its
// PriceBook. Callbacks run on the read goroutine and must not block.
type Client struct {
	cfg      Config
	book     *PriceBook
	log      *zap.SugaredLogger
	dialer   *websocket.Dialer
	validate *validator.Validate
	markets  map[string]struct{}

	OnConnect    func()
	OnMessage    func(Message)
	OnError      func(error)
	OnDisconnect func(error)
}

func NewClient(cfg Config, book *PriceBook, log *zap.SugaredLogger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("feed: endpoint is required")
	}
	if book == nil {
		return nil, errors.New("feed: price book is required")
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Weights == (BlendWeights{}) {
		cfg.Weights = DefaultBlendWeights()
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	markets := make(map[string]struct{}, len(cfg.Markets))
	for _, m := range cfg.Markets {
		markets[strings.ToUpper(m)] = struct{}{}
	}

	return &Client{
		cfg:  cfg,
		book: book,
		log:  log.With("component", "feed"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		validate: validator.New(),
		markets:  markets,
	}, nil
}

// Backoff returns the wait before reconnection attempt n (1-based):
// base*2^(n-1), capped at MaxBackoff.
func (c *Client) Backoff(n int) time.Duration {
	d := c.cfg.BaseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.cfg.MaxBackoff {
			return c.cfg.MaxBackoff
		}
	}
	return d
}

// Run connects and keeps the feed alive until ctx is done or MaxReconnects
// consecutive attempts fail. A successful connection resets the count.
// The trading loop is not told when the feed stops; it relies on price
// staleness instead.
func (c *Client) Run(ctx context.Context) error {
	failures := 0
	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			failures = 0
			c.log.Warnw("feed_disconnected", "error", err)
			if c.OnDisconnect != nil {
				c.OnDisconnect(err)
			}
		} else {
			c.log.Errorw("feed_error", "error", err)
			if c.OnError != nil {
				c.OnError(err)
			}
		}

		failures++
		if failures > c.cfg.MaxReconnects {
			c.log.Errorw("feed_gave_up", "attempts", failures-1)
			return ErrGaveUp
		}
		wait := c.Backoff(failures)
		c.log.Infow("feed_reconnecting", "attempt", failures, "backoff", wait)
		if err := util.Sleep(ctx, c.cfg.Clock, wait); err != nil {
			return err
		}
	}
}

// session runs one connection. connected reports whether the handshake
// and subscription succeeded.
func (c *Client) session(ctx context.Context) (connected bool, err error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.Endpoint, nil)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("feed: dial: %w (status %d)", err, resp.StatusCode)
		}
		return false, fmt.Errorf("feed: dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(defaultReadLimit)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PingPeriod * 2))
	})

	sub := subscribeRequest{
		Method:        "subscribe",
		Markets:       c.cfg.Markets,
		Subscriptions: []string{SubscriptionL1OrderBook},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return false, fmt.Errorf("feed: subscribe: %w", err)
	}

	c.log.Infow("feed_connected", "endpoint", c.cfg.Endpoint, "markets", c.cfg.Markets)
	if c.OnConnect != nil {
		c.OnConnect()
	}

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handle(data)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// unblocks ReadMessage in session
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.log.Debugw("feed_ping_failed", "error", err)
			}
		}
	}
}

func (c *Client) handle(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reportError(fmt.Errorf("feed: decode frame: %w", err))
		return
	}
	if c.OnMessage != nil {
		c.OnMessage(msg)
	}

	switch msg.Type {
	case SubscriptionL1OrderBook:
		var u l1Update
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			c.reportError(fmt.Errorf("feed: decode %s: %w", msg.Type, err))
			return
		}
		if err := c.apply(u); err != nil {
			c.reportError(err)
		}
	case "error":
		c.reportError(fmt.Errorf("feed: server error: %s", string(msg.Data)))
	}
}

// apply stores a validated quote. Frames for markets outside the
// subscription are ignored.
func (c *Client) apply(u l1Update) error {
	if err := c.validate.Struct(&u); err != nil {
		return fmt.Errorf("feed: invalid %s frame: %w", SubscriptionL1OrderBook, err)
	}
	if len(c.markets) > 0 {
		if _, ok := c.markets[strings.ToUpper(u.Market)]; !ok {
			return nil
		}
	}
	index := parseOrZero(u.IndexPrice)
	if !index.IsPositive() {
		return fmt.Errorf("feed: %s: non-positive index price %q", u.Market, u.IndexPrice)
	}
	bid, ask := parseOrZero(u.BidPrice), parseOrZero(u.AskPrice)
	c.book.Store(u.Market, Prices{
		IndexPrice: index,
		BestBid:    bid,
		BestAsk:    ask,
		BestPrice:  BlendBestPrice(bid, ask, index, c.cfg.Weights),
		UpdatedAt:  c.cfg.Clock.Now(),
	})
	return nil
}

func (c *Client) reportError(err error) {
	c.log.Warnw("feed_message_error", "error", err)
	if c.OnError != nil {
		c.OnError(err)
	}
}

func parseOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
