// Package controller runs the trading loop: for every cycle it walks each
// account over each configured market, fetches a snapshot, picks a side,
// keeps the account under its open-order ceiling, generates a batch and
// submits it.
//
// Iteration is sequential. The only fan-out is the per-market snapshot
// fetch. Submissions are awaited, so the local open-order count always
// reflects the venue's answers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nardis556/ikon-loadGenerator/pkg/breaker"
	"github.com/nardis556/ikon-loadGenerator/pkg/evaluator"
	"github.com/nardis556/ikon-loadGenerator/pkg/feed"
	"github.com/nardis556/ikon-loadGenerator/pkg/metrics"
	"github.com/nardis556/ikon-loadGenerator/pkg/numfmt"
	"github.com/nardis556/ikon-loadGenerator/pkg/orders"
	"github.com/nardis556/ikon-loadGenerator/pkg/storage"
	"github.com/nardis556/ikon-loadGenerator/pkg/util"
	"github.com/nardis556/ikon-loadGenerator/pkg/venue"
)

// Publisher receives loop events for operators. api.Hub implements it.
type Publisher interface {
	Publish(kind string, data any)
}

// Session is one account's authenticated venue connection.
type Session struct {
	Name string
	API  venue.TradingAPI
}

// Deps are the collaborators of a Controller. Only Metadata, Sessions and
// Generator are required.
type Deps struct {
	// Metadata serves the market list.
	Metadata  venue.TradingAPI
	Sessions  []Session
	Generator *orders.Generator
	Breaker   *breaker.TradingState
	Prices    *feed.PriceBook
	Journal   storage.Journal
	Metrics   *metrics.Metrics
	Events    Publisher
	Clock     util.Clock
	Log       *zap.SugaredLogger
}

// Snapshot is the operator view of the loop.
type Snapshot struct {
	Cycles      int64     `json:"cycles"`
	Side        string    `json:"side"`
	Accounts    int       `json:"accounts"`
	Markets     []string  `json:"markets"`
	Submitted   int64     `json:"submitted"`
	Rejected    int64     `json:"rejected"`
	Cancels     int64     `json:"cancels"`
	LastCycleAt time.Time `json:"lastCycleAt,omitempty"`
}

type Controller struct {
	cfg       Config
	meta      venue.TradingAPI
	sessions  []Session
	gen       *orders.Generator
	breaker   *breaker.TradingState
	prices    *feed.PriceBook
	journal   storage.Journal
	metrics   *metrics.Metrics
	events    Publisher
	clock     util.Clock
	log       *zap.SugaredLogger
	retryable func(error) bool

	// side is owned by the loop goroutine.
	side venue.Side

	cycles    atomic.Int64
	submitted atomic.Int64
	rejected  atomic.Int64
	cancels   atomic.Int64

	mu          sync.Mutex
	markets     []string
	currentSide venue.Side
	lastCycleAt time.Time
}

func New(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Metadata == nil {
		return nil, errors.New("controller: no metadata client")
	}
	if len(deps.Sessions) == 0 {
		return nil, errors.New("controller: no account sessions")
	}
	if deps.Generator == nil {
		return nil, errors.New("controller: no generator")
	}
	if cfg.Strategy.PriceSource == PriceStream && deps.Prices == nil {
		return nil, errors.New("controller: stream price source needs a price book")
	}
	// the liquidity guard must watch the book side takers will hit
	cfg.Strategy.Evaluator.TakersSameSide = deps.Generator.MarketSide() == orders.MarketSideSame

	c := &Controller{
		cfg:       cfg,
		meta:      deps.Metadata,
		sessions:  deps.Sessions,
		gen:       deps.Generator,
		breaker:   deps.Breaker,
		prices:    deps.Prices,
		journal:   deps.Journal,
		metrics:   deps.Metrics,
		events:    deps.Events,
		clock:     deps.Clock,
		log:       deps.Log,
		retryable: venue.IsTemporary,
		side:      cfg.InitialSide,
	}
	if c.clock == nil {
		c.clock = util.RealClock{}
	}
	if c.breaker == nil {
		c.breaker = breaker.New(3*time.Minute, c.clock)
	}
	if c.journal == nil {
		c.journal = storage.NopJournal{}
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	c.currentSide = c.side
	return c, nil
}

// Snapshot is safe to call from any goroutine.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Cycles:      c.cycles.Load(),
		Side:        string(c.currentSide),
		Accounts:    len(c.sessions),
		Markets:     append([]string(nil), c.markets...),
		Submitted:   c.submitted.Load(),
		Rejected:    c.rejected.Load(),
		Cancels:     c.cancels.Load(),
		LastCycleAt: c.lastCycleAt,
	}
}

// Run loops until ctx is cancelled and then returns ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	c.log.Infow("controller_starting",
		"accounts", len(c.sessions),
		"markets", c.cfg.Markets,
		"open_orders", c.cfg.OpenOrders,
		"price_source", c.cfg.Strategy.PriceSource,
		"ladder", c.cfg.Strategy.Ladder)

	if c.cfg.InitializeCancels {
		c.CancelAll(ctx)
	}
	for {
		if err := c.RunCycle(ctx); err != nil {
			return err
		}
	}
}

// RunCycle makes one pass over every account and market. It only returns
// an error when ctx is done.
func (c *Controller) RunCycle(ctx context.Context) error {
	if err := c.waitTrading(ctx); err != nil {
		return err
	}

	markets, err := c.loadMarkets(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Errorw("markets_fetch_failed", "error", err, "backoff", c.cfg.MarketsBackoff)
		return util.Sleep(ctx, c.clock, c.cfg.MarketsBackoff)
	}

	for _, sess := range c.sessions {
		if err := c.waitTrading(ctx); err != nil {
			return err
		}
		if err := c.runAccount(ctx, sess, markets); err != nil {
			return err
		}
		c.flipSide()
		if c.cfg.Cooldowns.AccountEnabled {
			if err := util.Sleep(ctx, c.clock, c.cfg.Cooldowns.Account); err != nil {
				return err
			}
		}
	}

	c.cycles.Add(1)
	c.metrics.Cycles.Inc()
	c.mu.Lock()
	c.lastCycleAt = c.clock.Now()
	c.mu.Unlock()
	return ctx.Err()
}

// accountPass is the bookkeeping of one account over one cycle.
type accountPass struct {
	sess      Session
	openCount int
	cancelled bool
}

func (c *Controller) runAccount(ctx context.Context, sess Session, markets []MarketConfig) error {
	pass := &accountPass{sess: sess}
	for _, mc := range markets {
		if err := c.waitTrading(ctx); err != nil {
			return err
		}
		if err := c.runMarket(ctx, pass, mc); err != nil {
			return err
		}
		c.flipSide()
		if c.cfg.Cooldowns.MarketEnabled {
			if err := util.Sleep(ctx, c.clock, c.cfg.Cooldowns.Market); err != nil {
				return err
			}
		}
	}
	return nil
}

// runMarket is FETCH, EVALUATE, BUDGET_CHECK, GENERATE and SUBMIT_LOOP for
// one account and market. Failures are logged and end the market's turn;
// only a done ctx is returned.
func (c *Controller) runMarket(ctx context.Context, pass *accountPass, mc MarketConfig) error {
	id := mc.Market.ID()
	log := c.log.With("account", pass.sess.Name, "market", id)

	snap, err := c.fetch(ctx, pass.sess.API, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warnw("fetch_failed", "error", err, "backoff", c.cfg.FetchBackoff)
		return util.Sleep(ctx, c.clock, c.cfg.FetchBackoff)
	}
	pass.openCount = len(snap.orders)
	c.metrics.OpenOrders.WithLabelValues(pass.sess.API.Wallet()).Set(float64(pass.openCount))

	dec := evaluator.Evaluate(snap.book, snap.position, mc.Market, c.side, c.cfg.Strategy.Evaluator)
	c.metrics.SideDecisions.WithLabelValues(id, string(dec.Side)).Inc()
	log.Debugw("side_evaluated",
		"prior", c.side,
		"side", dec.Side,
		"run_market", dec.RunMarket,
		"rules", dec.Rules,
		"bid_weight", dec.BidWeight,
		"ask_weight", dec.AskWeight)

	if pass.openCount >= c.cfg.OpenOrders {
		c.cancelForBudget(ctx, pass, id)
	}

	ref, source := c.referencePrice(id, dec)
	if !ref.IsPositive() {
		log.Warnw("no_reference_price", "source", source)
		return nil
	}

	specs, err := c.gen.Generate(orders.Template{
		Market:             id,
		Side:               dec.Side,
		ReferencePrice:     ref,
		BaseQuantity:       c.gen.BaseQuantityFor(mc.Market.MakerOrderMinimum),
		TakerMinimum:       mc.Market.TakerOrderMinimum,
		PriceIncrement:     mc.PriceIncrement,
		PriceResolution:    mc.Market.PriceResolution,
		QuantityResolution: mc.Market.QuantityResolution,
		Iterations:         mc.Iterations,
	})
	if err != nil {
		var unsupported *numfmt.UnsupportedResolutionError
		if errors.As(err, &unsupported) {
			log.Errorw("market_resolution_unsupported", "error", err)
		} else {
			log.Warnw("generate_partial", "error", err, "built", len(specs))
		}
	}
	if len(specs) == 0 {
		return nil
	}
	log.Debugw("batch_generated", "side", dec.Side, "reference", ref, "source", source, "orders", len(specs))

	return c.submitBatch(ctx, pass, mc, dec, specs, log)
}

func (c *Controller) submitBatch(ctx context.Context, pass *accountPass, mc MarketConfig, dec evaluator.Decision, specs []venue.OrderSpec, log *zap.SugaredLogger) error {
	blocked := map[venue.Side]bool{}
	for _, spec := range specs {
		if err := c.waitTrading(ctx); err != nil {
			return err
		}
		if spec.IsTaker() && !dec.RunMarket {
			log.Debugw("taker_skipped", "type", spec.Type, "side", spec.Side)
			continue
		}
		if blocked[spec.Side] {
			continue
		}
		if pass.openCount >= c.cfg.OpenOrders {
			if !pass.cancelled {
				c.cancelForBudget(ctx, pass, mc.Market.ID())
			}
			log.Infow("order_budget_reached", "open_orders", pass.openCount, "ceiling", c.cfg.OpenOrders)
			return nil
		}

		spec, adjusted, err := orders.FloorToMinimum(spec, mc.Market.MakerOrderMinimum, mc.Market.MaximumPositionSize)
		if err != nil {
			log.Warnw("order_dropped", "error", err)
			continue
		}
		if adjusted {
			log.Debugw("order_quantity_adjusted", "quantity", spec.Quantity)
		}

		order, err := pass.sess.API.CreateOrder(ctx, spec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.onSubmitError(pass, spec, err, blocked, log)
		} else {
			pass.openCount++
			c.onSubmitted(pass, spec, order, log)
		}

		if c.cfg.Cooldowns.OrderEnabled {
			if err := util.Sleep(ctx, c.clock, c.cfg.Cooldowns.Order); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Controller) onSubmitted(pass *accountPass, spec venue.OrderSpec, order venue.Order, log *zap.SugaredLogger) {
	c.submitted.Add(1)
	c.metrics.OrdersSubmitted.WithLabelValues(spec.Market, string(spec.Side), string(spec.Type)).Inc()
	c.metrics.OpenOrders.WithLabelValues(pass.sess.API.Wallet()).Set(float64(pass.openCount))
	log.Infow("order_submitted",
		"order_id", order.OrderID,
		"side", spec.Side,
		"type", spec.Type,
		"quantity", spec.Quantity,
		"price", spec.Price,
		"trigger_price", spec.TriggerPrice)

	rec := storage.OrderRecord{
		Wallet:   pass.sess.API.Wallet(),
		Market:   spec.Market,
		OrderID:  order.OrderID,
		Side:     string(spec.Side),
		Type:     string(spec.Type),
		Quantity: spec.Quantity,
		Price:    spec.Price,
		Status:   order.Status,
		At:       c.clock.Now(),
	}
	if err := c.journal.RecordOrder(rec); err != nil {
		log.Warnw("journal_write_failed", "error", err)
	}
	c.publish("order_submitted", rec)
}

// onSubmitError classifies a failed submission. Trading disabled trips the
// breaker; a position limit blocks the side for the rest of the batch;
// anything else drops the order.
func (c *Controller) onSubmitError(pass *accountPass, spec venue.OrderSpec, err error, blocked map[venue.Side]bool, log *zap.SugaredLogger) {
	code := venue.ErrorCode(err)
	if code == "" {
		code = "unknown"
	}
	c.rejected.Add(1)
	c.metrics.OrderErrors.WithLabelValues(spec.Market, code).Inc()

	switch {
	case venue.IsTradingDisabled(err):
		if c.breaker.Disable(err.Error()) {
			log.Errorw("trading_paused", "error", err, "pause", c.breaker.PauseDuration())
			c.publish("trading_paused", c.breaker.Status())
		}
	case venue.IsMaxPositionExceeded(err):
		blocked[spec.Side] = true
		log.Warnw("max_position_exceeded", "side", spec.Side, "error", err)
	default:
		log.Warnw("order_rejected", "side", spec.Side, "type", spec.Type, "error", err)
	}

	rec := storage.ErrorRecord{
		Wallet:  pass.sess.API.Wallet(),
		Market:  spec.Market,
		Op:      "create_order",
		Code:    venue.ErrorCode(err),
		Message: err.Error(),
		At:      c.clock.Now(),
	}
	if jerr := c.journal.RecordError(rec); jerr != nil {
		log.Warnw("journal_write_failed", "error", jerr)
	}
	c.publish("order_rejected", rec)
}

// cancelForBudget issues at most one cancel per account pass.
func (c *Controller) cancelForBudget(ctx context.Context, pass *accountPass, market string) {
	if pass.cancelled {
		return
	}
	pass.cancelled = true

	scope := ""
	if c.cfg.CancelScope == CancelMarket {
		scope = market
	}
	cancelled, err := pass.sess.API.CancelOrders(ctx, scope)
	c.cancels.Add(1)
	c.metrics.Cancels.WithLabelValues(string(c.cfg.CancelScope)).Inc()
	if err != nil {
		c.log.Warnw("cancel_failed", "account", pass.sess.Name, "market", market, "scope", c.cfg.CancelScope, "error", err)
		if jerr := c.journal.RecordError(storage.ErrorRecord{
			Wallet:  pass.sess.API.Wallet(),
			Market:  scope,
			Op:      "cancel_orders",
			Code:    venue.ErrorCode(err),
			Message: err.Error(),
			At:      c.clock.Now(),
		}); jerr != nil {
			c.log.Warnw("journal_write_failed", "error", jerr)
		}
		return
	}

	pass.openCount -= len(cancelled)
	if pass.openCount < 0 {
		pass.openCount = 0
	}
	c.metrics.OpenOrders.WithLabelValues(pass.sess.API.Wallet()).Set(float64(pass.openCount))
	c.log.Infow("orders_cancelled",
		"account", pass.sess.Name,
		"market", market,
		"scope", c.cfg.CancelScope,
		"cancelled", len(cancelled),
		"open_orders", pass.openCount)
}

// CancelAll cancels every open order of every account across all markets.
func (c *Controller) CancelAll(ctx context.Context) {
	for _, sess := range c.sessions {
		cancelled, err := sess.API.CancelOrders(ctx, "")
		if err != nil {
			c.log.Warnw("initial_cancel_failed", "account", sess.Name, "error", err)
			continue
		}
		c.log.Infow("initial_cancel", "account", sess.Name, "cancelled", len(cancelled))
	}
}

// waitTrading blocks while the breaker is open.
func (c *Controller) waitTrading(ctx context.Context) error {
	if c.breaker.Enabled() {
		return ctx.Err()
	}
	c.log.Infow("trading_wait", "status", c.breaker.Status())
	paused, err := c.breaker.WaitIfDisabled(ctx)
	if err != nil {
		return err
	}
	if paused {
		c.log.Infow("trading_resumed")
		c.publish("trading_resumed", c.breaker.Status())
	}
	return nil
}

func (c *Controller) flipSide() {
	c.side = c.side.Opposite()
	c.mu.Lock()
	c.currentSide = c.side
	c.mu.Unlock()
}

func (c *Controller) publish(kind string, data any) {
	if c.events != nil {
		c.events.Publish(kind, data)
	}
}

// loadMarkets fetches the venue's markets and keeps the configured ones in
// configuration order.
func (c *Controller) loadMarkets(ctx context.Context) ([]MarketConfig, error) {
	all, err := c.retryValueMarkets(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]venue.Market, len(all))
	for _, m := range all {
		byID[strings.ToUpper(m.ID())] = m
	}

	out := make([]MarketConfig, 0, len(c.cfg.Markets))
	ids := make([]string, 0, len(c.cfg.Markets))
	for _, want := range c.cfg.Markets {
		m, ok := byID[strings.ToUpper(want)]
		if !ok {
			c.log.Warnw("market_not_listed", "market", want)
			continue
		}
		out = append(out, c.cfg.MarketConfigFor(m))
		ids = append(ids, m.ID())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("controller: none of %v listed by venue", c.cfg.Markets)
	}

	c.mu.Lock()
	c.markets = ids
	c.mu.Unlock()
	return out, nil
}
