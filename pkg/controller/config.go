package controller

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nardis556/ikon-loadGenerator/pkg/evaluator"
	"github.com/nardis556/ikon-loadGenerator/pkg/venue"
)

// PriceSource selects where the ladder's reference price comes from.
type PriceSource string

const (
	// PricePoll uses the index price of the REST order book snapshot.
	PricePoll PriceSource = "poll"
	// PriceStream uses the blended best price from the WebSocket feed and
	// falls back to PricePoll when the feed is stale.
	PriceStream PriceSource = "stream"
)

// CancelScope selects what a budget-driven cancel removes.
type CancelScope string

const (
	CancelAll    CancelScope = "all"
	CancelMarket CancelScope = "market"
)

// Strategy bundles the policies that distinguish one trading variant
// from another. The loop itself is shared.
type Strategy struct {
	Evaluator   evaluator.Config
	PriceSource PriceSource
	// StaleAfter bounds the age of a streamed price.
	StaleAfter time.Duration
	// Ladder false collapses every batch to a single order.
	Ladder bool
}

func DefaultStrategy() Strategy {
	return Strategy{
		Evaluator:   evaluator.DefaultConfig(),
		PriceSource: PricePoll,
		StaleAfter:  10 * time.Second,
		Ladder:      true,
	}
}

// Cooldowns are optional sleeps after each order, market and account.
// Each is applied only when its toggle is on.
type Cooldowns struct {
	Order          time.Duration
	Market         time.Duration
	Account        time.Duration
	OrderEnabled   bool
	MarketEnabled  bool
	AccountEnabled bool
}

// MarketOverride replaces the global ladder settings for one market.
// Zero fields inherit.
type MarketOverride struct {
	PriceIncrement decimal.Decimal
	Iterations     int
}

// MarketConfig is a venue market plus the ladder settings in force for it.
type MarketConfig struct {
	Market         venue.Market
	PriceIncrement decimal.Decimal
	Iterations     int
}

type Config struct {
	// Markets are the market IDs to trade, e.g. "ETH-USD".
	Markets        []string
	PriceIncrement decimal.Decimal
	Iterations     int
	Overrides      map[string]MarketOverride

	// OpenOrders is the per-account ceiling on outstanding orders.
	OpenOrders  int
	CancelScope CancelScope
	InitialSide venue.Side
	Cooldowns   Cooldowns
	Strategy    Strategy

	RetryAttempts  int
	RetryDelay     time.Duration
	FetchBackoff   time.Duration
	MarketsBackoff time.Duration
	// FetchLimit caps order book depth and open orders per request.
	FetchLimit int

	InitializeCancels bool
}

func DefaultConfig() Config {
	return Config{
		Iterations:     1,
		OpenOrders:     200,
		CancelScope:    CancelAll,
		InitialSide:    venue.SideBuy,
		Strategy:       DefaultStrategy(),
		RetryAttempts:  5,
		RetryDelay:     time.Second,
		FetchBackoff:   2 * time.Second,
		MarketsBackoff: 5 * time.Second,
		FetchLimit:     1000,
	}
}

func (c Config) Validate() error {
	var errs []error
	if len(c.Markets) == 0 {
		errs = append(errs, errors.New("controller: no markets configured"))
	}
	if c.Iterations < 1 {
		errs = append(errs, fmt.Errorf("controller: iterations %d must be at least 1", c.Iterations))
	}
	if c.PriceIncrement.IsNegative() {
		errs = append(errs, fmt.Errorf("controller: negative price increment %s", c.PriceIncrement))
	}
	if c.OpenOrders < 1 {
		errs = append(errs, fmt.Errorf("controller: open order ceiling %d must be at least 1", c.OpenOrders))
	}
	switch c.CancelScope {
	case CancelAll, CancelMarket:
	default:
		errs = append(errs, fmt.Errorf("controller: unknown cancel scope %q", c.CancelScope))
	}
	if !c.InitialSide.Valid() {
		errs = append(errs, fmt.Errorf("controller: invalid side %q", c.InitialSide))
	}
	switch c.Strategy.PriceSource {
	case PricePoll, PriceStream:
	default:
		errs = append(errs, fmt.Errorf("controller: unknown price source %q", c.Strategy.PriceSource))
	}
	return errors.Join(errs...)
}

// MarketConfigFor applies the global settings and any override for m.
// Without laddering the batch is a single order.
func (c Config) MarketConfigFor(m venue.Market) MarketConfig {
	mc := MarketConfig{
		Market:         m,
		PriceIncrement: c.PriceIncrement,
		Iterations:     c.Iterations,
	}
	if o, ok := c.Overrides[strings.ToUpper(m.ID())]; ok {
		if !o.PriceIncrement.IsZero() {
			mc.PriceIncrement = o.PriceIncrement
		}
		if o.Iterations > 0 {
			mc.Iterations = o.Iterations
		}
	}
	if !c.Strategy.Ladder {
		mc.Iterations = 1
	}
	return mc
}
