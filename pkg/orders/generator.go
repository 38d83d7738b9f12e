// Package orders builds batches of order specs around a reference price.
package orders

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nardis556/ikon-loadGenerator/pkg/numfmt"
	"github.com/nardis556/ikon-loadGenerator/pkg/venue"
)

var (
	ErrNoWeights        = errors.New("orders: order type weights sum to zero")
	ErrInvalidReference = errors.New("orders: reference price must be positive")
)

// Weights are the relative odds of each order family.
type Weights struct {
	Limit      int
	Market     int
	StopMarket int
	StopLimit  int
}

func DefaultWeights() Weights {
	return Weights{Limit: 90, Market: 3, StopMarket: 3, StopLimit: 3}
}

func (w Weights) Total() int {
	return w.Limit + w.Market + w.StopMarket + w.StopLimit
}

// family is the order family a weighted draw lands in.
type family int

const (
	familyLimit family = iota
	familyMarket
	familyStopMarket
	familyStopLimit
)

// pick maps a draw in [0, Total) onto the cumulative weight buckets.
func (w Weights) pick(draw int) family {
	switch {
	case draw < w.Limit:
		return familyLimit
	case draw < w.Limit+w.Market:
		return familyMarket
	case draw < w.Limit+w.Market+w.StopMarket:
		return familyStopMarket
	default:
		return familyStopLimit
	}
}

// MarketSidePolicy decides which side taker orders take relative to the
// batch side.
type MarketSidePolicy string

const (
	// MarketSideOpposite sends market and stop-market orders against the
	// batch side, flattening what the resting orders build.
	MarketSideOpposite MarketSidePolicy = "opposite"
	MarketSideSame     MarketSidePolicy = "same"
)

type Config struct {
	Weights Weights
	// TriggerPriceFactor is the fractional distance of a trigger price
	// from its rung.
	TriggerPriceFactor float64
	// LimitValidation (V) bounds rungs to [ref*(1-V), ref/(1-V)].
	LimitValidation float64
	QuantityAlpha   float64
	QuantityBeta    int
	MarketSide      MarketSidePolicy
}

func DefaultConfig() Config {
	return Config{
		Weights:            DefaultWeights(),
		TriggerPriceFactor: 0.01,
		LimitValidation:    0.4,
		QuantityAlpha:      1,
		QuantityBeta:       3,
		MarketSide:         MarketSideOpposite,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Weights.Limit < 0 || c.Weights.Market < 0 || c.Weights.StopMarket < 0 || c.Weights.StopLimit < 0 {
		errs = append(errs, errors.New("orders: weights must not be negative"))
	} else if c.Weights.Total() == 0 {
		errs = append(errs, ErrNoWeights)
	}
	if c.LimitValidation < 0 || c.LimitValidation >= 1 {
		errs = append(errs, fmt.Errorf("orders: limit validation %v outside [0, 1)", c.LimitValidation))
	}
	if c.TriggerPriceFactor < 0 || c.TriggerPriceFactor >= 1 {
		errs = append(errs, fmt.Errorf("orders: trigger price factor %v outside [0, 1)", c.TriggerPriceFactor))
	}
	if c.QuantityAlpha <= 0 {
		errs = append(errs, fmt.Errorf("orders: quantity alpha %v must be positive", c.QuantityAlpha))
	}
	switch c.MarketSide {
	case MarketSideOpposite, MarketSideSame:
	default:
		errs = append(errs, fmt.Errorf("orders: unknown market side policy %q", c.MarketSide))
	}
	return errors.Join(errs...)
}

// Template is one market's input to Generate.
type Template struct {
	Market             string
	Side               venue.Side
	ReferencePrice     decimal.Decimal
	BaseQuantity       decimal.Decimal
	TakerMinimum       decimal.Decimal
	PriceIncrement     decimal.Decimal
	PriceResolution    string
	QuantityResolution string
	Iterations         int
}

// Generator draws order batches. It is not safe for concurrent use; the
// trading loop owns one.
type Generator struct {
	cfg    Config
	rnd    numfmt.Source
	duster *numfmt.Duster
}

func NewGenerator(cfg Config, rnd numfmt.Source) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, rnd: rnd, duster: numfmt.NewDuster(rnd)}, nil
}

// Generate returns t.Iterations order specs laddered away from the
// reference price. Resolutions are checked before anything is built, so an
// unsupported tick or step fails the whole batch with
// *numfmt.UnsupportedResolutionError. Failures of single entries are
// joined into the returned error alongside the entries that did build.
func (g *Generator) Generate(t Template) ([]venue.OrderSpec, error) {
	if _, err := numfmt.ParseResolution(t.PriceResolution); err != nil {
		return nil, fmt.Errorf("orders: %s price resolution: %w", t.Market, err)
	}
	if _, err := numfmt.ParseResolution(t.QuantityResolution); err != nil {
		return nil, fmt.Errorf("orders: %s quantity resolution: %w", t.Market, err)
	}
	if !t.ReferencePrice.IsPositive() {
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidReference, t.Market, t.ReferencePrice)
	}
	if !t.Side.Valid() {
		return nil, fmt.Errorf("orders: %s: invalid side %q", t.Market, t.Side)
	}
	if t.Iterations < 1 {
		return nil, fmt.Errorf("orders: %s: iterations must be at least 1, got %d", t.Market, t.Iterations)
	}

	total := g.cfg.Weights.Total()
	specs := make([]venue.OrderSpec, 0, t.Iterations)
	var errs []error
	for i := 0; i < t.Iterations; i++ {
		rung := g.Rung(t, i)
		spec, err := g.build(g.cfg.Weights.pick(g.rnd.Intn(total)), t, rung)
		if err != nil {
			errs = append(errs, fmt.Errorf("orders: %s entry %d: %w", t.Market, i, err))
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errors.Join(errs...)
}

// Rung returns the i-th laddered price, clamped to the validation band.
// Buys step down from the reference, sells step up.
func (g *Generator) Rung(t Template, i int) decimal.Decimal {
	ref := t.ReferencePrice
	step := t.PriceIncrement.Mul(decimal.NewFromInt(int64(i)))
	lower, upper := g.Band(ref)
	if t.Side == venue.SideSell {
		return decimal.Min(upper, decimal.Max(ref.Add(step), ref))
	}
	return decimal.Max(lower, decimal.Min(ref.Sub(step), ref))
}

// Band returns [ref*(1-V), ref/(1-V)].
func (g *Generator) Band(ref decimal.Decimal) (lower, upper decimal.Decimal) {
	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(g.cfg.LimitValidation))
	return ref.Mul(keep), ref.DivRound(keep, 16)
}

func (g *Generator) build(f family, t Template, rung decimal.Decimal) (venue.OrderSpec, error) {
	spec := venue.OrderSpec{Market: t.Market, Side: t.Side}
	var err error

	switch f {
	case familyLimit:
		spec.Type = venue.OrderTypeLimit
		if spec.Price, err = g.duster.DustDecimal(rung, t.PriceResolution); err != nil {
			return spec, err
		}
		spec.Quantity, err = g.duster.DustDecimal(t.BaseQuantity, t.QuantityResolution)

	case familyMarket:
		spec.Type = venue.OrderTypeMarket
		spec.Side = g.takerSide(t.Side)
		spec.Quantity, err = g.duster.DustDecimal(g.takerQuantity(t.TakerMinimum), t.QuantityResolution)

	case familyStopMarket:
		spec.Type = g.choose(venue.OrderTypeStopLossMarket, venue.OrderTypeTakeProfitMarket)
		spec.Side = g.takerSide(t.Side)
		spec.TriggerType = g.triggerType()
		if spec.TriggerPrice, err = g.duster.DustDecimal(g.triggerPrice(rung), t.PriceResolution); err != nil {
			return spec, err
		}
		spec.Quantity, err = g.duster.DustDecimal(g.takerQuantity(t.TakerMinimum), t.QuantityResolution)

	case familyStopLimit:
		spec.Type = g.choose(venue.OrderTypeStopLossLimit, venue.OrderTypeTakeProfitLimit)
		spec.TriggerType = g.triggerType()
		if spec.Price, err = g.duster.DustDecimal(rung, t.PriceResolution); err != nil {
			return spec, err
		}
		if spec.TriggerPrice, err = g.duster.DustDecimal(g.triggerPrice(rung), t.PriceResolution); err != nil {
			return spec, err
		}
		spec.Quantity, err = g.duster.DustDecimal(t.BaseQuantity, t.QuantityResolution)
	}
	return spec, err
}

// MarketSide is the configured taker side policy.
func (g *Generator) MarketSide() MarketSidePolicy { return g.cfg.MarketSide }

func (g *Generator) takerSide(side venue.Side) venue.Side {
	if g.cfg.MarketSide == MarketSideSame {
		return side
	}
	return side.Opposite()
}

// takerQuantity is takerMin * alpha * (1 + floor(rand*beta)).
func (g *Generator) takerQuantity(takerMin decimal.Decimal) decimal.Decimal {
	mult := 1
	if g.cfg.QuantityBeta > 0 {
		mult += g.rnd.Intn(g.cfg.QuantityBeta)
	}
	return takerMin.
		Mul(decimal.NewFromFloat(g.cfg.QuantityAlpha)).
		Mul(decimal.NewFromInt(int64(mult)))
}

// triggerPrice moves the rung up or down by the trigger factor.
func (g *Generator) triggerPrice(rung decimal.Decimal) decimal.Decimal {
	offset := rung.Mul(decimal.NewFromFloat(g.cfg.TriggerPriceFactor))
	if g.rnd.Intn(2) == 0 {
		return rung.Add(offset)
	}
	return rung.Sub(offset)
}

func (g *Generator) triggerType() venue.TriggerType {
	if g.rnd.Intn(2) == 0 {
		return venue.TriggerTypeLast
	}
	return venue.TriggerTypeIndex
}

func (g *Generator) choose(a, b venue.OrderType) venue.OrderType {
	if g.rnd.Intn(2) == 0 {
		return a
	}
	return b
}
