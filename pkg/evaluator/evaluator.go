// Package evaluator decides which side to quote and whether taker orders
// are allowed, from an order book snapshot and the account's position.
//
// Rules run in a fixed order and each may overwrite the side chosen by the
// rules before it:
//
//  1. weight: biased comparison of bid and ask notional near the index
//  2. mean reversion: weighted average bid above index sells, average ask
//     below index buys
//  3. liquidity guard: no taker orders into a side with too little notional.
//     Takers take the side opposite the batch unless TakersSameSide is set,
//     so the guarded book side follows that policy
//  4. thin book: quote away from a side with too few levels
//  5. position (optional): reduce a large position, grow a small one
//  6. deviation: fade a best bid or ask that strays too far from index
package evaluator

import (
	"github.com/shopspring/decimal"

	"github.com/nardis556/ikon-loadGenerator/pkg/venue"
)

// Rule names reported in Decision.Rules.
const (
	RuleWeight           = "weight"
	RuleMeanReversionBid = "mean_reversion_bid"
	RuleMeanReversionAsk = "mean_reversion_ask"
	RuleLiquidityGuard   = "liquidity_guard"
	RuleThinBids         = "thin_bids"
	RuleThinAsks         = "thin_asks"
	RulePositionReduce   = "position_reduce"
	RulePositionGrow     = "position_grow"
	RuleDeviationBid     = "deviation_bid"
	RuleDeviationAsk     = "deviation_ask"
	RuleNoReference      = "no_reference"
)

type Config struct {
	// WeightBand is the fraction around index used by the weight and
	// mean-reversion rules.
	WeightBand float64
	// LiquidityBand is the fraction around index used by the liquidity guard.
	LiquidityBand        float64
	MinLiquidityNotional float64
	MinBookDepth         int
	BidBias              float64
	AskBias              float64
	MaxDeviation         float64

	PositionCheck          bool
	PositionReduceFraction float64
	PositionGrowFraction   float64

	// TakersSameSide mirrors the generator's market side policy: set when
	// taker orders take the batch side rather than the opposite one.
	TakersSameSide bool
}

func DefaultConfig() Config {
	return Config{
		WeightBand:             0.02,
		LiquidityBand:          0.05,
		BidBias:                0.95,
		AskBias:                1.05,
		MaxDeviation:           0.05,
		PositionReduceFraction: 0.5,
		PositionGrowFraction:   0.1,
	}
}

// Decision is the evaluator's output plus the figures it was based on.
// RunMarket applies to the current cycle only.
type Decision struct {
	Side           venue.Side
	RunMarket      bool
	ReferencePrice decimal.Decimal
	BidWeight      decimal.Decimal
	AskWeight      decimal.Decimal
	AvgBid         decimal.Decimal
	AvgAsk         decimal.Decimal
	BidLiquidity   decimal.Decimal
	AskLiquidity   decimal.Decimal
	Rules          []string
}

func (d *Decision) set(side venue.Side, rule string) {
	d.Side = side
	d.Rules = append(d.Rules, rule)
}

var one = decimal.NewFromInt(1)

// Evaluate is deterministic and has no side effects.
func Evaluate(book venue.OrderBook, position venue.Position, market venue.Market, prior venue.Side, cfg Config) Decision {
	d := Decision{Side: prior, RunMarket: true}

	ref := book.IndexPrice
	if !ref.IsPositive() {
		ref = market.IndexPrice
	}
	if !ref.IsPositive() {
		d.RunMarket = false
		d.Rules = append(d.Rules, RuleNoReference)
		return d
	}
	d.ReferencePrice = ref

	// 1. weight
	wb := decimal.NewFromFloat(cfg.WeightBand)
	bidFloor := ref.Mul(one.Sub(wb))
	askCeil := ref.Mul(one.Add(wb))
	var bidQty, askQty decimal.Decimal
	d.BidWeight, bidQty = sumWithin(book.Bids, func(p decimal.Decimal) bool { return p.GreaterThanOrEqual(bidFloor) })
	d.AskWeight, askQty = sumWithin(book.Asks, func(p decimal.Decimal) bool { return p.LessThanOrEqual(askCeil) })

	biasedBid := d.BidWeight.Mul(decimal.NewFromFloat(cfg.BidBias))
	biasedAsk := d.AskWeight.Mul(decimal.NewFromFloat(cfg.AskBias))
	if !biasedBid.IsZero() || !biasedAsk.IsZero() {
		half := biasedBid.Add(biasedAsk).Div(decimal.NewFromInt(2))
		if biasedBid.GreaterThan(half) {
			d.set(venue.SideSell, RuleWeight)
		} else {
			d.set(venue.SideBuy, RuleWeight)
		}
	}

	// 2. mean reversion
	if bidQty.IsPositive() {
		d.AvgBid = d.BidWeight.Div(bidQty)
		if d.AvgBid.GreaterThan(ref) {
			d.set(venue.SideSell, RuleMeanReversionBid)
		}
	}
	if askQty.IsPositive() {
		d.AvgAsk = d.AskWeight.Div(askQty)
		if d.AvgAsk.LessThan(ref) {
			d.set(venue.SideBuy, RuleMeanReversionAsk)
		}
	}

	// 3. liquidity guard
	lb := decimal.NewFromFloat(cfg.LiquidityBand)
	liqFloor := ref.Mul(one.Sub(lb))
	liqCeil := ref.Mul(one.Add(lb))
	d.BidLiquidity, _ = sumWithin(book.Bids, func(p decimal.Decimal) bool { return p.GreaterThanOrEqual(liqFloor) })
	d.AskLiquidity, _ = sumWithin(book.Asks, func(p decimal.Decimal) bool { return p.LessThanOrEqual(liqCeil) })
	takerSide := d.Side.Opposite()
	if cfg.TakersSameSide {
		takerSide = d.Side
	}
	// buy takers consume asks, sell takers consume bids
	into := d.AskLiquidity
	if takerSide == venue.SideSell {
		into = d.BidLiquidity
	}
	if into.IsZero() || into.LessThan(decimal.NewFromFloat(cfg.MinLiquidityNotional)) {
		d.RunMarket = false
		d.Rules = append(d.Rules, RuleLiquidityGuard)
	}

	// 4. thin book
	nb, na := len(book.Bids), len(book.Asks)
	bidsThin := nb < cfg.MinBookDepth
	asksThin := na < cfg.MinBookDepth
	switch {
	case bidsThin && (!asksThin || nb < na):
		d.set(venue.SideSell, RuleThinBids)
	case asksThin && (!bidsThin || na < nb):
		d.set(venue.SideBuy, RuleThinAsks)
	}

	// 5. position
	if cfg.PositionCheck && market.MaximumPositionSize.IsPositive() && !position.Quantity.IsZero() {
		q := position.Quantity
		abs := q.Abs()
		maxPos := market.MaximumPositionSize
		reduceSide, growSide := venue.SideSell, venue.SideBuy
		if q.IsNegative() {
			reduceSide, growSide = venue.SideBuy, venue.SideSell
		}
		switch {
		case abs.GreaterThan(maxPos.Mul(decimal.NewFromFloat(cfg.PositionReduceFraction))):
			d.set(reduceSide, RulePositionReduce)
			d.RunMarket = false
		case abs.LessThanOrEqual(maxPos.Mul(decimal.NewFromFloat(cfg.PositionGrowFraction))):
			d.set(growSide, RulePositionGrow)
		}
	}

	// 6. deviation
	md := decimal.NewFromFloat(cfg.MaxDeviation)
	if bb := book.BestBid(); bb.IsPositive() && bb.GreaterThan(ref.Mul(one.Add(md))) {
		d.set(venue.SideSell, RuleDeviationBid)
	}
	if ba := book.BestAsk(); ba.IsPositive() && ba.LessThan(ref.Mul(one.Sub(md))) {
		d.set(venue.SideBuy, RuleDeviationAsk)
	}

	return d
}

// sumWithin returns the notional and quantity of levels whose price
// passes in.
func sumWithin(levels []venue.Level, in func(decimal.Decimal) bool) (notional, qty decimal.Decimal) {
	for _, l := range levels {
		if !in(l.Price) {
			continue
		}
		notional = notional.Add(l.Notional())
		qty = qty.Add(l.Quantity)
	}
	return notional, qty
}
