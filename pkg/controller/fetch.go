package controller

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nardis556/ikon-loadGenerator/pkg/evaluator"
	"github.com/nardis556/ikon-loadGenerator/pkg/retry"
	"github.com/nardis556/ikon-loadGenerator/pkg/venue"
)

// snapshot is what one market iteration works from.
type snapshot struct {
	position venue.Position
	orders   []venue.Order
	book     venue.OrderBook
}

func (c *Controller) retryPolicy(op string) retry.Policy {
	return retry.Policy{
		Attempts:  c.cfg.RetryAttempts,
		Delay:     c.cfg.RetryDelay,
		Clock:     c.clock,
		Retryable: c.retryable,
		OnRetry: func(attempt int, err error) {
			c.log.Debugw("request_retry", "op", op, "attempt", attempt, "error", err)
		},
	}
}

// fetch loads position, open orders and the order book concurrently, each
// under its own retry policy. The first failure cancels the others.
func (c *Controller) fetch(ctx context.Context, api venue.TradingAPI, market string) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		positions, err := retry.DoValue(gctx, c.retryPolicy("positions"), func(ctx context.Context) ([]venue.Position, error) {
			return api.GetPositions(ctx, market)
		})
		if err != nil {
			return err
		}
		snap.position = venue.Position{Market: market}
		for _, p := range positions {
			if strings.EqualFold(p.Market, market) {
				snap.position = p
				break
			}
		}
		return nil
	})
	g.Go(func() error {
		orders, err := retry.DoValue(gctx, c.retryPolicy("orders"), func(ctx context.Context) ([]venue.Order, error) {
			return api.GetOrders(ctx, c.cfg.FetchLimit)
		})
		snap.orders = orders
		return err
	})
	g.Go(func() error {
		book, err := retry.DoValue(gctx, c.retryPolicy("orderbook"), func(ctx context.Context) (venue.OrderBook, error) {
			return api.GetOrderBookLevel2(ctx, market, c.cfg.FetchLimit)
		})
		snap.book = book
		return err
	})

	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (c *Controller) retryValueMarkets(ctx context.Context) ([]venue.Market, error) {
	return retry.DoValue(ctx, c.retryPolicy("markets"), c.meta.GetMarkets)
}

// referencePrice picks the ladder anchor for a market. The stream source
// uses the feed's blended best price while it is fresh; otherwise the
// REST index price the evaluator resolved is used.
func (c *Controller) referencePrice(market string, dec evaluator.Decision) (decimal.Decimal, PriceSource) {
	if c.cfg.Strategy.PriceSource == PriceStream {
		if p, ok := c.prices.Fresh(market, c.clock.Now(), c.cfg.Strategy.StaleAfter); ok && p.BestPrice.IsPositive() {
			return p.BestPrice, PriceStream
		}
		c.log.Debugw("stream_price_stale", "market", market, "max_age", c.cfg.Strategy.StaleAfter)
	}
	return dec.ReferencePrice, PricePoll
}
