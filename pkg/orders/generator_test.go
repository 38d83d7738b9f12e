package orders

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nardis556/ikon-loadGenerator/pkg/numfmt"
	"github.com/nardis556/ikon-loadGenerator/pkg/venue"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func aaaTemplate(side venue.Side, iterations int) Template {
	return Template{
		Market:             "AAA-USD",
		Side:               side,
		ReferencePrice:     d("100"),
		BaseQuantity:       d("1.234567"),
		TakerMinimum:       d("0.01"),
		PriceIncrement:     d("0.5"),
		PriceResolution:    "0.01000000",
		QuantityResolution: "0.00100000",
		Iterations:         iterations,
	}
}

func newTestGenerator(t *testing.T, cfg Config, seed int64) *Generator {
	t.Helper()
	g, err := NewGenerator(cfg, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return g
}

func TestGenerateLadderScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Limit: 1}
	g := newTestGenerator(t, cfg, 1)

	specs, err := g.Generate(aaaTemplate(venue.SideBuy, 3))
	require.NoError(t, err)
	require.Len(t, specs, 3)

	wantPrices := []string{"100.00000000", "99.50000000", "99.00000000"}
	for i, s := range specs {
		assert.Equal(t, venue.OrderTypeLimit, s.Type)
		assert.Equal(t, venue.SideBuy, s.Side)
		assert.Equal(t, "AAA-USD", s.Market)
		assert.Equal(t, wantPrices[i], s.Price)

		// three significant decimals survive flooring
		floored, err := numfmt.FormatDecimal(d(s.Quantity), "0.00100000")
		require.NoError(t, err)
		assert.Equal(t, "1.23400000", floored)
	}
}

func TestGenerateSellLaddersUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Limit: 1}
	g := newTestGenerator(t, cfg, 2)

	specs, err := g.Generate(aaaTemplate(venue.SideSell, 3))
	require.NoError(t, err)
	assert.Equal(t, "100.00000000", specs[0].Price)
	assert.Equal(t, "100.50000000", specs[1].Price)
	assert.Equal(t, "101.00000000", specs[2].Price)
}

func TestGenerateLengthAndBand(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig(), 3)

	for _, side := range []venue.Side{venue.SideBuy, venue.SideSell} {
		tpl := aaaTemplate(side, 250)
		specs, err := g.Generate(tpl)
		require.NoError(t, err)
		require.Len(t, specs, 250)

		lower, upper := g.Band(tpl.ReferencePrice)
		for i := 0; i < tpl.Iterations; i++ {
			rung := g.Rung(tpl, i)
			require.True(t, rung.GreaterThanOrEqual(lower), "rung %d = %s below %s", i, rung, lower)
			require.True(t, rung.LessThanOrEqual(upper), "rung %d = %s above %s", i, rung, upper)
		}
		for _, s := range specs {
			if s.Price == "" {
				continue
			}
			p := d(s.Price)
			require.True(t, p.GreaterThanOrEqual(lower) && p.LessThanOrEqual(upper), "price %s outside band", s.Price)
		}
	}
}

func TestGenerateTypeDistribution(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig(), 42)

	const n = 5000
	specs, err := g.Generate(aaaTemplate(venue.SideBuy, n))
	require.NoError(t, err)
	require.Len(t, specs, n)

	counts := map[string]int{}
	for _, s := range specs {
		switch s.Type {
		case venue.OrderTypeLimit:
			counts["limit"]++
		case venue.OrderTypeMarket:
			counts["market"]++
		case venue.OrderTypeStopLossMarket, venue.OrderTypeTakeProfitMarket:
			counts["stopMarket"]++
		case venue.OrderTypeStopLossLimit, venue.OrderTypeTakeProfitLimit:
			counts["stopLimit"]++
		}
	}

	limitShare := float64(counts["limit"]) / n
	assert.InDelta(t, 0.90, limitShare, 0.03)
	for _, k := range []string{"market", "stopMarket", "stopLimit"} {
		assert.InDelta(t, 0.03, float64(counts[k])/n, 0.015, k)
	}
}

func TestGeneratePerTypeShape(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		policy  MarketSidePolicy
		check   func(t *testing.T, s venue.OrderSpec)
	}{
		{
			name:    "market takes the opposite side",
			weights: Weights{Market: 1},
			policy:  MarketSideOpposite,
			check: func(t *testing.T, s venue.OrderSpec) {
				assert.Equal(t, venue.OrderTypeMarket, s.Type)
				assert.Equal(t, venue.SideSell, s.Side)
				assert.Empty(t, s.Price)
				assert.Empty(t, s.TriggerPrice)
			},
		},
		{
			name:    "market same side policy",
			weights: Weights{Market: 1},
			policy:  MarketSideSame,
			check: func(t *testing.T, s venue.OrderSpec) {
				assert.Equal(t, venue.SideBuy, s.Side)
			},
		},
		{
			name:    "stop market",
			weights: Weights{StopMarket: 1},
			policy:  MarketSideOpposite,
			check: func(t *testing.T, s venue.OrderSpec) {
				assert.Contains(t, []venue.OrderType{venue.OrderTypeStopLossMarket, venue.OrderTypeTakeProfitMarket}, s.Type)
				assert.Equal(t, venue.SideSell, s.Side)
				assert.Empty(t, s.Price)
				assert.NotEmpty(t, s.TriggerPrice)
				assert.Contains(t, []venue.TriggerType{venue.TriggerTypeLast, venue.TriggerTypeIndex}, s.TriggerType)
			},
		},
		{
			name:    "stop limit keeps the batch side",
			weights: Weights{StopLimit: 1},
			policy:  MarketSideOpposite,
			check: func(t *testing.T, s venue.OrderSpec) {
				assert.Contains(t, []venue.OrderType{venue.OrderTypeStopLossLimit, venue.OrderTypeTakeProfitLimit}, s.Type)
				assert.Equal(t, venue.SideBuy, s.Side)
				assert.NotEmpty(t, s.Price)
				assert.NotEmpty(t, s.TriggerPrice)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Weights = tt.weights
			cfg.MarketSide = tt.policy
			g := newTestGenerator(t, cfg, 9)

			specs, err := g.Generate(aaaTemplate(venue.SideBuy, 20))
			require.NoError(t, err)
			for _, s := range specs {
				tt.check(t, s)
			}
		})
	}
}

func TestTakerQuantityAndTrigger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{StopMarket: 1}
	cfg.QuantityAlpha = 2
	cfg.QuantityBeta = 3
	g := newTestGenerator(t, cfg, 5)

	allowedQty := map[string]bool{"0.02": true, "0.04": true, "0.06": true}
	specs, err := g.Generate(aaaTemplate(venue.SideBuy, 200))
	require.NoError(t, err)

	for _, s := range specs {
		q, err := numfmt.FormatDecimal(d(s.Quantity), "0.00100000")
		require.NoError(t, err)
		assert.True(t, allowedQty[d(q).String()], "taker quantity %s", s.Quantity)

		// rung is 100 minus up to 99.5 steps, clamped at 60; trigger sits 1% away
		tp := d(s.TriggerPrice)
		assert.True(t, tp.GreaterThanOrEqual(d("59.4")) && tp.LessThanOrEqual(d("101")), "trigger %s", s.TriggerPrice)
	}
}

func TestGenerateRejectsUnsupportedResolution(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig(), 1)
	tpl := aaaTemplate(venue.SideBuy, 3)
	tpl.PriceResolution = "0.05000000"

	specs, err := g.Generate(tpl)
	assert.Nil(t, specs)
	var unsupported *numfmt.UnsupportedResolutionError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "0.05000000", unsupported.Resolution)
}

func TestGenerateRejectsBadReference(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig(), 1)
	tpl := aaaTemplate(venue.SideBuy, 3)
	tpl.ReferencePrice = decimal.Zero

	_, err := g.Generate(tpl)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestGenerateRejectsBadIterations(t *testing.T) {
	g := newTestGenerator(t, DefaultConfig(), 1)
	for _, n := range []int{0, -1} {
		specs, err := g.Generate(aaaTemplate(venue.SideBuy, n))
		assert.Error(t, err, "iterations %d", n)
		assert.Empty(t, specs)
	}
}

func TestMarketSidePolicy(t *testing.T) {
	assert.Equal(t, MarketSideOpposite, newTestGenerator(t, DefaultConfig(), 1).MarketSide())
	cfg := DefaultConfig()
	cfg.MarketSide = MarketSideSame
	assert.Equal(t, MarketSideSame, newTestGenerator(t, cfg, 1).MarketSide())
}

func TestGenerateIsReproducible(t *testing.T) {
	a := newTestGenerator(t, DefaultConfig(), 77)
	b := newTestGenerator(t, DefaultConfig(), 77)

	sa, err := a.Generate(aaaTemplate(venue.SideSell, 50))
	require.NoError(t, err)
	sb, err := b.Generate(aaaTemplate(venue.SideSell, 50))
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Weights = Weights{}
	bad.LimitValidation = 1
	bad.MarketSide = "sideways"
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoWeights)
	assert.Contains(t, err.Error(), "sideways")

	_, err = NewGenerator(bad, numfmt.NewSource(1))
	assert.Error(t, err)
}
