package feed

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Prices is one market's latest streamed quote. Values are replaced whole,
// never mutated.
type Prices struct {
	IndexPrice decimal.Decimal
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	BestPrice  decimal.Decimal
	UpdatedAt  time.Time
}

// BlendWeights weight best bid, best ask and index into a best price.
type BlendWeights struct {
	Bid   float64
	Ask   float64
	Index float64
}

func DefaultBlendWeights() BlendWeights {
	return BlendWeights{Bid: 0.25, Ask: 0.25, Index: 0.5}
}

// BlendBestPrice is the weighted mean of whichever of bid, ask and index
// are positive. Absent inputs drop out of the weights as well as the sum.
func BlendBestPrice(bid, ask, index decimal.Decimal, w BlendWeights) decimal.Decimal {
	totalWeight, totalValue := decimal.Zero, decimal.Zero
	add := func(v decimal.Decimal, weight float64) {
		if !v.IsPositive() {
			return
		}
		wd := decimal.NewFromFloat(weight)
		totalWeight = totalWeight.Add(wd)
		totalValue = totalValue.Add(v.Mul(wd))
	}
	add(bid, w.Bid)
	add(ask, w.Ask)
	add(index, w.Index)
	if !totalWeight.IsPositive() {
		if index.IsPositive() {
			return index
		}
		return decimal.Zero
	}
	return totalValue.DivRound(totalWeight, 8)
}

// PriceBook holds the latest Prices per market. The feed is the only
// writer; readers get a consistent snapshot without locking.
type PriceBook struct {
	mu      sync.RWMutex
	markets map[string]*atomic.Pointer[Prices]
}

func NewPriceBook() *PriceBook {
	return &PriceBook{markets: make(map[string]*atomic.Pointer[Prices])}
}

func (b *PriceBook) slot(market string, create bool) *atomic.Pointer[Prices] {
	b.mu.RLock()
	p, ok := b.markets[market]
	b.mu.RUnlock()
	if ok || !create {
		return p
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok = b.markets[market]; !ok {
		p = new(atomic.Pointer[Prices])
		b.markets[market] = p
	}
	return p
}

func (b *PriceBook) Store(market string, p Prices) {
	b.slot(market, true).Store(&p)
}

func (b *PriceBook) Load(market string) (Prices, bool) {
	slot := b.slot(market, false)
	if slot == nil {
		return Prices{}, false
	}
	p := slot.Load()
	if p == nil {
		return Prices{}, false
	}
	return *p, true
}

// Fresh returns the market's prices only if they were updated within
// maxAge of now. A non-positive maxAge disables the age check.
func (b *PriceBook) Fresh(market string, now time.Time, maxAge time.Duration) (Prices, bool) {
	p, ok := b.Load(market)
	if !ok {
		return Prices{}, false
	}
	if maxAge > 0 && now.Sub(p.UpdatedAt) > maxAge {
		return p, false
	}
	return p, true
}
