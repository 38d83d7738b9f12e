package feed

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBlendBestPrice(t *testing.T) {
	w := DefaultBlendWeights()
	tests := []struct {
		name            string
		bid, ask, index string
		want            string
	}{
		{"all present", "99", "101", "100", "100"},
		{"skewed", "98", "104", "100", "100.5"},
		{"no quotes falls back to index", "0", "0", "100", "100"},
		{"bid only", "97", "0", "100", "99"},
		{"ask only", "0", "106", "100", "102"},
		{"missing index drops its weight", "100", "101", "0", "100.5"},
		{"nothing present", "0", "0", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BlendBestPrice(d(tt.bid), d(tt.ask), d(tt.index), w)
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestPriceBookFreshness(t *testing.T) {
	book := NewPriceBook()
	now := time.Unix(1000, 0)

	_, ok := book.Load("AAA-USD")
	assert.False(t, ok)

	book.Store("AAA-USD", Prices{IndexPrice: d("100"), BestPrice: d("100.5"), UpdatedAt: now})

	p, ok := book.Fresh("AAA-USD", now.Add(5*time.Second), 10*time.Second)
	require.True(t, ok)
	assert.True(t, p.BestPrice.Equal(d("100.5")))

	_, ok = book.Fresh("AAA-USD", now.Add(11*time.Second), 10*time.Second)
	assert.False(t, ok, "stale quote must not be served")

	_, ok = book.Fresh("AAA-USD", now.Add(time.Hour), 0)
	assert.True(t, ok, "zero max age disables the check")
}

func TestPriceBookConcurrentReaders(t *testing.T) {
	book := NewPriceBook()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			v := decimal.NewFromInt(int64(i))
			// index and best always move together
			book.Store("AAA-USD", Prices{IndexPrice: v, BestPrice: v})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if p, ok := book.Load("AAA-USD"); ok && !p.IndexPrice.Equal(p.BestPrice) {
					t.Errorf("torn read: index %s best %s", p.IndexPrice, p.BestPrice)
					return
				}
			}
		}()
	}
	wg.Wait()
}
