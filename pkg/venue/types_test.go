package venue

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSide(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())

	s, err := ParseSide(" SELL ")
	require.NoError(t, err)
	assert.Equal(t, SideSell, s)

	_, err = ParseSide("long")
	assert.Error(t, err)
}

func TestOrderTypeClassification(t *testing.T) {
	tests := []struct {
		typ     OrderType
		taker   bool
		trigger bool
	}{
		{OrderTypeLimit, false, false},
		{OrderTypeMarket, true, false},
		{OrderTypeStopLossMarket, true, true},
		{OrderTypeTakeProfitMarket, true, true},
		{OrderTypeStopLossLimit, false, true},
		{OrderTypeTakeProfitLimit, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.taker, tt.typ.IsTaker())
			assert.Equal(t, tt.trigger, tt.typ.HasTrigger())
			assert.Equal(t, tt.taker, OrderSpec{Type: tt.typ}.IsTaker())
		})
	}
}

func TestOrderBookDecode(t *testing.T) {
	raw := `{
		"sequence": 42,
		"bids": [["100.50000000","2.00000000",3],["100.00000000","1.50000000",1]],
		"asks": [["101.00000000","0.75000000",2]],
		"indexPrice": "100.75000000"
	}`
	var book OrderBook
	require.NoError(t, json.Unmarshal([]byte(raw), &book))

	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	assert.True(t, book.Bids[0].Price.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, book.Bids[1].Quantity.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 3, book.Bids[0].NumOrders)
	assert.True(t, book.IndexPrice.Equal(decimal.RequireFromString("100.75")))
	assert.True(t, book.BestBid().Equal(decimal.RequireFromString("100.5")))
	assert.True(t, book.BestAsk().Equal(decimal.RequireFromString("101")))
	assert.True(t, book.Bids[0].Notional().Equal(decimal.RequireFromString("201")))

	assert.True(t, OrderBook{}.BestBid().IsZero())
}

func TestLevelDecodeRejectsShortTuple(t *testing.T) {
	var l Level
	assert.Error(t, json.Unmarshal([]byte(`["1.0"]`), &l))
	assert.Error(t, json.Unmarshal([]byte(`{"price":"1"}`), &l))
}

func TestMarketDecode(t *testing.T) {
	raw := `{"market":"ETH-USD","baseAsset":"ETH","quoteAsset":"USD","status":"active",
		"tickSize":"0.01000000","stepSize":"0.00100000","makerOrderMinimum":"0.01000000",
		"takerOrderMinimum":"0.00500000","maximumPositionSize":"100.00000000","indexPrice":"2000.00000000"}`
	var m Market
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	assert.Equal(t, "ETH-USD", m.ID())
	assert.Equal(t, "0.01000000", m.PriceResolution)
	assert.Equal(t, "0.00100000", m.QuantityResolution)
	assert.True(t, m.TakerOrderMinimum.Equal(decimal.RequireFromString("0.005")))
}

func TestErrorClassification(t *testing.T) {
	disabled := &APIError{Status: 403, Code: CodeTradingDisabled, Message: "trading is disabled"}
	wrapped := fmt.Errorf("submit: %w", disabled)

	assert.True(t, IsTradingDisabled(wrapped))
	assert.False(t, IsMaxPositionExceeded(wrapped))
	assert.True(t, IsMaxPositionExceeded(&APIError{Code: CodeMaxPositionExceeded}))
	assert.Equal(t, "", ErrorCode(errors.New("eof")))

	assert.False(t, IsTemporary(disabled))
	assert.True(t, IsTemporary(&APIError{Status: 502}))
	assert.True(t, IsTemporary(&APIError{Status: 429}))
	assert.True(t, IsTemporary(errors.New("connection reset")))
	assert.False(t, IsTemporary(nil))

	assert.Contains(t, disabled.Error(), CodeTradingDisabled)
}
