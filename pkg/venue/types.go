// Package venue holds the exchange's data model and the authenticated REST
// client used by the trading loop.
package venue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// ParseSide accepts "buy" or "sell" in any case.
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToLower(strings.TrimSpace(s)))
	if !side.Valid() {
		return "", fmt.Errorf("invalid side %q", s)
	}
	return side, nil
}

type OrderType string

const (
	OrderTypeLimit            OrderType = "limit"
	OrderTypeMarket           OrderType = "market"
	OrderTypeStopLossMarket   OrderType = "stopLossMarket"
	OrderTypeTakeProfitMarket OrderType = "takeProfitMarket"
	OrderTypeStopLossLimit    OrderType = "stopLossLimit"
	OrderTypeTakeProfitLimit  OrderType = "takeProfitLimit"
)

// IsTaker reports whether the type executes against the book on entry
// or trigger instead of resting.
func (t OrderType) IsTaker() bool {
	switch t {
	case OrderTypeMarket, OrderTypeStopLossMarket, OrderTypeTakeProfitMarket:
		return true
	}
	return false
}

// HasTrigger reports whether the type carries a trigger price.
func (t OrderType) HasTrigger() bool {
	switch t {
	case OrderTypeStopLossMarket, OrderTypeTakeProfitMarket,
		OrderTypeStopLossLimit, OrderTypeTakeProfitLimit:
		return true
	}
	return false
}

// TriggerType selects the price a conditional order watches.
type TriggerType string

const (
	TriggerTypeLast  TriggerType = "last"
	TriggerTypeIndex TriggerType = "index"
)

// Market is a venue market as returned by GET /v4/markets.
type Market struct {
	BaseAsset           string          `json:"baseAsset"`
	QuoteAsset          string          `json:"quoteAsset"`
	Status              string          `json:"status"`
	PriceResolution     string          `json:"tickSize"`
	QuantityResolution  string          `json:"stepSize"`
	MakerOrderMinimum   decimal.Decimal `json:"makerOrderMinimum"`
	TakerOrderMinimum   decimal.Decimal `json:"takerOrderMinimum"`
	MaximumPositionSize decimal.Decimal `json:"maximumPositionSize"`
	IndexPrice          decimal.Decimal `json:"indexPrice"`
}

// ID returns the market symbol, BASE-QUOTE.
func (m Market) ID() string {
	return m.BaseAsset + "-" + m.QuoteAsset
}

// Level is one aggregated price level. The venue encodes it as
// ["price", "quantity", numOrders].
type Level struct {
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	NumOrders int
}

func (l *Level) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode level: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("decode level: want at least 2 fields, got %d", len(raw))
	}
	if err := l.Price.UnmarshalJSON(raw[0]); err != nil {
		return fmt.Errorf("decode level price: %w", err)
	}
	if err := l.Quantity.UnmarshalJSON(raw[1]); err != nil {
		return fmt.Errorf("decode level quantity: %w", err)
	}
	if len(raw) > 2 {
		_ = json.Unmarshal(raw[2], &l.NumOrders)
	}
	return nil
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.Price.StringFixed(8), l.Quantity.StringFixed(8), l.NumOrders})
}

// Notional is price times quantity.
func (l Level) Notional() decimal.Decimal {
	return l.Price.Mul(l.Quantity)
}

// OrderBook is a level-2 snapshot. Bids descend, asks ascend.
type OrderBook struct {
	Sequence   int64           `json:"sequence"`
	Bids       []Level         `json:"bids"`
	Asks       []Level         `json:"asks"`
	IndexPrice decimal.Decimal `json:"indexPrice"`
}

// BestBid returns the top bid price or zero.
func (b OrderBook) BestBid() decimal.Decimal {
	if len(b.Bids) == 0 {
		return decimal.Zero
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price or zero.
func (b OrderBook) BestAsk() decimal.Decimal {
	if len(b.Asks) == 0 {
		return decimal.Zero
	}
	return b.Asks[0].Price
}

// Position is an open perpetual position. Quantity is signed: positive
// long, negative short.
type Position struct {
	Market   string          `json:"market"`
	Quantity decimal.Decimal `json:"quantity"`
}

type Order struct {
	OrderID  string    `json:"orderId"`
	Market   string    `json:"market"`
	Side     Side      `json:"side"`
	Type     OrderType `json:"type"`
	Quantity string    `json:"originalQuantity"`
	Price    string    `json:"price,omitempty"`
	Status   string    `json:"status"`
}

type CancelledOrder struct {
	OrderID string `json:"orderId"`
}

// OrderSpec is a fully formatted order ready for submission. Amounts are
// eight-decimal strings. It is built once and never mutated.
type OrderSpec struct {
	Market       string      `json:"market"`
	Side         Side        `json:"side"`
	Type         OrderType   `json:"type"`
	Quantity     string      `json:"quantity"`
	Price        string      `json:"price,omitempty"`
	TriggerPrice string      `json:"triggerPrice,omitempty"`
	TriggerType  TriggerType `json:"triggerType,omitempty"`
}

func (s OrderSpec) IsTaker() bool { return s.Type.IsTaker() }
