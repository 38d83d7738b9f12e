package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OrdersSubmitted.WithLabelValues("AAA-USD", "buy", "limit").Inc()
	m.OrderErrors.WithLabelValues("AAA-USD", "TRADING_DISABLED").Inc()

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	// two vector children plus the three unlabelled instruments
	assert.Equal(t, 5, n)

	assert.Panics(t, func() { New(reg) }, "duplicate registration")
}

func TestSetTradingEnabled(t *testing.T) {
	m := New(nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradingEnabled))

	m.SetTradingEnabled(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TradingEnabled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradingPauses))

	m.SetTradingEnabled(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradingEnabled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradingPauses))
}
