package orders

import (
	"github.com/shopspring/decimal"

	"github.com/nardis556/ikon-loadGenerator/pkg/numfmt"
	"github.com/nardis556/ikon-loadGenerator/pkg/venue"
)

var (
	baseQuantityFloor = decimal.RequireFromString("1.5")
	baseQuantityStep  = decimal.RequireFromString("0.1")
)

// BaseQuantityFor returns a resting-order size for a market:
// makerMin * (1.5 + 0.1*k) with k uniform in [0, 12).
func (g *Generator) BaseQuantityFor(makerMin decimal.Decimal) decimal.Decimal {
	return BaseQuantity(makerMin, g.rnd)
}

func BaseQuantity(makerMin decimal.Decimal, rnd numfmt.Source) decimal.Decimal {
	k := decimal.NewFromInt(int64(rnd.Intn(12)))
	return makerMin.Mul(baseQuantityFloor.Add(baseQuantityStep.Mul(k)))
}

// FloorToMinimum raises a quantity below the maker minimum to the minimum
// and caps one above the maximum position size. A zero maxPosition means
// no cap. It reports whether the quantity changed.
func FloorToMinimum(spec venue.OrderSpec, makerMin, maxPosition decimal.Decimal) (venue.OrderSpec, bool, error) {
	qty, err := decimal.NewFromString(spec.Quantity)
	if err != nil {
		return spec, false, err
	}
	switch {
	case maxPosition.IsPositive() && qty.GreaterThan(maxPosition):
		spec.Quantity = maxPosition.StringFixed(numfmt.CanonicalDecimals)
		return spec, true, nil
	case qty.LessThan(makerMin):
		spec.Quantity = makerMin.StringFixed(numfmt.CanonicalDecimals)
		return spec, true, nil
	}
	return spec, false, nil
}
