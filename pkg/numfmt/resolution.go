// Package numfmt converts prices and quantities to the venue's resolution
// strings and adds sub-tick dust so repeated orders are not bit-identical.
//
// Every value leaving this package is rendered with exactly eight decimal
// places, the venue's canonical width for prices and quantities.
package numfmt

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// CanonicalDecimals is the fixed string width used by the venue.
const CanonicalDecimals = 8

var (
	ErrInvalidValue  = errors.New("value is not a finite number")
	ErrNegativeValue = errors.New("value is negative")
)

// UnsupportedResolutionError is returned for a tick/step string the venue
// does not publish. It signals a market configuration mismatch.
type UnsupportedResolutionError struct {
	Resolution string
}

func (e *UnsupportedResolutionError) Error() string {
	return fmt.Sprintf("unsupported resolution format %q", e.Resolution)
}

// Resolution is a parsed tick or step size.
type Resolution struct {
	raw      string
	decimals int32 // digits kept after the point; -1 means multiples of ten
}

var knownResolutions = map[string]int32{
	"0.00000001":  8,
	"0.00000010":  7,
	"0.00000100":  6,
	"0.00001000":  5,
	"0.00010000":  4,
	"0.00100000":  3,
	"0.01000000":  2,
	"0.10000000":  1,
	"1.00000000":  0,
	"10.00000000": -1,
}

func ParseResolution(s string) (Resolution, error) {
	d, ok := knownResolutions[s]
	if !ok {
		return Resolution{}, &UnsupportedResolutionError{Resolution: s}
	}
	return Resolution{raw: s, decimals: d}, nil
}

// MustParseResolution is for tests and static tables.
func MustParseResolution(s string) Resolution {
	r, err := ParseResolution(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Resolution) String() string { return r.raw }

// Decimals returns the number of significant decimals kept by the tick.
func (r Resolution) Decimals() int { return int(r.decimals) }

// Truncate floors v onto the resolution grid.
func (r Resolution) Truncate(v decimal.Decimal) decimal.Decimal {
	return v.Shift(r.decimals).Floor().Shift(-r.decimals)
}

// Step returns the tick size as a decimal.
func (r Resolution) Step() decimal.Decimal {
	return decimal.New(1, -r.decimals)
}

// FormatToResolution floors value to the tick described by resolution and
// renders it with eight decimals. It never rounds up.
func FormatToResolution(value float64, resolution string) (string, error) {
	res, err := ParseResolution(resolution)
	if err != nil {
		return "", err
	}
	d, err := toDecimal(value)
	if err != nil {
		return "", err
	}
	return res.Truncate(d).StringFixed(CanonicalDecimals), nil
}

// FormatDecimal is FormatToResolution for values already held as decimals.
func FormatDecimal(value decimal.Decimal, resolution string) (string, error) {
	res, err := ParseResolution(resolution)
	if err != nil {
		return "", err
	}
	return res.Truncate(value).StringFixed(CanonicalDecimals), nil
}

func toDecimal(value float64) (decimal.Decimal, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero, ErrInvalidValue
	}
	return decimal.NewFromFloat(value), nil
}
