package numfmt

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Source is the randomness used by dust and order generation.
// *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	Intn(n int) int
}

// NewSource returns a seeded PRNG. A zero seed uses the current time.
func NewSource(seed int64) Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Dust bands, keyed by the number of decimals the resolution keeps.
const (
	snapMaxDecimals    = 2 // coarse ticks: grid snap, no dust
	uniformMaxDecimals = 5 // mid precision: uniform sub-tick digits
)

// Duster perturbs the digits below the tick boundary. The economic value,
// i.e. the value floored to the resolution, is never changed.
type Duster struct {
	rnd Source
}

func NewDuster(rnd Source) *Duster {
	return &Duster{rnd: rnd}
}

// ApplyDust floors value to resolution and fills the sub-tick window
// (decimals after the tick, up to the eighth) with a random non-zero offset.
func (d *Duster) ApplyDust(value float64, resolution string) (string, error) {
	v, err := toDecimal(value)
	if err != nil {
		return "", err
	}
	return d.DustDecimal(v, resolution)
}

// DustDecimal is ApplyDust for values already held as decimals.
func (d *Duster) DustDecimal(v decimal.Decimal, resolution string) (string, error) {
	res, err := ParseResolution(resolution)
	if err != nil {
		return "", err
	}
	if v.IsNegative() {
		return "", ErrNegativeValue
	}
	base := res.Truncate(v)
	return base.Add(d.offset(res)).StringFixed(CanonicalDecimals), nil
}

// offset returns the dust in units of 1e-8. It is always strictly below
// one tick so flooring the result reproduces the undusted value.
func (d *Duster) offset(res Resolution) decimal.Decimal {
	dec := res.Decimals()
	window := CanonicalDecimals - dec
	switch {
	case dec <= snapMaxDecimals || window <= 0:
		return decimal.Zero
	case dec <= uniformMaxDecimals:
		limit := pow10(window)
		units := int64(d.rnd.Intn(int(limit-1))) + 1
		return decimal.New(units, -CanonicalDecimals)
	default:
		// log-scaled: a single non-zero digit at a random magnitude
		exp := d.rnd.Intn(window)
		digit := int64(d.rnd.Intn(9)) + 1
		return decimal.New(digit, int32(exp-CanonicalDecimals))
	}
}

func pow10(n int) int64 {
	out := int64(1)
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}
