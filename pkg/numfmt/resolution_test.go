package numfmt

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatToResolution(t *testing.T) {
	tests := []struct {
		name       string
		value      float64
		resolution string
		want       string
	}{
		{"two decimals floors", 100.129, "0.01000000", "100.12000000"},
		{"two decimals exact", 99.5, "0.01000000", "99.50000000"},
		{"three decimals", 1.23456, "0.00100000", "1.23400000"},
		{"eight decimals", 0.123456789, "0.00000001", "0.12345678"},
		{"seven decimals", 0.123456789, "0.00000010", "0.12345670"},
		{"integer tick", 1234.99, "1.00000000", "1234.00000000"},
		{"multiples of ten", 1239.99, "10.00000000", "1230.00000000"},
		{"below one ten", 9.99, "10.00000000", "0.00000000"},
		{"zero", 0, "0.00010000", "0.00000000"},
		{"binary artefact does not round down a tick", 0.29, "0.01000000", "0.29000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatToResolution(tt.value, tt.resolution)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatToResolution_Unsupported(t *testing.T) {
	for _, res := range []string{"0.05000000", "0.01", "100.00000000", "", "abc"} {
		_, err := FormatToResolution(1, res)
		var target *UnsupportedResolutionError
		if !errors.As(err, &target) {
			t.Fatalf("FormatToResolution(%q) error = %v, want UnsupportedResolutionError", res, err)
		}
		assert.Equal(t, res, target.Resolution)
	}
}

func TestFormatToResolution_InvalidValue(t *testing.T) {
	_, err := FormatToResolution(posInf(), "0.01000000")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestFormatToResolution_NeverRoundsUpAndIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for res, decimals := range knownResolutions {
		for i := 0; i < 500; i++ {
			value := rng.Float64() * 100000
			got, err := FormatToResolution(value, res)
			require.NoError(t, err)

			require.Equal(t, byte('.'), got[len(got)-9], "want eight decimals in %s", got)

			out := decimal.RequireFromString(got)
			in := decimal.NewFromFloat(value)
			require.True(t, out.LessThanOrEqual(in), "%s: %s > %s", res, got, in)
			require.True(t, in.Sub(out).LessThan(decimal.New(1, -decimals)), "%s: dropped more than a tick", res)

			again, err := FormatToResolution(out.InexactFloat64(), res)
			require.NoError(t, err)
			require.Equal(t, got, again, "not idempotent at %s", res)
		}
	}
}

func TestParseResolution(t *testing.T) {
	r := MustParseResolution("0.00100000")
	assert.Equal(t, 3, r.Decimals())
	assert.Equal(t, "0.001", r.Step().String())
	assert.Equal(t, "0.00100000", r.String())

	r = MustParseResolution("10.00000000")
	assert.Equal(t, -1, r.Decimals())
	assert.Equal(t, "10", r.Step().String())
}
