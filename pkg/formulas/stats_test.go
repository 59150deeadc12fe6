package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, Mean(nil), 1e-9)
	assert.InDelta(t, 5.0, Mean([]float64{5}), 1e-9)
}

func TestStdDev(t *testing.T) {
	// Population form: stddev of {2, 4, 4, 4, 5, 5, 7, 9} is exactly 2
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.InDelta(t, 0.0, StdDev([]float64{3, 3, 3}), 1e-9)
	assert.InDelta(t, 0.0, StdDev(nil), 1e-9)
	assert.InDelta(t, 0.0, StdDev([]float64{42}), 1e-9)
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestCalculateReturns_ShortInputs(t *testing.T) {
	assert.Empty(t, CalculateReturns(nil))
	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestCalculateReturns_ZeroPriceSkipped(t *testing.T) {
	returns := CalculateReturns([]float64{0, 100, 110})

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.0, returns[0], 1e-9)
	assert.InDelta(t, 0.10, returns[1], 1e-9)
}
