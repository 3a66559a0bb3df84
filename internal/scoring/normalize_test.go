package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaturatingLog(t *testing.T) {
	assert.Equal(t, 0.0, SaturatingLog(0, 1000))
	assert.Equal(t, 0.0, SaturatingLog(-5, 1000))
	assert.InDelta(t, 1.0, SaturatingLog(1000, 1000), 1e-12)
	assert.Equal(t, 1.0, SaturatingLog(50_000, 1000), "capped beyond the ceiling")
	assert.InDelta(t, math.Log(11)/math.Log(1001), SaturatingLog(10, 1000), 1e-12)

	// diminishing returns: the first 10 transactions are worth more than the next 10
	first := SaturatingLog(10, 1000) - SaturatingLog(0, 1000)
	next := SaturatingLog(20, 1000) - SaturatingLog(10, 1000)
	assert.Greater(t, first, next)

	assert.Equal(t, 0.0, SaturatingLog(math.NaN(), 1000))
	assert.Equal(t, 0.0, SaturatingLog(math.Inf(1), 1000))
	assert.Equal(t, 0.0, SaturatingLog(10, 0))
}

func TestSaturatingLog_Monotonic(t *testing.T) {
	prev := -1.0
	for x := 0.0; x <= 2000; x += 7.5 {
		got := SaturatingLog(x, 1000)
		assert.GreaterOrEqual(t, got, prev, "x=%v", x)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
		prev = got
	}
}

func TestCappedRatio(t *testing.T) {
	assert.Equal(t, 0.4, CappedRatio(2, 5))
	assert.Equal(t, 1.0, CappedRatio(5, 5))
	assert.Equal(t, 1.0, CappedRatio(9, 5))
	assert.Equal(t, 0.0, CappedRatio(3, 0))
	assert.Equal(t, 0.0, CappedRatio(math.NaN(), 5))
}

func TestClip01(t *testing.T) {
	assert.Equal(t, 0.0, Clip01(-0.2))
	assert.Equal(t, 0.3, Clip01(0.3))
	assert.Equal(t, 1.0, Clip01(2.5))
	assert.Equal(t, 0.0, Clip01(math.NaN()))
	assert.Equal(t, 0.0, Clip01(math.Inf(1)))
	assert.Equal(t, 0.0, Clip01(math.Inf(-1)))
}

func TestUtilizationFitness_BandEdges(t *testing.T) {
	b := DefaultNormalization().Utilization

	tests := []struct {
		name string
		u    float64
		want float64
	}{
		{"no borrowing", 0, 0.5},
		{"halfway to band", 0.15, 0.75},
		{"just below band", 0.2999, 0.5 + 0.5*0.2999/0.3},
		{"lower edge", 0.3, 1},
		{"midpoint", 0.5, 1},
		{"upper edge", 0.7, 1},
		{"full utilization", 1.0, 0.625},
		{"halfway down", 1.1, 0.5},
		{"max", 1.5, 0},
		{"beyond max", 4, 0},
		{"nan", math.NaN(), 0},
		{"inf", math.Inf(1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, UtilizationFitness(tt.u, b), 1e-9)
		})
	}
}

func TestUtilizationFitness_PeaksAtMidpoint(t *testing.T) {
	b := DefaultNormalization().Utilization
	peak := UtilizationFitness(b.Midpoint(), b)
	assert.Equal(t, 1.0, peak)
	assert.Greater(t, peak, UtilizationFitness(0, b))
	assert.Greater(t, peak, UtilizationFitness(1, b))
}

func TestUtilizationRisk(t *testing.T) {
	b := DefaultNormalization().Utilization
	assert.Equal(t, 0.0, UtilizationRisk(0.5, b))
	assert.InDelta(t, 0.5, UtilizationRisk(0, b), 1e-12)
	assert.InDelta(t, 0.375, UtilizationRisk(1.0, b), 1e-12)
	assert.Equal(t, 1.0, UtilizationRisk(3, b))
	assert.Equal(t, 0.0, UtilizationRisk(math.NaN(), b))
}

func TestRegularity_BandEdges(t *testing.T) {
	tests := []struct {
		name    string
		cv      float64
		defined bool
		want    float64
	}{
		{"perfectly regular", 0, true, 1},
		{"half ceiling", 0.75, true, 0.5},
		{"at ceiling", 1.5, true, 0},
		{"beyond ceiling", 6, true, 0},
		{"undefined", 0, false, 0},
		{"undefined ignores cv", 0.2, false, 0},
		{"nan", math.NaN(), true, 0},
		{"negative", -1, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Regularity(tt.cv, tt.defined, 1.5), 1e-12)
		})
	}
}

func TestNormalizationConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultNormalization().Validate())

	n := DefaultNormalization()
	n.TxCountCeiling = 0
	assert.ErrorIs(t, n.Validate(), ErrInvalidConfig)

	n = DefaultNormalization()
	n.Utilization.Low = 0.8
	assert.ErrorIs(t, n.Validate(), ErrInvalidConfig, "low above high")

	n = DefaultNormalization()
	n.Utilization.Max = 0.6
	assert.ErrorIs(t, n.Validate(), ErrInvalidConfig, "max inside band")

	n = DefaultNormalization()
	n.Utilization.AtZero = 1.5
	assert.ErrorIs(t, n.Validate(), ErrInvalidConfig)
}
