package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletscore/internal/events"
	"github.com/mbd888/walletscore/internal/features"
)

const day = int64(86400)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func usdEvent(wallet string, action events.Action, ts int64, amount, symbol string) events.Event {
	return events.Event{
		Wallet:      wallet,
		Action:      action,
		Timestamp:   ts,
		Amount:      decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		AssetSymbol: symbol,
		PriceUSD:    decimal.NewNullDecimal(decimal.NewFromInt(1)),
	}
}

// healthyVector is a well-behaved borrower used as a baseline.
func healthyVector() *features.Vector {
	return &features.Vector{
		Wallet:                 "0xhealthy",
		TotalTransactions:      40,
		ActionCounts:           map[string]int{"deposit": 15, "borrow": 10, "repay": 10, "redeem": 5},
		AccountAgeDays:         200,
		AvgTxIntervalDays:      5,
		TimestampedRecords:     40,
		AssetDiversity:         3,
		ActionDiversity:        4,
		DepositVolumeUSD:       20_000,
		BorrowVolumeUSD:        10_000,
		RepayVolumeUSD:         10_000,
		RepaymentRatio:         1,
		BorrowUtilization:      0.5,
		TimeRegularity:         0.9,
		TimeRegularityDefined:  true,
		SizeConsistency:        0.8,
		SizeConsistencyDefined: true,
	}
}

func TestNewEngine_RejectsInvalidWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Categories[CategoryRisk] = 0.5
	_, err := NewEngine(cfg)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	cfg = DefaultConfig()
	cfg.Penalties.PerLiquidation = -1
	_, err = NewEngine(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestScore_SubScoresAndBase(t *testing.T) {
	e := newEngine(t)
	rec, err := e.Score(healthyVector())
	require.NoError(t, err)

	for _, c := range Categories {
		s := rec.SubScore(c)
		assert.GreaterOrEqual(t, s, 0.0, c)
		assert.LessOrEqual(t, s, 1.0, c)
	}
	want := (rec.Activity*0.25 + rec.Risk*0.30 + rec.Reliability*0.25 + rec.Sophistication*0.20) * 1000
	assert.InDelta(t, want, rec.Base, 1e-9)
	assert.Equal(t, 0.0, rec.Penalty)
	assert.Equal(t, int(math.Round(rec.Base)), rec.Score)
	assert.Equal(t, BandFor(rec.Score), rec.Band)

	// perfect repayment, no liquidations, utilization at the band midpoint
	assert.InDelta(t, 1.0, rec.Risk, 1e-12)
}

func TestScore_ScenarioA_SingleSmallDeposit(t *testing.T) {
	evs := []events.Event{usdEvent("0xa", events.ActionDeposit, 1_650_000_000, "100", "USDC")}
	vecs, _ := features.Extract(evs)
	v := vecs["0xa"]
	require.NotNil(t, v)

	assert.Equal(t, 0.0, v.RepaymentRatio)
	assert.Equal(t, 0.0, v.BorrowUtilization)
	assert.Equal(t, 0, v.LiquidationCount)

	rec, err := newEngine(t).Score(v)
	require.NoError(t, err)

	assert.Equal(t, 50.0, rec.Penalties.LowActivity)
	assert.Equal(t, 100.0, rec.Penalties.PoorRepayment)
	assert.InDelta(t, 406.1, rec.Base, 0.1)
	assert.Equal(t, 256, rec.Score)
	assert.GreaterOrEqual(t, rec.Score, 200)
	assert.LessOrEqual(t, rec.Score, 300)
}

func TestScore_ScenarioB_LiquidationsDominate(t *testing.T) {
	base := int64(1_650_000_000)
	var clean []events.Event
	for i := 0; i < 10; i++ {
		ts := base + int64(i)*3*day + int64(i*i)*977
		clean = append(clean,
			usdEvent("0xb", events.ActionDeposit, ts, "2000", []string{"USDC", "DAI", "WETH"}[i%3]),
			usdEvent("0xb", events.ActionBorrow, ts+3600, "1000", "USDC"),
			usdEvent("0xb", events.ActionRepay, ts+7200, "1000", "USDC"),
		)
	}
	withLiq := append([]events.Event(nil), clean...)
	for i := 0; i < 5; i++ {
		withLiq = append(withLiq, usdEvent("0xb", events.ActionLiquidation, base+int64(i)*day+100, "10", "USDC"))
	}

	e := newEngine(t)
	cleanVecs, _ := features.Extract(clean)
	liqVecs, _ := features.Extract(withLiq)

	cleanRec, err := e.Score(cleanVecs["0xb"])
	require.NoError(t, err)
	liqRec, err := e.Score(liqVecs["0xb"])
	require.NoError(t, err)

	assert.InDelta(t, 1.0, liqRec.Normalized.RepaymentRatio, 1e-12, "otherwise perfect repayment")
	assert.Equal(t, 250.0, liqRec.Penalties.Liquidation)
	assert.LessOrEqual(t, liqRec.Score, cleanRec.Score-250)

	// enough liquidations drive any wallet to zero
	for i := 5; i < 25; i++ {
		withLiq = append(withLiq, usdEvent("0xb", events.ActionLiquidation, base+int64(i)*day+100, "10", "USDC"))
	}
	manyVecs, _ := features.Extract(withLiq)
	manyRec, err := e.Score(manyVecs["0xb"])
	require.NoError(t, err)
	assert.Equal(t, 0, manyRec.Score)
	assert.Equal(t, BandVeryHighRisk, manyRec.Band)
}

func TestScore_ScenarioC_UtilizationMidpointIsBest(t *testing.T) {
	e := newEngine(t)
	score := func(u float64) *Record {
		v := healthyVector()
		v.BorrowUtilization = u
		rec, err := e.Score(v)
		require.NoError(t, err)
		return rec
	}

	mid := score(DefaultNormalization().Utilization.Midpoint())
	zero := score(0)
	full := score(1)

	// the (1 - borrow_util_n) term attains 1.0 at the midpoint
	assert.Equal(t, 0.0, mid.Normalized.BorrowUtilization)
	assert.Greater(t, mid.Risk, zero.Risk)
	assert.Greater(t, mid.Risk, full.Risk)
	assert.Greater(t, mid.Base, zero.Base)
	assert.Greater(t, mid.Base, full.Base)
}

func TestScore_ScenarioD_ReversedOrderIdentical(t *testing.T) {
	base := int64(1_600_000_000)
	forward := []events.Event{
		usdEvent("0xd", events.ActionDeposit, base, "500", "USDC"),
		usdEvent("0xd", events.ActionBorrow, base+2*day, "120.5", "DAI"),
		usdEvent("0xd", events.ActionRepay, base+9*day, "60.25", "DAI"),
		usdEvent("0xd", events.ActionDeposit, base+11*day, "75", "WETH"),
		usdEvent("0xd", events.ActionRedeem, base+30*day, "100", "USDC"),
	}
	reversed := make([]events.Event, len(forward))
	for i, ev := range forward {
		reversed[len(forward)-1-i] = ev
	}

	e := newEngine(t)
	fv, _ := features.Extract(forward)
	rv, _ := features.Extract(reversed)
	a, err := e.Score(fv["0xd"])
	require.NoError(t, err)
	b, err := e.Score(rv["0xd"])
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestScore_MonotonicInRepaymentRatio(t *testing.T) {
	e := newEngine(t)
	for _, util := range []float64{0, 0.5, 1.2} {
		prev := -1
		for r := 0.0; r <= 2.0; r += 0.05 {
			v := healthyVector()
			v.BorrowUtilization = util
			v.RepaymentRatio = r
			rec, err := e.Score(v)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, rec.Score, prev, "util=%v ratio=%v", util, r)
			prev = rec.Score
		}
	}
}

func TestScore_MonotonicInLiquidationCount(t *testing.T) {
	e := newEngine(t)
	prev := math.MaxInt
	for n := 0; n <= 40; n++ {
		v := healthyVector()
		v.LiquidationCount = n
		v.LiquidationRatio = float64(n) / float64(v.TotalTransactions)
		rec, err := e.Score(v)
		require.NoError(t, err)
		assert.LessOrEqual(t, rec.Score, prev, "liquidations=%d", n)
		prev = rec.Score
	}
	assert.Equal(t, 0, prev)
}

func TestScore_BoundsSweep(t *testing.T) {
	e := newEngine(t)
	rng := rand.New(rand.NewSource(42))
	pick := func(vals ...float64) float64 { return vals[rng.Intn(len(vals))] }

	for i := 0; i < 5000; i++ {
		total := rng.Intn(5000) + 1
		liq := rng.Intn(total + 1)
		v := &features.Vector{
			Wallet:                 "0xsweep",
			TotalTransactions:      total,
			LiquidationCount:       liq,
			LiquidationRatio:       float64(liq) / float64(total),
			AccountAgeDays:         pick(0, rng.Float64()*2000, 1e9),
			AvgTxIntervalDays:      pick(0, rng.Float64()*90, 1e7),
			AssetDiversity:         rng.Intn(20),
			ActionDiversity:        rng.Intn(6),
			DepositVolumeUSD:       pick(0, rng.Float64()*1e6, 1e15),
			BorrowVolumeUSD:        pick(0, rng.Float64()*1e6),
			RepayVolumeUSD:         pick(0, rng.Float64()*1e6),
			RepaymentRatio:         pick(0, rng.Float64()*3, 1e6),
			BorrowUtilization:      pick(0, rng.Float64()*3, 1e6),
			TimeRegularity:         pick(0, rng.Float64()*5),
			TimeRegularityDefined:  rng.Intn(2) == 0,
			SizeConsistency:        pick(0, rng.Float64()*5),
			SizeConsistencyDefined: rng.Intn(2) == 0,
		}
		rec, err := e.Score(v)
		require.NoError(t, err)
		require.GreaterOrEqual(t, rec.Score, MinScore)
		require.LessOrEqual(t, rec.Score, MaxScore)
		require.GreaterOrEqual(t, rec.Base, 0.0)
		require.LessOrEqual(t, rec.Base, 1000.0+1e-9)
		require.GreaterOrEqual(t, rec.Penalty, 0.0)
	}
}

func TestScore_ZeroBorrowIsSafe(t *testing.T) {
	evs := []events.Event{
		usdEvent("0xz", events.ActionDeposit, 1000, "10", "USDC"),
		usdEvent("0xz", events.ActionRedeem, 2000, "10", "USDC"),
	}
	vecs, _ := features.Extract(evs)
	rec, err := newEngine(t).Score(vecs["0xz"])
	require.NoError(t, err)
	assert.Equal(t, 0.0, rec.Normalized.RepaymentRatio)
	assert.False(t, math.IsNaN(rec.Base))
}

func TestScore_InvariantViolation(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name   string
		mutate func(v *features.Vector)
	}{
		{"nan repayment", func(v *features.Vector) { v.RepaymentRatio = math.NaN() }},
		{"inf utilization", func(v *features.Vector) { v.BorrowUtilization = math.Inf(1) }},
		{"negative volume", func(v *features.Vector) { v.DepositVolumeUSD = -1 }},
		{"more liquidations than transactions", func(v *features.Vector) { v.LiquidationCount = v.TotalTransactions + 1 }},
		{"nan regularity", func(v *features.Vector) { v.TimeRegularity = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := healthyVector()
			tt.mutate(v)
			_, err := e.Score(v)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvariantViolation)
			assert.Contains(t, err.Error(), v.Wallet)
		})
	}

	_, err := e.Score(nil)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestScore_CustomWeightsApplied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Categories = map[Category]float64{
		CategoryActivity:       0,
		CategoryRisk:           1,
		CategoryReliability:    0,
		CategorySophistication: 0,
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	rec, err := e.Score(healthyVector())
	require.NoError(t, err)
	assert.InDelta(t, rec.Risk*1000, rec.Base, 1e-9)
}
