// Package scoring implements wallet credit scoring.
//
// A finalized feature vector is normalized onto [0,1] per feature, combined
// into four weighted sub-scores, and reduced to a base score in [0,1000].
// Penalties for liquidations, poor repayment, and thin history are then
// subtracted to give the final integer score:
//
//	activity       = tx_count, account age, action diversity
//	risk           = 1-liquidation ratio, repayment ratio, 1-borrow utilization
//	reliability    = 1-time regularity, 1-size consistency, avg interval
//	sophistication = asset diversity, deposit volume
//
// The engine holds no mutable state and is safe for concurrent use.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/mbd888/walletscore/internal/features"
)

// ErrInvariantViolation reports a feature vector or normalized value that
// should have been impossible. It indicates a defect upstream, not bad data.
var ErrInvariantViolation = errors.New("scoring invariant violated")

const (
	MinScore = 0
	MaxScore = 1000
)

// Record is the scored result for one wallet.
type Record struct {
	Wallet string `json:"wallet"`

	// Sub-scores, each in [0,1]
	Activity       float64 `json:"activity"`
	Risk           float64 `json:"risk"`
	Reliability    float64 `json:"reliability"`
	Sophistication float64 `json:"sophistication"`

	Base      float64          `json:"base"`
	Penalties PenaltyBreakdown `json:"penalties"`
	Penalty   float64          `json:"penalty"`
	Score     int              `json:"score"`
	Band      Band             `json:"band"`

	Normalized Normalized `json:"normalized"`
}

// SubScore returns the sub-score for c.
func (r *Record) SubScore(c Category) float64 {
	switch c {
	case CategoryActivity:
		return r.Activity
	case CategoryRisk:
		return r.Risk
	case CategoryReliability:
		return r.Reliability
	case CategorySophistication:
		return r.Sophistication
	}
	return 0
}

// Engine scores feature vectors under a fixed, validated Config.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an engine using it.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Contribution returns how many base-score points sub-score s of category c
// is worth under the engine's weights.
func (e *Engine) Contribution(c Category, s float64) float64 {
	return s * e.cfg.Weights.Categories[c] * MaxScore
}

// Normalize maps every raw feature of v onto [0,1].
func (e *Engine) Normalize(v *features.Vector) Normalized {
	n := e.cfg.Normalization
	return Normalized{
		TxCount:           SaturatingLog(float64(v.TotalTransactions), n.TxCountCeiling),
		AccountAge:        SaturatingLog(v.AccountAgeDays, n.AccountAgeDaysCeiling),
		ActionDiversity:   CappedRatio(float64(v.ActionDiversity), n.ActionTypes),
		LiquidationRatio:  Clip01(v.LiquidationRatio),
		RepaymentRatio:    Clip01(v.RepaymentRatio),
		BorrowUtilization: UtilizationRisk(v.BorrowUtilization, n.Utilization),
		TimeRegularity:    Regularity(v.TimeRegularity, v.TimeRegularityDefined, n.RegularityCVCeiling),
		SizeConsistency:   Regularity(v.SizeConsistency, v.SizeConsistencyDefined, n.RegularityCVCeiling),
		AvgInterval:       SaturatingLog(v.AvgTxIntervalDays, n.IntervalDaysCeiling),
		AssetDiversity:    CappedRatio(float64(v.AssetDiversity), n.AssetDiversityCeiling),
		DepositVolume:     SaturatingLog(v.DepositVolumeUSD, n.DepositVolumeCeiling),
	}
}

// Score computes the Record for v. It fails only with ErrInvariantViolation.
func (e *Engine) Score(v *features.Vector) (*Record, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil feature vector", ErrInvariantViolation)
	}
	if err := checkVector(v); err != nil {
		return nil, fmt.Errorf("wallet %s: %w", v.Wallet, err)
	}

	norm := e.Normalize(v)
	if err := checkNormalized(norm); err != nil {
		return nil, fmt.Errorf("wallet %s: %w", v.Wallet, err)
	}

	w := e.cfg.Weights.Features
	rec := &Record{
		Wallet:     v.Wallet,
		Normalized: norm,
	}
	rec.Activity = Clip01(
		w[CategoryActivity][FeatureTxCount]*norm.TxCount +
			w[CategoryActivity][FeatureAccountAge]*norm.AccountAge +
			w[CategoryActivity][FeatureActionDiversity]*norm.ActionDiversity)
	rec.Risk = Clip01(
		w[CategoryRisk][FeatureLiquidationRatio]*(1-norm.LiquidationRatio) +
			w[CategoryRisk][FeatureRepaymentRatio]*norm.RepaymentRatio +
			w[CategoryRisk][FeatureBorrowUtilization]*(1-norm.BorrowUtilization))
	rec.Reliability = Clip01(
		w[CategoryReliability][FeatureTimeRegularity]*(1-norm.TimeRegularity) +
			w[CategoryReliability][FeatureSizeConsistency]*(1-norm.SizeConsistency) +
			w[CategoryReliability][FeatureAvgInterval]*norm.AvgInterval)
	rec.Sophistication = Clip01(
		w[CategorySophistication][FeatureAssetDiversity]*norm.AssetDiversity +
			w[CategorySophistication][FeatureDepositVolume]*norm.DepositVolume)

	for _, c := range Categories {
		rec.Base += e.Contribution(c, rec.SubScore(c))
	}

	rec.Penalties = e.cfg.Penalties.Apply(v)
	rec.Penalty = rec.Penalties.Total()
	rec.Score = finalScore(rec.Base, rec.Penalty)
	rec.Band = BandFor(rec.Score)
	return rec, nil
}

func finalScore(base, penalty float64) int {
	s := math.Max(0, math.Round(base-penalty))
	return int(math.Min(MaxScore, math.Max(MinScore, s)))
}

// checkVector verifies the guarantees the extractor makes: every ratio and
// volume is finite and non-negative and counts are consistent.
func checkVector(v *features.Vector) error {
	if v.TotalTransactions < 0 || v.LiquidationCount < 0 || v.LiquidationCount > v.TotalTransactions {
		return fmt.Errorf("%w: liquidation count %d of %d transactions",
			ErrInvariantViolation, v.LiquidationCount, v.TotalTransactions)
	}
	if v.AssetDiversity < 0 || v.ActionDiversity < 0 {
		return fmt.Errorf("%w: negative diversity", ErrInvariantViolation)
	}
	fields := []struct {
		name string
		val  float64
	}{
		{"account_age_days", v.AccountAgeDays},
		{"avg_tx_interval_days", v.AvgTxIntervalDays},
		{"deposit_volume_usd", v.DepositVolumeUSD},
		{"borrow_volume_usd", v.BorrowVolumeUSD},
		{"repay_volume_usd", v.RepayVolumeUSD},
		{"liquidation_ratio", v.LiquidationRatio},
		{"repayment_ratio", v.RepaymentRatio},
		{"borrow_utilization", v.BorrowUtilization},
		{"time_regularity", v.TimeRegularity},
		{"size_consistency", v.SizeConsistency},
	}
	for _, f := range fields {
		if !finite(f.val) || f.val < 0 {
			return fmt.Errorf("%w: %s = %v", ErrInvariantViolation, f.name, f.val)
		}
	}
	return nil
}

func checkNormalized(n Normalized) error {
	for _, cf := range categoryFeatures {
		for _, f := range cf {
			x := n.Get(f)
			if !finite(x) || x < 0 || x > 1 {
				return fmt.Errorf("%w: normalized %s = %v", ErrInvariantViolation, f, x)
			}
		}
	}
	return nil
}
