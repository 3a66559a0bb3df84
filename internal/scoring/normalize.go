package scoring

import (
	"fmt"
	"math"
)

// UtilizationBand describes the peak-shaped borrow utilization curve.
//
// Utilization inside [Low, High] scores 1.0. Below the band the fitness rises
// linearly from AtZero (no borrowing) to 1.0 at Low. Above the band it falls
// linearly from 1.0 at High to 0 at Max, and stays 0 beyond Max.
type UtilizationBand struct {
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	AtZero float64 `json:"atZero"`
	Max    float64 `json:"max"`
}

// Midpoint returns the centre of the preferred band.
func (b UtilizationBand) Midpoint() float64 {
	return (b.Low + b.High) / 2
}

// NormalizationConfig holds the saturation ceilings and band edges used to
// map raw features onto [0,1].
type NormalizationConfig struct {
	TxCountCeiling        float64         `json:"txCountCeiling"`
	AccountAgeDaysCeiling float64         `json:"accountAgeDaysCeiling"`
	IntervalDaysCeiling   float64         `json:"intervalDaysCeiling"`
	DepositVolumeCeiling  float64         `json:"depositVolumeCeiling"`
	ActionTypes           float64         `json:"actionTypes"`
	AssetDiversityCeiling float64         `json:"assetDiversityCeiling"`
	RegularityCVCeiling   float64         `json:"regularityCvCeiling"`
	Utilization           UtilizationBand `json:"utilization"`
}

// DefaultNormalization returns the shipped normalization parameters.
func DefaultNormalization() NormalizationConfig {
	return NormalizationConfig{
		TxCountCeiling:        1000,
		AccountAgeDaysCeiling: 365,
		IntervalDaysCeiling:   30,
		DepositVolumeCeiling:  100_000,
		ActionTypes:           5,
		AssetDiversityCeiling: 5,
		RegularityCVCeiling:   1.5,
		Utilization: UtilizationBand{
			Low:    0.3,
			High:   0.7,
			AtZero: 0.5,
			Max:    1.5,
		},
	}
}

// Validate checks every ceiling is positive and the band is well formed.
func (n NormalizationConfig) Validate() error {
	ceilings := map[string]float64{
		"txCountCeiling":        n.TxCountCeiling,
		"accountAgeDaysCeiling": n.AccountAgeDaysCeiling,
		"intervalDaysCeiling":   n.IntervalDaysCeiling,
		"depositVolumeCeiling":  n.DepositVolumeCeiling,
		"actionTypes":           n.ActionTypes,
		"assetDiversityCeiling": n.AssetDiversityCeiling,
		"regularityCvCeiling":   n.RegularityCVCeiling,
	}
	for name, v := range ceilings {
		if !finite(v) || v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, name, v)
		}
	}
	b := n.Utilization
	if !(b.Low > 0 && b.Low <= b.High && b.High < b.Max) || !finite(b.Max) {
		return fmt.Errorf("%w: utilization band needs 0 < low <= high < max, got low=%v high=%v max=%v", ErrInvalidConfig, b.Low, b.High, b.Max)
	}
	if b.AtZero < 0 || b.AtZero > 1 {
		return fmt.Errorf("%w: utilization atZero must be within [0,1], got %v", ErrInvalidConfig, b.AtZero)
	}
	return nil
}

// Normalized holds every feature mapped onto [0,1]. The values are the
// normalized features themselves; inversions happen when they are combined.
type Normalized struct {
	TxCount           float64 `json:"txCount"`
	AccountAge        float64 `json:"accountAge"`
	ActionDiversity   float64 `json:"actionDiversity"`
	LiquidationRatio  float64 `json:"liquidationRatio"`
	RepaymentRatio    float64 `json:"repaymentRatio"`
	BorrowUtilization float64 `json:"borrowUtilization"`
	TimeRegularity    float64 `json:"timeRegularity"`
	SizeConsistency   float64 `json:"sizeConsistency"`
	AvgInterval       float64 `json:"avgInterval"`
	AssetDiversity    float64 `json:"assetDiversity"`
	DepositVolume     float64 `json:"depositVolume"`
}

// Get returns the normalized value of f.
func (n Normalized) Get(f Feature) float64 {
	switch f {
	case FeatureTxCount:
		return n.TxCount
	case FeatureAccountAge:
		return n.AccountAge
	case FeatureActionDiversity:
		return n.ActionDiversity
	case FeatureLiquidationRatio:
		return n.LiquidationRatio
	case FeatureRepaymentRatio:
		return n.RepaymentRatio
	case FeatureBorrowUtilization:
		return n.BorrowUtilization
	case FeatureTimeRegularity:
		return n.TimeRegularity
	case FeatureSizeConsistency:
		return n.SizeConsistency
	case FeatureAvgInterval:
		return n.AvgInterval
	case FeatureAssetDiversity:
		return n.AssetDiversity
	case FeatureDepositVolume:
		return n.DepositVolume
	}
	return 0
}

// SaturatingLog maps x >= 0 onto [0,1] with diminishing returns:
// log(1+x)/log(1+ceiling), reaching 1.0 at the ceiling and staying there.
func SaturatingLog(x, ceiling float64) float64 {
	if !finite(x) || !finite(ceiling) || x <= 0 || ceiling <= 0 {
		return 0
	}
	return Clip01(math.Log1p(x) / math.Log1p(ceiling))
}

// CappedRatio returns x/denom clipped to [0,1].
func CappedRatio(x, denom float64) float64 {
	if !finite(x) || !finite(denom) || denom <= 0 {
		return 0
	}
	return Clip01(x / denom)
}

// Clip01 clamps x to [0,1]; non-finite input maps to 0.
func Clip01(x float64) float64 {
	if !finite(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}

// UtilizationFitness is the non-monotonic utilization curve: 1.0 inside the
// preferred band, lower for both near-zero and over-extended utilization.
func UtilizationFitness(u float64, b UtilizationBand) float64 {
	if !finite(u) {
		return 0
	}
	switch {
	case u <= 0:
		return Clip01(b.AtZero)
	case u < b.Low:
		return Clip01(b.AtZero + (1-b.AtZero)*(u/b.Low))
	case u <= b.High:
		return 1
	case u >= b.Max:
		return 0
	default:
		return Clip01(1 - (u-b.High)/(b.Max-b.High))
	}
}

// UtilizationRisk is the normalized borrow utilization: 0 inside the
// preferred band, rising towards 1 away from it. Non-finite input maps to 0.
func UtilizationRisk(u float64, b UtilizationBand) float64 {
	if !finite(u) {
		return 0
	}
	return Clip01(1 - UtilizationFitness(u, b))
}

// Regularity maps a coefficient of variation onto [0,1] where lower
// dispersion (more machine-like) gives a higher value. Undefined or
// non-finite dispersion maps to the neutral 0.
func Regularity(cv float64, defined bool, ceiling float64) float64 {
	if !defined || !finite(cv) || cv < 0 || !finite(ceiling) || ceiling <= 0 {
		return 0
	}
	return Clip01(1 - math.Min(cv, ceiling)/ceiling)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
