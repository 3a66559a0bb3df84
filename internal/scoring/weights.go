package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrInvalidWeights = errors.New("invalid scoring weights")
	ErrInvalidConfig  = errors.New("invalid scoring config")
)

// weightTolerance is how far a category's weights may drift from 1.0.
const weightTolerance = 1e-9

// Category is one of the four weighted sub-scores.
type Category string

const (
	CategoryActivity       Category = "activity"
	CategoryRisk           Category = "risk"
	CategoryReliability    Category = "reliability"
	CategorySophistication Category = "sophistication"
)

// Categories lists the sub-score categories in reporting order.
var Categories = []Category{
	CategoryActivity,
	CategoryRisk,
	CategoryReliability,
	CategorySophistication,
}

// Feature names a normalized input feeding one category.
type Feature string

const (
	FeatureTxCount           Feature = "tx_count"
	FeatureAccountAge        Feature = "account_age"
	FeatureActionDiversity   Feature = "action_diversity"
	FeatureLiquidationRatio  Feature = "liquidation_ratio"
	FeatureRepaymentRatio    Feature = "repayment_ratio"
	FeatureBorrowUtilization Feature = "borrow_utilization"
	FeatureTimeRegularity    Feature = "time_regularity"
	FeatureSizeConsistency   Feature = "size_consistency"
	FeatureAvgInterval       Feature = "avg_interval"
	FeatureAssetDiversity    Feature = "asset_diversity"
	FeatureDepositVolume     Feature = "deposit_volume"
)

// categoryFeatures fixes which features belong to which category.
var categoryFeatures = map[Category][]Feature{
	CategoryActivity:       {FeatureTxCount, FeatureAccountAge, FeatureActionDiversity},
	CategoryRisk:           {FeatureLiquidationRatio, FeatureRepaymentRatio, FeatureBorrowUtilization},
	CategoryReliability:    {FeatureTimeRegularity, FeatureSizeConsistency, FeatureAvgInterval},
	CategorySophistication: {FeatureAssetDiversity, FeatureDepositVolume},
}

// Weights enumerates the fixed weight of every feature inside its category
// and of every category in the base score. Each map must sum to 1.0.
type Weights struct {
	Categories map[Category]float64             `json:"categories"`
	Features   map[Category]map[Feature]float64 `json:"features"`
}

// DefaultWeights returns the weights the scoring model ships with.
func DefaultWeights() Weights {
	return Weights{
		Categories: map[Category]float64{
			CategoryActivity:       0.25,
			CategoryRisk:           0.30,
			CategoryReliability:    0.25,
			CategorySophistication: 0.20,
		},
		Features: map[Category]map[Feature]float64{
			CategoryActivity: {
				FeatureTxCount:         0.4,
				FeatureAccountAge:      0.3,
				FeatureActionDiversity: 0.3,
			},
			CategoryRisk: {
				FeatureLiquidationRatio:  0.4,
				FeatureRepaymentRatio:    0.4,
				FeatureBorrowUtilization: 0.2,
			},
			CategoryReliability: {
				FeatureTimeRegularity:  0.4,
				FeatureSizeConsistency: 0.3,
				FeatureAvgInterval:     0.3,
			},
			CategorySophistication: {
				FeatureAssetDiversity: 0.6,
				FeatureDepositVolume:  0.4,
			},
		},
	}
}

// Validate checks every category is present, only known features are
// weighted, no weight is negative, and each map sums to 1.0.
func (w Weights) Validate() error {
	if err := checkSum("categories", toSlice(w.Categories)); err != nil {
		return err
	}
	for c := range w.Categories {
		if _, ok := categoryFeatures[c]; !ok {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidWeights, c)
		}
	}
	for c := range w.Features {
		if _, ok := categoryFeatures[c]; !ok {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidWeights, c)
		}
	}
	for _, c := range Categories {
		if _, ok := w.Categories[c]; !ok {
			return fmt.Errorf("%w: missing category %q", ErrInvalidWeights, c)
		}
		fw, ok := w.Features[c]
		if !ok {
			return fmt.Errorf("%w: no feature weights for %q", ErrInvalidWeights, c)
		}
		allowed := make(map[Feature]bool, len(categoryFeatures[c]))
		for _, f := range categoryFeatures[c] {
			allowed[f] = true
		}
		vals := make([]float64, 0, len(fw))
		for f, v := range fw {
			if !allowed[f] {
				return fmt.Errorf("%w: feature %q does not belong to %q", ErrInvalidWeights, f, c)
			}
			vals = append(vals, v)
		}
		if err := checkSum(string(c), vals); err != nil {
			return err
		}
	}
	return nil
}

func toSlice[K comparable](m map[K]float64) []float64 {
	out := make([]float64, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func checkSum(name string, vals []float64) error {
	// Summing in sorted order keeps the check independent of map order.
	sort.Float64s(vals)
	sum := 0.0
	for _, v := range vals {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has invalid weight %v", ErrInvalidWeights, name, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: %s weights sum to %.6f, want 1.0", ErrInvalidWeights, name, sum)
	}
	return nil
}

// Config holds every tunable of the scoring model.
type Config struct {
	Weights       Weights             `json:"weights"`
	Normalization NormalizationConfig `json:"normalization"`
	Penalties     Penalties           `json:"penalties"`
}

// DefaultConfig returns the shipped model: default weights, saturation
// ceilings, utilization band, and penalty schedule.
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		Normalization: DefaultNormalization(),
		Penalties:     DefaultPenalties(),
	}
}

// Validate checks weights, normalization bounds, and penalties.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if err := c.Normalization.Validate(); err != nil {
		return err
	}
	return c.Penalties.Validate()
}
