package scoring

import (
	"fmt"
	"math"

	"github.com/mbd888/walletscore/internal/features"
)

// Penalties is the schedule of point deductions subtracted from the base score.
type Penalties struct {
	// PerLiquidation is charged for every liquidation event, without a cap.
	PerLiquidation float64 `json:"perLiquidation"`

	// RepaymentThreshold is the repayment ratio below which the poor-repayment
	// penalty starts. PoorRepayment is the full charge at ratio 0, scaled down
	// linearly as the ratio approaches the threshold.
	RepaymentThreshold float64 `json:"repaymentThreshold"`
	PoorRepayment      float64 `json:"poorRepayment"`

	// LowActivity is a flat charge for wallets with fewer than
	// LowActivityMinTxns transactions.
	LowActivityMinTxns int     `json:"lowActivityMinTxns"`
	LowActivity        float64 `json:"lowActivity"`
}

// DefaultPenalties returns the shipped penalty schedule.
func DefaultPenalties() Penalties {
	return Penalties{
		PerLiquidation:     50,
		RepaymentThreshold: 0.5,
		PoorRepayment:      100,
		LowActivityMinTxns: 3,
		LowActivity:        50,
	}
}

// Validate checks every charge is finite and non-negative.
func (p Penalties) Validate() error {
	charges := map[string]float64{
		"perLiquidation": p.PerLiquidation,
		"poorRepayment":  p.PoorRepayment,
		"lowActivity":    p.LowActivity,
	}
	for name, v := range charges {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: %s must be non-negative, got %v", ErrInvalidConfig, name, v)
		}
	}
	if !finite(p.RepaymentThreshold) || p.RepaymentThreshold < 0 || p.RepaymentThreshold > 1 {
		return fmt.Errorf("%w: repaymentThreshold must be within [0,1], got %v", ErrInvalidConfig, p.RepaymentThreshold)
	}
	if p.LowActivityMinTxns < 0 {
		return fmt.Errorf("%w: lowActivityMinTxns must be non-negative, got %d", ErrInvalidConfig, p.LowActivityMinTxns)
	}
	return nil
}

// PenaltyBreakdown itemizes the deductions applied to one wallet.
type PenaltyBreakdown struct {
	Liquidation   float64 `json:"liquidation"`
	PoorRepayment float64 `json:"poorRepayment"`
	LowActivity   float64 `json:"lowActivity"`
}

// Total returns the sum of all deductions.
func (b PenaltyBreakdown) Total() float64 {
	return b.Liquidation + b.PoorRepayment + b.LowActivity
}

// Apply computes the deductions for v.
func (p Penalties) Apply(v *features.Vector) PenaltyBreakdown {
	var b PenaltyBreakdown
	b.Liquidation = float64(v.LiquidationCount) * p.PerLiquidation

	ratio := Clip01(v.RepaymentRatio)
	if ratio < p.RepaymentThreshold {
		shortfall := (p.RepaymentThreshold - ratio) / p.RepaymentThreshold
		b.PoorRepayment = p.PoorRepayment * math.Min(1, shortfall)
	}

	if v.TotalTransactions < p.LowActivityMinTxns {
		b.LowActivity = p.LowActivity
	}
	return b
}
