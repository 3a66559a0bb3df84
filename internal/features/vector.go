package features

import "github.com/mbd888/walletscore/internal/events"

// Vector is the finalized per-wallet feature set. It is only ever built by
// the extractor after every record of the wallet has been folded in.
type Vector struct {
	Wallet string `json:"wallet"`

	// Counts
	TotalTransactions int            `json:"totalTransactions"`
	ActionCounts      map[string]int `json:"actionCounts"`
	LiquidationCount  int            `json:"liquidationCount"`

	// Time
	TimeSpanSeconds    int64   `json:"timeSpanSeconds"`
	AccountAgeDays     float64 `json:"accountAgeDays"`
	AvgTxIntervalDays  float64 `json:"avgTxIntervalDays"`
	TimestampedRecords int     `json:"timestampedRecords"`

	// Diversity
	AssetDiversity  int `json:"assetDiversity"`
	ActionDiversity int `json:"actionDiversity"`

	// Volumes in USD
	DepositVolumeUSD     float64 `json:"depositVolumeUsd"`
	BorrowVolumeUSD      float64 `json:"borrowVolumeUsd"`
	RepayVolumeUSD       float64 `json:"repayVolumeUsd"`
	RedeemVolumeUSD      float64 `json:"redeemVolumeUsd"`
	LiquidationVolumeUSD float64 `json:"liquidationVolumeUsd"`

	// Risk
	LiquidationRatio  float64 `json:"liquidationRatio"`
	RepaymentRatio    float64 `json:"repaymentRatio"`
	BorrowUtilization float64 `json:"borrowUtilization"`

	// Regularity. Both are coefficients of variation; the Defined flags are
	// false when fewer than MinRegularitySamples qualifying records exist.
	TimeRegularity         float64 `json:"timeRegularity"`
	TimeRegularityDefined  bool    `json:"timeRegularityDefined"`
	SizeConsistency        float64 `json:"sizeConsistency"`
	SizeConsistencyDefined bool    `json:"sizeConsistencyDefined"`
}

// Count returns how many records of action a the wallet produced.
func (v *Vector) Count(a events.Action) int {
	return v.ActionCounts[string(a)]
}
