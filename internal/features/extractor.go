// Package features turns raw wallet events into finalized per-wallet feature
// vectors.
//
// Extraction is pure aggregation: USD volumes are summed as exact decimals and
// every order-dependent statistic runs over sorted inputs, so the output does
// not depend on the order records are supplied in.
package features

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mbd888/walletscore/internal/events"
)

// MinRegularitySamples is the number of qualifying records needed before
// timing regularity or size consistency is defined.
const MinRegularitySamples = 3

const secondsPerDay = 86400

// Extract groups evs by wallet and returns one finalized Vector per wallet
// with at least one valid record, along with a data-quality summary.
// Wallet identifiers are grouped exactly as given; records with an empty one
// are dropped. Malformed fields are treated as absent.
func Extract(evs []events.Event) (map[string]*Vector, Quality) {
	q := NewQuality()
	q.Records = len(evs)

	accs := make(map[string]*accumulator)
	for i := range evs {
		ev := &evs[i]
		wallet := ev.Wallet
		if wallet == "" {
			q.add(IssueMissingWallet)
			continue
		}
		acc, ok := accs[wallet]
		if !ok {
			acc = newAccumulator(wallet)
			accs[wallet] = acc
		}
		acc.fold(ev, &q)
	}

	out := make(map[string]*Vector, len(accs))
	for wallet, acc := range accs {
		if acc.valid == 0 {
			q.OmittedWallets++
			continue
		}
		out[wallet] = acc.finalize(&q)
		q.AcceptedWallets++
	}
	return out, q
}

// accumulator holds the running state for one wallet. It is never exposed.
type accumulator struct {
	wallet       string
	valid        int
	counts       map[events.Action]int
	timestamps   []int64
	assets       map[string]struct{}
	volumes      map[events.Action]decimal.Decimal
	depositSizes []decimal.Decimal
}

func newAccumulator(wallet string) *accumulator {
	return &accumulator{
		wallet:  wallet,
		counts:  make(map[events.Action]int),
		assets:  make(map[string]struct{}),
		volumes: make(map[events.Action]decimal.Decimal),
	}
}

func (a *accumulator) fold(ev *events.Event, q *Quality) {
	usable := false

	actionOK := ev.Action.Valid()
	if actionOK {
		usable = true
	} else {
		q.add(IssueMalformedAction)
	}
	if ev.HasTimestamp() {
		usable = true
	} else {
		q.add(IssueMalformedTimestamp)
	}
	if ev.HasAmount() {
		usable = true
	} else {
		q.add(IssueMalformedAmount)
	}
	if !ev.HasPrice() {
		q.add(IssueMalformedPrice)
	}

	if !usable {
		q.add(IssueEmptyRecord)
		return
	}
	a.valid++

	if actionOK {
		a.counts[ev.Action]++
	}
	if ev.HasTimestamp() {
		a.timestamps = append(a.timestamps, ev.Timestamp)
	}
	if sym := strings.ToUpper(strings.TrimSpace(ev.AssetSymbol)); sym != "" {
		a.assets[sym] = struct{}{}
	}

	usd := ev.USDValue()
	if !actionOK || !usd.IsPositive() {
		return
	}
	a.volumes[ev.Action] = a.volumes[ev.Action].Add(usd)
	if ev.Action == events.ActionDeposit {
		a.depositSizes = append(a.depositSizes, usd)
	}
}

func (a *accumulator) finalize(q *Quality) *Vector {
	v := &Vector{
		Wallet:            a.wallet,
		TotalTransactions: a.valid,
		ActionCounts:      make(map[string]int, len(a.counts)),
		LiquidationCount:  a.counts[events.ActionLiquidation],
		AssetDiversity:    len(a.assets),
		ActionDiversity:   len(a.counts),

		DepositVolumeUSD:     a.volumes[events.ActionDeposit].InexactFloat64(),
		BorrowVolumeUSD:      a.volumes[events.ActionBorrow].InexactFloat64(),
		RepayVolumeUSD:       a.volumes[events.ActionRepay].InexactFloat64(),
		RedeemVolumeUSD:      a.volumes[events.ActionRedeem].InexactFloat64(),
		LiquidationVolumeUSD: a.volumes[events.ActionLiquidation].InexactFloat64(),
	}
	for action, n := range a.counts {
		v.ActionCounts[string(action)] = n
	}

	// Timing
	ts := append([]int64(nil), a.timestamps...)
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	v.TimestampedRecords = len(ts)
	if len(ts) >= 2 {
		v.TimeSpanSeconds = ts[len(ts)-1] - ts[0]
		v.AccountAgeDays = float64(v.TimeSpanSeconds) / secondsPerDay
		v.AvgTxIntervalDays = v.AccountAgeDays / float64(len(ts)-1)
	}
	if len(ts) >= MinRegularitySamples {
		v.TimeRegularity = coefficientOfVariation(intervals(ts))
		v.TimeRegularityDefined = true
	}

	// Deposit size dispersion
	if len(a.depositSizes) >= MinRegularitySamples {
		sizes := make([]decimal.Decimal, len(a.depositSizes))
		copy(sizes, a.depositSizes)
		sort.Slice(sizes, func(i, j int) bool { return sizes[i].LessThan(sizes[j]) })
		vals := make([]float64, len(sizes))
		for i, s := range sizes {
			vals[i] = s.InexactFloat64()
		}
		v.SizeConsistency = coefficientOfVariation(vals)
		v.SizeConsistencyDefined = true
	}

	// Ratios; a zero denominator resolves to 0.
	degenerate := false
	v.LiquidationRatio = float64(v.LiquidationCount) / float64(v.TotalTransactions)
	if v.BorrowVolumeUSD > 0 {
		v.RepaymentRatio = v.RepayVolumeUSD / v.BorrowVolumeUSD
	} else {
		degenerate = true
	}
	if v.DepositVolumeUSD > 0 {
		v.BorrowUtilization = v.BorrowVolumeUSD / v.DepositVolumeUSD
	} else {
		degenerate = true
	}
	if degenerate {
		q.add(IssueDegenerateRatio)
	}

	return v
}

// intervals returns the gaps between consecutive sorted timestamps.
func intervals(sorted []int64) []float64 {
	if len(sorted) < 2 {
		return nil
	}
	out := make([]float64, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		out[i-1] = float64(sorted[i] - sorted[i-1])
	}
	return out
}
