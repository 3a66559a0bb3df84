// Package report renders scoring results for people: CSV exports, score
// distribution analysis, and a markdown summary.
package report

import (
	"fmt"
	"math"
	"time"

	"github.com/mbd888/walletscore/internal/features"
	"github.com/mbd888/walletscore/internal/pipeline"
	"github.com/mbd888/walletscore/internal/scoring"
)

// Profile thresholds.
const (
	HighScoreMin = 700
	LowScoreMax  = 300
	rangeWidth   = 100
)

// Distribution summarizes the final scores of a run.
type Distribution struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
}

// RangeCount is the number of wallets whose score falls in [Low, High].
type RangeCount struct {
	Low   int `json:"low"`
	High  int `json:"high"`
	Count int `json:"count"`
}

// Label renders the range as "low-high".
func (r RangeCount) Label() string {
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

// BandCount is the number of wallets in one risk band.
type BandCount struct {
	Band  scoring.Band `json:"band"`
	Count int          `json:"count"`
}

// Profile describes the average behaviour of a group of wallets.
type Profile struct {
	Name                string  `json:"name"`
	Count               int     `json:"count"`
	AvgTransactions     float64 `json:"avgTransactions"`
	AvgRepaymentRatio   float64 `json:"avgRepaymentRatio"`
	AvgLiquidationRatio float64 `json:"avgLiquidationRatio"`
	AvgAssetDiversity   float64 `json:"avgAssetDiversity"`
	AvgDepositVolumeUSD float64 `json:"avgDepositVolumeUsd"`
	AvgAccountAgeDays   float64 `json:"avgAccountAgeDays"`
}

// Analysis is the human-facing summary of a run.
type Analysis struct {
	RunID        string           `json:"runId,omitempty"`
	GeneratedAt  time.Time        `json:"generatedAt"`
	Distribution Distribution     `json:"distribution"`
	Ranges       []RangeCount     `json:"ranges"`
	Bands        []BandCount      `json:"bands"`
	Profiles     []Profile        `json:"profiles"`
	Quality      features.Quality `json:"quality"`
}

// Analyze computes the distribution, range histogram, band counts, and
// behaviour profiles of rs.
func Analyze(rs *pipeline.ResultSet) *Analysis {
	a := &Analysis{
		GeneratedAt: time.Now().UTC(),
		Quality:     rs.Quality,
	}

	scores := rs.Scores()
	a.Distribution = distribution(scores)

	for low := scoring.MinScore; low < scoring.MaxScore; low += rangeWidth {
		high := low + rangeWidth - 1
		if high == scoring.MaxScore-1 {
			high = scoring.MaxScore
		}
		a.Ranges = append(a.Ranges, RangeCount{Low: low, High: high})
	}
	for _, s := range scores {
		idx := s / rangeWidth
		if idx >= len(a.Ranges) {
			idx = len(a.Ranges) - 1
		}
		a.Ranges[idx].Count++
	}

	bandCounts := make(map[scoring.Band]int)
	for _, e := range rs.Entries {
		bandCounts[e.Score.Band]++
	}
	for _, b := range scoring.Bands {
		a.Bands = append(a.Bands, BandCount{Band: b, Count: bandCounts[b]})
	}

	var high, mid, low []pipeline.Entry
	for _, e := range rs.Ordered() {
		switch {
		case e.Score.Score >= HighScoreMin:
			high = append(high, e)
		case e.Score.Score <= LowScoreMax:
			low = append(low, e)
		default:
			mid = append(mid, e)
		}
	}
	a.Profiles = []Profile{
		profile(fmt.Sprintf("high (>= %d)", HighScoreMin), high),
		profile(fmt.Sprintf("mid (%d-%d)", LowScoreMax+1, HighScoreMin-1), mid),
		profile(fmt.Sprintf("low (<= %d)", LowScoreMax), low),
	}
	return a
}

// distribution expects scores sorted ascending. Std is the sample standard
// deviation and is 0 for fewer than two scores.
func distribution(scores []int) Distribution {
	d := Distribution{Count: len(scores)}
	if len(scores) == 0 {
		return d
	}
	d.Min = scores[0]
	d.Max = scores[len(scores)-1]

	sum := 0.0
	for _, s := range scores {
		sum += float64(s)
	}
	d.Mean = sum / float64(len(scores))

	mid := len(scores) / 2
	if len(scores)%2 == 0 {
		d.Median = float64(scores[mid-1]+scores[mid]) / 2
	} else {
		d.Median = float64(scores[mid])
	}

	if len(scores) > 1 {
		ss := 0.0
		for _, s := range scores {
			diff := float64(s) - d.Mean
			ss += diff * diff
		}
		d.Std = math.Sqrt(ss / float64(len(scores)-1))
	}
	return d
}

func profile(name string, entries []pipeline.Entry) Profile {
	p := Profile{Name: name, Count: len(entries)}
	if len(entries) == 0 {
		return p
	}
	for _, e := range entries {
		v := e.Features
		p.AvgTransactions += float64(v.TotalTransactions)
		p.AvgRepaymentRatio += v.RepaymentRatio
		p.AvgLiquidationRatio += v.LiquidationRatio
		p.AvgAssetDiversity += float64(v.AssetDiversity)
		p.AvgDepositVolumeUSD += v.DepositVolumeUSD
		p.AvgAccountAgeDays += v.AccountAgeDays
	}
	n := float64(len(entries))
	p.AvgTransactions /= n
	p.AvgRepaymentRatio /= n
	p.AvgLiquidationRatio /= n
	p.AvgAssetDiversity /= n
	p.AvgDepositVolumeUSD /= n
	p.AvgAccountAgeDays /= n
	return p
}
