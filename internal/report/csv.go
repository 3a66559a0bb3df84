package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mbd888/walletscore/internal/events"
	"github.com/mbd888/walletscore/internal/pipeline"
	"github.com/mbd888/walletscore/internal/scoring"
)

// Output file names written by WriteFiles.
const (
	ScoresFile   = "wallet_credit_scores.csv"
	DetailedFile = "detailed_wallet_analysis.csv"
	AnalysisFile = "analysis.md"
)

var scoresHeader = []string{
	"wallet", "credit_score",
	"activity_score", "risk_score", "reliability_score", "sophistication_score",
	"base_score", "penalty", "risk_band",
}

var detailedHeader = []string{
	"wallet", "credit_score", "risk_band", "base_score",
	"liquidation_penalty", "repayment_penalty", "low_activity_penalty",
	"activity", "risk", "reliability", "sophistication",
	"total_transactions", "deposit_count", "borrow_count", "repay_count", "redeem_count", "liquidation_count",
	"account_age_days", "avg_tx_interval_days", "asset_diversity", "action_diversity",
	"deposit_volume_usd", "borrow_volume_usd", "repay_volume_usd", "redeem_volume_usd", "liquidation_volume_usd",
	"liquidation_ratio", "repayment_ratio", "borrow_utilization",
	"time_regularity", "time_regularity_defined", "size_consistency", "size_consistency_defined",
}

func ff(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}

// WriteScoresCSV writes one row per wallet, highest score first. Category
// columns hold the points each sub-score contributed to the base score.
func WriteScoresCSV(w io.Writer, rs *pipeline.ResultSet, engine *scoring.Engine) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(scoresHeader); err != nil {
		return err
	}
	for _, e := range rs.Ordered() {
		r := e.Score
		row := []string{
			r.Wallet,
			strconv.Itoa(r.Score),
			ff(engine.Contribution(scoring.CategoryActivity, r.Activity)),
			ff(engine.Contribution(scoring.CategoryRisk, r.Risk)),
			ff(engine.Contribution(scoring.CategoryReliability, r.Reliability)),
			ff(engine.Contribution(scoring.CategorySophistication, r.Sophistication)),
			ff(r.Base),
			ff(r.Penalty),
			string(r.Band),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDetailedCSV writes the full feature vector and score breakdown of
// every wallet, highest score first.
func WriteDetailedCSV(w io.Writer, rs *pipeline.ResultSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(detailedHeader); err != nil {
		return err
	}
	for _, e := range rs.Ordered() {
		r, v := e.Score, e.Features
		row := []string{
			r.Wallet, strconv.Itoa(r.Score), string(r.Band), ff(r.Base),
			ff(r.Penalties.Liquidation), ff(r.Penalties.PoorRepayment), ff(r.Penalties.LowActivity),
			ff(r.Activity), ff(r.Risk), ff(r.Reliability), ff(r.Sophistication),
			strconv.Itoa(v.TotalTransactions),
			strconv.Itoa(v.Count(events.ActionDeposit)),
			strconv.Itoa(v.Count(events.ActionBorrow)),
			strconv.Itoa(v.Count(events.ActionRepay)),
			strconv.Itoa(v.Count(events.ActionRedeem)),
			strconv.Itoa(v.LiquidationCount),
			ff(v.AccountAgeDays), ff(v.AvgTxIntervalDays),
			strconv.Itoa(v.AssetDiversity), strconv.Itoa(v.ActionDiversity),
			ff(v.DepositVolumeUSD), ff(v.BorrowVolumeUSD), ff(v.RepayVolumeUSD),
			ff(v.RedeemVolumeUSD), ff(v.LiquidationVolumeUSD),
			ff(v.LiquidationRatio), ff(v.RepaymentRatio), ff(v.BorrowUtilization),
			ff(v.TimeRegularity), strconv.FormatBool(v.TimeRegularityDefined),
			ff(v.SizeConsistency), strconv.FormatBool(v.SizeConsistencyDefined),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFiles writes both CSV exports and the markdown analysis into dir,
// creating it if needed, and returns the paths written.
func WriteFiles(dir string, rs *pipeline.ResultSet, engine *scoring.Engine, a *Analysis) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{ScoresFile, func(w io.Writer) error { return WriteScoresCSV(w, rs, engine) }},
		{DetailedFile, func(w io.Writer) error { return WriteDetailedCSV(w, rs) }},
		{AnalysisFile, func(w io.Writer) error {
			_, err := io.WriteString(w, RenderMarkdown(a))
			return err
		}},
	}

	paths := make([]string, 0, len(writers))
	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)
		if err := writeFile(path, wr.write); err != nil {
			return paths, fmt.Errorf("write %s: %w", wr.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
