package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletscore/internal/events"
	"github.com/mbd888/walletscore/internal/features"
	"github.com/mbd888/walletscore/internal/pipeline"
	"github.com/mbd888/walletscore/internal/scoring"
)

func entry(wallet string, score int, txns int, repay float64) pipeline.Entry {
	return pipeline.Entry{
		Features: &features.Vector{
			Wallet:            wallet,
			TotalTransactions: txns,
			RepaymentRatio:    repay,
			AssetDiversity:    2,
			DepositVolumeUSD:  1000,
		},
		Score: &scoring.Record{Wallet: wallet, Score: score, Band: scoring.BandFor(score)},
	}
}

func fixture() *pipeline.ResultSet {
	return &pipeline.ResultSet{
		Entries: map[string]pipeline.Entry{
			"0x1": entry("0x1", 850, 40, 1.0),
			"0x2": entry("0x2", 720, 20, 0.8),
			"0x3": entry("0x3", 450, 10, 0.5),
			"0x4": entry("0x4", 250, 2, 0),
			"0x5": entry("0x5", 1000, 100, 1.2),
		},
		Quality: features.Quality{
			Records:         180,
			AcceptedWallets: 5,
			OmittedWallets:  1,
			Issues:          map[features.IssueKind]int{features.IssueMalformedPrice: 4},
		},
	}
}

func TestDistribution(t *testing.T) {
	d := distribution([]int{100, 200, 300, 400})
	assert.Equal(t, 4, d.Count)
	assert.Equal(t, 250.0, d.Mean)
	assert.Equal(t, 250.0, d.Median)
	assert.Equal(t, 100, d.Min)
	assert.Equal(t, 400, d.Max)
	assert.InDelta(t, 129.0994, d.Std, 1e-4)

	odd := distribution([]int{1, 5, 9})
	assert.Equal(t, 5.0, odd.Median)

	single := distribution([]int{640})
	assert.Equal(t, 0.0, single.Std)

	assert.Equal(t, Distribution{}, distribution(nil))
}

func TestAnalyze(t *testing.T) {
	a := Analyze(fixture())

	assert.Equal(t, 5, a.Distribution.Count)
	assert.Equal(t, 250, a.Distribution.Min)
	assert.Equal(t, 1000, a.Distribution.Max)
	assert.Equal(t, 720.0, a.Distribution.Median)

	require.Len(t, a.Ranges, 10)
	assert.Equal(t, "0-99", a.Ranges[0].Label())
	assert.Equal(t, "900-1000", a.Ranges[9].Label())
	assert.Equal(t, 1, a.Ranges[2].Count, "250")
	assert.Equal(t, 1, a.Ranges[4].Count, "450")
	assert.Equal(t, 1, a.Ranges[7].Count, "720")
	assert.Equal(t, 1, a.Ranges[8].Count, "850")
	assert.Equal(t, 1, a.Ranges[9].Count, "1000 lands in the top range")

	total := 0
	for _, b := range a.Bands {
		total += b.Count
	}
	assert.Equal(t, 5, total)
	assert.Len(t, a.Bands, len(scoring.Bands))

	require.Len(t, a.Profiles, 3)
	high, mid, low := a.Profiles[0], a.Profiles[1], a.Profiles[2]
	assert.Equal(t, 3, high.Count)
	assert.InDelta(t, (40+20+100)/3.0, high.AvgTransactions, 1e-9)
	assert.Equal(t, 1, mid.Count)
	assert.Equal(t, 1, low.Count)
	assert.Equal(t, 0.0, low.AvgRepaymentRatio)
}

func TestAnalyze_Empty(t *testing.T) {
	a := Analyze(&pipeline.ResultSet{Entries: map[string]pipeline.Entry{}, Quality: features.NewQuality()})
	assert.Zero(t, a.Distribution.Count)
	for _, p := range a.Profiles {
		assert.Zero(t, p.Count)
	}
	assert.Contains(t, RenderMarkdown(a), "No wallets scored.")
}

func scoredRun(t *testing.T) (*pipeline.ResultSet, *scoring.Engine) {
	t.Helper()
	engine, err := scoring.NewEngine(scoring.DefaultConfig())
	require.NoError(t, err)

	price := decimal.NewNullDecimal(decimal.NewFromInt(1))
	amount := func(s string) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.RequireFromString(s)) }
	evs := []events.Event{
		{Wallet: "0xa", Action: events.ActionDeposit, Timestamp: 1_600_000_000, Amount: amount("5000"), AssetSymbol: "USDC", PriceUSD: price},
		{Wallet: "0xa", Action: events.ActionBorrow, Timestamp: 1_600_100_000, Amount: amount("2000"), AssetSymbol: "DAI", PriceUSD: price},
		{Wallet: "0xa", Action: events.ActionRepay, Timestamp: 1_600_900_000, Amount: amount("2000"), AssetSymbol: "DAI", PriceUSD: price},
		{Wallet: "0xb", Action: events.ActionDeposit, Timestamp: 1_600_000_000, Amount: amount("10"), AssetSymbol: "USDC", PriceUSD: price},
	}
	rs, err := pipeline.New(engine, pipeline.WithWorkers(2)).Run(context.Background(), evs)
	require.NoError(t, err)
	return rs, engine
}

func TestWriteScoresCSV(t *testing.T) {
	rs, engine := scoredRun(t)

	var buf bytes.Buffer
	require.NoError(t, WriteScoresCSV(&buf, rs, engine))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, scoresHeader, rows[0])
	assert.Equal(t, rs.Wallets()[0], rows[1][0], "highest score first")
	assert.Equal(t, "0xa", rows[1][0])
	assert.Equal(t, "0xb", rows[2][0])

	a, _ := rs.Get("0xa")
	assert.Equal(t, string(a.Score.Band), rows[1][8])
}

func TestWriteDetailedCSV(t *testing.T) {
	rs, _ := scoredRun(t)

	var buf bytes.Buffer
	require.NoError(t, WriteDetailedCSV(&buf, rs))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Len(t, row, len(detailedHeader))
	}
	assert.Equal(t, "3", rows[1][11], "total_transactions of 0xa")
	assert.Equal(t, "1.000000", rows[1][27], "repayment_ratio of 0xa")
}

func TestWriteFiles(t *testing.T) {
	rs, engine := scoredRun(t)
	a := Analyze(rs)
	a.RunID = "run_test"

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteFiles(dir, rs, engine, a)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	for _, name := range []string{ScoresFile, DetailedFile, AnalysisFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}

	md, err := os.ReadFile(filepath.Join(dir, AnalysisFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), "`run_test`")
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(Analyze(fixture()))

	for _, section := range []string{
		"# Wallet Credit Score Analysis",
		"## Score Distribution",
		"## Score Ranges",
		"## Risk Bands",
		"## Behaviour Profiles",
		"## Data Quality",
	} {
		assert.Contains(t, md, section)
	}
	assert.Contains(t, md, "| Wallets | 5 |")
	assert.Contains(t, md, "| 900-1000 | 1 | 20.0% |")
	assert.Contains(t, md, "| malformed_price | 4 |")
	assert.True(t, strings.Contains(md, "high (>= 700)"))
}
