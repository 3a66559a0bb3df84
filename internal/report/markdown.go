package report

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders an analysis as a Markdown document.
func RenderMarkdown(a *Analysis) string {
	var sb strings.Builder

	sb.WriteString("# Wallet Credit Score Analysis\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", a.GeneratedAt.Format(time.RFC3339)))
	if a.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", a.RunID))
	}

	d := a.Distribution
	sb.WriteString("## Score Distribution\n\n")
	if d.Count == 0 {
		sb.WriteString("No wallets scored.\n\n")
	} else {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Wallets | %d |\n", d.Count))
		sb.WriteString(fmt.Sprintf("| Mean | %.2f |\n", d.Mean))
		sb.WriteString(fmt.Sprintf("| Median | %.2f |\n", d.Median))
		sb.WriteString(fmt.Sprintf("| Std Dev | %.2f |\n", d.Std))
		sb.WriteString(fmt.Sprintf("| Min | %d |\n", d.Min))
		sb.WriteString(fmt.Sprintf("| Max | %d |\n", d.Max))
		sb.WriteString("\n")
	}

	sb.WriteString("## Score Ranges\n\n")
	sb.WriteString("| Range | Wallets | Share |\n")
	sb.WriteString("|-------|---------|-------|\n")
	for _, r := range a.Ranges {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", r.Label(), r.Count, share(r.Count, d.Count)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Risk Bands\n\n")
	sb.WriteString("| Band | Wallets |\n")
	sb.WriteString("|------|---------|\n")
	for _, b := range a.Bands {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", b.Band, b.Count))
	}
	sb.WriteString("\n")

	sb.WriteString("## Behaviour Profiles\n\n")
	sb.WriteString("| Group | Wallets | Avg Txns | Repayment Ratio | Liquidation Ratio | Assets | Deposit Volume (USD) | Age (days) |\n")
	sb.WriteString("|-------|---------|----------|-----------------|-------------------|--------|----------------------|------------|\n")
	for _, p := range a.Profiles {
		sb.WriteString(fmt.Sprintf("| %s | %d | %.1f | %.3f | %.3f | %.2f | %.2f | %.1f |\n",
			p.Name, p.Count, p.AvgTransactions, p.AvgRepaymentRatio, p.AvgLiquidationRatio,
			p.AvgAssetDiversity, p.AvgDepositVolumeUSD, p.AvgAccountAgeDays))
	}
	sb.WriteString("\n")

	q := a.Quality
	sb.WriteString("## Data Quality\n\n")
	sb.WriteString(fmt.Sprintf("Records: %d | Wallets accepted: %d | Wallets omitted: %d\n\n",
		q.Records, q.AcceptedWallets, q.OmittedWallets))
	if q.Total() == 0 {
		sb.WriteString("No data quality issues.\n")
	} else {
		sb.WriteString("| Issue | Count |\n")
		sb.WriteString("|-------|-------|\n")
		for _, kind := range q.Kinds() {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", kind, q.Issues[kind]))
		}
	}

	return sb.String()
}

func share(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}
