package pipeline

import (
	"sort"

	"github.com/mbd888/walletscore/internal/features"
	"github.com/mbd888/walletscore/internal/scoring"
)

// Entry pairs a wallet's finalized features with its score.
type Entry struct {
	Features *features.Vector `json:"features"`
	Score    *scoring.Record  `json:"score"`
}

// ResultSet is the output of one run: every wallet with at least one valid
// record, plus the run's data-quality summary. It is not modified after Run
// returns.
type ResultSet struct {
	Entries map[string]Entry `json:"entries"`
	Quality features.Quality `json:"quality"`
}

// Len returns the number of scored wallets.
func (rs *ResultSet) Len() int {
	return len(rs.Entries)
}

// Get returns the entry for wallet.
func (rs *ResultSet) Get(wallet string) (Entry, bool) {
	e, ok := rs.Entries[wallet]
	return e, ok
}

// Wallets returns wallet identifiers ordered by score descending, ties
// broken by wallet ascending.
func (rs *ResultSet) Wallets() []string {
	out := make([]string, 0, len(rs.Entries))
	for w := range rs.Entries {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := rs.Entries[out[i]].Score.Score, rs.Entries[out[j]].Score.Score
		if a != b {
			return a > b
		}
		return out[i] < out[j]
	})
	return out
}

// Ordered returns the entries in Wallets order.
func (rs *ResultSet) Ordered() []Entry {
	wallets := rs.Wallets()
	out := make([]Entry, len(wallets))
	for i, w := range wallets {
		out[i] = rs.Entries[w]
	}
	return out
}

// Scores returns the final score per wallet.
func (rs *ResultSet) Scores() []int {
	out := make([]int, 0, len(rs.Entries))
	for _, e := range rs.Entries {
		out = append(out, e.Score.Score)
	}
	sort.Ints(out)
	return out
}
