package features

import "sort"

// IssueKind classifies a non-fatal data-quality problem.
type IssueKind string

const (
	IssueMalformedAction    IssueKind = "malformed_action"
	IssueMalformedTimestamp IssueKind = "malformed_timestamp"
	IssueMalformedAmount    IssueKind = "malformed_amount"
	IssueMalformedPrice     IssueKind = "malformed_price"
	IssueMissingWallet      IssueKind = "missing_wallet"
	IssueEmptyRecord        IssueKind = "empty_record"
	IssueDegenerateRatio    IssueKind = "degenerate_ratio"
)

// Quality aggregates data-quality issues seen during one extraction.
// Issues are counted, never reported per record.
type Quality struct {
	Records         int               `json:"records"`
	AcceptedWallets int               `json:"acceptedWallets"`
	OmittedWallets  int               `json:"omittedWallets"`
	Issues          map[IssueKind]int `json:"issues"`
}

// NewQuality returns an empty summary.
func NewQuality() Quality {
	return Quality{Issues: make(map[IssueKind]int)}
}

func (q *Quality) add(kind IssueKind) {
	if q.Issues == nil {
		q.Issues = make(map[IssueKind]int)
	}
	q.Issues[kind]++
}

// Total returns the number of issues of every kind.
func (q Quality) Total() int {
	n := 0
	for _, c := range q.Issues {
		n += c
	}
	return n
}

// Merge folds other into q.
func (q *Quality) Merge(other Quality) {
	q.Records += other.Records
	q.AcceptedWallets += other.AcceptedWallets
	q.OmittedWallets += other.OmittedWallets
	for k, c := range other.Issues {
		if q.Issues == nil {
			q.Issues = make(map[IssueKind]int)
		}
		q.Issues[k] += c
	}
}

// Kinds returns the issue kinds present, sorted.
func (q Quality) Kinds() []IssueKind {
	kinds := make([]IssueKind, 0, len(q.Issues))
	for k := range q.Issues {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
