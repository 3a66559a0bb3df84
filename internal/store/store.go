// Package store persists finished scoring runs.
//
// A run is written once, after the pipeline completes, and never updated.
// Nothing read from the store feeds back into a later run.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/walletscore/internal/features"
	"github.com/mbd888/walletscore/internal/idgen"
	"github.com/mbd888/walletscore/internal/pipeline"
	"github.com/mbd888/walletscore/internal/scoring"
)

var (
	ErrRunNotFound    = errors.New("scoring run not found")
	ErrWalletNotFound = errors.New("wallet not scored in run")
	ErrRunExists      = errors.New("scoring run already exists")
	ErrEmptyRun       = errors.New("scoring run has no result")
)

// Default and maximum page sizes for ListScores.
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// Run is the stored summary of one pipeline run.
type Run struct {
	ID             string           `json:"id"`
	CreatedAt      time.Time        `json:"createdAt"`
	Records        int              `json:"records"`
	Wallets        int              `json:"wallets"`
	OmittedWallets int              `json:"omittedWallets"`
	Quality        features.Quality `json:"quality"`

	// Result is only populated on the run passed to SaveRun.
	Result *pipeline.ResultSet `json:"-"`
}

// NewRunID returns a fresh run identifier. Later runs sort after earlier ones.
func NewRunID() string {
	return idgen.Sortable("run_", time.Now())
}

// NewRun wraps a finished result set in a Run with a fresh ID.
func NewRun(rs *pipeline.ResultSet) *Run {
	return &Run{
		ID:             NewRunID(),
		CreatedAt:      time.Now().UTC(),
		Records:        rs.Quality.Records,
		Wallets:        rs.Len(),
		OmittedWallets: rs.Quality.OmittedWallets,
		Quality:        rs.Quality,
		Result:         rs,
	}
}

// WalletScore is one wallet's stored result within a run.
type WalletScore struct {
	RunID    string           `json:"runId"`
	Wallet   string           `json:"wallet"`
	Score    int              `json:"score"`
	Band     scoring.Band     `json:"band"`
	Record   *scoring.Record  `json:"record"`
	Features *features.Vector `json:"features"`
}

// Store persists scoring runs.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	LatestRun(ctx context.Context) (*Run, error)
	// ListScores returns a run's wallets ordered by score descending, then wallet.
	ListScores(ctx context.Context, runID string, limit, offset int) ([]*WalletScore, error)
	GetWalletScore(ctx context.Context, runID, wallet string) (*WalletScore, error)
	// LoadResult rebuilds the full result set of a run.
	LoadResult(ctx context.Context, runID string) (*pipeline.ResultSet, error)
	Ping(ctx context.Context) error
}

// ClampPage normalizes limit and offset for ListScores.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func validateRun(run *Run) error {
	if run == nil || run.Result == nil {
		return ErrEmptyRun
	}
	return nil
}
