package store

import (
	"context"
	"strings"
	"sync"

	"github.com/mbd888/walletscore/internal/pipeline"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory run store for development and tests.
type MemoryStore struct {
	runs   map[string]*Run
	order  []string            // run IDs, oldest first
	ranked map[string][]string // run ID -> wallets in score order
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*Run),
		ranked: make(map[string][]string),
	}
}

func (m *MemoryStore) SaveRun(ctx context.Context, run *Run) error {
	if err := validateRun(run); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; ok {
		return ErrRunExists
	}
	cp := *run
	m.runs[run.ID] = &cp
	m.order = append(m.order, run.ID)
	m.ranked[run.ID] = run.Result.Wallets()
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return summary(run), nil
}

func (m *MemoryStore) LatestRun(ctx context.Context) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.order) == 0 {
		return nil, ErrRunNotFound
	}
	return summary(m.runs[m.order[len(m.order)-1]]), nil
}

func (m *MemoryStore) ListScores(ctx context.Context, runID string, limit, offset int) ([]*WalletScore, error) {
	limit, offset = ClampPage(limit, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	wallets := m.ranked[runID]
	if offset >= len(wallets) {
		return []*WalletScore{}, nil
	}
	end := offset + limit
	if end > len(wallets) {
		end = len(wallets)
	}

	out := make([]*WalletScore, 0, end-offset)
	for _, w := range wallets[offset:end] {
		out = append(out, walletScore(runID, run.Result.Entries[w]))
	}
	return out, nil
}

func (m *MemoryStore) GetWalletScore(ctx context.Context, runID, wallet string) (*WalletScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	if e, ok := run.Result.Get(wallet); ok {
		return walletScore(runID, e), nil
	}
	// Hex addresses are stored lower-cased.
	if e, ok := run.Result.Get(strings.ToLower(wallet)); ok {
		return walletScore(runID, e), nil
	}
	return nil, ErrWalletNotFound
}

func (m *MemoryStore) LoadResult(ctx context.Context, runID string) (*pipeline.ResultSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Result, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func summary(run *Run) *Run {
	cp := *run
	cp.Result = nil
	return &cp
}

func walletScore(runID string, e pipeline.Entry) *WalletScore {
	return &WalletScore{
		RunID:    runID,
		Wallet:   e.Score.Wallet,
		Score:    e.Score.Score,
		Band:     e.Score.Band,
		Record:   e.Score,
		Features: e.Features,
	}
}
