package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/mbd888/walletscore/internal/features"
	"github.com/mbd888/walletscore/internal/logging"
	"github.com/mbd888/walletscore/internal/pipeline"
	"github.com/mbd888/walletscore/internal/retry"
	"github.com/mbd888/walletscore/internal/scoring"
	"github.com/mbd888/walletscore/internal/traces"
	"github.com/mbd888/walletscore/migrations"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens a pooled connection to dsn and waits for the database
// to accept connections, retrying with backoff.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	policy := retry.Policy{
		Attempts:  6,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logging.L(ctx).Warn("database not reachable, retrying",
				"attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err)
		},
	}
	err = policy.Do(ctx, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewPostgresStore creates a new PostgreSQL-backed run store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies every pending migration.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, p.db, migrations.FS)
	if err != nil {
		return fmt.Errorf("migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SaveRun writes the run and every wallet score in one transaction.
func (p *PostgresStore) SaveRun(ctx context.Context, run *Run) (err error) {
	if err := validateRun(run); err != nil {
		return err
	}
	ctx, span := traces.StartSpan(ctx, "store.SaveRun", traces.RunID(run.ID), traces.Wallets(run.Wallets))
	defer func() {
		traces.RecordError(span, err)
		span.End()
	}()

	quality, err := json.Marshal(run.Quality)
	if err != nil {
		return fmt.Errorf("encode quality: %w", err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO score_runs (id, created_at, records, wallets, omitted_wallets, quality)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.CreatedAt, run.Records, run.Wallets, run.OmittedWallets, quality)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrRunExists
		}
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("wallet_scores",
		"run_id", "wallet", "score", "band", "base_score", "penalty",
		"activity", "risk", "reliability", "sophistication", "record", "features"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for _, e := range run.Result.Ordered() {
		rec, err := json.Marshal(e.Score)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", e.Score.Wallet, err)
		}
		feat, err := json.Marshal(e.Features)
		if err != nil {
			return fmt.Errorf("encode features %s: %w", e.Score.Wallet, err)
		}
		r := e.Score
		if _, err := stmt.ExecContext(ctx, run.ID, r.Wallet, r.Score, string(r.Band), r.Base, r.Penalty,
			r.Activity, r.Risk, r.Reliability, r.Sophistication, string(rec), string(feat)); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy wallet score: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	return tx.Commit()
}

const runColumns = `id, created_at, records, wallets, omitted_wallets, quality`

// GetRun retrieves a run summary by ID.
func (p *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM score_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestRun retrieves the most recently created run.
func (p *PostgresStore) LatestRun(ctx context.Context) (*Run, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM score_runs
		ORDER BY created_at DESC, id DESC LIMIT 1
	`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ListScores returns one page of a run's wallet scores, best first.
func (p *PostgresStore) ListScores(ctx context.Context, runID string, limit, offset int) ([]*WalletScore, error) {
	if err := p.runExists(ctx, runID); err != nil {
		return nil, err
	}
	limit, offset = ClampPage(limit, offset)

	rows, err := p.db.QueryContext(ctx, `
		SELECT run_id, record, features FROM wallet_scores
		WHERE run_id = $1
		ORDER BY score DESC, wallet ASC
		LIMIT $2 OFFSET $3
	`, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*WalletScore{}
	for rows.Next() {
		ws, err := scanWalletScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// GetWalletScore retrieves one wallet's score within a run.
func (p *PostgresStore) GetWalletScore(ctx context.Context, runID, wallet string) (*WalletScore, error) {
	if err := p.runExists(ctx, runID); err != nil {
		return nil, err
	}
	row := p.db.QueryRowContext(ctx, `
		SELECT run_id, record, features FROM wallet_scores
		WHERE run_id = $1 AND (wallet = $2 OR wallet = $3)
		ORDER BY wallet = $2 DESC
		LIMIT 1
	`, runID, wallet, strings.ToLower(wallet))
	ws, err := scanWalletScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// LoadResult rebuilds the full result set of a run.
func (p *PostgresStore) LoadResult(ctx context.Context, runID string) (*pipeline.ResultSet, error) {
	run, err := p.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT run_id, record, features FROM wallet_scores WHERE run_id = $1
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rs := &pipeline.ResultSet{
		Entries: make(map[string]pipeline.Entry, run.Wallets),
		Quality: run.Quality,
	}
	for rows.Next() {
		ws, err := scanWalletScore(rows)
		if err != nil {
			return nil, err
		}
		rs.Entries[ws.Wallet] = pipeline.Entry{Features: ws.Features, Score: ws.Record}
	}
	return rs, rows.Err()
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) runExists(ctx context.Context, runID string) error {
	var exists bool
	err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM score_runs WHERE id = $1)`, runID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check run: %w", err)
	}
	if !exists {
		return ErrRunNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run     Run
		quality []byte
	)
	if err := row.Scan(&run.ID, &run.CreatedAt, &run.Records, &run.Wallets, &run.OmittedWallets, &quality); err != nil {
		return nil, err
	}
	run.Quality = features.NewQuality()
	if err := json.Unmarshal(quality, &run.Quality); err != nil {
		return nil, fmt.Errorf("decode quality: %w", err)
	}
	if run.Quality.Issues == nil {
		run.Quality.Issues = make(map[features.IssueKind]int)
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return &run, nil
}

func scanWalletScore(row scanner) (*WalletScore, error) {
	var (
		runID     string
		rec, feat []byte
	)
	if err := row.Scan(&runID, &rec, &feat); err != nil {
		return nil, err
	}
	ws := &WalletScore{RunID: runID, Record: &scoring.Record{}, Features: &features.Vector{}}
	if err := json.Unmarshal(rec, ws.Record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(feat, ws.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	ws.Wallet = ws.Record.Wallet
	ws.Score = ws.Record.Score
	ws.Band = ws.Record.Band
	return ws, nil
}
