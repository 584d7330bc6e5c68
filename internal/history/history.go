// Package history persists scenario evaluations to SQLite so yield trends
// survive restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/obsidianstack/partyield/internal/compute"
	"github.com/obsidianstack/partyield/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	scenario_id      TEXT NOT NULL,
	ei               REAL NOT NULL,
	es               REAL NOT NULL,
	nx               REAL NOT NULL,
	o                REAL NOT NULL,
	resolution       INTEGER NOT NULL,
	suitable_pct     REAL NOT NULL,
	incorrigible_pct REAL NOT NULL,
	fixable_pct      REAL NOT NULL,
	state            TEXT NOT NULL,
	error            TEXT,
	recorded_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_scenario_time ON runs (scenario_id, recorded_at);
`

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

// Run is one recorded evaluation.
type Run struct {
	ID         string       `json:"id"`
	ScenarioID string       `json:"scenario_id"`
	Params     types.Params `json:"params"`
	Resolution int          `json:"resolution"`
	Yield      types.Yield  `json:"yield"`
	State      string       `json:"state"`
	Error      string       `json:"error,omitempty"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Store manages run history in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history: path is required")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts res as a new run and returns it.
func (s *Store) Record(ctx context.Context, res *compute.Result) (Run, error) {
	r := Run{
		ID:         uuid.NewString(),
		ScenarioID: res.ScenarioID,
		Params:     res.Analysis.Params,
		Resolution: res.Analysis.Resolution,
		Yield:      res.Analysis.Yield,
		State:      res.State(),
		Error:      res.ErrorMessage,
		RecordedAt: res.Timestamp.UTC().Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario_id, ei, es, nx, o, resolution,
		   suitable_pct, incorrigible_pct, fixable_pct, state, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ScenarioID,
		r.Params.EI, r.Params.ES, r.Params.NX, r.Params.O, r.Resolution,
		r.Yield.Suitable, r.Yield.Incorrigible, r.Yield.Fixable,
		r.State, r.Error, r.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("history: insert run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs for scenario, newest first. An empty
// scenario lists runs of every scenario.
func (s *Store) List(ctx context.Context, scenario string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scenario_id, ei, es, nx, o, resolution,
		        suitable_pct, incorrigible_pct, fixable_pct, state, error, recorded_at
		   FROM runs
		  WHERE (? = '' OR scenario_id = ?)
		  ORDER BY recorded_at DESC, id
		  LIMIT ?`,
		scenario, scenario, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r      Run
			errMsg sql.NullString
			millis int64
		)
		if err := rows.Scan(&r.ID, &r.ScenarioID,
			&r.Params.EI, &r.Params.ES, &r.Params.NX, &r.Params.O, &r.Resolution,
			&r.Yield.Suitable, &r.Yield.Incorrigible, &r.Yield.Fixable,
			&r.State, &errMsg, &millis); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.Error = errMsg.String
		r.RecordedAt = time.UnixMilli(millis).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}
	return out, nil
}

// Prune deletes runs recorded before the cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE recorded_at < ?`, before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return n, nil
}

// RunRetention prunes runs older than retention once at start and then every
// interval until ctx is cancelled. A non-positive retention keeps everything.
func (s *Store) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		<-ctx.Done()
		return
	}
	prune := func() {
		n, err := s.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Warn("history: prune failed", "err", err)
			return
		}
		if n > 0 {
			slog.Info("history: pruned runs", "count", n)
		}
	}

	prune()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			prune()
		}
	}
}
