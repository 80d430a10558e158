package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"modsync/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	tenant      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	success     INTEGER NOT NULL,
	installed   INTEGER NOT NULL,
	already     INTEGER NOT NULL,
	unavailable INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	outcomes    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs (tenant, started_at DESC);
`

// Store persists reconciliation run history in a local SQLite database.
// It implements engine.RunRecorder.
type Store struct {
	conn *sql.DB
	path string
}

// RunRecord is one persisted reconciliation run.
type RunRecord struct {
	RunID       string
	Tenant      string
	Started     time.Time
	Duration    time.Duration
	Success     bool
	Installed   int
	Already     int
	Unavailable int
	Skipped     int
	Failed      int
	Outcomes    map[string]engine.Outcome
}

// Open opens (or creates) the history database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite works best with a single writer connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	store := &Store{conn: conn, path: dbPath}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history migration failed: %w", err)
	}
	return store, nil
}

// migrate applies the schema.
func (s *Store) migrate() error {
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// RecordRun implements engine.RunRecorder.
func (s *Store) RecordRun(ctx context.Context, result *engine.Result) error {
	outcomes, err := json.Marshal(result.Outcomes())
	if err != nil {
		return fmt.Errorf("failed to encode outcomes for run %s: %w", result.RunID, err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO runs (run_id, tenant, started_at, duration_ms, success,
			installed, already, unavailable, skipped, failed, outcomes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID,
		result.Tenant,
		result.Started.UnixMilli(),
		result.Duration.Milliseconds(),
		boolToInt(result.Success),
		len(result.Installed),
		len(result.AlreadyInstalled),
		len(result.Unavailable),
		len(result.Skipped)+len(result.Cancelled),
		len(result.Failed),
		string(outcomes),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", result.RunID, err)
	}
	return nil
}

// RecentRuns returns the most recent runs for a tenant, newest first. An
// empty tenant returns runs across all tenants.
func (s *Store) RecentRuns(ctx context.Context, tenant string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_id, tenant, started_at, duration_ms, success,
			installed, already, unavailable, skipped, failed, outcomes
		FROM runs`
	args := []interface{}{}
	if tenant != "" {
		query += " WHERE tenant = ?"
		args = append(args, tenant)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			startedMs  int64
			durationMs int64
			success    int
			outcomes   string
		)
		if err := rows.Scan(&rec.RunID, &rec.Tenant, &startedMs, &durationMs, &success,
			&rec.Installed, &rec.Already, &rec.Unavailable, &rec.Skipped, &rec.Failed, &outcomes); err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		rec.Started = time.UnixMilli(startedMs)
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.Success = success != 0
		if err := json.Unmarshal([]byte(outcomes), &rec.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes for run %s: %w", rec.RunID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
