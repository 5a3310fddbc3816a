// Package store persists candidate performance statistics in a local
// SQLite database so routing quality survives restarts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Register the modernc sqlite driver under the name "sqlite".
	_ "modernc.org/sqlite"

	"github.com/zen-systems/quorum/pkg/registry"
	"github.com/zen-systems/quorum/pkg/schema"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS candidate_stats (
	key            TEXT PRIMARY KEY,
	avg_latency_ms REAL NOT NULL,
	has_latency    INTEGER NOT NULL,
	window         TEXT NOT NULL,
	available      INTEGER NOT NULL,
	updated_at     TEXT NOT NULL
);`

// Store is a SQLite-backed snapshot of registry statistics.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the stats database at path. The parent
// directory is created if missing. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create stats directory: %w", err)
		}
	}

	// PRAGMAs ride the DSN; modernc.org/sqlite applies them per
	// connection. WAL keeps concurrent readers cheap, the busy
	// timeout absorbs burst writes.
	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open stats db %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping stats db %q: %w", path, err)
	}
	if _, err := db.Exec(statsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create stats schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts one row per candidate. Rows for candidates no longer
// registered are left in place; restores ignore unknown keys.
func (s *Store) Save(stats []registry.CandidateStats) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin stats save: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
INSERT INTO candidate_stats (key, avg_latency_ms, has_latency, window, available, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	avg_latency_ms = excluded.avg_latency_ms,
	has_latency    = excluded.has_latency,
	window         = excluded.window,
	available      = excluded.available,
	updated_at     = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare stats upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range stats {
		updatedAt := st.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		_, err := stmt.Exec(
			string(st.Key),
			st.AvgLatencyMs,
			boolToInt(st.HasLatency),
			encodeWindow(st.Window),
			boolToInt(st.Available),
			updatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("save stats for %s: %w", st.Key, err)
		}
	}
	return tx.Commit()
}

// Load reads every persisted row, ready for Registry.RestoreStats.
func (s *Store) Load() ([]registry.CandidateStats, error) {
	rows, err := s.db.Query(`
SELECT key, avg_latency_ms, has_latency, window, available, updated_at
FROM candidate_stats ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	defer rows.Close()

	var out []registry.CandidateStats
	for rows.Next() {
		var (
			key        string
			latency    float64
			hasLatency int
			window     string
			available  int
			updatedAt  string
		)
		if err := rows.Scan(&key, &latency, &hasLatency, &window, &available, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		st := registry.CandidateStats{
			Key:          schema.Key(key),
			AvgLatencyMs: latency,
			HasLatency:   hasLatency != 0,
			Window:       decodeWindow(window),
			Available:    available != 0,
		}
		if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			st.UpdatedAt = ts
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats rows: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeWindow packs outcomes as a string of '1' and '0', oldest first.
func encodeWindow(window []bool) string {
	var b strings.Builder
	b.Grow(len(window))
	for _, success := range window {
		if success {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func decodeWindow(encoded string) []bool {
	if encoded == "" {
		return nil
	}
	out := make([]bool, 0, len(encoded))
	for i := 0; i < len(encoded); i++ {
		out = append(out, encoded[i] == '1')
	}
	return out
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
