// Package observability provides SQLite-native service monitoring: a
// buffered timeseries metrics writer and a worker heartbeat.
//
// Everything writes to a dedicated observability database, kept separate
// from the document store to avoid write contention. Persistence is async
// and non-blocking; a full buffer flushes early rather than applying
// backpressure to the pipeline.
package observability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

const schema = `
CREATE TABLE IF NOT EXISTS metrics_timeseries (
	metric_id   TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
	metric_name TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	value       REAL NOT NULL,
	labels      TEXT,
	unit        TEXT,
	created_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
	ON metrics_timeseries(metric_name, timestamp DESC);

CREATE TABLE IF NOT EXISTS worker_heartbeats (
	heartbeat_id     TEXT PRIMARY KEY DEFAULT ('hb_' || hex(randomblob(16))),
	worker_name      TEXT NOT NULL,
	hostname         TEXT NOT NULL,
	worker_pid       INTEGER NOT NULL,
	timestamp        INTEGER NOT NULL,
	goroutines_count INTEGER,
	memory_alloc_mb  REAL,
	gc_count         INTEGER,
	created_at       INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
	ON worker_heartbeats(worker_name, timestamp DESC);
`

// Open opens (creating directories as needed) the observability database
// and applies the schema.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("observability: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("observability: open: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 10000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("observability: pragmas: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("observability: schema: %w", err)
	}
	return db, nil
}
