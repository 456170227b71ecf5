package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string // "milliseconds", "count", "bytes"
}

// Metrics buffers datapoints and flushes them to SQLite in batches.
type Metrics struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	buffer        []*Metric
	mu            sync.Mutex
	stop          chan struct{}
	done          chan struct{}
}

// NewMetrics creates a metrics writer. Zero bufferSize and flushInterval
// get the defaults (100 datapoints, 5s).
func NewMetrics(db *sql.DB, bufferSize int, flushInterval time.Duration) *Metrics {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	m := &Metrics{
		db:            db,
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		buffer:        make([]*Metric, 0, bufferSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m
}

// Record queues a datapoint for async persistence. Non-blocking.
func (m *Metrics) Record(name string, value float64, unit string, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, &Metric{
		Name:      name,
		Timestamp: time.Now(),
		Value:     value,
		Labels:    labels,
		Unit:      unit,
	})
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// RecordDuration records an elapsed time in milliseconds.
func (m *Metrics) RecordDuration(name string, d time.Duration, labels map[string]string) {
	m.Record(name, float64(d.Milliseconds()), "milliseconds", labels)
}

// Query retrieves datapoints for one metric, newest first. A zero since
// means unbounded.
func (m *Metrics) Query(ctx context.Context, name string, since time.Time, limit int) ([]*Metric, error) {
	q := `SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE metric_name = ?`
	args := []any{name}
	if !since.IsZero() {
		q += ` AND timestamp >= ?`
		args = append(args, since.Unix())
	}
	q += ` ORDER BY timestamp DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []*Metric
	for rows.Next() {
		var rec Metric
		var ts int64
		var labelsJSON sql.NullString
		if err := rows.Scan(&rec.Name, &ts, &rec.Value, &labelsJSON, &rec.Unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		rec.Timestamp = time.Unix(ts, 0)
		if labelsJSON.Valid {
			var labels map[string]string
			if json.Unmarshal([]byte(labelsJSON.String), &labels) == nil {
				rec.Labels = labels
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Flush persists any buffered datapoints now.
func (m *Metrics) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushLocked()
}

// Close flushes remaining datapoints and stops the background goroutine.
func (m *Metrics) Close() error {
	close(m.stop)
	<-m.done
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("metrics: begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("metrics: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, rec := range m.buffer {
		var labelsJSON sql.NullString
		if len(rec.Labels) > 0 {
			if b, err := json.Marshal(rec.Labels); err == nil {
				labelsJSON = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, rec.Name, rec.Timestamp.Unix(), rec.Value, labelsJSON, rec.Unit); err != nil {
			slog.Error("metrics: insert", "error", err, "metric", rec.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("metrics: commit", "error", err)
		return
	}
	m.buffer = m.buffer[:0]
}
