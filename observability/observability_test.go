package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTest(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMetricsRecordAndQuery(t *testing.T) {
	db := openTest(t)
	m := NewMetrics(db, 100, time.Hour)
	defer m.Close()

	m.RecordDuration("prepare_duration", 1500*time.Millisecond, map[string]string{"format": "docx"})
	m.Record("submission_outcome", 1, "count", map[string]string{"status": "confirmed"})
	m.Flush()

	got, err := m.Query(context.Background(), "prepare_duration", time.Time{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d datapoints, want 1", len(got))
	}
	if got[0].Value != 1500 {
		t.Errorf("value = %v, want 1500", got[0].Value)
	}
	if got[0].Labels["format"] != "docx" {
		t.Errorf("labels = %v", got[0].Labels)
	}
}

func TestMetricsBufferFlushesOnOverflow(t *testing.T) {
	db := openTest(t)
	m := NewMetrics(db, 2, time.Hour)
	defer m.Close()

	m.Record("a", 1, "count", nil)
	m.Record("a", 2, "count", nil) // hits bufferSize, flushes synchronously

	got, err := m.Query(context.Background(), "a", time.Time{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d datapoints, want 2", len(got))
	}
}

func TestHeartbeatWrite(t *testing.T) {
	db := openTest(t)
	h := NewHeartbeat(db, "sigprep", time.Hour)
	if err := h.Write(); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM worker_heartbeats WHERE worker_name = 'sigprep'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("heartbeat rows = %d, want 1", count)
	}
}
