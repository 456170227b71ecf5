package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Heartbeat writes periodic liveness rows with Go runtime stats.
type Heartbeat struct {
	db       *sql.DB
	worker   string
	hostname string
	pid      int
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeat creates a heartbeat writer. Zero interval defaults to 15s.
func NewHeartbeat(db *sql.DB, worker string, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Heartbeat{
		db:       db,
		worker:   worker,
		hostname: hostname,
		pid:      os.Getpid(),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the heartbeat goroutine. It writes once immediately, then
// repeats until Stop or context cancellation.
func (h *Heartbeat) Start(ctx context.Context) {
	go h.loop(ctx)
}

// Write records one heartbeat row now.
func (h *Heartbeat) Write() error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	_, err := h.db.Exec(`
		INSERT INTO worker_heartbeats
			(worker_name, hostname, worker_pid, timestamp, goroutines_count, memory_alloc_mb, gc_count)
		VALUES (?,?,?,?,?,?,?)`,
		h.worker, h.hostname, h.pid, time.Now().Unix(),
		runtime.NumGoroutine(), float64(mem.Alloc)/1024/1024, mem.NumGC)
	if err != nil {
		return fmt.Errorf("insert heartbeat: %w", err)
	}
	return nil
}

// Stop signals the goroutine to exit and waits for it.
func (h *Heartbeat) Stop() {
	close(h.stop)
	<-h.done
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.Write(); err != nil {
		slog.Error("heartbeat write failed", "error", err, "worker", h.worker)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case <-ticker.C:
			if err := h.Write(); err != nil {
				slog.Error("heartbeat write failed", "error", err, "worker", h.worker)
			}
		}
	}
}
