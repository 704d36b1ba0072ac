// Package worker runs the background jobs of the ticketing service.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Expirer expires PENDING orders whose hold has lapsed.
// *service.OrderService implements it.
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time, limit int) (int, error)
}

// ExpiryConfig controls the expiry worker.
type ExpiryConfig struct {
	// ScanInterval is the time between scans.
	ScanInterval time.Duration
	// BatchSize caps the orders expired per scan.
	BatchSize int
}

// DefaultExpiryConfig returns the defaults used when no config is given.
func DefaultExpiryConfig() ExpiryConfig {
	return ExpiryConfig{ScanInterval: 30 * time.Second, BatchSize: 100}
}

// ExpiryStats is a snapshot of worker activity.
type ExpiryStats struct {
	IsRunning        bool      `json:"is_running"`
	Scans            int64     `json:"scans"`
	TotalExpired     int64     `json:"total_expired"`
	Failures         int64     `json:"failures"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}

// ExpiryWorker releases the seats of abandoned checkouts by expiring stale
// PENDING orders on a fixed interval.
type ExpiryWorker struct {
	orders Expirer
	cfg    ExpiryConfig
	log    *zap.Logger
	now    func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stats   ExpiryStats
}

// NewExpiryWorker returns a stopped worker.
func NewExpiryWorker(orders Expirer, cfg ExpiryConfig, log *zap.Logger) *ExpiryWorker {
	def := DefaultExpiryConfig()
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = def.ScanInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpiryWorker{orders: orders, cfg: cfg, log: log.Named("expiry"), now: time.Now}
}

// Start launches the scan loop.  The first scan runs immediately.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("expiry worker already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.log.Info("expiry worker started",
		zap.Duration("interval", w.cfg.ScanInterval),
		zap.Int("batch_size", w.cfg.BatchSize),
	)
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends the scan loop and waits for an in-flight scan to finish.
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	w.log.Info("expiry worker stopped")
}

func (w *ExpiryWorker) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

// scan runs one expiry pass.
func (w *ExpiryWorker) scan(ctx context.Context) {
	now := w.now().UTC()
	n, err := w.orders.ExpireStale(ctx, now, w.cfg.BatchSize)

	w.mu.Lock()
	w.stats.Scans++
	w.stats.LastScanTime = now
	if err != nil {
		w.stats.Failures++
	} else {
		w.stats.LastExpiredCount = n
		w.stats.TotalExpired += int64(n)
	}
	w.mu.Unlock()

	switch {
	case err != nil:
		w.log.Error("expiry scan failed", zap.Error(err))
	case n > 0:
		w.log.Info("expired stale orders", zap.Int("count", n))
	}
}

// Stats returns a snapshot of the worker counters.
func (w *ExpiryWorker) Stats() ExpiryStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.IsRunning = w.running
	return s
}
