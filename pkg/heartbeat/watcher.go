package heartbeat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyvo/heartbeat/pkg/registry"
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Threshold time.Duration
	Interval  time.Duration
	Logger    *zap.Logger
	Metrics   Metrics
}

// Watcher periodically reports clients whose heartbeats have stopped.
// It only reads the registry.
type Watcher struct {
	registry  *registry.Registry
	threshold time.Duration
	interval  time.Duration
	logger    *zap.Logger
	metrics   Metrics

	mu     sync.Mutex
	silent map[string]time.Time
}

// NewWatcher builds a watcher over reg. Zero options fall back to a 30s
// threshold checked every 10s.
func NewWatcher(reg *registry.Registry, opts WatcherOptions) *Watcher {
	w := &Watcher{
		registry:  reg,
		threshold: opts.Threshold,
		interval:  opts.Interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		silent:    map[string]time.Time{},
	}
	if w.threshold <= 0 {
		w.threshold = 30 * time.Second
	}
	if w.interval <= 0 {
		w.interval = 10 * time.Second
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.metrics == nil {
		w.metrics = nopMetrics{}
	}
	return w
}

// Run checks the registry every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			w.Check(now)
		}
	}
}

// Check returns the clients silent at now and logs transitions since the
// previous check.
func (w *Watcher) Check(now time.Time) []registry.Entry {
	silent := w.registry.Silent(w.threshold, now)

	current := make(map[string]time.Time, len(silent))
	for _, entry := range silent {
		current[entry.Name] = entry.LastSeen
	}

	w.mu.Lock()
	for _, entry := range silent {
		if _, seen := w.silent[entry.Name]; !seen {
			w.logger.Warn("client went silent",
				zap.String("name", entry.Name),
				zap.Time("last_seen", entry.LastSeen),
				zap.Duration("silent_for", now.Sub(entry.LastSeen)),
			)
		}
	}
	for name := range w.silent {
		if _, still := current[name]; !still {
			w.logger.Info("client resumed", zap.String("name", name))
		}
	}
	w.silent = current
	w.mu.Unlock()

	w.metrics.SetTrackedClients(w.registry.Len())
	w.metrics.SetSilentClients(len(silent))

	return silent
}
