package downloader

import (
	"fmt"
	"sync"
	"time"

	"courtscraper/pkg/cache"
	"courtscraper/pkg/logger"
	"courtscraper/pkg/tracker"
)

// Snapshot is a point-in-time view of download progress, combining the run's
// counters with the state of the cache and the failure tracker
type Snapshot struct {
	ItemsProcessed   int
	AssetsDownloaded int
	Errors           int
	Cache            cache.Stats
	Failed           tracker.Stats
}

// StatsSource supplies the current progress counters
type StatsSource func() Snapshot

// Monitor logs periodic progress reports with per-minute throughput rates
// computed from the deltas between reports.
type Monitor struct {
	interval time.Duration
	source   StatsSource
	log      logger.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started time.Time
}

// NewMonitor creates a progress monitor
func NewMonitor(interval time.Duration, source StatsSource, log logger.Logger) *Monitor {
	return &Monitor{
		interval: interval,
		source:   source,
		log:      log,
	}
}

// Start launches the reporting goroutine. Starting an already running
// monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}

	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.started = time.Now()

	go m.run(m.stop, m.done)
}

// Stop halts reporting and waits for the goroutine to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	last := m.source()
	lastAt := time.Now()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			cur := m.source()
			mins := now.Sub(lastAt).Minutes()

			var itemRate, assetRate float64
			if mins > 0 {
				itemRate = float64(cur.ItemsProcessed-last.ItemsProcessed) / mins
				assetRate = float64(cur.AssetsDownloaded-last.AssetsDownloaded) / mins
			}

			m.log.InfoWithFields("download progress", map[string]interface{}{
				"items_processed":   cur.ItemsProcessed,
				"assets_downloaded": cur.AssetsDownloaded,
				"errors":            cur.Errors,
				"items_per_min":     fmt.Sprintf("%.1f", itemRate),
				"assets_per_min":    fmt.Sprintf("%.1f", assetRate),
				"cached_cases":      cur.Cache.Records,
				"cached_audio":      cur.Cache.Assets,
				"cached_lists":      cur.Cache.Lists,
				"cache_bytes":       cur.Cache.AssetBytes,
				"failed_items":      cur.Failed.TotalFailed,
				"elapsed":           formatDuration(now.Sub(m.started)),
			})

			last = cur
			lastAt = now
		}
	}
}

// formatDuration renders a duration as h:mm:ss
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
