// Package downloader orchestrates bulk downloads: it fans case processing
// out over a worker pool, tracks failures for bounded retry rounds, and
// reports progress while running. Individual case failures never abort a
// batch; only failing to enumerate the batch itself does.
package downloader

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"courtscraper/pkg/cases"
	"courtscraper/pkg/config"
	"courtscraper/pkg/logger"
	"courtscraper/pkg/retry"
	"courtscraper/pkg/scraper"
	"courtscraper/pkg/tracker"
)

// Options adjusts orchestration behavior
type Options struct {
	// DryRun enumerates what would be downloaded without fetching case
	// details or audio
	DryRun bool
}

// Result summarizes a completed download operation
type Result struct {
	Planned          int
	ItemsProcessed   int
	AssetsDownloaded int
	Errors           int
	Failed           tracker.Stats
	Elapsed          time.Duration
}

// Service runs bulk download operations
type Service struct {
	scraper *scraper.Service
	tracker *tracker.FailureTracker
	cfg     config.DownloadConfig
	opts    Options
	log     logger.Logger

	mu               sync.Mutex
	itemsProcessed   int
	assetsDownloaded int
	errors           int
}

// New creates a download service
func New(sc *scraper.Service, tr *tracker.FailureTracker, cfg config.DownloadConfig, opts Options, log logger.Logger) *Service {
	return &Service{
		scraper: sc,
		tracker: tr,
		cfg:     cfg,
		opts:    opts,
		log:     log,
	}
}

// snapshot returns the current progress counters merged with cache and
// tracker state
func (s *Service) snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ItemsProcessed:   s.itemsProcessed,
		AssetsDownloaded: s.assetsDownloaded,
		Errors:           s.errors,
	}
	s.mu.Unlock()

	snap.Cache = s.scraper.Cache().Stats()
	snap.Failed = s.tracker.Stats()
	return snap
}

// DownloadTerm downloads every case for one term
func (s *Service) DownloadTerm(ctx context.Context, term string) (Result, error) {
	return s.DownloadTerms(ctx, []string{term})
}

// DownloadTerms downloads every case for each of the given terms. Cases
// appearing in more than one term listing are processed once.
func (s *Service) DownloadTerms(ctx context.Context, terms []string) (Result, error) {
	return s.run(ctx, func(ctx context.Context) ([]cases.Summary, error) {
		var all []cases.Summary
		for _, term := range terms {
			summaries, err := s.scraper.ScrapeTerm(ctx, term)
			if err != nil {
				return nil, err
			}
			all = append(all, summaries...)
		}
		return all, nil
	})
}

// DownloadAll downloads every case in the archive
func (s *Service) DownloadAll(ctx context.Context) (Result, error) {
	return s.run(ctx, func(ctx context.Context) ([]cases.Summary, error) {
		return s.scraper.ScrapeAllCases(ctx)
	})
}

// run enumerates the batch, processes it through the pool, and retries
// failures. Enumeration failure is the only fatal path.
func (s *Service) run(ctx context.Context, enumerate func(context.Context) ([]cases.Summary, error)) (Result, error) {
	started := time.Now()

	summaries, err := enumerate(ctx)
	if err != nil {
		return Result{Elapsed: time.Since(started)}, err
	}

	if s.opts.DryRun {
		alreadyCached := 0
		for _, sum := range summaries {
			if s.scraper.Cache().HasRecord(sum.ItemID()) {
				alreadyCached++
			}
		}
		s.log.InfoWithFields("dry run", map[string]interface{}{
			"cases":          len(summaries),
			"already_cached": alreadyCached,
		})
		return Result{Planned: len(summaries), Elapsed: time.Since(started)}, nil
	}

	monitor := NewMonitor(s.cfg.StatusInterval, s.snapshot, s.log)
	monitor.Start()
	defer monitor.Stop()

	s.processBatch(ctx, summaries)

	if ctx.Err() == nil {
		s.retryFailedItems(ctx)
	}

	snap := s.snapshot()
	result := Result{
		Planned:          len(summaries),
		ItemsProcessed:   snap.ItemsProcessed,
		AssetsDownloaded: snap.AssetsDownloaded,
		Errors:           snap.Errors,
		Failed:           snap.Failed,
		Elapsed:          time.Since(started),
	}

	s.log.InfoWithFields("download finished", map[string]interface{}{
		"items_processed":   result.ItemsProcessed,
		"assets_downloaded": result.AssetsDownloaded,
		"errors":            result.Errors,
		"failed_items":      result.Failed.TotalFailed,
		"elapsed":           formatDuration(result.Elapsed),
	})

	// A cancelled run reports what it finished rather than an error from
	// every in-flight worker.
	return result, nil
}

// processBatch fans summaries out to the worker pool, skipping duplicates
func (s *Service) processBatch(ctx context.Context, summaries []cases.Summary) {
	jobs := make(chan cases.Summary)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sum := range jobs {
				if ctx.Err() != nil {
					continue // drain without processing
				}
				s.processItem(ctx, sum)
			}
		}()
	}

	seen := make(map[string]bool, len(summaries))
	for _, sum := range summaries {
		if seen[sum.ItemID()] {
			continue
		}
		seen[sum.ItemID()] = true
		jobs <- sum
	}
	close(jobs)
	wg.Wait()
}

// processItem downloads one case and its audio, recording the outcome
func (s *Service) processItem(ctx context.Context, sum cases.Summary) {
	id := sum.ItemID()
	if sum.Term == "" || sum.DocketNumber == "" {
		s.log.WarnWithFields("case entry missing term or docket", map[string]interface{}{"id": id})
		s.addError()
		return
	}

	c, err := s.scraper.ScrapeCase(ctx, sum.Term, sum.DocketNumber)
	if err != nil {
		s.recordFailure(id, sum.Raw, err)
		return
	}

	audioCount := 0
	if !s.cfg.SkipAudio {
		audioCount, err = s.scraper.ScrapeCaseAudio(ctx, c)
		if err != nil {
			s.recordFailure(id, sum.Raw, err)
			return
		}
	}

	if err := s.tracker.MarkSuccessful(id); err != nil {
		s.log.WithError(err).WithField("id", id).Warn("updating download tracker")
	}

	s.mu.Lock()
	s.itemsProcessed++
	s.assetsDownloaded += audioCount
	s.mu.Unlock()
}

func (s *Service) recordFailure(id string, data json.RawMessage, err error) {
	s.log.ErrorWithFields("case download failed", map[string]interface{}{
		"id":    id,
		"error": err.Error(),
	})
	if trackErr := s.tracker.MarkFailed(id, data); trackErr != nil {
		s.log.WithError(trackErr).WithField("id", id).Warn("recording failure")
	}
	s.addError()
}

func (s *Service) addError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// retryFailedItems runs bounded retry rounds over tracked failures. The
// wait between rounds grows linearly with the round number.
func (s *Service) retryFailedItems(ctx context.Context) {
	if !s.tracker.HasRetriableItems() {
		return
	}

	for round := 1; round <= s.cfg.RetryRounds; round++ {
		items := s.tracker.EligibleForRetry()
		if len(items) == 0 {
			return
		}

		s.log.InfoWithFields("starting retry round", map[string]interface{}{
			"round": round,
			"of":    s.cfg.RetryRounds,
			"items": len(items),
		})

		summaries := make([]cases.Summary, 0, len(items))
		for _, item := range items {
			sum, err := cases.ParseSummary(item.Data)
			if err != nil {
				s.log.WithError(err).WithField("id", item.ID).Warn("tracked item data unreadable")
				continue
			}
			summaries = append(summaries, sum)
		}
		s.processBatch(ctx, summaries)

		if ctx.Err() != nil {
			return
		}
		if round < s.cfg.RetryRounds && s.tracker.HasRetriableItems() {
			wait := s.cfg.RetryRoundDelay * time.Duration(round)
			s.log.InfoWithFields("waiting before next retry round", map[string]interface{}{
				"wait": wait.String(),
			})
			if err := retry.Wait(ctx, wait); err != nil {
				return
			}
		} else {
			return
		}
	}
}
