package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courtscraper/internal/downloader"
	"courtscraper/pkg/api"
	"courtscraper/pkg/cache"
	"courtscraper/pkg/config"
	"courtscraper/pkg/logger"
	"courtscraper/pkg/ratelimit"
	"courtscraper/pkg/scraper"
	"courtscraper/pkg/tracker"
)

var (
	scrapeTerms          []string
	scrapeRecentTerms    int
	scrapeAll            bool
	scrapeWorkers        int
	scrapeSkipAudio      bool
	scrapeRetryLimit     int
	scrapeStatusInterval time.Duration
	scrapeDryRun         bool
	scrapeForceRefresh   bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Download case data and audio for one or more terms",
	Long: `Download case metadata, argument details, and oral argument audio.

Select what to download with --terms, --recent-terms, or --all. Already
cached data is skipped, so interrupted runs pick up where they left off.`,
	Example: `  courtscraper scrape --terms 2021,2022
  courtscraper scrape --recent-terms 3 --skip-audio
  courtscraper scrape --all --workers 8
  courtscraper scrape --terms 2022 --dry-run`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringSliceVar(&scrapeTerms, "terms", nil, "terms to download, e.g. 2021,2022")
	scrapeCmd.Flags().IntVar(&scrapeRecentTerms, "recent-terms", 0, "download the N most recent terms")
	scrapeCmd.Flags().BoolVar(&scrapeAll, "all", false, "download every case in the archive")
	scrapeCmd.Flags().IntVar(&scrapeWorkers, "workers", 0, "number of concurrent download workers")
	scrapeCmd.Flags().BoolVar(&scrapeSkipAudio, "skip-audio", false, "skip audio downloads, fetch metadata only")
	scrapeCmd.Flags().IntVar(&scrapeRetryLimit, "retry-limit", -1, "max retry attempts per failed item")
	scrapeCmd.Flags().DurationVar(&scrapeStatusInterval, "status-interval", 0, "time between progress reports")
	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "list what would be downloaded without fetching")
	scrapeCmd.Flags().BoolVar(&scrapeForceRefresh, "force-refresh", false, "re-fetch data even when cached")
}

func runScrape(cmd *cobra.Command, args []string) error {
	if !scrapeAll && len(scrapeTerms) == 0 && scrapeRecentTerms <= 0 {
		return fmt.Errorf("nothing to scrape: use --terms, --recent-terms, or --all")
	}

	flags := globalFlags()
	if scrapeWorkers > 0 {
		flags["workers"] = scrapeWorkers
	}
	if cmd.Flags().Changed("skip-audio") {
		flags["skip-audio"] = scrapeSkipAudio
	}
	if scrapeRetryLimit >= 0 {
		flags["retry-limit"] = scrapeRetryLimit
	}
	if scrapeStatusInterval > 0 {
		flags["status-interval"] = scrapeStatusInterval
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()

	svc, err := buildDownloadService(cfg, log, downloader.Options{DryRun: scrapeDryRun})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result downloader.Result
	switch {
	case scrapeAll:
		result, err = svc.DownloadAll(ctx)
	default:
		terms := scrapeTerms
		if scrapeRecentTerms > 0 {
			terms = append(terms, recentTerms(scrapeRecentTerms, time.Now())...)
		}
		result, err = svc.DownloadTerms(ctx, dedupe(terms))
	}
	if err != nil {
		return err
	}

	printResult(result, scrapeDryRun)
	return nil
}

// buildDownloadService wires the full download stack from configuration
func buildDownloadService(cfg *config.Config, log logger.Logger, opts downloader.Options) (*downloader.Service, error) {
	limiter := ratelimit.NewAdaptiveLimiter(ratelimit.Config{
		InitialDelay:   cfg.RateLimit.InitialDelay,
		MinDelay:       cfg.RateLimit.MinDelay,
		MaxDelay:       cfg.RateLimit.MaxDelay,
		BackoffFactor:  cfg.RateLimit.BackoffFactor,
		RecoveryFactor: cfg.RateLimit.RecoveryFactor,
		Jitter:         cfg.RateLimit.Jitter,
	})
	client := api.NewClient(cfg, limiter, log)

	store, err := cache.New(cfg.Cache.Directory, log)
	if err != nil {
		return nil, err
	}
	tr, err := tracker.New(cfg.Cache.Directory, cfg.Download.RetryLimit, log)
	if err != nil {
		return nil, err
	}

	sc := scraper.NewService(client, store, log, scraper.Options{ForceRefresh: scrapeForceRefresh})
	return downloader.New(sc, tr, cfg.Download, opts, log), nil
}

// recentTerms returns the N most recent term years. A term runs October
// through the following June, so before October the current calendar year's
// term has not started yet.
func recentTerms(n int, now time.Time) []string {
	latest := now.Year()
	if now.Month() < time.October {
		latest--
	}

	terms := make([]string, 0, n)
	for i := 0; i < n; i++ {
		terms = append(terms, strconv.Itoa(latest-i))
	}
	return terms
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func printResult(result downloader.Result, dryRun bool) {
	if dryRun {
		fmt.Printf("Dry run: %d cases would be processed\n", result.Planned)
		return
	}

	fmt.Printf("Processed %d cases, downloaded %d audio files, %d errors (%s)\n",
		result.ItemsProcessed, result.AssetsDownloaded, result.Errors, result.Elapsed.Round(time.Second))
	if result.Failed.TotalFailed > 0 {
		fmt.Printf("Failed items: %d total, %d retriable on next run, %d permanent\n",
			result.Failed.TotalFailed, result.Failed.Retriable, result.Failed.Permanent)
	}
}
