package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtscraper/pkg/cache"
	"courtscraper/pkg/config"
	"courtscraper/pkg/logger"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local data cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what the cache holds",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}

		stats := store.Stats()
		fmt.Printf("Cache directory:  %s\n", store.Dir())
		fmt.Printf("Case records:     %d\n", stats.Records)
		fmt.Printf("Audio files:      %d (%.1f MB)\n", stats.Assets, float64(stats.AssetBytes)/(1<<20))
		fmt.Printf("List snapshots:   %d\n", stats.Lists)
		if !stats.LastUpdated.IsZero() {
			fmt.Printf("Last updated:     %s\n", stats.LastUpdated.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached data",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCache()
		if err != nil {
			return err
		}
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Println("Cache cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openCache() (*cache.Cache, error) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	return cache.New(cfg.Cache.Directory, logger.GetLogger())
}
