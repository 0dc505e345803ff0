package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version information, overridden at build time
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	cacheDir   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "courtscraper",
	Short: "Download court case data and oral argument audio to a local archive",
	Long: `courtscraper builds a local mirror of a court case archive: case
metadata, argument session details, and oral argument recordings.

Downloads are cached on disk and resumable. Adaptive rate limiting keeps
request pressure inside what the remote API tolerates, backing off when
the server pushes back and speeding up again when it recovers. Failed
items are tracked and retried across runs with a bounded attempt count.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .courtscraper.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "directory for cached data and downloads")

	rootCmd.SetVersionTemplate(`courtscraper {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects persistent flag values for config merging
func globalFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if cacheDir != "" {
		flags["cache-dir"] = cacheDir
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}
