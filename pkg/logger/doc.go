// Package logger provides structured logging for the scraper, backed by
// zerolog. Components depend on the Logger interface rather than on zerolog
// directly, which keeps test doubles trivial and confines the logging
// library to this package.
package logger
