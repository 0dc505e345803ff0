package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecentTerms(t *testing.T) {
	// Mid-term: February 2026 is still the 2025 term
	feb := time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2025", "2024", "2023"}, recentTerms(3, feb))

	// After the October start the new term counts
	nov := time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2026", "2025"}, recentTerms(2, nov))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"2022", "2021"}, dedupe([]string{"2022", "2021", "2022"}))
	assert.Empty(t, dedupe(nil))
}
