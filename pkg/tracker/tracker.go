// Package tracker records download failures across runs so a later run can
// retry just the items that failed, with a bounded attempt count.
package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"courtscraper/pkg/errors"
	"courtscraper/pkg/logger"
)

const trackerVersion = "1.0"

// DefaultFileName is the tracker's file name inside the cache directory
const DefaultFileName = "download_tracker.json"

// FailedItem is one failed download and what is known about it
type FailedItem struct {
	ItemData    json.RawMessage `json:"item_data"`
	Attempts    int             `json:"attempts"`
	LastAttempt time.Time       `json:"last_attempt"`
}

// trackerFile is the persisted shape
type trackerFile struct {
	FailedItems map[string]FailedItem `json:"failed_items"`
	LastUpdated time.Time             `json:"last_updated"`
	Version     string                `json:"version"`
}

// Stats summarizes tracked failures
type Stats struct {
	TotalFailed int
	Retriable   int
	Permanent   int
}

// RetryItem pairs a failed item's ID with its stored data
type RetryItem struct {
	ID   string
	Data json.RawMessage
}

// FailureTracker persists failed download state. A corrupt or unreadable
// tracker file is not fatal: tracking restarts empty with a warning, since
// losing retry state only costs re-downloads.
type FailureTracker struct {
	mu          sync.Mutex
	path        string
	maxAttempts int
	failed      map[string]FailedItem
	log         logger.Logger
}

// New opens or creates a failure tracker in dir
func New(dir string, maxAttempts int, log logger.Logger) (*FailureTracker, error) {
	t := &FailureTracker{
		path:        filepath.Join(dir, DefaultFileName),
		maxAttempts: maxAttempts,
		failed:      make(map[string]FailedItem),
		log:         log,
	}

	data, err := os.ReadFile(t.path)
	switch {
	case err == nil:
		var file trackerFile
		if jsonErr := json.Unmarshal(data, &file); jsonErr != nil {
			log.WarnWithFields("download tracker is corrupt, starting empty", map[string]interface{}{
				"path":  t.path,
				"error": jsonErr.Error(),
			})
		} else if file.FailedItems != nil {
			t.failed = file.FailedItems
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.CacheErr("creating tracker directory", err)
		}
		if err := t.save(); err != nil {
			return nil, err
		}
	default:
		return nil, errors.CacheErr("reading download tracker", err)
	}

	return t, nil
}

// save rewrites the tracker file. Callers must hold t.mu except during
// construction.
func (t *FailureTracker) save() error {
	file := trackerFile{
		FailedItems: t.failed,
		LastUpdated: time.Now().UTC(),
		Version:     trackerVersion,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.CacheErr("encoding download tracker", err)
	}
	if err := writeFileAtomic(t.path, data); err != nil {
		return errors.CacheErr("writing download tracker", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file and renames it into place, so
// a crash mid-write never truncates the retry backlog
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// MarkFailed records a failure for an item, bumping its attempt count
func (t *FailureTracker) MarkFailed(id string, itemData json.RawMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.failed[id]
	if exists {
		entry.Attempts++
	} else {
		entry = FailedItem{ItemData: itemData, Attempts: 1}
	}
	entry.LastAttempt = time.Now().UTC()
	t.failed[id] = entry

	return t.save()
}

// MarkSuccessful removes an item from the failed set
func (t *FailureTracker) MarkSuccessful(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.failed[id]; !ok {
		return nil
	}
	delete(t.failed, id)
	return t.save()
}

// EligibleForRetry returns failed items still under the attempt limit
func (t *FailureTracker) EligibleForRetry() []RetryItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	var items []RetryItem
	for id, entry := range t.failed {
		if entry.Attempts <= t.maxAttempts {
			items = append(items, RetryItem{ID: id, Data: entry.ItemData})
		}
	}
	return items
}

// HasRetriableItems reports whether any failed item is still retriable
func (t *FailureTracker) HasRetriableItems() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range t.failed {
		if entry.Attempts <= t.maxAttempts {
			return true
		}
	}
	return false
}

// Attempts returns the recorded attempt count for an item
func (t *FailureTracker) Attempts(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed[id].Attempts
}

// Stats summarizes tracked failures
func (t *FailureTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Stats{TotalFailed: len(t.failed)}
	for _, entry := range t.failed {
		if entry.Attempts <= t.maxAttempts {
			stats.Retriable++
		} else {
			stats.Permanent++
		}
	}
	return stats
}

// Reset clears all tracked failures
func (t *FailureTracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed = make(map[string]FailedItem)
	return t.save()
}
