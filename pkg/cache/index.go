package cache

import (
	"encoding/json"
	"os"
	"time"
)

const indexVersion = "1.0"

// RecordEntry describes one cached record in the index
type RecordEntry struct {
	Path     string    `json:"path"`
	CachedAt time.Time `json:"cached_at"`
	HasAudio bool      `json:"has_audio"`
}

// AssetEntry describes one cached media file in the index
type AssetEntry struct {
	Path      string    `json:"path"`
	CachedAt  time.Time `json:"cached_at"`
	MediaType string    `json:"media_type"`
	ItemID    string    `json:"case_id,omitempty"`
	Size      int64     `json:"size"`
}

// ListEntry describes one cached listing snapshot in the index
type ListEntry struct {
	Path     string    `json:"path"`
	CachedAt time.Time `json:"cached_at"`
	Count    int       `json:"count"`
}

type indexMetadata struct {
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	Version     string    `json:"version"`
}

// cacheIndex is the persisted catalog of everything in the cache. It is
// rewritten wholesale on every mutation, so a crash leaves either the old
// or the new catalog, never a torn one.
type cacheIndex struct {
	Metadata indexMetadata         `json:"metadata"`
	Records  map[string]RecordEntry `json:"cases"`
	Assets   map[string]AssetEntry  `json:"audio_files"`
	Lists    map[string]ListEntry   `json:"case_lists"`
}

func newIndex() *cacheIndex {
	now := time.Now().UTC()
	return &cacheIndex{
		Metadata: indexMetadata{
			CreatedAt:   now,
			LastUpdated: now,
			Version:     indexVersion,
		},
		Records: make(map[string]RecordEntry),
		Assets:  make(map[string]AssetEntry),
		Lists:   make(map[string]ListEntry),
	}
}

func loadIndex(path string) (*cacheIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var idx cacheIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, err
	}

	// Maps may be null in a hand-edited or truncated index
	if idx.Records == nil {
		idx.Records = make(map[string]RecordEntry)
	}
	if idx.Assets == nil {
		idx.Assets = make(map[string]AssetEntry)
	}
	if idx.Lists == nil {
		idx.Lists = make(map[string]ListEntry)
	}
	return &idx, nil
}
