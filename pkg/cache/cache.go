// Package cache persists fetched records, listing snapshots, and media
// files under a single directory, cataloged by an index file. Blobs hit
// the disk before the index references them, so an interrupted run never
// leaves the index pointing at data that doesn't exist.
package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"courtscraper/pkg/errors"
	"courtscraper/pkg/logger"
)

const indexFileName = "cache_index.json"

var subdirs = []string{"cases", "audio", "metadata"}

// Stats summarizes cache contents
type Stats struct {
	Records     int
	Assets      int
	Lists       int
	AssetBytes  int64
	LastUpdated time.Time
}

// Cache is a disk-backed store for scraped data
type Cache struct {
	mu    sync.Mutex
	dir   string
	index *cacheIndex
	log   logger.Logger
}

// New opens or creates a cache rooted at dir
func New(dir string, log logger.Logger) (*Cache, error) {
	for _, sub := range append([]string{""}, subdirs...) {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, errors.CacheErr("creating cache directories", err)
		}
	}

	c := &Cache{dir: dir, log: log}

	indexPath := filepath.Join(dir, indexFileName)
	if _, err := os.Stat(indexPath); err == nil {
		idx, err := loadIndex(indexPath)
		if err != nil {
			return nil, errors.CacheErr("loading cache index", err)
		}
		c.index = idx
	} else {
		c.index = newIndex()
		if err := c.saveIndexLocked(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Dir returns the cache root directory
func (c *Cache) Dir() string {
	return c.dir
}

// saveIndexLocked rewrites the index atomically. Callers must hold c.mu or
// have exclusive access during construction.
func (c *Cache) saveIndexLocked() error {
	c.index.Metadata.LastUpdated = time.Now().UTC()

	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return errors.CacheErr("encoding cache index", err)
	}
	if err := writeFileAtomic(filepath.Join(c.dir, indexFileName), data); err != nil {
		return errors.CacheErr("writing cache index", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file and renames it into place
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

// HasRecord reports whether a record is cached
func (c *Cache) HasRecord(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index.Records[id]
	return ok
}

// PutRecord stores a record's raw JSON and registers it in the index
func (c *Cache) PutRecord(id string, data json.RawMessage) error {
	relPath := filepath.Join("cases", RecordFileName(id))
	if err := writeFileAtomic(filepath.Join(c.dir, relPath), data); err != nil {
		return errors.CacheErr(fmt.Sprintf("storing record %s", id), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A re-fetch of an already cached record keeps its audio marker
	hasAudio := c.index.Records[id].HasAudio
	c.index.Records[id] = RecordEntry{
		Path:     relPath,
		CachedAt: time.Now().UTC(),
		HasAudio: hasAudio,
	}
	if err := c.saveIndexLocked(); err != nil {
		return err
	}

	c.log.DebugWithFields("cached record", map[string]interface{}{"id": id})
	return nil
}

// GetRecord returns a record's raw JSON
func (c *Cache) GetRecord(id string) (json.RawMessage, error) {
	c.mu.Lock()
	entry, ok := c.index.Records[id]
	c.mu.Unlock()
	if !ok {
		return nil, errors.NotFound("record %s not in cache", id)
	}

	data, err := os.ReadFile(filepath.Join(c.dir, entry.Path))
	if err != nil {
		return nil, errors.CacheErr(fmt.Sprintf("reading record %s", id), err)
	}
	return data, nil
}

// RecordIDs returns the IDs of all cached records
func (c *Cache) RecordIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.index.Records))
	for id := range c.index.Records {
		ids = append(ids, id)
	}
	return ids
}

// HasAsset reports whether a media file is cached
func (c *Cache) HasAsset(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index.Assets[key]
	return ok
}

// PutAsset streams media data into the cache and registers it. When itemID
// names a cached record, that record is marked as having audio.
func (c *Cache) PutAsset(key, itemID, mediaType string, r io.Reader) (int64, error) {
	relPath := filepath.Join("audio", assetFileName(key, mediaType))
	fullPath := filepath.Join(c.dir, relPath)

	size, err := streamToFileAtomic(fullPath, r)
	if err != nil {
		return 0, errors.CacheErr(fmt.Sprintf("storing asset %s", key), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.index.Assets[key] = AssetEntry{
		Path:      relPath,
		CachedAt:  time.Now().UTC(),
		MediaType: mediaType,
		ItemID:    itemID,
		Size:      size,
	}
	if rec, ok := c.index.Records[itemID]; ok {
		rec.HasAudio = true
		c.index.Records[itemID] = rec
	}
	if err := c.saveIndexLocked(); err != nil {
		return 0, err
	}

	c.log.DebugWithFields("cached asset", map[string]interface{}{
		"key":     key,
		"item_id": itemID,
		"bytes":   size,
	})
	return size, nil
}

// streamToFileAtomic copies r to a temp file and renames it into place
func streamToFileAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	return size, nil
}

// AssetPath returns the on-disk path of a cached media file
func (c *Cache) AssetPath(key string) (string, error) {
	c.mu.Lock()
	entry, ok := c.index.Assets[key]
	c.mu.Unlock()
	if !ok {
		return "", errors.NotFound("asset %s not in cache", key)
	}
	return filepath.Join(c.dir, entry.Path), nil
}

// OpenAsset opens a cached media file for reading
func (c *Cache) OpenAsset(key string) (io.ReadCloser, error) {
	path, err := c.AssetPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.CacheErr(fmt.Sprintf("opening asset %s", key), err)
	}
	return f, nil
}

// HasList reports whether a listing snapshot is cached
func (c *Cache) HasList(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index.Lists[name]
	return ok
}

// PutList stores a listing snapshot under a name such as "term_2022"
func (c *Cache) PutList(name string, items []json.RawMessage) error {
	data, err := json.Marshal(items)
	if err != nil {
		return errors.CacheErr(fmt.Sprintf("encoding list %s", name), err)
	}

	relPath := filepath.Join("metadata", name+".json")
	if err := writeFileAtomic(filepath.Join(c.dir, relPath), data); err != nil {
		return errors.CacheErr(fmt.Sprintf("storing list %s", name), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.index.Lists[name] = ListEntry{
		Path:     relPath,
		CachedAt: time.Now().UTC(),
		Count:    len(items),
	}
	if err := c.saveIndexLocked(); err != nil {
		return err
	}

	c.log.DebugWithFields("cached list", map[string]interface{}{
		"name":  name,
		"count": len(items),
	})
	return nil
}

// GetList returns a cached listing snapshot
func (c *Cache) GetList(name string) ([]json.RawMessage, error) {
	c.mu.Lock()
	entry, ok := c.index.Lists[name]
	c.mu.Unlock()
	if !ok {
		return nil, errors.NotFound("list %s not in cache", name)
	}

	data, err := os.ReadFile(filepath.Join(c.dir, entry.Path))
	if err != nil {
		return nil, errors.CacheErr(fmt.Sprintf("reading list %s", name), err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.CacheErr(fmt.Sprintf("decoding list %s", name), err)
	}
	return items, nil
}

// Stats summarizes what the cache holds
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var assetBytes int64
	for _, a := range c.index.Assets {
		assetBytes += a.Size
	}
	return Stats{
		Records:     len(c.index.Records),
		Assets:      len(c.index.Assets),
		Lists:       len(c.index.Lists),
		AssetBytes:  assetBytes,
		LastUpdated: c.index.Metadata.LastUpdated,
	}
}

// Clear removes all cached data but keeps the directory structure
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.index = newIndex()
	err := c.saveIndexLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	for _, sub := range subdirs {
		entries, err := os.ReadDir(filepath.Join(c.dir, sub))
		if err != nil {
			return errors.CacheErr(fmt.Sprintf("listing %s directory", sub), err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(c.dir, sub, e.Name())); err != nil {
				return errors.CacheErr(fmt.Sprintf("removing cached file %s", e.Name()), err)
			}
		}
	}

	c.log.Info("cache cleared")
	return nil
}
