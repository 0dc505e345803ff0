package cache

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtscraper/pkg/errors"
	"courtscraper/pkg/logger"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), logger.GetLogger())
	require.NoError(t, err)
	return c
}

func TestNewCreatesStructure(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, logger.GetLogger())
	require.NoError(t, err)

	for _, sub := range []string{"cases", "audio", "metadata"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.FileExists(t, filepath.Join(dir, "cache_index.json"))
}

func TestRecordRoundTrip(t *testing.T) {
	c := newTestCache(t)
	data := json.RawMessage(`{"term": "2022", "docket_number": "21-476"}`)

	assert.False(t, c.HasRecord("2022/21-476"))
	require.NoError(t, c.PutRecord("2022/21-476", data))
	assert.True(t, c.HasRecord("2022/21-476"))

	got, err := c.GetRecord("2022/21-476")
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(got))

	// Slashes in the ID become dashes on disk
	assert.FileExists(t, filepath.Join(c.Dir(), "cases", "2022-21-476.json"))
}

func TestGetRecordMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.GetRecord("1900/nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
}

func TestPutAssetMarksOwnerRecord(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.PutRecord("2022/21-476", json.RawMessage(`{}`)))

	key := AssetKey("https://example.org/arg.mp3")
	size, err := c.PutAsset(key, "2022/21-476", "mp3", strings.NewReader("audio-bytes"))
	require.NoError(t, err)
	assert.EqualValues(t, 11, size)

	assert.True(t, c.HasAsset(key))

	// The index on disk reflects the audio marker
	reopened, err := New(c.Dir(), logger.GetLogger())
	require.NoError(t, err)
	assert.True(t, reopened.index.Records["2022/21-476"].HasAudio)
}

func TestPutAssetWithoutOwner(t *testing.T) {
	c := newTestCache(t)

	key := AssetKey("https://example.org/orphan.mp3")
	_, err := c.PutAsset(key, "1999/0-0", "mp3", strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.True(t, c.HasAsset(key))
}

func TestOpenAssetStreamsContent(t *testing.T) {
	c := newTestCache(t)

	key := AssetKey("https://example.org/arg.mp3")
	_, err := c.PutAsset(key, "", "mp3", strings.NewReader("stream-me"))
	require.NoError(t, err)

	r, err := c.OpenAsset(key)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "stream-me", string(data))
}

func TestListRoundTrip(t *testing.T) {
	c := newTestCache(t)
	items := []json.RawMessage{
		json.RawMessage(`{"docket_number": "21-476"}`),
		json.RawMessage(`{"docket_number": "21-1333"}`),
	}

	require.NoError(t, c.PutList("term_2022", items))
	assert.True(t, c.HasList("term_2022"))

	got, err := c.GetList("term_2022")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, string(items[1]), string(got[1]))
}

func TestStats(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.PutRecord("2022/21-476", json.RawMessage(`{}`)))
	require.NoError(t, c.PutRecord("2022/21-1333", json.RawMessage(`{}`)))
	require.NoError(t, c.PutRecord("2021/20-1", json.RawMessage(`{}`)))
	_, err := c.PutAsset(AssetKey("u1"), "2022/21-476", "mp3", strings.NewReader("12345"))
	require.NoError(t, err)
	_, err = c.PutAsset(AssetKey("u2"), "", "mp3", strings.NewReader("ab"))
	require.NoError(t, err)
	require.NoError(t, c.PutList("term_2022", nil))

	stats := c.Stats()
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 2, stats.Assets)
	assert.Equal(t, 1, stats.Lists)
	assert.EqualValues(t, 7, stats.AssetBytes)
	assert.False(t, stats.LastUpdated.IsZero())

	// Only the record that owns an asset gets the audio marker
	assert.True(t, c.index.Records["2022/21-476"].HasAudio)
	assert.False(t, c.index.Records["2022/21-1333"].HasAudio)
	assert.False(t, c.index.Records["2021/20-1"].HasAudio)
}

func TestStatsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, logger.GetLogger())
	require.NoError(t, err)

	require.NoError(t, c.PutRecord("2022/21-476", json.RawMessage(`{"a": 1}`)))
	_, err = c.PutAsset(AssetKey("u1"), "2022/21-476", "mp3", strings.NewReader("xyz"))
	require.NoError(t, err)

	reopened, err := New(dir, logger.GetLogger())
	require.NoError(t, err)

	stats := reopened.Stats()
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 1, stats.Assets)
	assert.EqualValues(t, 3, stats.AssetBytes)

	got, err := reopened.GetRecord("2022/21-476")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(got))
}

func TestClearKeepsStructure(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.PutRecord("2022/21-476", json.RawMessage(`{}`)))
	_, err := c.PutAsset(AssetKey("u1"), "2022/21-476", "mp3", strings.NewReader("abc"))
	require.NoError(t, err)
	require.NoError(t, c.PutList("term_2022", nil))

	require.NoError(t, c.Clear())

	stats := c.Stats()
	assert.Zero(t, stats.Records)
	assert.Zero(t, stats.Assets)
	assert.Zero(t, stats.Lists)

	for _, sub := range []string{"cases", "audio", "metadata"} {
		entries, err := os.ReadDir(filepath.Join(c.Dir(), sub))
		require.NoError(t, err)
		assert.Empty(t, entries, "%s should be empty after clear", sub)
	}
	assert.FileExists(t, filepath.Join(c.Dir(), "cache_index.json"))
}

func TestCorruptIndexIsAnError(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir, logger.GetLogger())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cache_index.json"), []byte("{broken"), 0644))

	_, err = New(dir, logger.GetLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypeCache))
}

func TestAssetKeyIsStable(t *testing.T) {
	k1 := AssetKey("https://example.org/arg.mp3")
	k2 := AssetKey("https://example.org/arg.mp3")
	k3 := AssetKey("https://example.org/other.mp3")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.Len(t, k1, 64)
}

func TestMediaTypeFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.org/a.mp3", "mp3"},
		{"https://example.org/a.MP3?token=x", "mp3"},
		{"https://example.org/playlist.m3u8", "m3u8"},
		{"https://example.org/manifest.mpd", "mpd"},
		{"https://example.org/opaque", "mp3"},
		{"", "mp3"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, MediaTypeFromURL(tt.url), "url %q", tt.url)
	}
}

func TestRecordFileName(t *testing.T) {
	assert.Equal(t, "2022-21-476.json", RecordFileName("2022/21-476"))
	assert.Equal(t, "all_cases.json", RecordFileName("all_cases"))
}
