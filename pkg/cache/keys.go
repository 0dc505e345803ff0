package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

// RecordFileName converts a record ID into a safe filename. IDs embed a
// slash ("2022/21-476"), which becomes a dash on disk.
func RecordFileName(id string) string {
	return strings.ReplaceAll(id, "/", "-") + ".json"
}

// AssetKey derives the content-addressed key for a media URL
func AssetKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// MediaTypeFromURL sniffs the media type from a URL's file extension.
// Unknown extensions fall back to mp3, the archive's dominant format.
func MediaTypeFromURL(rawURL string) string {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "mp3":
		return "mp3"
	case "m3u8":
		return "m3u8"
	case "mpd":
		return "mpd"
	default:
		return "mp3"
	}
}

// assetFileName builds the on-disk name for an asset
func assetFileName(key, mediaType string) string {
	mediaType = strings.TrimPrefix(mediaType, ".")
	if mediaType == "" {
		mediaType = "mp3"
	}
	return key + "." + mediaType
}
