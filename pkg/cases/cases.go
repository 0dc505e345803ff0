// Package cases defines the court case data model used across the scraper.
// Records come from the archive API as loosely structured JSON; the types
// here pull out the handful of fields the scraper navigates by and keep the
// raw payload available for storage.
package cases

import (
	"encoding/json"
	"strings"
)

// Summary is the shape of a case as it appears in term listing responses
type Summary struct {
	ID           json.Number `json:"ID"`
	Name         string      `json:"name"`
	Href         string      `json:"href"`
	Term         string      `json:"term"`
	DocketNumber string      `json:"docket_number"`

	// Raw is the full listing entry as received
	Raw json.RawMessage `json:"-"`
}

// ItemID returns the canonical case identifier: "{term}/{docket}"
func (s Summary) ItemID() string {
	return s.Term + "/" + s.DocketNumber
}

// Case is the full detail record for a single case
type Case struct {
	ID                   json.Number `json:"ID"`
	Name                 string      `json:"name"`
	Href                 string      `json:"href"`
	Term                 string      `json:"term"`
	DocketNumber         string      `json:"docket_number"`
	OralArgumentAudio    []MediaRef  `json:"oral_argument_audio"`
	OpinionAnnouncements []MediaRef  `json:"opinion_announcement"`

	Raw json.RawMessage `json:"-"`
}

// ItemID returns the canonical case identifier: "{term}/{docket}"
func (c Case) ItemID() string {
	return c.Term + "/" + c.DocketNumber
}

// MediaRef points at an oral argument resource attached to a case
type MediaRef struct {
	ID    json.Number `json:"id"`
	Title string      `json:"title"`
	Href  string      `json:"href"`
}

// ArgumentSessions returns the case's oral argument references with usable
// links. Cases decided without argument have none.
func (c Case) ArgumentSessions() []MediaRef {
	return linkedRefs(c.OralArgumentAudio)
}

// AudioContent groups every audio resource attached to the case by kind.
// Kinds with no usable links are omitted.
func (c Case) AudioContent() map[string][]MediaRef {
	content := make(map[string][]MediaRef)
	if refs := linkedRefs(c.OralArgumentAudio); len(refs) > 0 {
		content["oral_argument_audio"] = refs
	}
	if refs := linkedRefs(c.OpinionAnnouncements); len(refs) > 0 {
		content["opinion_announcement"] = refs
	}
	return content
}

func linkedRefs(refs []MediaRef) []MediaRef {
	var out []MediaRef
	for _, ref := range refs {
		if ref.Href != "" {
			out = append(out, ref)
		}
	}
	return out
}

// HasAudio reports whether the case carries any audio content
func (c Case) HasAudio() bool {
	return len(c.AudioContent()) > 0
}

// OralArgument is the detail record for one argument session
type OralArgument struct {
	ID        json.Number `json:"id"`
	Title     string      `json:"title"`
	MediaFile []MediaFile `json:"media_file"`

	Raw json.RawMessage `json:"-"`
}

// MediaFile is a single playable rendition of an argument recording
type MediaFile struct {
	Href string `json:"href"`
	MIME string `json:"mime"`
	Size int64  `json:"size"`
}

// BestAudioURL picks the download URL for an argument recording. MP3
// renditions win; failing that the first entry with a link is used.
func (a OralArgument) BestAudioURL() string {
	for _, mf := range a.MediaFile {
		if mf.Href == "" {
			continue
		}
		if strings.HasPrefix(mf.MIME, "audio/") || strings.HasSuffix(strings.ToLower(mf.Href), ".mp3") {
			return mf.Href
		}
	}
	for _, mf := range a.MediaFile {
		if mf.Href != "" {
			return mf.Href
		}
	}
	return ""
}

// ParseSummary decodes a listing entry, keeping the raw payload
func ParseSummary(data json.RawMessage) (Summary, error) {
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, err
	}
	s.Raw = data
	return s, nil
}

// ParseCase decodes a full case record, keeping the raw payload
func ParseCase(data json.RawMessage) (Case, error) {
	var c Case
	if err := json.Unmarshal(data, &c); err != nil {
		return Case{}, err
	}
	c.Raw = data
	return c, nil
}

// ParseOralArgument decodes an argument session record, keeping the raw payload
func ParseOralArgument(data json.RawMessage) (OralArgument, error) {
	var a OralArgument
	if err := json.Unmarshal(data, &a); err != nil {
		return OralArgument{}, err
	}
	a.Raw = data
	return a, nil
}
