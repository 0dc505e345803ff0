// Package scraper coordinates fetching court data through the API client
// and persisting it in the cache. Every operation is cache-first: data that
// is already on disk is not fetched again unless a refresh is forced.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"

	"courtscraper/pkg/api"
	"courtscraper/pkg/cache"
	"courtscraper/pkg/cases"
	"courtscraper/pkg/errors"
	"courtscraper/pkg/logger"
)

// Options adjusts scraping behavior
type Options struct {
	// ForceRefresh re-fetches data even when it is already cached
	ForceRefresh bool
}

// Service scrapes case data into the cache
type Service struct {
	client *api.Client
	cc     *api.CaseClient
	store  *cache.Cache
	log    logger.Logger
	opts   Options

	// flight collapses concurrent downloads of the same media file into
	// one request; every caller gets the single download's outcome.
	flight singleflight.Group
}

// NewService creates a scraper service
func NewService(client *api.Client, store *cache.Cache, log logger.Logger, opts Options) *Service {
	return &Service{
		client: client,
		cc:     api.NewCaseClient(client),
		store:  store,
		log:    log,
		opts:   opts,
	}
}

// Cache returns the service's backing cache
func (s *Service) Cache() *cache.Cache {
	return s.store
}

// ScrapeTerm fetches the case listing for a term, serving it from the cache
// when available. The listing snapshot is stored under "term_{term}".
func (s *Service) ScrapeTerm(ctx context.Context, term string) ([]cases.Summary, error) {
	return s.scrapeList(ctx, "term_"+term, api.ListOptions{Term: term, AutoPaginate: true})
}

// ScrapeAllCases fetches the complete case listing across all terms,
// stored under "all_cases"
func (s *Service) ScrapeAllCases(ctx context.Context) ([]cases.Summary, error) {
	return s.scrapeList(ctx, "all_cases", api.ListOptions{AutoPaginate: true})
}

func (s *Service) scrapeList(ctx context.Context, listName string, opts api.ListOptions) ([]cases.Summary, error) {
	if !s.opts.ForceRefresh && s.store.HasList(listName) {
		raw, err := s.store.GetList(listName)
		if err == nil {
			s.log.DebugWithFields("using cached case list", map[string]interface{}{
				"list":  listName,
				"count": len(raw),
			})
			return parseSummaries(raw)
		}
		s.log.WithError(err).Warn("cached case list unreadable, re-fetching")
	}

	summaries, err := s.cc.ListCases(ctx, opts)
	if err != nil {
		return nil, err
	}

	raw := make([]json.RawMessage, len(summaries))
	for i, sum := range summaries {
		raw[i] = sum.Raw
	}
	if err := s.store.PutList(listName, raw); err != nil {
		return nil, err
	}

	s.log.InfoWithFields("fetched case list", map[string]interface{}{
		"list":  listName,
		"count": len(summaries),
	})
	return summaries, nil
}

func parseSummaries(raw []json.RawMessage) ([]cases.Summary, error) {
	out := make([]cases.Summary, 0, len(raw))
	for _, entry := range raw {
		sum, err := cases.ParseSummary(entry)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeResponseFormat, "decoding cached case summary", err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// ScrapeCase fetches the detail record for one case and stores it
func (s *Service) ScrapeCase(ctx context.Context, term, docket string) (cases.Case, error) {
	id := term + "/" + docket

	if !s.opts.ForceRefresh && s.store.HasRecord(id) {
		raw, err := s.store.GetRecord(id)
		if err == nil {
			c, parseErr := cases.ParseCase(raw)
			if parseErr == nil {
				return c, nil
			}
			s.log.WithError(parseErr).WithField("id", id).Warn("cached record unreadable, re-fetching")
		}
	}

	c, err := s.cc.CaseByID(ctx, term, docket)
	if err != nil {
		return cases.Case{}, err
	}
	if err := s.store.PutRecord(id, c.Raw); err != nil {
		return cases.Case{}, err
	}
	return c, nil
}

// ScrapeCaseAudio fetches the media detail and audio for every audio
// resource of a case, oral arguments and opinion announcements alike. It
// returns the number of audio files downloaded; files already present count
// as zero work.
func (s *Service) ScrapeCaseAudio(ctx context.Context, c cases.Case) (int, error) {
	downloaded := 0

	for kind, refs := range c.AudioContent() {
		for _, ref := range refs {
			contentID := ContentID(ref.Href)

			arg, err := s.scrapeArgument(ctx, contentID, ref.Href)
			if err != nil {
				return downloaded, err
			}

			audioURL := arg.BestAudioURL()
			if audioURL == "" {
				s.log.WarnWithFields("media record has no audio URL", map[string]interface{}{
					"case":    c.ItemID(),
					"kind":    kind,
					"session": ref.Title,
				})
				continue
			}

			did, err := s.downloadAudio(ctx, contentID, c.ItemID(), audioURL)
			if err != nil {
				return downloaded, err
			}
			if did {
				downloaded++
			}
		}
	}

	return downloaded, nil
}

// scrapeArgument fetches an argument session record, caching the detail
// snapshot under "content_{contentID}"
func (s *Service) scrapeArgument(ctx context.Context, contentID, href string) (cases.OralArgument, error) {
	snapshotName := "content_" + contentID

	if !s.opts.ForceRefresh && s.store.HasList(snapshotName) {
		raw, err := s.store.GetList(snapshotName)
		if err == nil && len(raw) == 1 {
			arg, parseErr := cases.ParseOralArgument(raw[0])
			if parseErr == nil {
				return arg, nil
			}
		}
		s.log.WithField("snapshot", snapshotName).Warn("cached argument snapshot unreadable, re-fetching")
	}

	arg, err := s.cc.OralArgument(ctx, href)
	if err != nil {
		return cases.OralArgument{}, err
	}
	if err := s.store.PutList(snapshotName, []json.RawMessage{arg.Raw}); err != nil {
		return cases.OralArgument{}, err
	}
	return arg, nil
}

// downloadAudio streams one audio file into the cache. Concurrent requests
// for the same content collapse into a single download.
func (s *Service) downloadAudio(ctx context.Context, contentID, itemID, audioURL string) (bool, error) {
	key := cache.AssetKey(contentID)

	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		if !s.opts.ForceRefresh && s.store.HasAsset(key) {
			return false, nil
		}

		if err := s.client.Head(ctx, audioURL); err != nil {
			if ctx.Err() != nil {
				return false, err
			}
			s.log.WithError(err).WithFields(map[string]interface{}{
				"case": itemID,
				"url":  audioURL,
			}).Warn("audio URL not reachable, skipping")
			return false, nil
		}

		body, _, err := s.client.Download(ctx, audioURL)
		if err != nil {
			return false, err
		}
		defer body.Close()

		size, err := s.store.PutAsset(key, itemID, cache.MediaTypeFromURL(audioURL), body)
		if err != nil {
			return false, err
		}

		s.log.InfoWithFields("downloaded audio", map[string]interface{}{
			"case":  itemID,
			"url":   audioURL,
			"bytes": size,
		})
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("downloading audio for %s: %w", itemID, err)
	}
	return result.(bool), nil
}

// ContentID derives a stable identifier for an argument resource from its
// URL path: slashes become underscores, so "/case_media/oral_argument_audio/25512"
// keys as "case_media_oral_argument_audio_25512".
func ContentID(rawURL string) string {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	return strings.ReplaceAll(strings.Trim(p, "/"), "/", "_")
}
