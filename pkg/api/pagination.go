package api

import (
	"context"
	"encoding/json"
)

// FetchPage retrieves one page of results. Pages are zero indexed.
type FetchPage func(ctx context.Context, page, perPage int) ([]json.RawMessage, error)

// Pager walks a paginated listing until the server runs out of results.
// Termination is inferred from page shape: an empty page always ends the
// walk, and a short page ends it too unless ContinueOnPartialPage is set.
type Pager struct {
	// Fetch retrieves a single page
	Fetch FetchPage
	// PerPage is the requested page size. When zero, the size of the first
	// non-empty page is used as the expected full-page size.
	PerPage int
	// ContinueOnPartialPage keeps paging past short pages, stopping only on
	// an empty one. Servers that pad or trim pages unevenly need this.
	ContinueOnPartialPage bool
}

// Collect fetches every page and returns the concatenated items
func (p *Pager) Collect(ctx context.Context) ([]json.RawMessage, error) {
	var all []json.RawMessage

	expected := p.PerPage
	for page := 0; ; page++ {
		items, err := p.Fetch(ctx, page, p.PerPage)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}

		all = append(all, items...)

		if expected == 0 {
			expected = len(items)
		}
		if len(items) < expected && !p.ContinueOnPartialPage {
			break
		}
	}

	return all, nil
}
