package api

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtscraper/pkg/errors"
)

// pagesOf builds a Fetch func serving fixed page sizes, recording requests
func pagesOf(sizes []int, requested *[]int) FetchPage {
	return func(ctx context.Context, page, perPage int) ([]json.RawMessage, error) {
		if requested != nil {
			*requested = append(*requested, page)
		}
		if page >= len(sizes) {
			return nil, nil
		}
		items := make([]json.RawMessage, sizes[page])
		for i := range items {
			items[i] = json.RawMessage(fmt.Sprintf(`{"page": %d, "i": %d}`, page, i))
		}
		return items, nil
	}
}

func TestCollectStopsOnShortPage(t *testing.T) {
	var requested []int
	p := &Pager{Fetch: pagesOf([]int{2, 2, 2, 1, 2}, &requested), PerPage: 2}

	items, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, items, 7)
	// The short fourth page ends the walk; page 4 is never requested
	assert.Equal(t, []int{0, 1, 2, 3}, requested)
}

func TestCollectStopsOnEmptyPage(t *testing.T) {
	var requested []int
	p := &Pager{Fetch: pagesOf([]int{3, 3, 0}, &requested), PerPage: 3}

	items, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, items, 6)
	assert.Equal(t, []int{0, 1, 2}, requested)
}

func TestCollectEmptyFirstPage(t *testing.T) {
	p := &Pager{Fetch: pagesOf(nil, nil), PerPage: 10}

	items, err := p.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCollectContinuesPastPartialPages(t *testing.T) {
	var requested []int
	p := &Pager{
		Fetch:                 pagesOf([]int{3, 1, 3, 2}, &requested),
		PerPage:               3,
		ContinueOnPartialPage: true,
	}

	items, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, items, 9)
	// Short pages are passed through; only the empty page 4 stops the walk
	assert.Equal(t, []int{0, 1, 2, 3, 4}, requested)
}

func TestCollectInfersPageSize(t *testing.T) {
	var requested []int
	p := &Pager{Fetch: pagesOf([]int{5, 5, 2}, &requested)}

	items, err := p.Collect(context.Background())
	require.NoError(t, err)

	// The first page establishes 5 as the full-page size, so the
	// two-item third page ends the walk.
	assert.Len(t, items, 12)
	assert.Equal(t, []int{0, 1, 2}, requested)
}

func TestCollectPropagatesFetchError(t *testing.T) {
	boom := errors.New(errors.ErrorTypeServerError, "listing failed")
	p := &Pager{
		Fetch: func(ctx context.Context, page, perPage int) ([]json.RawMessage, error) {
			if page == 1 {
				return nil, boom
			}
			items := make([]json.RawMessage, perPage)
			for i := range items {
				items[i] = json.RawMessage(`{}`)
			}
			return items, nil
		},
		PerPage: 2,
	}

	_, err := p.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
}
