package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"courtscraper/pkg/cases"
	"courtscraper/pkg/errors"
)

// maxPerPage is the page size used when auto-paginating a listing. The
// archive accepts large pages, so fewer round trips beat smaller responses.
const maxPerPage = 1000

// ListOptions controls a case listing request
type ListOptions struct {
	// Term filters to a single court term, e.g. "2022"
	Term string
	// Docket filters to a single docket number
	Docket string
	// PerPage is the page size for a single-page request
	PerPage int
	// AutoPaginate walks every page with the maximum page size. PerPage is
	// ignored when set.
	AutoPaginate bool
	// ContinueOnPartialPage keeps auto-pagination going past short pages
	ContinueOnPartialPage bool
}

// CaseClient provides typed access to the case endpoints
type CaseClient struct {
	client *Client
}

// NewCaseClient wraps an API client with case operations
func NewCaseClient(client *Client) *CaseClient {
	return &CaseClient{client: client}
}

// fetchCasePage retrieves one page of case summaries
func (cc *CaseClient) fetchCasePage(ctx context.Context, opts ListOptions, page, perPage int) ([]json.RawMessage, error) {
	query := url.Values{}
	query.Set("labels", "true")
	query.Set("page", strconv.Itoa(page))
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}
	if opts.Term != "" {
		query.Set("filter", "term:"+opts.Term)
	} else if opts.Docket != "" {
		query.Set("filter", "docket_number:"+opts.Docket)
	}

	data, err := cc.client.GetJSON(ctx, "cases", query)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeResponseFormat, "case listing is not a JSON array", err)
	}
	return items, nil
}

// ListCases retrieves case summaries matching the options. With AutoPaginate
// the full listing is walked; otherwise a single page is fetched. A term
// filter that matches nothing is reported as not found, since valid terms
// always contain cases.
func (cc *CaseClient) ListCases(ctx context.Context, opts ListOptions) ([]cases.Summary, error) {
	var raw []json.RawMessage
	var err error

	if opts.AutoPaginate {
		pager := &Pager{
			Fetch: func(ctx context.Context, page, perPage int) ([]json.RawMessage, error) {
				return cc.fetchCasePage(ctx, opts, page, perPage)
			},
			PerPage:               maxPerPage,
			ContinueOnPartialPage: opts.ContinueOnPartialPage,
		}
		raw, err = pager.Collect(ctx)
	} else {
		raw, err = cc.fetchCasePage(ctx, opts, 0, opts.PerPage)
	}
	if err != nil {
		return nil, err
	}

	if len(raw) == 0 && opts.Term != "" {
		return nil, errors.NotFound("no cases found for term %s", opts.Term)
	}

	summaries := make([]cases.Summary, 0, len(raw))
	for _, entry := range raw {
		s, err := cases.ParseSummary(entry)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeResponseFormat, "decoding case summary", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// CaseByID retrieves the full detail record for "{term}/{docket}". The
// archive wraps some detail responses in a single-element array; both shapes
// are accepted.
func (cc *CaseClient) CaseByID(ctx context.Context, term, docket string) (cases.Case, error) {
	data, err := cc.client.GetJSON(ctx, fmt.Sprintf("cases/%s/%s", term, docket), nil)
	if err != nil {
		return cases.Case{}, err
	}

	data = unwrapSingle(data)

	c, err := cases.ParseCase(data)
	if err != nil {
		return cases.Case{}, errors.Wrap(errors.ErrorTypeResponseFormat, "decoding case detail", err)
	}
	return c, nil
}

// OralArgument follows an argument href from a case record
func (cc *CaseClient) OralArgument(ctx context.Context, href string) (cases.OralArgument, error) {
	data, err := cc.client.GetAbsoluteJSON(ctx, href)
	if err != nil {
		return cases.OralArgument{}, err
	}

	a, err := cases.ParseOralArgument(unwrapSingle(data))
	if err != nil {
		return cases.OralArgument{}, errors.Wrap(errors.ErrorTypeResponseFormat, "decoding oral argument", err)
	}
	return a, nil
}

// unwrapSingle unwraps a single-element JSON array down to its element
func unwrapSingle(data json.RawMessage) json.RawMessage {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) == 1 {
		return arr[0]
	}
	return data
}
