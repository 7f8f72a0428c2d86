// Package httpapi implements the catalog collaborators against the HTTP
// APIs of the movie and series catalog services.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/requestline/intake-bot/internal/catalog"
)

// Service holds the connection details of one catalog service.
type Service struct {
	BaseURL string
	APIKey  string
}

type Client struct {
	resolver   Resolver
	httpClient *http.Client
}

var _ catalog.Searcher = (*Client)(nil)
var _ catalog.SubunitLookup = (*Client)(nil)

// NewClient creates a catalog client. The resolver is consulted on every
// call, so endpoint registry changes reach a running client.
func NewClient(resolver Resolver, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		resolver:   resolver,
		httpClient: httpClient,
	}
}

type searchResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Year        int    `json:"year"`
	Overview    string `json:"overview"`
	RemoteID    string `json:"remoteId"`
	SeasonCount int    `json:"seasonCount"`
}

// Search queries the catalog service for the given kind. MediaKindAll
// queries both services and interleaves nothing: movie results first, then
// series, capped at catalog.MaxCandidates.
func (c *Client) Search(ctx context.Context, kind catalog.MediaKind, query string) ([]catalog.Candidate, error) {
	var candidates []catalog.Candidate

	if kind == catalog.MediaKindMovie || kind == catalog.MediaKindAll {
		svc, err := c.resolver.Resolve(ctx, catalog.MediaKindMovie)
		if err != nil {
			return nil, fmt.Errorf("resolving movie catalog service: %w", err)
		}

		results, err := c.search(ctx, svc, catalog.MediaKindMovie, query)
		if err != nil {
			return nil, fmt.Errorf("searching movie catalog: %w", err)
		}

		candidates = append(candidates, results...)
	}

	if kind == catalog.MediaKindSeries || kind == catalog.MediaKindAll {
		svc, err := c.resolver.Resolve(ctx, catalog.MediaKindSeries)
		if err != nil {
			return nil, fmt.Errorf("resolving series catalog service: %w", err)
		}

		results, err := c.search(ctx, svc, catalog.MediaKindSeries, query)
		if err != nil {
			return nil, fmt.Errorf("searching series catalog: %w", err)
		}

		candidates = append(candidates, results...)
	}

	if len(candidates) > catalog.MaxCandidates {
		candidates = candidates[:catalog.MaxCandidates]
	}

	return candidates, nil
}

func (c *Client) search(ctx context.Context, svc Service, kind catalog.MediaKind, query string) ([]catalog.Candidate, error) {
	u, err := url.Parse(svc.BaseURL + "/api/v1/search")
	if err != nil {
		return nil, fmt.Errorf("parsing search endpoint url: %w", err)
	}

	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	var results []searchResult
	if err := c.getJSON(ctx, svc, u.String(), &results); err != nil {
		return nil, err
	}

	candidates := make([]catalog.Candidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, catalog.Candidate{
			ID:          r.ID,
			Kind:        kind,
			Title:       r.Title,
			Year:        r.Year,
			Overview:    r.Overview,
			RemoteID:    r.RemoteID,
			HasSubunits: kind == catalog.MediaKindSeries && r.SeasonCount > 0,
		})
	}

	return candidates, nil
}

type seasonResult struct {
	Number       int    `json:"number"`
	Title        string `json:"title"`
	EpisodeCount int    `json:"episodeCount"`
}

// FetchSubunits lists the seasons of a series candidate. Movie candidates
// have no addressable sub-parts and yield an empty list without a call.
func (c *Client) FetchSubunits(ctx context.Context, candidate catalog.Candidate) ([]catalog.Subunit, error) {
	if candidate.Kind != catalog.MediaKindSeries {
		return nil, nil
	}

	svc, err := c.resolver.Resolve(ctx, catalog.MediaKindSeries)
	if err != nil {
		return nil, fmt.Errorf("resolving series catalog service: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/series/%s/seasons", svc.BaseURL, url.PathEscape(candidate.ID))

	var results []seasonResult
	if err := c.getJSON(ctx, svc, endpoint, &results); err != nil {
		return nil, fmt.Errorf("fetching seasons: %w", err)
	}

	subunits := make([]catalog.Subunit, 0, len(results))
	for _, r := range results {
		subunits = append(subunits, catalog.Subunit{
			Number:       r.Number,
			Title:        r.Title,
			EpisodeCount: r.EpisodeCount,
		})
	}

	return subunits, nil
}

func (c *Client) getJSON(ctx context.Context, svc Service, endpoint string, decodeInto any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if svc.APIKey != "" {
		req.Header.Set("X-Api-Key", svc.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog request failed with status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(decodeInto); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
