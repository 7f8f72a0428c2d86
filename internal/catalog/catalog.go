// Package catalog defines the media catalog domain types and the
// collaborator interfaces the conversation engine searches and resolves
// against. Implementations live in sub-packages.
package catalog

import "context"

type MediaKind string

const (
	MediaKindMovie  MediaKind = "movie"
	MediaKindSeries MediaKind = "series"
	// MediaKindAll searches both movie and series catalogs. Ambiguous free
	// text defaults to this kind, trading precision for recall.
	MediaKindAll MediaKind = "all"
)

// Candidate is one normalized search result.
type Candidate struct {
	ID          string    `json:"id"`
	Kind        MediaKind `json:"kind"`
	Title       string    `json:"title"`
	Year        int       `json:"year,omitempty"`
	Overview    string    `json:"overview,omitempty"`
	RemoteID    string    `json:"remoteId,omitempty"`
	HasSubunits bool      `json:"hasSubunits,omitempty"`
}

// Subunit is an addressable sub-part of a multi-part candidate, e.g. one
// season of a series.
type Subunit struct {
	Number       int    `json:"number"`
	Title        string `json:"title,omitempty"`
	EpisodeCount int    `json:"episodeCount,omitempty"`
}

// MaxCandidates bounds the number of results a single search may yield.
const MaxCandidates = 99

// Endpoint is one downstream catalog service registered by an
// administrator. Enabled registry rows take precedence over the configured
// services, so operators can repoint the bot without redeploying.
type Endpoint struct {
	Name    string    `json:"name"`
	Kind    MediaKind `json:"kind"`
	BaseURL string    `json:"baseUrl"`
	APIKey  string    `json:"apiKey,omitempty"`
	Enabled bool      `json:"enabled"`
}

type Searcher interface {
	Search(ctx context.Context, kind MediaKind, query string) ([]Candidate, error)
}

type SubunitLookup interface {
	FetchSubunits(ctx context.Context, candidate Candidate) ([]Subunit, error)
}
