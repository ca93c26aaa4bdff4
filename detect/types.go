// Package detect implements the duplicate-detection pipeline: candidate
// recruitment over normalized search variants, metadata enrichment,
// URL-exact matching and MinHash similarity scoring.
package detect

import (
	"context"
	"strings"

	"github.com/openeduhub/duplicate-detection/normalize"
	"github.com/openeduhub/duplicate-detection/wlo"
)

// Search field names accepted in requests.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldKeywords    = "keywords"
	FieldURL         = "url"
)

// DefaultSearchFields are the fields searched when a request names none.
// Keywords are off by default: they recruit too many false positives.
var DefaultSearchFields = []string{FieldTitle, FieldDescription, FieldURL}

// DefaultThreshold is the minimum similarity for a non-URL match.
const DefaultThreshold = 0.9

// MatchSource tags how a duplicate was found.
type MatchSource string

const (
	MatchURLExact    MatchSource = "url_exact"
	MatchTitle       MatchSource = "title"
	MatchDescription MatchSource = "description"
	MatchKeywords    MatchSource = "keywords"
	MatchURL         MatchSource = "url"
)

// Metadata is a learning-object metadata record. All fields are
// optional; a record is searchable iff at least one is non-empty.
type Metadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	URL         string   `json:"url,omitempty"`
	RedirectURL string   `json:"redirect_url,omitempty"`
}

// Searchable reports whether the record has anything to search with.
func (m Metadata) Searchable() bool {
	if strings.TrimSpace(m.Title) != "" ||
		strings.TrimSpace(m.Description) != "" ||
		strings.TrimSpace(m.URL) != "" {
		return true
	}
	for _, k := range m.Keywords {
		if strings.TrimSpace(k) != "" {
			return true
		}
	}
	return false
}

// HasField reports whether the named search field is non-empty.
func (m Metadata) HasField(field string) bool {
	switch field {
	case FieldTitle:
		return strings.TrimSpace(m.Title) != ""
	case FieldDescription:
		return strings.TrimSpace(m.Description) != ""
	case FieldKeywords:
		for _, k := range m.Keywords {
			if strings.TrimSpace(k) != "" {
				return true
			}
		}
		return false
	case FieldURL:
		return strings.TrimSpace(m.URL) != ""
	}
	return false
}

// urlKeys returns the normalized keys of the record's URL and redirect
// URL, skipping empty ones.
func (m Metadata) urlKeys() []string {
	var keys []string
	if k := normalize.URLKey(m.URL); k != "" {
		keys = append(keys, k)
	}
	if k := normalize.URLKey(m.RedirectURL); k != "" && (len(keys) == 0 || keys[0] != k) {
		keys = append(keys, k)
	}
	return keys
}

// Duplicate is a candidate that passed the acceptance rule.
type Duplicate struct {
	NodeID          string      `json:"node_id"`
	Title           string      `json:"title,omitempty"`
	Description     string      `json:"description,omitempty"`
	Keywords        []string    `json:"keywords,omitempty"`
	URL             string      `json:"url,omitempty"`
	SimilarityScore float64     `json:"similarity_score"`
	MatchSource     MatchSource `json:"match_source"`
}

// FieldSearchResult reports how one search field contributed candidates.
type FieldSearchResult struct {
	Field             string   `json:"field"`
	SearchValue       string   `json:"search_value,omitempty"`
	CandidatesFound   int      `json:"candidates_found"`
	HighestSimilarity *float64 `json:"highest_similarity,omitempty"`
	OriginalCount     int      `json:"original_count"`
	NormalizedSearch  string   `json:"normalized_search,omitempty"`
	NormalizedCount   int      `json:"normalized_count"`
}

// Enrichment describes the one-shot completion of missing source fields
// from a highly-confident candidate.
type Enrichment struct {
	Enriched     bool     `json:"enriched"`
	SourceNodeID string   `json:"source_node_id,omitempty"`
	SourceField  string   `json:"source_field,omitempty"`
	FieldsAdded  []string `json:"fields_added,omitempty"`
}

// Response is the result of one detection request.
type Response struct {
	SourceNodeID           string              `json:"source_node_id,omitempty"`
	SourceMetadata         Metadata            `json:"source_metadata"`
	Threshold              float64             `json:"threshold"`
	Enrichment             *Enrichment         `json:"enrichment,omitempty"`
	CandidateSearchResults []FieldSearchResult `json:"candidate_search_results"`
	TotalCandidatesChecked int                 `json:"total_candidates_checked"`
	Duplicates             []Duplicate         `json:"duplicates"`
}

// Options are the per-request detection parameters, already validated
// and clamped by the API layer.
type Options struct {
	Threshold     float64
	SearchFields  []string
	MaxCandidates int
}

// Repository is the slice of the upstream client the pipeline needs.
// *wlo.Client satisfies it; tests substitute fakes.
type Repository interface {
	FetchNode(ctx context.Context, nodeID string) (*wlo.Node, error)
	Search(ctx context.Context, property, query string, maxItems int) ([]wlo.Node, error)
	CheckRedirect(ctx context.Context, url string) (string, bool)
}

// candidate is the per-request accumulation record for one discovered
// node.
type candidate struct {
	nodeID         string
	meta           Metadata
	discoveryField string
	matchSource    MatchSource
	similarity     float64
	urlExact       bool
}

// metadataFromNode extracts the metadata record from a repository node.
func metadataFromNode(n *wlo.Node) Metadata {
	return Metadata{
		Title:       n.Title(),
		Description: n.Description(),
		Keywords:    n.Keywords(),
		URL:         n.URL(),
	}
}
