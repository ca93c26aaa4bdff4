package detect

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	apperrors "github.com/openeduhub/duplicate-detection/errors"
	"github.com/openeduhub/duplicate-detection/wlo"
)

type searchCall struct {
	property string
	query    string
	limit    int
}

// fakeRepo serves canned nodes and search results, recording every
// search call. With failAfterFetch set, every search after the first
// FetchNode call fails, which simulates the upstream dying between
// recruitment rounds.
type fakeRepo struct {
	mu             sync.Mutex
	nodes          map[string]*wlo.Node
	results        map[string][]wlo.Node // keyed property + "|" + query
	redirects      map[string]string
	searchErr      error
	failAfterFetch bool
	fetched        bool
	calls          []searchCall
}

func (f *fakeRepo) FetchNode(ctx context.Context, nodeID string) (*wlo.Node, error) {
	f.mu.Lock()
	f.fetched = true
	node, ok := f.nodes[nodeID]
	f.mu.Unlock()

	if ok {
		return node, nil
	}
	return nil, apperrors.Wrapf(apperrors.ErrNotFound, "node %s", nodeID)
}

func (f *fakeRepo) Search(ctx context.Context, property, query string, maxItems int) ([]wlo.Node, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{property, query, maxItems})
	failing := f.searchErr != nil || (f.failAfterFetch && f.fetched)
	f.mu.Unlock()

	if failing {
		if f.searchErr != nil {
			return nil, f.searchErr
		}
		return nil, apperrors.ErrUpstreamTransient
	}
	return f.results[property+"|"+query], nil
}

func (f *fakeRepo) CheckRedirect(ctx context.Context, url string) (string, bool) {
	if final, ok := f.redirects[url]; ok {
		return final, true
	}
	return url, false
}

func (f *fakeRepo) searchCalls() []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]searchCall(nil), f.calls...)
}

func makeNode(id, title, description, url string) wlo.Node {
	props := map[string]any{}
	if title != "" {
		props["cclom:title"] = []any{title}
	}
	if description != "" {
		props["cclom:general_description"] = []any{description}
	}
	if url != "" {
		props["ccm:wwwurl"] = []any{url}
	}
	return wlo.Node{Ref: wlo.NodeRef{ID: id}, Properties: props}
}

func testOptions() Options {
	return Options{
		Threshold:     DefaultThreshold,
		SearchFields:  DefaultSearchFields,
		MaxCandidates: 40,
	}
}

func TestDetectByMetadataURLExactOverridesThreshold(t *testing.T) {
	cand := makeNode("c1", "Völlig anderer Titel", "", "http://www.example.com/kurs/")
	repo := &fakeRepo{
		results: map[string][]wlo.Node{
			"ngsearchword|Ganz eigener Name": {cand},
		},
	}
	pipeline := NewPipeline(repo, zap.NewNop())

	opts := testOptions()
	opts.Threshold = 0.99
	meta := Metadata{Title: "Ganz eigener Name", URL: "https://example.com/kurs"}

	resp, err := pipeline.DetectByMetadata(context.Background(), meta, opts)
	if err != nil {
		t.Fatalf("DetectByMetadata: %v", err)
	}

	if len(resp.Duplicates) != 1 {
		t.Fatalf("duplicates = %+v, want exactly one", resp.Duplicates)
	}
	dup := resp.Duplicates[0]
	if dup.NodeID != "c1" {
		t.Errorf("node id = %q, want c1", dup.NodeID)
	}
	if dup.MatchSource != MatchURLExact {
		t.Errorf("match source = %q, want url_exact", dup.MatchSource)
	}
	if dup.SimilarityScore != 1.0 {
		t.Errorf("score = %v, want 1.0", dup.SimilarityScore)
	}
}

func TestDetectByMetadataVariantTitleRecruitment(t *testing.T) {
	cand := makeNode("c1", "Saeuren und Basen", "", "")
	repo := &fakeRepo{
		results: map[string][]wlo.Node{
			"ngsearchword|Saeuren und Basen": {cand},
		},
	}
	pipeline := NewPipeline(repo, zap.NewNop())

	opts := testOptions()
	opts.Threshold = 0.0
	opts.SearchFields = []string{FieldTitle}
	meta := Metadata{Title: "Säuren und Basen"}

	resp, err := pipeline.DetectByMetadata(context.Background(), meta, opts)
	if err != nil {
		t.Fatalf("DetectByMetadata: %v", err)
	}

	if len(resp.Duplicates) != 1 || resp.Duplicates[0].NodeID != "c1" {
		t.Fatalf("duplicates = %+v, want c1", resp.Duplicates)
	}
	if resp.Duplicates[0].MatchSource != MatchTitle {
		t.Errorf("match source = %q, want title", resp.Duplicates[0].MatchSource)
	}

	if len(resp.CandidateSearchResults) != 1 {
		t.Fatalf("search results = %+v", resp.CandidateSearchResults)
	}
	fr := resp.CandidateSearchResults[0]
	if fr.OriginalCount != 0 {
		t.Errorf("original count = %d, want 0", fr.OriginalCount)
	}
	if fr.NormalizedCount != 1 {
		t.Errorf("normalized count = %d, want 1", fr.NormalizedCount)
	}
	if fr.CandidatesFound != 1 {
		t.Errorf("candidates found = %d, want 1", fr.CandidatesFound)
	}
}

func TestDetectByNodeEnrichmentRoundTrip(t *testing.T) {
	src := makeNode("src", "", "", "https://example.com/kurs")
	full := makeNode("c1", "Der Wasserkreislauf", "Eine Beschreibung des Kreislaufs von Wasser in der Natur", "https://example.com/kurs")
	second := makeNode("c2", "Der Wasserkreislauf", "Eine Beschreibung des Kreislaufs von Wasser in der Natur", "https://other.example.org/x")

	repo := &fakeRepo{
		nodes: map[string]*wlo.Node{"src": &src, "c1": &full},
		results: map[string][]wlo.Node{
			// The source node shows up in its own URL search and must
			// be excluded
			"ccm:wwwurl|https://example.com/kurs": {src, full},
			"ngsearchword|Der Wasserkreislauf":    {second},
		},
	}
	pipeline := NewPipeline(repo, zap.NewNop())

	resp, err := pipeline.DetectByNode(context.Background(), "src", testOptions())
	if err != nil {
		t.Fatalf("DetectByNode: %v", err)
	}

	if resp.Enrichment == nil || !resp.Enrichment.Enriched {
		t.Fatalf("expected enrichment, got %+v", resp.Enrichment)
	}
	if resp.Enrichment.SourceNodeID != "c1" {
		t.Errorf("enrichment source = %q, want c1", resp.Enrichment.SourceNodeID)
	}
	wantAdded := []string{FieldTitle, FieldDescription}
	if len(resp.Enrichment.FieldsAdded) != len(wantAdded) {
		t.Fatalf("fields added = %v, want %v", resp.Enrichment.FieldsAdded, wantAdded)
	}
	for i, f := range wantAdded {
		if resp.Enrichment.FieldsAdded[i] != f {
			t.Errorf("fields added = %v, want %v", resp.Enrichment.FieldsAdded, wantAdded)
		}
	}

	if resp.SourceMetadata.Title != "Der Wasserkreislauf" {
		t.Errorf("source title not enriched: %+v", resp.SourceMetadata)
	}

	if len(resp.Duplicates) != 2 {
		t.Fatalf("duplicates = %+v, want two", resp.Duplicates)
	}
	if resp.Duplicates[0].NodeID != "c1" || resp.Duplicates[0].MatchSource != MatchURLExact {
		t.Errorf("first duplicate = %+v, want url_exact c1", resp.Duplicates[0])
	}
	if resp.Duplicates[1].NodeID != "c2" {
		t.Errorf("second duplicate = %+v, want c2", resp.Duplicates[1])
	}

	for _, d := range resp.Duplicates {
		if d.NodeID == "src" {
			t.Error("source node leaked into duplicates")
		}
	}
	if resp.TotalCandidatesChecked != 2 {
		t.Errorf("total candidates checked = %d, want 2", resp.TotalCandidatesChecked)
	}

	// The enriched title must have triggered a second recruitment round
	foundTitleQuery := false
	for _, call := range repo.searchCalls() {
		if call.property == "ngsearchword" && call.query == "Der Wasserkreislauf" {
			foundTitleQuery = true
		}
	}
	if !foundTitleQuery {
		t.Error("no title search after enrichment")
	}
}

func TestEnrichmentSourceFieldForURLExactDescriptionHit(t *testing.T) {
	cand := makeNode("c1", "Der Wasserkreislauf", "Eine Beschreibung des Kreislaufs", "https://example.com/kurs")
	repo := &fakeRepo{
		nodes: map[string]*wlo.Node{"c1": &cand},
		results: map[string][]wlo.Node{
			// The only hit comes from the description search, but the
			// candidate is URL-exact
			"ngsearchword|Eine Beschreibung des Kreislaufs": {cand},
		},
	}
	pipeline := NewPipeline(repo, zap.NewNop())

	meta := Metadata{Description: "Eine Beschreibung des Kreislaufs", URL: "https://example.com/kurs"}
	resp, err := pipeline.DetectByMetadata(context.Background(), meta, testOptions())
	if err != nil {
		t.Fatalf("DetectByMetadata: %v", err)
	}

	if resp.Enrichment == nil || !resp.Enrichment.Enriched {
		t.Fatalf("expected enrichment, got %+v", resp.Enrichment)
	}
	if resp.Enrichment.SourceField != FieldURL {
		t.Errorf("source field = %q, want url", resp.Enrichment.SourceField)
	}
}

func TestDetectByMetadataUnsearchable(t *testing.T) {
	pipeline := NewPipeline(&fakeRepo{}, zap.NewNop())

	_, err := pipeline.DetectByMetadata(context.Background(), Metadata{Keywords: []string{"  "}}, testOptions())
	if !apperrors.IsInvalidRequest(err) {
		t.Errorf("expected invalid-request error, got %v", err)
	}
}

func TestDetectByNodeUnknownNode(t *testing.T) {
	pipeline := NewPipeline(&fakeRepo{}, zap.NewNop())

	_, err := pipeline.DetectByNode(context.Background(), "nope", testOptions())
	if !apperrors.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestDetectAllSearchesFailed(t *testing.T) {
	repo := &fakeRepo{searchErr: apperrors.ErrUpstreamTransient}
	pipeline := NewPipeline(repo, zap.NewNop())

	_, err := pipeline.DetectByMetadata(context.Background(), Metadata{Title: "Wasser"}, testOptions())
	if !apperrors.IsUpstreamFatal(err) {
		t.Errorf("expected upstream-fatal error, got %v", err)
	}
}

func TestReRecruitmentFailureDegradesToFirstRound(t *testing.T) {
	cand := makeNode("c1", "Der Wasserkreislauf", "Eine Beschreibung des Kreislaufs", "https://example.com/kurs")
	repo := &fakeRepo{
		nodes: map[string]*wlo.Node{"c1": &cand},
		results: map[string][]wlo.Node{
			"ccm:wwwurl|https://example.com/kurs": {cand},
		},
		failAfterFetch: true,
	}
	pipeline := NewPipeline(repo, zap.NewNop())

	meta := Metadata{URL: "https://example.com/kurs"}
	resp, err := pipeline.DetectByMetadata(context.Background(), meta, testOptions())
	if err != nil {
		t.Fatalf("DetectByMetadata: %v", err)
	}

	if resp.Enrichment == nil || !resp.Enrichment.Enriched {
		t.Fatalf("expected enrichment, got %+v", resp.Enrichment)
	}
	if len(resp.Duplicates) != 1 || resp.Duplicates[0].NodeID != "c1" {
		t.Errorf("duplicates = %+v, want the first-round url-exact candidate", resp.Duplicates)
	}
	if resp.Duplicates[0].MatchSource != MatchURLExact {
		t.Errorf("match source = %q, want url_exact", resp.Duplicates[0].MatchSource)
	}
}

func TestDetectRedirectResolution(t *testing.T) {
	repo := &fakeRepo{
		redirects: map[string]string{
			"https://kurz.example.com/x": "https://lang.example.com/voller/pfad",
		},
	}
	pipeline := NewPipeline(repo, zap.NewNop())

	meta := Metadata{URL: "https://kurz.example.com/x"}
	resp, err := pipeline.DetectByMetadata(context.Background(), meta, testOptions())
	if err != nil {
		t.Fatalf("DetectByMetadata: %v", err)
	}

	if resp.SourceMetadata.RedirectURL != "https://lang.example.com/voller/pfad" {
		t.Errorf("redirect url = %q", resp.SourceMetadata.RedirectURL)
	}

	// The resolved target must have been searched against the URL
	// property as well
	found := false
	for _, call := range repo.searchCalls() {
		if call.property == "ccm:wwwurl" && call.query == "https://lang.example.com/voller/pfad" {
			found = true
		}
	}
	if !found {
		t.Error("redirect target never searched")
	}
}

func TestRecruitLimitNeverExceedsRequested(t *testing.T) {
	repo := &fakeRepo{}
	pipeline := NewPipeline(repo, zap.NewNop())

	opts := testOptions()
	opts.MaxCandidates = 7
	meta := Metadata{Title: "Photosynthese", URL: "https://example.com/p"}

	if _, err := pipeline.DetectByMetadata(context.Background(), meta, opts); err != nil {
		t.Fatalf("DetectByMetadata: %v", err)
	}

	for _, call := range repo.searchCalls() {
		if call.limit > 7 {
			t.Errorf("search %q used limit %d, want <= 7", call.query, call.limit)
		}
	}
}
