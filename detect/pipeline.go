package detect

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/openeduhub/duplicate-detection/errors"
	"github.com/openeduhub/duplicate-detection/minhash"
	"github.com/openeduhub/duplicate-detection/normalize"
)

// scoreDescriptionLen is how much of the description feeds the
// similarity text. Long descriptions drown out the title otherwise.
const scoreDescriptionLen = 200

// Pipeline runs duplicate detection against a repository.
type Pipeline struct {
	repo   Repository
	logger *zap.Logger
}

// NewPipeline creates a detection pipeline.
func NewPipeline(repo Repository, logger *zap.Logger) *Pipeline {
	return &Pipeline{repo: repo, logger: logger}
}

// DetectByNode fetches a node's metadata and runs detection with the
// node itself excluded from the candidate pool.
func (pl *Pipeline) DetectByNode(ctx context.Context, nodeID string, opts Options) (*Response, error) {
	node, err := pl.repo.FetchNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	meta := metadataFromNode(node)
	if !meta.Searchable() {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "node %s has no searchable metadata", nodeID)
	}

	pl.resolveRedirect(ctx, &meta)
	return pl.run(ctx, nodeID, meta, opts)
}

// DetectByMetadata runs detection on caller-supplied metadata.
func (pl *Pipeline) DetectByMetadata(ctx context.Context, meta Metadata, opts Options) (*Response, error) {
	if !meta.Searchable() {
		return nil, apperrors.Wrap(apperrors.ErrInvalidRequest, "metadata has no searchable fields")
	}

	pl.resolveRedirect(ctx, &meta)
	return pl.run(ctx, "", meta, opts)
}

// resolveRedirect fills in the redirect URL when the record has a URL
// and the caller did not supply a resolution. Best-effort.
func (pl *Pipeline) resolveRedirect(ctx context.Context, meta *Metadata) {
	if strings.TrimSpace(meta.URL) == "" || strings.TrimSpace(meta.RedirectURL) != "" {
		return
	}
	if final, ok := pl.repo.CheckRedirect(ctx, meta.URL); ok && final != meta.URL {
		meta.RedirectURL = final
	}
}

// run executes the detection phases: recruit, enrich and re-recruit,
// URL-exact matching, MinHash scoring and response assembly.
func (pl *Pipeline) run(ctx context.Context, sourceID string, meta Metadata, opts Options) (*Response, error) {
	p := newPool()

	if err := pl.recruit(ctx, meta, opts.SearchFields, opts.MaxCandidates, sourceID, p); err != nil {
		return nil, err
	}

	var enrichment *Enrichment
	if needsEnrichment(meta) && p.size() > 0 {
		var report *Enrichment
		meta, report = pl.enrich(ctx, meta, p)
		if report.Enriched {
			enrichment = report
			if fields := activeAddedFields(opts.SearchFields, report.FieldsAdded); len(fields) > 0 {
				// The first round already produced candidates; a fully
				// failed second round degrades to scoring those
				if err := pl.recruit(ctx, meta, fields, opts.MaxCandidates, sourceID, p); err != nil {
					pl.logger.Warn("Re-recruitment after enrichment failed, scoring first-round candidates",
						zap.Error(err))
				}
			}
		}
	}

	pl.markURLExact(meta, p)
	pl.score(meta, p)

	return pl.assemble(sourceID, meta, opts, enrichment, p), nil
}

// activeAddedFields intersects the enrichment additions with the
// request's search fields, keeping request order.
func activeAddedFields(searchFields, added []string) []string {
	addedSet := make(map[string]bool, len(added))
	for _, f := range added {
		addedSet[f] = true
	}
	var out []string
	for _, f := range searchFields {
		if addedSet[f] {
			out = append(out, f)
		}
	}
	return out
}

// markURLExact flags candidates whose URL normalizes to the same key as
// the source URL or its redirect target. Those are duplicates by
// definition, scored 1.0 regardless of threshold.
func (pl *Pipeline) markURLExact(meta Metadata, p *pool) {
	sourceKeys := meta.urlKeys()
	if len(sourceKeys) == 0 {
		return
	}
	for _, c := range p.order {
		if urlKeyMatches(sourceKeys, c.meta) {
			c.urlExact = true
			c.similarity = 1.0
			c.matchSource = MatchURLExact
		}
	}
}

// score computes MinHash similarity between the source text and every
// non-URL-exact candidate.
func (pl *Pipeline) score(meta Metadata, p *pool) {
	srcText := scoreText(meta)
	if srcText == "" {
		return
	}
	srcSig := minhash.TextSignature(srcText)

	for _, c := range p.order {
		if c.urlExact {
			continue
		}
		candText := scoreText(c.meta)
		if candText == "" {
			continue
		}
		c.similarity = minhash.Similarity(srcSig, minhash.TextSignature(candText))
	}
}

// scoreText is the similarity input: normalized title plus the leading
// part of the description.
func scoreText(meta Metadata) string {
	title := normalize.Title(meta.Title)
	desc := firstRunes(strings.TrimSpace(meta.Description), scoreDescriptionLen)
	return strings.TrimSpace(title + " " + desc)
}

// assemble sorts the accepted duplicates, fills per-field statistics
// and builds the response.
func (pl *Pipeline) assemble(sourceID string, meta Metadata, opts Options, enrichment *Enrichment, p *pool) *Response {
	duplicates := make([]Duplicate, 0)
	for _, c := range p.order {
		if fr := p.fieldResults[c.discoveryField]; fr != nil {
			if fr.HighestSimilarity == nil || c.similarity > *fr.HighestSimilarity {
				sim := c.similarity
				fr.HighestSimilarity = &sim
			}
		}

		if !c.urlExact && c.similarity < opts.Threshold {
			continue
		}
		duplicates = append(duplicates, Duplicate{
			NodeID:          c.nodeID,
			Title:           c.meta.Title,
			Description:     firstRunes(c.meta.Description, scoreDescriptionLen),
			Keywords:        c.meta.Keywords,
			URL:             c.meta.URL,
			SimilarityScore: c.similarity,
			MatchSource:     c.matchSource,
		})
	}

	sort.SliceStable(duplicates, func(i, j int) bool {
		a, b := duplicates[i], duplicates[j]
		aExact := a.MatchSource == MatchURLExact
		bExact := b.MatchSource == MatchURLExact
		if aExact != bExact {
			return aExact
		}
		if a.SimilarityScore != b.SimilarityScore {
			return a.SimilarityScore > b.SimilarityScore
		}
		return a.NodeID < b.NodeID
	})

	fieldResults := make([]FieldSearchResult, 0, len(p.fieldOrder))
	for _, field := range p.fieldOrder {
		fieldResults = append(fieldResults, *p.fieldResults[field])
	}

	pl.logger.Info("Detection complete",
		zap.String("source_node_id", sourceID),
		zap.Int("candidates_checked", p.size()),
		zap.Int("duplicates", len(duplicates)))

	return &Response{
		SourceNodeID:           sourceID,
		SourceMetadata:         meta,
		Threshold:              opts.Threshold,
		Enrichment:             enrichment,
		CandidateSearchResults: fieldResults,
		TotalCandidatesChecked: p.size(),
		Duplicates:             duplicates,
	}
}
