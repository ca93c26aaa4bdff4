package detect

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/openeduhub/duplicate-detection/minhash"
	"github.com/openeduhub/duplicate-detection/normalize"
)

// enrichTitleThreshold is the minimum title similarity a candidate needs
// to be trusted as an enrichment source.
const enrichTitleThreshold = 0.7

// needsEnrichment reports whether the record is missing any of the
// high-signal fields worth completing before the final scoring pass.
func needsEnrichment(meta Metadata) bool {
	return strings.TrimSpace(meta.Title) == "" ||
		strings.TrimSpace(meta.Description) == "" ||
		strings.TrimSpace(meta.URL) == ""
}

// enrich completes missing source fields from the most trustworthy
// candidate: a URL-exact match if one exists, otherwise the most
// title-similar candidate above the confidence floor. Failures degrade
// to no enrichment; they never fail the request.
func (pl *Pipeline) enrich(ctx context.Context, meta Metadata, p *pool) (Metadata, *Enrichment) {
	report := &Enrichment{}

	source, sourceField := selectEnrichmentSource(meta, p)
	if source == nil {
		return meta, report
	}

	// The pool only carries search-result properties; fetch the full
	// node so enrichment sees everything the repository knows.
	node, err := pl.repo.FetchNode(ctx, source.nodeID)
	full := source.meta
	if err != nil {
		pl.logger.Warn("Enrichment source fetch failed, using search result properties",
			zap.String("node_id", source.nodeID),
			zap.Error(err))
	} else {
		full = metadataFromNode(node)
	}

	var added []string
	if strings.TrimSpace(meta.Title) == "" && strings.TrimSpace(full.Title) != "" {
		meta.Title = full.Title
		added = append(added, FieldTitle)
	}
	if strings.TrimSpace(meta.Description) == "" && strings.TrimSpace(full.Description) != "" {
		meta.Description = full.Description
		added = append(added, FieldDescription)
	}
	if len(nonEmpty(meta.Keywords)) == 0 && len(nonEmpty(full.Keywords)) > 0 {
		meta.Keywords = full.Keywords
		added = append(added, FieldKeywords)
	}
	if strings.TrimSpace(meta.URL) == "" && strings.TrimSpace(full.URL) != "" {
		meta.URL = full.URL
		added = append(added, FieldURL)
	}

	if len(added) == 0 {
		return meta, report
	}

	report.Enriched = true
	report.SourceNodeID = source.nodeID
	report.SourceField = sourceField
	report.FieldsAdded = added

	pl.logger.Info("Enriched source metadata from candidate",
		zap.String("source_node_id", source.nodeID),
		zap.Strings("fields_added", added))

	return meta, report
}

// selectEnrichmentSource picks the candidate to copy fields from and
// reports whether it was trusted for its URL or its title. A URL-exact
// candidate wins outright (earliest discovered), regardless of which
// search found it; otherwise the title-discovered candidate with the
// highest normalized-title similarity, ties broken by the smaller
// node id.
func selectEnrichmentSource(meta Metadata, p *pool) (*candidate, string) {
	sourceKeys := meta.urlKeys()
	for _, c := range p.order {
		if urlKeyMatches(sourceKeys, c.meta) {
			return c, FieldURL
		}
	}

	title := normalize.Title(meta.Title)
	if title == "" {
		return nil, ""
	}
	srcSig := minhash.TextSignature(title)

	var best *candidate
	bestSim := 0.0
	for _, c := range p.order {
		if c.discoveryField != FieldTitle {
			continue
		}
		candTitle := normalize.Title(c.meta.Title)
		if candTitle == "" {
			continue
		}
		sim := minhash.Similarity(srcSig, minhash.TextSignature(candTitle))
		if sim < enrichTitleThreshold {
			continue
		}
		if best == nil || sim > bestSim || (sim == bestSim && c.nodeID < best.nodeID) {
			best = c
			bestSim = sim
		}
	}
	if best == nil {
		return nil, ""
	}
	return best, FieldTitle
}

// urlKeyMatches reports whether the candidate's URL normalizes to any
// of the source keys.
func urlKeyMatches(sourceKeys []string, meta Metadata) bool {
	if len(sourceKeys) == 0 {
		return false
	}
	key := normalize.URLKey(meta.URL)
	if key == "" {
		return false
	}
	for _, sk := range sourceKeys {
		if key == sk {
			return true
		}
	}
	return false
}
