package detect

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/openeduhub/duplicate-detection/errors"
	"github.com/openeduhub/duplicate-detection/normalize"
	"github.com/openeduhub/duplicate-detection/wlo"
)

// maxWorkers bounds concurrent in-flight upstream queries per request.
const maxWorkers = 10

// descriptionQueryLen is how much of the description goes into its
// search query.
const descriptionQueryLen = 100

type queryKind int

const (
	queryOriginal queryKind = iota
	queryNormalized
	queryVariant
	queryRedirect
)

// searchQuery is one upstream search the recruiter will run.
type searchQuery struct {
	field    string
	property string
	value    string
	limit    int
	kind     queryKind
}

// pool accumulates the deduplicated candidate set of one detection
// request across recruitment rounds.
type pool struct {
	byID         map[string]*candidate
	order        []*candidate
	fieldResults map[string]*FieldSearchResult
	fieldOrder   []string
}

func newPool() *pool {
	return &pool{
		byID:         make(map[string]*candidate),
		fieldResults: make(map[string]*FieldSearchResult),
	}
}

func (p *pool) size() int {
	return len(p.byID)
}

// recruit expands the metadata into per-field search queries, fans them
// out over a bounded worker pool and merges the deduplicated results
// into the pool. Individual query failures are logged and treated as
// empty results; recruit fails only when every query failed.
func (pl *Pipeline) recruit(ctx context.Context, meta Metadata, fields []string, limit int, excludeID string, p *pool) error {
	queries, plans := buildQueries(meta, fields, limit)
	if len(queries) == 0 {
		return nil
	}

	for _, plan := range plans {
		if _, ok := p.fieldResults[plan.field]; ok {
			continue
		}
		p.fieldResults[plan.field] = &FieldSearchResult{
			Field:            plan.field,
			SearchValue:      truncate(plan.originalValue, 80),
			NormalizedSearch: truncate(plan.normalizedValue, 50),
		}
		p.fieldOrder = append(p.fieldOrder, plan.field)
	}

	results := make([][]wlo.Node, len(queries))
	errs := make([]error, len(queries))

	indexes := make(chan int)
	var wg sync.WaitGroup

	workers := maxWorkers
	if len(queries) < workers {
		workers = len(queries)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				q := queries[i]
				nodes, err := pl.repo.Search(ctx, q.property, q.value, q.limit)
				results[i] = nodes
				errs[i] = err
				if err != nil {
					pl.logger.Warn("Candidate search failed, treating as empty",
						zap.String("field", q.field),
						zap.String("query", truncate(q.value, 60)),
						zap.Error(err))
				}
			}
		}()
	}

	for i := range queries {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	failed := 0
	for i, q := range queries {
		if errs[i] != nil {
			failed++
			continue
		}
		p.merge(q, results[i], excludeID)
	}

	if failed == len(queries) {
		return apperrors.Wrap(apperrors.ErrUpstreamFatal, "all candidate searches failed")
	}

	pl.logger.Debug("Recruitment round complete",
		zap.Int("queries", len(queries)),
		zap.Int("failed", failed),
		zap.Int("candidates", p.size()))
	return nil
}

// merge folds one query's results into the pool. The first field to
// discover a node wins; later sightings only contribute to the raw hit
// counters.
func (p *pool) merge(q searchQuery, nodes []wlo.Node, excludeID string) {
	fr := p.fieldResults[q.field]

	for i := range nodes {
		node := &nodes[i]
		id := node.Ref.ID
		if id == "" || id == excludeID {
			continue
		}

		if q.kind == queryOriginal && fr != nil {
			fr.OriginalCount++
		}

		if _, seen := p.byID[id]; seen {
			continue
		}

		c := &candidate{
			nodeID:         id,
			meta:           metadataFromNode(node),
			discoveryField: q.field,
			matchSource:    MatchSource(q.field),
		}
		p.byID[id] = c
		p.order = append(p.order, c)

		if fr != nil {
			fr.CandidatesFound++
			if q.kind != queryOriginal {
				fr.NormalizedCount++
			}
		}
	}
}

// fieldPlan records per-field search values for the response stats.
type fieldPlan struct {
	field           string
	originalValue   string
	normalizedValue string
}

// buildQueries generates the search queries for the active, non-empty
// fields of a record.
func buildQueries(meta Metadata, fields []string, limit int) ([]searchQuery, []fieldPlan) {
	var queries []searchQuery
	var plans []fieldPlan

	for _, field := range fields {
		if !meta.HasField(field) {
			continue
		}

		switch field {
		case FieldTitle:
			qs, plan := titleQueries(meta.Title, limit)
			queries = append(queries, qs...)
			plans = append(plans, plan)

		case FieldDescription:
			value := firstRunes(meta.Description, descriptionQueryLen)
			queries = append(queries, searchQuery{
				field:    field,
				property: wlo.PropertySearchWord,
				value:    value,
				limit:    limit,
				kind:     queryOriginal,
			})
			plans = append(plans, fieldPlan{field: field, originalValue: value})

		case FieldKeywords:
			value := strings.Join(nonEmpty(meta.Keywords), " ")
			queries = append(queries, searchQuery{
				field:    field,
				property: wlo.PropertySearchWord,
				value:    value,
				limit:    limit,
				kind:     queryOriginal,
			})
			plans = append(plans, fieldPlan{field: field, originalValue: value})

		case FieldURL:
			qs, plan := urlQueries(meta, limit)
			queries = append(queries, qs...)
			plans = append(plans, plan)
		}
	}

	return queries, plans
}

// titleQueries searches the original title, the normalized title (when
// different) and every search variant, deduplicated case-insensitively.
func titleQueries(title string, limit int) ([]searchQuery, fieldPlan) {
	title = strings.TrimSpace(title)
	normalized := normalize.Title(title)

	seen := map[string]bool{strings.ToLower(title): true}
	queries := []searchQuery{{
		field:    FieldTitle,
		property: wlo.PropertySearchWord,
		value:    title,
		limit:    limit,
		kind:     queryOriginal,
	}}

	plan := fieldPlan{field: FieldTitle, originalValue: title}

	if normalized != "" && !seen[strings.ToLower(normalized)] {
		seen[strings.ToLower(normalized)] = true
		queries = append(queries, searchQuery{
			field:    FieldTitle,
			property: wlo.PropertySearchWord,
			value:    normalized,
			limit:    limit,
			kind:     queryNormalized,
		})
		plan.normalizedValue = normalized
	}

	for _, variant := range normalize.TitleVariants(normalized) {
		key := strings.ToLower(variant)
		if seen[key] {
			continue
		}
		seen[key] = true
		queries = append(queries, searchQuery{
			field:    FieldTitle,
			property: wlo.PropertySearchWord,
			value:    variant,
			limit:    limit,
			kind:     queryVariant,
		})
	}

	return queries, plan
}

// urlQueries searches the exact URL property with the original and
// redirect URLs, then the free-text property with the normalized form
// and the URL spelling variants (at half the per-query limit).
func urlQueries(meta Metadata, limit int) ([]searchQuery, fieldPlan) {
	rawURL := strings.TrimSpace(meta.URL)
	normalized := normalize.URLKey(rawURL)

	seen := map[string]bool{rawURL: true}
	queries := []searchQuery{{
		field:    FieldURL,
		property: wlo.PropertyWWWURL,
		value:    rawURL,
		limit:    limit,
		kind:     queryOriginal,
	}}

	plan := fieldPlan{field: FieldURL, originalValue: rawURL}

	if redirect := strings.TrimSpace(meta.RedirectURL); redirect != "" && !seen[redirect] {
		seen[redirect] = true
		queries = append(queries, searchQuery{
			field:    FieldURL,
			property: wlo.PropertyWWWURL,
			value:    redirect,
			limit:    limit,
			kind:     queryRedirect,
		})
	}

	if normalized != "" && normalized != rawURL {
		plan.normalizedValue = normalized
		if !seen[normalized] {
			seen[normalized] = true
			queries = append(queries, searchQuery{
				field:    FieldURL,
				property: wlo.PropertySearchWord,
				value:    normalized,
				limit:    limit,
				kind:     queryNormalized,
			})
		}
	}

	variantLimit := limit / 2
	if variantLimit < 1 {
		variantLimit = 1
	}
	urls := []string{rawURL}
	if meta.RedirectURL != "" && meta.RedirectURL != rawURL {
		urls = append(urls, meta.RedirectURL)
	}
	for _, u := range urls {
		for _, variant := range normalize.URLSearchVariants(u) {
			if seen[variant] {
				continue
			}
			seen[variant] = true
			queries = append(queries, searchQuery{
				field:    FieldURL,
				property: wlo.PropertySearchWord,
				value:    variant,
				limit:    variantLimit,
				kind:     queryVariant,
			})
		}
	}

	return queries, plan
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
