package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/openeduhub/duplicate-detection/normalize"
)

// cacheKeyPayload is the canonical form of a by-metadata request.
// Normalizing before hashing lets trivially different spellings of the
// same record share a cache entry.
type cacheKeyPayload struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	URL           string   `json:"url"`
	Keywords      []string `json:"keywords"`
	Threshold     float64  `json:"threshold"`
	SearchFields  []string `json:"search_fields"`
	MaxCandidates int      `json:"max_candidates"`
}

// CacheKey derives a stable cache key from a metadata record and the
// detection options.
func CacheKey(meta Metadata, opts Options) string {
	keywords := make([]string, 0, len(meta.Keywords))
	for _, k := range nonEmpty(meta.Keywords) {
		keywords = append(keywords, strings.ToLower(k))
	}
	sort.Strings(keywords)

	fields := append([]string(nil), opts.SearchFields...)
	sort.Strings(fields)

	payload := cacheKeyPayload{
		Title:         strings.ToLower(normalize.Title(meta.Title)),
		Description:   strings.ToLower(firstRunes(strings.TrimSpace(meta.Description), descriptionQueryLen)),
		URL:           normalize.URLKey(meta.URL),
		Keywords:      keywords,
		Threshold:     opts.Threshold,
		SearchFields:  fields,
		MaxCandidates: opts.MaxCandidates,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
