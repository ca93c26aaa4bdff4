package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// Publisher names that show up as title suffixes in repository content.
var publisherTokens = []string{
	"wikipedia",
	"klexikon",
	"wikibooks",
	"wikiversity",
	"planet-schule",
	"planet schule",
	"lehrer-online",
	"lernhelfer",
	"sofatutor",
	"learningapps",
	"serlo",
}

var (
	publisherSuffixRx *regexp.Regexp
	publisherParenRx  *regexp.Regexp
	domainParenRx     = regexp.MustCompile(`(?i)\s*\([^)]*\.(?:de|com|org|net|edu)\)\s*$`)
	whitespaceRx      = regexp.MustCompile(`\s+`)
)

func init() {
	tokens := strings.Join(publisherTokens, "|")
	// Separator (" - ", " | ", " :: ", dash variants) followed by a known
	// publisher, extending to end of string.
	publisherSuffixRx = regexp.MustCompile(`(?i)\s*(?:::|[-–—|:])\s*(?:` + tokens + `).*$`)
	// " (Publisher)" and " (Publisher ..." without closing paren.
	publisherParenRx = regexp.MustCompile(`(?i)\s*\(\s*(?:` + tokens + `)[^)]*\)?\s*$`)
}

// Title strips publisher suffixes from a title and cleans up whitespace.
// The result may equal the (trimmed) input when no suffix matched.
// Idempotent: Title(Title(x)) == Title(x).
func Title(title string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return ""
	}

	t = publisherSuffixRx.ReplaceAllString(t, "")
	t = publisherParenRx.ReplaceAllString(t, "")
	t = domainParenRx.ReplaceAllString(t, "")

	t = strings.ReplaceAll(t, "&", " ")
	t = whitespaceRx.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

var umlautFolder = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
)

var adjectiveEndings = []string{"er", "es", "en", "em", "e"}

// TitleVariants generates alternative spellings of a normalized title for
// upstream search. The search engine has no lemmatization, is
// case-sensitive and stores umlauts inconsistently, so each variant
// widens recall. The input title is always the first element.
func TitleVariants(title string) []string {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	var variants []string
	seen := make(map[string]bool)
	add := func(v string) {
		v = strings.TrimSpace(whitespaceRx.ReplaceAllString(v, " "))
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	add(title)
	add(strings.ToLower(title))
	add(umlautFolder.Replace(title))
	add(strings.ReplaceAll(title, "-", ""))
	add(strings.ReplaceAll(title, "-", " "))
	add(alphanumericOnly(title))

	for _, v := range adjectiveStripped(title) {
		add(v)
	}

	return variants
}

// alphanumericOnly replaces every non-alphanumeric rune with a space.
// Letters outside ASCII (umlauts etc.) count as alphanumeric.
func alphanumericOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
}

// adjectiveStripped emits one variant per word that looks like an
// inflected German adjective (length >= 5 ending in e/er/es/en/em),
// with the ending removed.
func adjectiveStripped(title string) []string {
	words := strings.Fields(title)
	var variants []string

	for i, word := range words {
		if len(word) < 5 {
			continue
		}
		for _, ending := range adjectiveEndings {
			if strings.HasSuffix(strings.ToLower(word), ending) {
				stripped := word[:len(word)-len(ending)]
				modified := make([]string, len(words))
				copy(modified, words)
				modified[i] = stripped
				variants = append(variants, strings.Join(modified, " "))
				break
			}
		}
	}

	return variants
}
