package valueobjects

import (
	"strings"

	"mindloom-backend/domain/config"
)

// stopWords are dropped during keyword extraction. The captured pages are
// mostly Spanish-language chat transcripts, so the set mixes Spanish and
// English function words.
var stopWords = map[string]bool{
	// Spanish
	"el": true, "la": true, "los": true, "las": true,
	"un": true, "una": true, "unos": true, "unas": true,
	"de": true, "del": true, "en": true, "con": true,
	"por": true, "para": true, "que": true, "se": true,
	"su": true, "sus": true, "es": true, "son": true,
	"al": true, "lo": true, "como": true, "más": true,
	"mas": true, "este": true, "esta": true, "esto": true,
	"estos": true, "estas": true, "y": true, "o": true,
	"u": true, "a": true, "e": true, "no": true, "si": true,
	"sí": true, "le": true, "les": true, "ya": true,
	// English
	"the": true, "an": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "with": true,
	"this": true, "that": true, "it": true, "its": true,
	"by": true, "from": true, "as": true,
}

// ExtractKeywords mines candidate keywords from free text: lowercase, split
// on runs of characters outside the keyword alphabet, drop stopwords, and
// cap the result preserving order of first occurrence. Repeated calls over
// the same text always return the same slice.
func ExtractKeywords(text string, cfg *config.DomainConfig) []string {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isKeywordRune(r)
	})

	keywords := make([]string, 0, cfg.MaxKeywordsPerFragment)
	seen := make(map[string]bool, cfg.MaxKeywordsPerFragment)

	for _, token := range tokens {
		if stopWords[token] || seen[token] {
			continue
		}
		seen[token] = true
		keywords = append(keywords, token)
		if len(keywords) >= cfg.MaxKeywordsPerFragment {
			break
		}
	}

	return keywords
}

// isKeywordRune reports whether r belongs to the keyword alphabet:
// lowercase ASCII letters, digits, and the accented characters common
// in Spanish text.
func isKeywordRune(r rune) bool {
	if r >= 'a' && r <= 'z' {
		return true
	}
	if r >= '0' && r <= '9' {
		return true
	}
	switch r {
	case 'á', 'é', 'í', 'ó', 'ú', 'ü', 'ñ':
		return true
	}
	return false
}
