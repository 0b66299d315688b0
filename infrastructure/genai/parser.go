package genai

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	pkgerrors "mindloom-backend/pkg/errors"
)

var opaqueToken = regexp.MustCompile(`^[A-Za-z0-9_-]{10,}$`)

// LooksOpaque reports whether text reads like a bare identifier dump
// instead of prose or JSON. Some models answer with an internal handle
// when they fail to produce content; that output parses as nothing and
// should trigger a forced retry rather than a parse error.
func LooksOpaque(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	for _, field := range fields {
		if !opaqueToken.MatchString(field) {
			return false
		}
	}
	return true
}

// CleanAndParse extracts structured data from raw model output text.
// Models wrap JSON in prose, fences, or both, so the parse attempts run
// from cheapest to most aggressive, stopping at the first that decodes.
func CleanAndParse(text string) (interface{}, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, pkgerrors.NewUnparsableTextError(text)
	}

	// Slice from the first opening brace to the last closing one
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		if value, ok := tryParseJSON(trimmed[start : end+1]); ok {
			return value, nil
		}
	}

	// Contents of fenced code blocks
	for _, block := range fencedBlocks(trimmed) {
		if value, ok := tryParseJSON(block); ok {
			return value, nil
		}
	}

	// Every balanced-looking {...} substring, longest first
	for _, span := range balancedSpans(trimmed) {
		if value, ok := tryParseJSON(span); ok {
			return value, nil
		}
	}

	return nil, pkgerrors.NewUnparsableTextError(trimmed)
}

func tryParseJSON(s string) (interface{}, bool) {
	var value interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &value); err != nil {
		return nil, false
	}
	return value, true
}

// fencedBlocks returns the contents of every ``` fenced block, with any
// language tag on the opening fence stripped
func fencedBlocks(s string) []string {
	var blocks []string
	rest := s
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			break
		}
		rest = rest[open+3:]
		close := strings.Index(rest, "```")
		if close < 0 {
			break
		}
		block := rest[:close]
		rest = rest[close+3:]

		// Drop a language tag like "json" on the opening fence line
		if nl := strings.IndexByte(block, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(block[:nl])
			if firstLine != "" && !strings.ContainsAny(firstLine, "{}[]\" ") {
				block = block[nl+1:]
			}
		}
		block = strings.TrimSpace(block)
		if block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

// balancedSpans collects every substring that opens with "{" and closes at
// its matching "}" by brace depth. String contexts are not tracked; these
// are candidates, not guaranteed JSON, and each still has to parse.
func balancedSpans(s string) []string {
	var spans []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		depth := 0
		for j := i; j < len(s); j++ {
			switch s[j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					spans = append(spans, s[i:j+1])
					j = len(s)
				}
			}
		}
	}
	sort.SliceStable(spans, func(a, b int) bool {
		return len(spans[a]) > len(spans[b])
	})
	return spans
}
