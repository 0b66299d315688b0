package valueobjects

import (
	"errors"
	"net/url"
	"sort"
	"strings"

	pkgerrors "mindloom-backend/pkg/errors"
)

// PageKey is a value object holding the canonical identity of a web page.
// Two URLs that differ only in query parameter order or a trailing slash
// resolve to the same key, so fragments, groups, and maps captured from
// the same page always correlate.
type PageKey struct {
	value string
}

// NewPageKey canonicalizes a raw URL into a stable page key.
//
// The canonical form is origin + path (one trailing slash stripped unless
// the path is "/") + query parameters sorted by key then value and
// re-encoded + the fragment identifier when present and not a bare "#".
// Canonicalization is idempotent: a key's string form maps back to the
// same key.
func NewPageKey(rawURL string) (PageKey, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return PageKey{}, pkgerrors.NewPageURLInvalidError(rawURL, nil)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return PageKey{}, pkgerrors.NewPageURLInvalidError(rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return PageKey{}, pkgerrors.NewPageURLInvalidError(rawURL, nil)
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(normalizePath(u.EscapedPath()))

	if q := normalizeQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}

	if f := u.EscapedFragment(); f != "" {
		b.WriteByte('#')
		b.WriteString(f)
	}

	return PageKey{value: b.String()}, nil
}

// NewPageKeyFromString restores a PageKey from its stored canonical form
func NewPageKeyFromString(key string) (PageKey, error) {
	if key == "" {
		return PageKey{}, errors.New("page key cannot be empty")
	}
	return PageKey{value: key}, nil
}

// normalizePath strips at most one trailing slash, keeping the root path
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		return path[:len(path)-1]
	}
	return path
}

// normalizeQuery re-encodes the query string with parameters sorted by key
// and, for equal keys, by value. Tokens that fail to decode are kept as-is
// so one bad parameter never invalidates the whole URL.
func normalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	type pair struct {
		key   string
		value string
	}

	pairs := make([]pair, 0, 4)
	for _, seg := range strings.Split(rawQuery, "&") {
		if seg == "" {
			continue
		}
		k, v, _ := strings.Cut(seg, "=")
		pairs = append(pairs, pair{key: decodeQueryToken(k), value: decodeQueryToken(v)})
	}
	if len(pairs) == 0 {
		return ""
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	encoded := make([]string, len(pairs))
	for i, p := range pairs {
		encoded[i] = url.QueryEscape(p.key) + "=" + url.QueryEscape(p.value)
	}
	return strings.Join(encoded, "&")
}

func decodeQueryToken(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// String returns the canonical string form of the PageKey
func (k PageKey) String() string {
	return k.value
}

// Equals checks if two PageKeys are equal
func (k PageKey) Equals(other PageKey) bool {
	return k.value == other.value
}

// IsZero checks if the PageKey is the zero value
func (k PageKey) IsZero() bool {
	return k.value == ""
}

// MarshalJSON implements json.Marshaler
func (k PageKey) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (k *PageKey) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("PageKey must be a string")
	}
	k.value = string(data[1 : len(data)-1])
	return nil
}
