package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPageKey_Canonicalizes(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "plain URL unchanged",
			url:  "https://example.com/article",
			want: "https://example.com/article",
		},
		{
			name: "host lowercased",
			url:  "https://EXAMPLE.com/Article",
			want: "https://example.com/Article",
		},
		{
			name: "empty path becomes root",
			url:  "https://example.com",
			want: "https://example.com/",
		},
		{
			name: "one trailing slash stripped",
			url:  "https://example.com/article/",
			want: "https://example.com/article",
		},
		{
			name: "root path kept",
			url:  "https://example.com/",
			want: "https://example.com/",
		},
		{
			name: "query parameters sorted by key",
			url:  "https://example.com/chat?b=2&a=1",
			want: "https://example.com/chat?a=1&b=2",
		},
		{
			name: "equal keys sorted by value",
			url:  "https://example.com/chat?tag=z&tag=a",
			want: "https://example.com/chat?tag=a&tag=z",
		},
		{
			name: "fragment identifier kept",
			url:  "https://example.com/doc#section-2",
			want: "https://example.com/doc#section-2",
		},
		{
			name: "bare hash dropped",
			url:  "https://example.com/doc#",
			want: "https://example.com/doc",
		},
		{
			name: "surrounding whitespace trimmed",
			url:  "  https://example.com/article  ",
			want: "https://example.com/article",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := NewPageKey(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, key.String())
		})
	}
}

func TestNewPageKey_QueryPermutationsCollapse(t *testing.T) {
	a, err := NewPageKey("https://chat.example.com/c/abc?model=m1&lang=es")
	require.NoError(t, err)
	b, err := NewPageKey("https://chat.example.com/c/abc?lang=es&model=m1")
	require.NoError(t, err)

	assert.True(t, a.Equals(b))
}

func TestNewPageKey_Idempotent(t *testing.T) {
	urls := []string{
		"https://example.com",
		"https://Example.COM/path/?b=2&a=1#frag",
		"https://example.com/search?q=caf%C3%A9",
	}

	for _, raw := range urls {
		first, err := NewPageKey(raw)
		require.NoError(t, err)

		// Canonicalizing a canonical form must be a fixed point
		second, err := NewPageKey(first.String())
		require.NoError(t, err)
		assert.Equal(t, first.String(), second.String(), "url %q", raw)
	}
}

func TestNewPageKey_Rejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "empty", url: ""},
		{name: "whitespace only", url: "   "},
		{name: "no scheme", url: "example.com/article"},
		{name: "no host", url: "https:///article"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPageKey(tt.url)
			assert.Error(t, err)
		})
	}
}

func TestNewPageKeyFromString(t *testing.T) {
	key, err := NewPageKeyFromString("https://example.com/article")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/article", key.String())
	assert.False(t, key.IsZero())

	_, err = NewPageKeyFromString("")
	assert.Error(t, err)
}

func TestPageKey_JSONRoundTrip(t *testing.T) {
	key, err := NewPageKey("https://example.com/chat?a=1")
	require.NoError(t, err)

	data, err := key.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"https://example.com/chat?a=1"`, string(data))

	var restored PageKey
	require.NoError(t, restored.UnmarshalJSON(data))
	assert.True(t, key.Equals(restored))
}
