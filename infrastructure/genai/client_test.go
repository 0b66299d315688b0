package genai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		APIKey:            "test-key",
		BaseURL:           serverURL,
		Timeout:           5 * time.Second,
		RequestsPerMinute: 600,
	}, zap.NewNop())
}

func TestClient_GenerateContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/models/test-model:generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hola"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":4,"totalTokenCount":7}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	resp, err := client.GenerateContent(context.Background(), "test-model", &GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "hola?"}}}},
	})

	require.NoError(t, err)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "hola", resp.Candidates[0].Content.Parts[0].Text)
	assert.Equal(t, 7, resp.UsageMetadata.TotalTokenCount)
	assert.NotNil(t, resp.Raw, "raw body should be retained for harvesting")
}

func TestClient_GenerateContent_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"model not found","status":"NOT_FOUND"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GenerateContent(context.Background(), "missing-model", &GenerateRequest{})

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "model not found")
}

func TestClient_GenerateContent_InBodyError(t *testing.T) {
	// Some proxies answer 200 with the error in the envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GenerateContent(context.Background(), "test-model", &GenerateRequest{})

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
}

func TestClient_GenerateContent_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "internal failure")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.GenerateContent(context.Background(), "test-model", &GenerateRequest{})

	require.Error(t, err)
	se, ok := asStatusError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Contains(t, se.Body, "internal failure")
}

func TestClient_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		fmt.Fprint(w, `{"models":[{"name":"models/gemini-pro","supportedGenerationMethods":["generateContent"]},{"name":"models/embedding-001","supportedGenerationMethods":["embedContent"]}]}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	models, err := client.ListModels(context.Background())

	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gemini-pro", models[0].ShortName())
	assert.True(t, models[0].SupportsGeneration())
	assert.False(t, models[1].SupportsGeneration())
}

func TestClient_NotConfigured(t *testing.T) {
	client := NewClient(Config{APIKey: ""}, nil)

	assert.False(t, client.IsConfigured())

	_, err := client.GenerateContent(context.Background(), "any", &GenerateRequest{})
	assert.Error(t, err)

	_, err = client.ListModels(context.Background())
	assert.Error(t, err)
}
