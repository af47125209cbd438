package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string) string {
	return `{"choices":[{"message":{"content":` + mustJSON(content) + `}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func newTestRemote(t *testing.T, handler http.HandlerFunc) *RemoteEngine {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRemoteEngine("vllm-remote", Config{
		ModelName: "test-model",
		BaseURL:   srv.URL,
		APIKey:    "secret",
		MaxTokens: 1024,
		Timeout:   5 * time.Second,
	})
}

func TestRemoteProcessImage(t *testing.T) {
	var gotReq map[string]any
	var gotAuth string
	e := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write([]byte(chatResponse("  # Extracted\n\ntext  ")))
	})

	res, err := e.ProcessImage(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "# Extracted\n\ntext", res.Markdown)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, "vllm-remote", res.Metadata["engine"])
	assert.Equal(t, "test-model", res.Metadata["model"])

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "test-model", gotReq["model"])
	assert.Equal(t, float64(1024), gotReq["max_tokens"])
}

type twoPageSplitter struct{}

func (twoPageSplitter) Split(data []byte, _ string) ([][]byte, error) {
	half := len(data) / 2
	return [][]byte{data[:half], data[half:]}, nil
}

func TestRemoteProcessDocumentCombinesPages(t *testing.T) {
	page := 0
	e := newTestRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		page++
		if page == 1 {
			_, _ = w.Write([]byte(chatResponse("first page")))
			return
		}
		_, _ = w.Write([]byte(chatResponse("second page")))
	}).WithSplitter(twoPageSplitter{})

	res, err := e.ProcessDocument(context.Background(), []byte("abcdef"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, "first page\n\n---\n\n<!-- Page 2 -->\n\nsecond page", res.Markdown)
	assert.Equal(t, "2", res.Metadata["page_count"])
}

func TestRemoteServerErrorIsExtractionError(t *testing.T) {
	e := newTestRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	})

	_, err := e.ProcessImage(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Contains(t, exErr.Error(), "status 500")
}

func TestRemoteMalformedResponseIsExtractionError(t *testing.T) {
	e := newTestRemote(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := e.ProcessImage(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Contains(t, exErr.Error(), "unexpected response format")
}

func TestRemoteUnreachableServerIsExtractionError(t *testing.T) {
	e := NewRemoteEngine("vllm-remote", Config{
		BaseURL: "http://127.0.0.1:1",
		Timeout: time.Second,
	})

	_, err := e.ProcessImage(context.Background(), []byte("img"), "image/png")
	require.Error(t, err)

	var exErr *ExtractionError
	assert.True(t, errors.As(err, &exErr))
}

func TestCombinePagesSinglePagePassesThrough(t *testing.T) {
	assert.Equal(t, "only", combinePages([]string{"only"}))
}
