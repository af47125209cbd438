package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ocrPrompt instructs the vision model to emit clean markdown only.
const ocrPrompt = `Extract all text from this image and format it as clean markdown.

Instructions:
- Preserve the document structure (headings, paragraphs, lists, tables)
- Maintain the original text exactly as it appears
- Use proper markdown formatting
- Do not add any commentary or explanation
- Only output the extracted markdown text

Begin extraction:`

// PageSplitter turns a multi-page document into per-page image payloads.
// Rasterization itself lives outside this service; the default splitter
// hands the document through as a single page.
type PageSplitter interface {
	Split(data []byte, mimeType string) ([][]byte, error)
}

type singlePageSplitter struct{}

func (singlePageSplitter) Split(data []byte, _ string) ([][]byte, error) {
	return [][]byte{data}, nil
}

// RemoteEngine calls an OpenAI-compatible chat-completions inference server
// (vLLM, PaddleOCR-VL server). One HTTP client is shared across jobs.
type RemoteEngine struct {
	name        string
	chatURL     string
	modelName   string
	apiKey      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	splitter    PageSplitter
}

func NewRemoteEngine(name string, cfg Config) *RemoteEngine {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &RemoteEngine{
		name:        name,
		chatURL:     strings.TrimRight(cfg.BaseURL, "/") + "/v1/chat/completions",
		modelName:   cfg.ModelName,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: timeout},
		splitter:    singlePageSplitter{},
	}
}

// WithSplitter replaces the document page splitter.
func (e *RemoteEngine) WithSplitter(s PageSplitter) *RemoteEngine {
	if s != nil {
		e.splitter = s
	}
	return e
}

func (e *RemoteEngine) ProcessImage(ctx context.Context, data []byte, mimeType string) (Result, error) {
	markdown, err := e.extractPage(ctx, data, mimeType)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Markdown:  markdown,
		PageCount: 1,
		Metadata: map[string]string{
			"engine":    e.name,
			"model":     e.modelName,
			"mime_type": mimeType,
		},
	}, nil
}

func (e *RemoteEngine) ProcessDocument(ctx context.Context, data []byte, mimeType string) (Result, error) {
	pages, err := e.splitter.Split(data, mimeType)
	if err != nil {
		return Result{}, NewExtractionError("failed to split document", err)
	}
	if len(pages) == 0 {
		return Result{}, NewExtractionError("no pages found in document", nil)
	}

	pageMarkdowns := make([]string, 0, len(pages))
	for _, page := range pages {
		markdown, err := e.extractPage(ctx, page, mimeType)
		if err != nil {
			return Result{}, err
		}
		pageMarkdowns = append(pageMarkdowns, markdown)
	}

	return Result{
		Markdown:  combinePages(pageMarkdowns),
		PageCount: len(pages),
		Metadata: map[string]string{
			"engine":     e.name,
			"model":      e.modelName,
			"mime_type":  mimeType,
			"page_count": strconv.Itoa(len(pages)),
		},
	}, nil
}

func (e *RemoteEngine) Close(ctx context.Context) error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// extractPage sends one page to the inference server and returns its markdown.
func (e *RemoteEngine) extractPage(ctx context.Context, data []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	payload := map[string]any{
		"model": e.modelName,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": ocrPrompt},
					{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
				},
			},
		},
		"temperature": e.temperature,
		"max_tokens":  e.maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", NewExtractionError("marshal inference request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.chatURL, bytes.NewReader(body))
	if err != nil {
		return "", NewExtractionError("build inference request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", NewExtractionError("inference server unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewExtractionError("read inference response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", NewExtractionError(
			fmt.Sprintf("inference server status %d: %s", resp.StatusCode, truncateBody(raw)), nil)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", NewExtractionError("decode inference response", err)
	}
	if len(cc.Choices) == 0 {
		return "", NewExtractionError("unexpected response format from inference server", nil)
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// combinePages joins per-page markdown with a horizontal rule and an HTML
// comment marking the page number, for pages after the first.
func combinePages(pages []string) string {
	if len(pages) == 1 {
		return pages[0]
	}
	var b strings.Builder
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
			fmt.Fprintf(&b, "<!-- Page %d -->\n\n", i+1)
		}
		b.WriteString(page)
	}
	return b.String()
}

func truncateBody(raw []byte) string {
	const limit = 512
	s := string(raw)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
