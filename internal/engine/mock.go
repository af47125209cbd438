package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// MockEngine returns simulated results without touching a model. Used by
// tests and for wiring checks against a running worker.
type MockEngine struct {
	delay        time.Duration
	failRate     float64
	processCount atomic.Int64
}

func NewMockEngine(delay time.Duration, failRate float64) *MockEngine {
	return &MockEngine{delay: delay, failRate: failRate}
}

func (m *MockEngine) ProcessImage(ctx context.Context, data []byte, mimeType string) (Result, error) {
	if err := m.simulate(ctx); err != nil {
		return Result{}, err
	}
	m.processCount.Add(1)

	markdown := m.mockMarkdown("image", mimeType, len(data), 1)
	return Result{
		Markdown:  markdown,
		PageCount: 1,
		Metadata: map[string]string{
			"engine":       "mock",
			"mime_type":    mimeType,
			"size_bytes":   strconv.Itoa(len(data)),
			"processed_at": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (m *MockEngine) ProcessDocument(ctx context.Context, data []byte, mimeType string) (Result, error) {
	if err := m.simulate(ctx); err != nil {
		return Result{}, err
	}
	m.processCount.Add(1)

	pageCount := estimatePageCount(mimeType, len(data))
	markdown := m.mockMarkdown("document", mimeType, len(data), pageCount)
	return Result{
		Markdown:  markdown,
		PageCount: pageCount,
		Metadata: map[string]string{
			"engine":       "mock",
			"mime_type":    mimeType,
			"size_bytes":   strconv.Itoa(len(data)),
			"page_count":   strconv.Itoa(pageCount),
			"processed_at": time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

func (m *MockEngine) Close(ctx context.Context) error { return nil }

// ProcessCount returns how many extractions have run, for test assertions.
func (m *MockEngine) ProcessCount() int64 {
	return m.processCount.Load()
}

func (m *MockEngine) simulate(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return NewExtractionError("mock OCR interrupted", ctx.Err())
		}
	}
	if m.failRate > 0 && rand.Float64() < m.failRate {
		return NewExtractionError(fmt.Sprintf("mock OCR simulated failure (fail_rate=%g)", m.failRate), nil)
	}
	return nil
}

// estimatePageCount approximates pages from payload size: PDFs at one page
// per 50,000 bytes, Office documents at one per 30,000, everything else one.
func estimatePageCount(mimeType string, sizeBytes int) int {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "pdf"):
		return max(1, sizeBytes/50000)
	case strings.Contains(mt, "docx"), strings.Contains(mt, "pptx"):
		return max(1, sizeBytes/30000)
	default:
		return 1
	}
}

func (m *MockEngine) mockMarkdown(contentType, mimeType string, sizeBytes, pageCount int) string {
	var b strings.Builder
	b.WriteString("# Mock OCR Result\n\n")
	b.WriteString("This is a mock OCR result generated by MockEngine.\n\n")
	b.WriteString("## Document Information\n\n")
	fmt.Fprintf(&b, "- **Type**: %s\n", contentType)
	fmt.Fprintf(&b, "- **MIME Type**: %s\n", mimeType)
	fmt.Fprintf(&b, "- **Size**: %s\n", formatSize(sizeBytes))
	fmt.Fprintf(&b, "- **Pages**: %d\n\n", pageCount)

	for page := 1; page <= pageCount; page++ {
		if pageCount > 1 {
			fmt.Fprintf(&b, "## Page %d\n\n", page)
		}
		fmt.Fprintf(&b, "Lorem ipsum dolor sit amet, consectetur adipiscing elit. "+
			"Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.\n\n")
		fmt.Fprintf(&b, "### Section %d.1\n\n", page)
		b.WriteString("Ut enim ad minim veniam, quis nostrud exercitation ullamco " +
			"laboris nisi ut aliquip ex ea commodo consequat.\n\n")
		if page < pageCount {
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

func formatSize(sizeBytes int) string {
	size := float64(sizeBytes)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.1f TB", size)
}
