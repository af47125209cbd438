// Package pipeline sequences one OCR job end to end: download the source,
// classify its MIME type, extract markdown, register and upload derived
// content, and assemble a terminal result. Process never returns an error;
// every failure becomes a failed Result with a recorded elapsed time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tendant/simple-ocr/constants"
	"github.com/tendant/simple-ocr/internal/contentstore"
	"github.com/tendant/simple-ocr/internal/engine"
	"github.com/tendant/simple-ocr/internal/job"
)

// ContentStore is the slice of the content-store client the pipeline needs.
type ContentStore interface {
	Download(ctx context.Context, sourceURL string) ([]byte, error)
	CreateDerived(ctx context.Context, dr contentstore.DerivedRequest) (contentstore.DerivedRecord, error)
	Upload(ctx context.Context, uploadURL string, data []byte, mimeType string) error
}

// Processor coordinates the OCR pipeline. One instance is shared across all
// concurrent jobs; it holds no per-job state.
type Processor struct {
	logger      *slog.Logger
	engine      engine.Engine
	store       ContentStore
	tempDir     string
	cleanupTemp bool
}

type Option func(*Processor)

// WithTempDir sets the scratch directory for per-job spool files.
func WithTempDir(dir string) Option {
	return func(p *Processor) { p.tempDir = dir }
}

// WithCleanup controls removal of per-job scratch files after processing.
func WithCleanup(cleanup bool) Option {
	return func(p *Processor) { p.cleanupTemp = cleanup }
}

func NewProcessor(eng engine.Engine, store ContentStore, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		logger:      logger,
		engine:      eng,
		store:       store,
		tempDir:     os.TempDir(),
		cleanupTemp: true,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs job j through the pipeline and returns its terminal result.
// All failures are captured here; callers never observe an error.
func (p *Processor) Process(ctx context.Context, j job.Job) job.Result {
	start := time.Now()
	scratch := ""
	defer func() { p.cleanup(j.JobID, scratch) }()

	p.logger.Info("pipeline.job.start",
		"job_id", j.JobID,
		"content_id", j.ContentID,
		"mime_type", j.MIMEType,
	)

	// 1) Download source bytes.
	data, err := p.store.Download(ctx, j.SourceURL)
	if err != nil {
		return p.failed(j, start, err)
	}
	scratch = p.spool(j, data)

	// 2) Classify and 3) extract.
	isImage := constants.IsImageMIME(j.MIMEType)
	p.logger.Debug("pipeline.classify", "job_id", j.JobID, "is_image", isImage)

	var res engine.Result
	if isImage {
		res, err = p.engine.ProcessImage(ctx, data, j.MIMEType)
	} else {
		res, err = p.engine.ProcessDocument(ctx, data, j.MIMEType)
	}
	if err != nil {
		return p.failed(j, start, err)
	}
	p.logger.Info("pipeline.extract.ok",
		"job_id", j.JobID,
		"page_count", res.PageCount,
		"markdown_bytes", len(res.Markdown),
	)

	// 4) Register the derived-content record. Merge order: pipeline keys,
	// then engine metadata, then job metadata; later keys win.
	derivedMeta := map[string]string{
		"job_id":           j.JobID,
		"page_count":       strconv.Itoa(res.PageCount),
		"source_mime_type": j.MIMEType,
	}
	mergeInto(derivedMeta, res.Metadata)
	mergeInto(derivedMeta, j.Metadata)

	rec, err := p.store.CreateDerived(ctx, contentstore.DerivedRequest{
		ContentID:   j.ContentID,
		ObjectID:    j.ObjectID,
		DerivedType: constants.DerivedTypeOCRMarkdown,
		MIMEType:    constants.MarkdownMIMEType,
		Metadata:    derivedMeta,
	})
	if err != nil {
		return p.failed(j, start, err)
	}

	// 5) Upload the markdown. A missing upload target is a soft skip: some
	// stores provision storage out of band.
	if rec.UploadURL != "" {
		if err := p.store.Upload(ctx, rec.UploadURL, []byte(res.Markdown), constants.MarkdownMIMEType); err != nil {
			return p.failed(j, start, err)
		}
	} else {
		p.logger.Warn("pipeline.upload.skipped",
			"job_id", j.JobID,
			"derived_id", rec.DerivedID,
			"reason", "no upload target provided",
		)
	}

	// 6) Assemble the completed result.
	resultMeta := map[string]string{
		"derived_id": rec.DerivedID,
		"content_id": j.ContentID,
		"object_id":  j.ObjectID,
	}
	mergeInto(resultMeta, res.Metadata)

	elapsed := time.Since(start).Milliseconds()
	completedAt := time.Now().UTC()
	p.logger.Info("pipeline.job.completed",
		"job_id", j.JobID,
		"processing_time_ms", elapsed,
		"page_count", res.PageCount,
	)
	return job.Result{
		JobID:            j.JobID,
		Status:           constants.JobStatusCompleted,
		MarkdownContent:  res.Markdown,
		ProcessingTimeMS: elapsed,
		PageCount:        res.PageCount,
		CompletedAt:      &completedAt,
		Metadata:         resultMeta,
	}
}

// Close releases the engine and any connections the processor owns.
func (p *Processor) Close(ctx context.Context) error {
	return p.engine.Close(ctx)
}

// failed converts err into a terminal failed result, classifying extraction
// failures apart from transport and unexpected ones.
func (p *Processor) failed(j job.Job, start time.Time, err error) job.Result {
	elapsed := time.Since(start).Milliseconds()
	kind := errorKind(err)

	var message string
	if kind == "ExtractionError" {
		message = fmt.Sprintf("OCR processing failed: %v", err)
	} else {
		message = fmt.Sprintf("Unexpected error: %v", err)
	}

	p.logger.Error("pipeline.job.failed",
		"job_id", j.JobID,
		"error", err,
		"error_type", kind,
		"processing_time_ms", elapsed,
	)
	return job.Result{
		JobID:            j.JobID,
		Status:           constants.JobStatusFailed,
		ErrorMessage:     message,
		ProcessingTimeMS: elapsed,
		Metadata:         map[string]string{"error_type": kind},
	}
}

func errorKind(err error) string {
	var exErr *engine.ExtractionError
	if errors.As(err, &exErr) {
		return "ExtractionError"
	}
	var trErr *contentstore.TransportError
	if errors.As(err, &trErr) {
		return "TransportError"
	}
	return "UnexpectedError"
}

// spool writes the downloaded source into a per-job scratch directory so
// engines that need a file path can reach it. Failures are logged only.
func (p *Processor) spool(j job.Job, data []byte) string {
	if p.tempDir == "" {
		return ""
	}
	dir := filepath.Join(p.tempDir, j.JobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Warn("pipeline.spool.failed", "job_id", j.JobID, "error", err)
		return ""
	}
	if err := os.WriteFile(filepath.Join(dir, "source"), data, 0o644); err != nil {
		p.logger.Warn("pipeline.spool.failed", "job_id", j.JobID, "error", err)
	}
	return dir
}

// cleanup is best effort; errors are logged, never escalated.
func (p *Processor) cleanup(jobID, scratch string) {
	if !p.cleanupTemp || scratch == "" {
		return
	}
	if err := os.RemoveAll(scratch); err != nil {
		p.logger.Warn("pipeline.cleanup.failed", "job_id", jobID, "dir", scratch, "error", err)
	}
}

func mergeInto(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}
