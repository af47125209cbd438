package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-ocr/constants"
	"github.com/tendant/simple-ocr/internal/job"
)

// JobResultRepository persists terminal job results for reporting.
type JobResultRepository interface {
	Record(ctx context.Context, res job.Result) error
	List(ctx context.Context, from, to *time.Time) ([]job.Result, error)
}

const resultsSchema = `
CREATE TABLE IF NOT EXISTS ocr_job_result (
    job_id             TEXT PRIMARY KEY,
    status             TEXT NOT NULL,
    markdown_content   TEXT,
    error_message      TEXT,
    processing_time_ms BIGINT NOT NULL DEFAULT 0,
    page_count         INT,
    completed_at       TIMESTAMPTZ,
    metadata           JSONB,
    recorded_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type jobResultRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewJobResultRepository(pool *pgxpool.Pool, logger *slog.Logger) JobResultRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &jobResultRepository{pool: pool, logger: logger}
}

// EnsureSchema creates the results table if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, resultsSchema); err != nil {
		return fmt.Errorf("ensure results schema: %w", err)
	}
	return nil
}

// Record upserts the terminal result for a job. Re-running the same job
// overwrites the previous record.
func (r *jobResultRepository) Record(ctx context.Context, res job.Result) error {
	meta, err := json.Marshal(res.Metadata)
	if err != nil {
		return fmt.Errorf("marshal result metadata: %w", err)
	}

	const q = `
INSERT INTO ocr_job_result
    (job_id, status, markdown_content, error_message, processing_time_ms, page_count, completed_at, metadata, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (job_id) DO UPDATE SET
    status = EXCLUDED.status,
    markdown_content = EXCLUDED.markdown_content,
    error_message = EXCLUDED.error_message,
    processing_time_ms = EXCLUDED.processing_time_ms,
    page_count = EXCLUDED.page_count,
    completed_at = EXCLUDED.completed_at,
    metadata = EXCLUDED.metadata,
    recorded_at = now()`

	var pageCount *int
	if res.PageCount > 0 {
		pageCount = &res.PageCount
	}
	_, err = r.pool.Exec(ctx, q,
		res.JobID,
		string(res.Status),
		nullableString(res.MarkdownContent),
		nullableString(res.ErrorMessage),
		res.ProcessingTimeMS,
		pageCount,
		res.CompletedAt,
		meta,
	)
	if err != nil {
		return fmt.Errorf("record job result: %w", err)
	}
	r.logger.Debug("repository.result.recorded", "job_id", res.JobID, "status", res.Status)
	return nil
}

// List returns recorded results inside the optional [from, to] window,
// newest first.
func (r *jobResultRepository) List(ctx context.Context, from, to *time.Time) ([]job.Result, error) {
	q := `
SELECT job_id, status, markdown_content, error_message, processing_time_ms, page_count, completed_at, metadata
FROM ocr_job_result
WHERE ($1::timestamptz IS NULL OR recorded_at >= $1)
  AND ($2::timestamptz IS NULL OR recorded_at <= $2)
ORDER BY recorded_at DESC`

	rows, err := r.pool.Query(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("list job results: %w", err)
	}
	defer rows.Close()

	var out []job.Result
	for rows.Next() {
		var (
			res       job.Result
			status    string
			markdown  *string
			errMsg    *string
			pageCount *int
			meta      []byte
		)
		if err := rows.Scan(&res.JobID, &status, &markdown, &errMsg, &res.ProcessingTimeMS, &pageCount, &res.CompletedAt, &meta); err != nil {
			return nil, fmt.Errorf("scan job result: %w", err)
		}
		res.Status = constants.JobStatus(status)
		if markdown != nil {
			res.MarkdownContent = *markdown
		}
		if errMsg != nil {
			res.ErrorMessage = *errMsg
		}
		if pageCount != nil {
			res.PageCount = *pageCount
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &res.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal result metadata: %w", err)
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
