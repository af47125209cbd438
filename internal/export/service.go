package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tendant/simple-ocr/internal/job"
)

// ResultLister is the read side of the job-result store.
type ResultLister interface {
	List(ctx context.Context, from, to *time.Time) ([]job.Result, error)
}

// Service produces XLSX bytes reporting recorded job results.
type Service struct {
	results ResultLister
	logger  *slog.Logger
}

func NewService(results ResultLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{results: results, logger: logger}
}

// ExportResultsXLSX returns an XLSX workbook of job results in the given
// window. If only from is provided the window runs from..now.
func (s *Service) ExportResultsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	if from != nil && to == nil {
		now := time.Now().UTC()
		to = &now
	}

	results, err := s.results.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query job results: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "OCR Jobs"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Job ID",
		"Status",
		"Pages",
		"Processing Time (ms)",
		"Completed At",
		"Error",
		"Derived ID",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range results {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.JobID)
		write(2, string(r.Status))
		if r.PageCount > 0 {
			write(3, r.PageCount)
		}
		write(4, r.ProcessingTimeMS)
		if r.CompletedAt != nil {
			write(5, r.CompletedAt.Format(time.RFC3339))
		}
		write(6, truncate(r.ErrorMessage, 140))
		write(7, r.Metadata["derived_id"])

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // job id
	_ = f.SetColWidth(sheet, "B", "B", 12) // status
	_ = f.SetColWidth(sheet, "C", "D", 14) // pages, timing
	_ = f.SetColWidth(sheet, "E", "E", 22) // completed
	_ = f.SetColWidth(sheet, "F", "F", 48) // error
	_ = f.SetColWidth(sheet, "G", "G", 38) // derived id

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
