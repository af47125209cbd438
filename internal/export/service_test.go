package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tendant/simple-ocr/constants"
	"github.com/tendant/simple-ocr/internal/job"
)

type fakeLister struct {
	results  []job.Result
	err      error
	gotFrom  *time.Time
	gotTo    *time.Time
	listedAt int
}

func (f *fakeLister) List(_ context.Context, from, to *time.Time) ([]job.Result, error) {
	f.listedAt++
	f.gotFrom = from
	f.gotTo = to
	return f.results, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExportResultsXLSX(t *testing.T) {
	completedAt := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{results: []job.Result{
		{
			JobID:            "job-1",
			Status:           constants.JobStatusCompleted,
			ProcessingTimeMS: 1234,
			PageCount:        2,
			CompletedAt:      &completedAt,
			Metadata:         map[string]string{"derived_id": "derived-1"},
		},
		{
			JobID:            "job-2",
			Status:           constants.JobStatusFailed,
			ProcessingTimeMS: 56,
			ErrorMessage:     "OCR processing failed: boom",
		},
	}}
	svc := NewService(lister, testLogger())

	data, err := svc.ExportResultsXLSX(context.Background(), nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	const sheet = "OCR Jobs"

	header, err := f.GetCellValue(sheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Job ID", header)

	jobID, _ := f.GetCellValue(sheet, "A2")
	assert.Equal(t, "job-1", jobID)
	status, _ := f.GetCellValue(sheet, "B2")
	assert.Equal(t, "completed", status)
	pages, _ := f.GetCellValue(sheet, "C2")
	assert.Equal(t, "2", pages)
	completed, _ := f.GetCellValue(sheet, "E2")
	assert.Equal(t, "2026-08-25T12:00:00Z", completed)
	derived, _ := f.GetCellValue(sheet, "G2")
	assert.Equal(t, "derived-1", derived)

	status, _ = f.GetCellValue(sheet, "B3")
	assert.Equal(t, "failed", status)
	errMsg, _ := f.GetCellValue(sheet, "F3")
	assert.Contains(t, errMsg, "OCR processing failed")
}

func TestExportDefaultsWindowEnd(t *testing.T) {
	lister := &fakeLister{}
	svc := NewService(lister, testLogger())

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.ExportResultsXLSX(context.Background(), &from, nil)
	require.NoError(t, err)

	require.NotNil(t, lister.gotFrom)
	assert.Equal(t, from, *lister.gotFrom)
	require.NotNil(t, lister.gotTo)
	assert.WithinDuration(t, time.Now().UTC(), *lister.gotTo, time.Minute)
}

func TestExportListerFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	svc := NewService(lister, testLogger())

	_, err := svc.ExportResultsXLSX(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query job results")
}

func TestExportEmptyResults(t *testing.T) {
	svc := NewService(&fakeLister{}, testLogger())

	data, err := svc.ExportResultsXLSX(context.Background(), nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	v, err := f.GetCellValue("OCR Jobs", "A2")
	require.NoError(t, err)
	assert.Empty(t, v)
}
