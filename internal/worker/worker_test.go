package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-ocr/constants"
	"github.com/tendant/simple-ocr/internal/common"
	"github.com/tendant/simple-ocr/internal/events"
	"github.com/tendant/simple-ocr/internal/job"
)

type fakeMsg struct {
	data []byte

	mu    sync.Mutex
	acked int
	naked int
}

func (m *fakeMsg) Data() []byte { return m.data }

func (m *fakeMsg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked++
	return nil
}

func (m *fakeMsg) Nak() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.naked++
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMsg
	err       error
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedMsg{subject: subject, data: data})
	return nil
}

type fakeProcessor struct {
	mu     sync.Mutex
	calls  int
	result func(j job.Job) job.Result
}

func (p *fakeProcessor) Process(_ context.Context, j job.Job) job.Result {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.result != nil {
		return p.result(j)
	}
	return job.Result{JobID: j.JobID, Status: constants.JobStatusCompleted}
}

type fakeRecorder struct {
	mu       sync.Mutex
	recorded []job.Result
	err      error
}

func (r *fakeRecorder) Record(_ context.Context, res job.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.recorded = append(r.recorded, res)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() common.NATSConfig {
	return common.NATSConfig{
		URL:           "nats://localhost:4222",
		Subject:       "ocr.jobs",
		Stream:        "OCR_JOBS",
		Consumer:      "ocr-worker",
		MaxConcurrent: 5,
		FetchWait:     time.Second,
	}
}

func jobEvent(t *testing.T, jobID string) []byte {
	t.Helper()
	data, err := events.NewJobEvent(job.Job{
		JobID:     jobID,
		ContentID: "content-1",
		ObjectID:  "object-1",
		SourceURL: "http://store/source/object-1",
		MIMEType:  "image/png",
	})
	require.NoError(t, err)
	return data
}

func emptyEvent(t *testing.T) []byte {
	t.Helper()
	e := cloudevents.NewEvent()
	e.SetID("evt-empty")
	e.SetSource("test")
	e.SetType(events.TypeJobRequested)
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return data
}

func newTestWorker(proc Processor, pub publisher, opts ...Option) *Worker {
	w := New(testConfig(), proc, testLogger(), opts...)
	w.pub = pub
	return w
}

func TestProcessBatchAcksGoodNaksBad(t *testing.T) {
	proc := &fakeProcessor{}
	pub := &fakePublisher{}
	w := newTestWorker(proc, pub)

	good := []*fakeMsg{
		{data: jobEvent(t, "job-1")},
		{data: jobEvent(t, "job-2")},
		{data: jobEvent(t, "job-3")},
	}
	bad := []*fakeMsg{
		{data: []byte("garbage")},
		{data: jobEvent(t, "job-4")[:10]},
	}

	batch := make([]queueMsg, 0, 5)
	for _, m := range good {
		batch = append(batch, m)
	}
	for _, m := range bad {
		batch = append(batch, m)
	}
	w.processBatch(batch)

	for _, m := range good {
		assert.Equal(t, 1, m.acked)
		assert.Zero(t, m.naked)
	}
	for _, m := range bad {
		assert.Zero(t, m.acked)
		assert.Equal(t, 1, m.naked)
	}
	assert.Equal(t, 3, proc.calls)
	assert.Len(t, pub.published, 3)
	for _, p := range pub.published {
		assert.Equal(t, "ocr.jobs.results", p.subject)
	}
}

func TestHandleMessagePipelineFailureStillAcks(t *testing.T) {
	proc := &fakeProcessor{result: func(j job.Job) job.Result {
		return job.Result{
			JobID:        j.JobID,
			Status:       constants.JobStatusFailed,
			ErrorMessage: "OCR processing failed: boom",
		}
	}}
	pub := &fakePublisher{}
	w := newTestWorker(proc, pub)

	m := &fakeMsg{data: jobEvent(t, "job-1")}
	w.handleMessage(m)

	assert.Equal(t, 1, m.acked)
	assert.Zero(t, m.naked)

	require.Len(t, pub.published, 1)
	var ev cloudevents.Event
	require.NoError(t, json.Unmarshal(pub.published[0].data, &ev))
	assert.Equal(t, events.TypeJobFailed, ev.Type())
	assert.Equal(t, "job-1", ev.Subject())
}

func TestHandleMessageEmptyPayloadAcksAndSkips(t *testing.T) {
	proc := &fakeProcessor{}
	pub := &fakePublisher{}
	w := newTestWorker(proc, pub)

	m := &fakeMsg{data: emptyEvent(t)}
	w.handleMessage(m)

	assert.Equal(t, 1, m.acked)
	assert.Zero(t, m.naked)
	assert.Zero(t, proc.calls)
	assert.Empty(t, pub.published)
}

func TestHandleMessageRecordsResult(t *testing.T) {
	proc := &fakeProcessor{}
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	w := newTestWorker(proc, pub, WithRecorder(rec))

	w.handleMessage(&fakeMsg{data: jobEvent(t, "job-1")})

	require.Len(t, rec.recorded, 1)
	assert.Equal(t, "job-1", rec.recorded[0].JobID)
}

func TestHandleMessageRecorderFailureStillAcks(t *testing.T) {
	proc := &fakeProcessor{}
	pub := &fakePublisher{}
	rec := &fakeRecorder{err: errors.New("db down")}
	w := newTestWorker(proc, pub, WithRecorder(rec))

	m := &fakeMsg{data: jobEvent(t, "job-1")}
	w.handleMessage(m)

	assert.Equal(t, 1, m.acked)
}

func TestHandleMessagePublishFailureStillAcks(t *testing.T) {
	proc := &fakeProcessor{}
	pub := &fakePublisher{err: errors.New("broker gone")}
	w := newTestWorker(proc, pub)

	m := &fakeMsg{data: jobEvent(t, "job-1")}
	w.handleMessage(m)

	assert.Equal(t, 1, m.acked)
	assert.Zero(t, m.naked)
}

func TestProcessBatchRecoversFromPanic(t *testing.T) {
	proc := &fakeProcessor{result: func(j job.Job) job.Result {
		if j.JobID == "job-panics" {
			panic("engine blew up")
		}
		return job.Result{JobID: j.JobID, Status: constants.JobStatusCompleted}
	}}
	pub := &fakePublisher{}
	w := newTestWorker(proc, pub)

	panics := &fakeMsg{data: jobEvent(t, "job-panics")}
	fine := &fakeMsg{data: jobEvent(t, "job-fine")}
	w.processBatch([]queueMsg{panics, fine})

	assert.Equal(t, 1, panics.naked)
	assert.Zero(t, panics.acked)
	assert.Equal(t, 1, fine.acked)
	assert.Len(t, pub.published, 1)
}

func TestShutdownIsIdempotent(t *testing.T) {
	w := New(testConfig(), &fakeProcessor{}, testLogger())
	w.running.Store(true)

	w.Shutdown()
	assert.False(t, w.running.Load())
	w.Shutdown()
	assert.False(t, w.running.Load())
}

func TestNewAppliesDefaults(t *testing.T) {
	cfg := common.NATSConfig{URL: "nats://localhost:4222", Subject: "ocr.jobs"}
	w := New(cfg, &fakeProcessor{}, nil)

	assert.Equal(t, 5, w.cfg.MaxConcurrent)
	assert.Equal(t, 5*time.Second, w.cfg.FetchWait)
	assert.NotNil(t, w.logger)
}
