// Package worker pulls OCR jobs from a JetStream durable consumer and runs
// them through the pipeline. Batches are processed concurrently; the batch
// size is the concurrency ceiling. A pipeline failure is still acknowledged
// (the pipeline already converted it into a terminal result); only envelope
// or payload decode failures are negatively acknowledged for redelivery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendant/simple-ocr/internal/common"
	"github.com/tendant/simple-ocr/internal/events"
	"github.com/tendant/simple-ocr/internal/job"
)

// Processor runs one job to a terminal result.
type Processor interface {
	Process(ctx context.Context, j job.Job) job.Result
}

// Recorder persists terminal results. Optional; failures are logged only.
type Recorder interface {
	Record(ctx context.Context, res job.Result) error
}

type queueMsg interface {
	Data() []byte
	Ack() error
	Nak() error
}

// fetcher pulls up to batch messages, returning an empty slice when the
// wait expires with nothing pending.
type fetcher interface {
	Fetch(batch int, maxWait time.Duration) ([]queueMsg, error)
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// Worker owns the consume loop and the broker connection.
type Worker struct {
	cfg      common.NATSConfig
	logger   *slog.Logger
	proc     Processor
	recorder Recorder

	conn  connection
	fetch fetcher
	pub   publisher

	running   atomic.Bool
	closeOnce sync.Once
}

type Option func(*Worker)

// WithRecorder enables result persistence.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

func New(cfg common.NATSConfig, proc Processor, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 5 * time.Second
	}
	w := &Worker{
		cfg:    cfg,
		logger: logger,
		proc:   proc,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start connects to the broker, ensures the durable stream, and consumes
// until ctx is canceled or Shutdown is called. A connect failure is fatal;
// an already-existing stream is not.
func (w *Worker) Start(ctx context.Context) error {
	defer w.Close()

	w.logger.Info("worker.starting",
		"nats_url", w.cfg.URL,
		"subject", w.cfg.Subject,
		"stream", w.cfg.Stream,
		"consumer", w.cfg.Consumer,
	)

	if err := w.connect(); err != nil {
		w.logger.Error("worker.startup_failed", "error", err)
		return err
	}

	w.running.Store(true)
	go func() {
		<-ctx.Done()
		w.Shutdown()
	}()

	w.consume()
	return nil
}

// Shutdown requests a cooperative stop: the current batch drains, then the
// consume loop exits. Safe to call more than once.
func (w *Worker) Shutdown() {
	if w.running.CompareAndSwap(true, false) {
		w.logger.Info("worker.shutting_down")
	}
}

// Close releases the broker connection. Idempotent.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		if w.conn != nil {
			w.conn.Close()
			w.logger.Info("worker.connection_closed")
		}
	})
}

func (w *Worker) consume() {
	w.logger.Info("worker.consuming", "batch", w.cfg.MaxConcurrent)
	for w.running.Load() {
		msgs, err := w.fetch.Fetch(w.cfg.MaxConcurrent, w.cfg.FetchWait)
		if err != nil {
			w.logger.Error("worker.fetch_failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		w.processBatch(msgs)
	}
	w.logger.Info("worker.consumption_stopped")
}

// processBatch runs each message in its own goroutine and waits for the
// whole batch, so the batch size bounds in-flight work. A panic in one
// message's task must not take down its siblings.
func (w *Worker) processBatch(msgs []queueMsg) {
	var wg sync.WaitGroup
	for _, m := range msgs {
		wg.Add(1)
		go func(m queueMsg) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("worker.task_panic", "panic", fmt.Sprint(r))
					w.nak(m)
				}
			}()
			w.handleMessage(m)
		}(m)
	}
	wg.Wait()
}

func (w *Worker) handleMessage(m queueMsg) {
	j, ev, err := events.DecodeJob(m.Data())
	if errors.Is(err, events.ErrEmptyPayload) {
		w.logger.Warn("worker.msg.empty_payload", "event_id", ev.ID())
		w.ack(m)
		return
	}
	if err != nil {
		w.logger.Error("worker.msg.decode_failed", "error", err)
		w.nak(m)
		return
	}

	w.logger.Info("worker.msg.processing",
		"event_type", ev.Type(),
		"event_id", ev.ID(),
		"job_id", j.JobID,
		"content_id", j.ContentID,
	)

	// In-flight jobs finish on their clients' own timeouts; shutdown drains
	// the batch rather than canceling it.
	result := w.proc.Process(context.Background(), j)

	w.publishResult(result)
	w.record(result)
	w.ack(m)

	w.logger.Info("worker.msg.done",
		"job_id", j.JobID,
		"status", result.Status,
		"processing_time_ms", result.ProcessingTimeMS,
	)
}

// publishResult emits the result event to the results sub-topic. Publish
// failures never block the ack.
func (w *Worker) publishResult(res job.Result) {
	data, err := events.EncodeResult(res)
	if err != nil {
		w.logger.Error("worker.result.encode_failed", "job_id", res.JobID, "error", err)
		return
	}
	subject := w.cfg.Subject + ".results"
	if err := w.pub.Publish(subject, data); err != nil {
		w.logger.Error("worker.result.publish_failed", "job_id", res.JobID, "error", err)
		return
	}
	w.logger.Info("worker.result.published",
		"job_id", res.JobID,
		"status", res.Status,
		"subject", subject,
	)
}

func (w *Worker) record(res job.Result) {
	if w.recorder == nil {
		return
	}
	if err := w.recorder.Record(context.Background(), res); err != nil {
		w.logger.Error("worker.result.record_failed", "job_id", res.JobID, "error", err)
	}
}

func (w *Worker) ack(m queueMsg) {
	if err := m.Ack(); err != nil {
		w.logger.Error("worker.ack_failed", "error", err)
	}
}

func (w *Worker) nak(m queueMsg) {
	if err := m.Nak(); err != nil {
		w.logger.Error("worker.nak_failed", "error", err)
	}
}
