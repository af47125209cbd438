// Package events maps jobs and job results onto the CloudEvents envelope
// used on the queue: inbound messages wrap a Job as event data, outbound
// result events are typed by terminal status.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/tendant/simple-ocr/internal/job"
)

const (
	// TypeJobRequested tags inbound job events.
	TypeJobRequested = "com.simple-ocr.job.requested"
	// TypeJobCompleted and TypeJobFailed tag outbound result events.
	TypeJobCompleted = "com.simple-ocr.job.completed"
	TypeJobFailed    = "com.simple-ocr.job.failed"

	source = "simple-ocr-worker"
)

// ErrEmptyPayload marks an envelope that decoded fine but carries no job
// data. The worker acknowledges and skips these.
var ErrEmptyPayload = errors.New("event has no payload")

// DecodeJob parses a CloudEvent from raw message data and extracts the
// embedded job, validating it against the job payload schema.
func DecodeJob(data []byte) (job.Job, cloudevents.Event, error) {
	var e cloudevents.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return job.Job{}, e, fmt.Errorf("decode event envelope: %w", err)
	}
	payload := e.Data()
	if len(payload) == 0 {
		return job.Job{}, e, ErrEmptyPayload
	}
	j, err := job.Decode(payload)
	if err != nil {
		return job.Job{}, e, fmt.Errorf("decode job payload: %w", err)
	}
	return j, e, nil
}

// NewJobEvent wraps j in a CloudEvent for publication to the job subject.
func NewJobEvent(j job.Job) ([]byte, error) {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(source)
	e.SetType(TypeJobRequested)
	e.SetSubject(j.JobID)
	if err := e.SetData(cloudevents.ApplicationJSON, j); err != nil {
		return nil, fmt.Errorf("set event data: %w", err)
	}
	return json.Marshal(e)
}

// EncodeResult wraps a terminal result in a CloudEvent, typed by status.
func EncodeResult(res job.Result) ([]byte, error) {
	eventType := TypeJobFailed
	if res.Completed() {
		eventType = TypeJobCompleted
	}

	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource(source)
	e.SetType(eventType)
	e.SetSubject(res.JobID)
	if err := e.SetData(cloudevents.ApplicationJSON, res); err != nil {
		return nil, fmt.Errorf("set event data: %w", err)
	}
	return json.Marshal(e)
}
