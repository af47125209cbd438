package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-ocr/constants"
	"github.com/tendant/simple-ocr/internal/job"
)

func sampleJob() job.Job {
	return job.Job{
		JobID:     "job-1",
		ContentID: "content-1",
		ObjectID:  "object-1",
		SourceURL: "http://store/source/object-1",
		MIMEType:  "image/png",
		Metadata:  map[string]string{"origin": "upload-service"},
	}
}

func TestJobEventRoundTrip(t *testing.T) {
	data, err := NewJobEvent(sampleJob())
	require.NoError(t, err)

	j, ev, err := DecodeJob(data)
	require.NoError(t, err)

	assert.Equal(t, TypeJobRequested, ev.Type())
	assert.Equal(t, source, ev.Source())
	assert.Equal(t, "job-1", ev.Subject())
	assert.NotEmpty(t, ev.ID())

	assert.Equal(t, sampleJob(), j)
}

func TestDecodeJobEmptyPayload(t *testing.T) {
	e := cloudevents.NewEvent()
	e.SetID("evt-1")
	e.SetSource(source)
	e.SetType(TypeJobRequested)
	data, err := json.Marshal(e)
	require.NoError(t, err)

	_, ev, err := DecodeJob(data)
	require.ErrorIs(t, err, ErrEmptyPayload)
	assert.Equal(t, "evt-1", ev.ID())
}

func TestDecodeJobInvalidEnvelope(t *testing.T) {
	_, _, err := DecodeJob([]byte("not an event"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyPayload))
}

func TestDecodeJobInvalidPayload(t *testing.T) {
	e := cloudevents.NewEvent()
	e.SetID("evt-1")
	e.SetSource(source)
	e.SetType(TypeJobRequested)
	require.NoError(t, e.SetData(cloudevents.ApplicationJSON, map[string]string{"job_id": "only"}))
	data, err := json.Marshal(e)
	require.NoError(t, err)

	_, _, err = DecodeJob(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode job payload")
}

func TestEncodeResultTypes(t *testing.T) {
	now := time.Now().UTC()

	completed := job.Result{
		JobID:       "job-1",
		Status:      constants.JobStatusCompleted,
		CompletedAt: &now,
	}
	data, err := EncodeResult(completed)
	require.NoError(t, err)

	var ev cloudevents.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, TypeJobCompleted, ev.Type())
	assert.Equal(t, "job-1", ev.Subject())

	failed := job.Result{JobID: "job-2", Status: constants.JobStatusFailed, ErrorMessage: "boom"}
	data, err = EncodeResult(failed)
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, TypeJobFailed, ev.Type())

	var res job.Result
	require.NoError(t, json.Unmarshal(ev.Data(), &res))
	assert.Equal(t, "boom", res.ErrorMessage)
}
