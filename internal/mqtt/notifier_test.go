package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/pipeline"
)

type published struct {
	topic   string
	payload string
}

// fakeClient records publishes instead of talking to a broker.
type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	publishErr   error
	connects     int
	messages     []published
	disconnected bool
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func testSummary() pipeline.Summary {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return pipeline.Summary{
		RunID:                "run-1",
		PhotosAnalyzed:       2,
		ObservationsProduced: 7,
		Items: []pipeline.ItemResult{
			{PhotoID: 1, Status: pipeline.StatusDone, Observations: 3},
			{PhotoID: 2, Status: pipeline.StatusDone, Observations: 4},
			{PhotoID: 3, Status: pipeline.StatusSkipped, Reason: pipeline.ReasonImageMissing},
		},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}
}

func TestRunsTopic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base string
		want string
	}{
		{"fieldscan", "fieldscan/runs"},
		{"farm/north/", "farm/north/runs"},
		{"", "runs"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RunsTopic(tt.base), "base %q", tt.base)
	}
}

func TestNotifierConnectsLazilyAndPublishes(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{}
	n := NewNotifier(fc, "fieldscan", "north-field")

	require.NoError(t, n.NotifyRun(t.Context(), testSummary()))
	require.NoError(t, n.NotifyRun(t.Context(), testSummary()))

	assert.Equal(t, 1, fc.connects, "connects only once")
	require.Len(t, fc.messages, 2)
	assert.Equal(t, "fieldscan/runs", fc.messages[0].topic)

	var msg RunMessage
	require.NoError(t, json.Unmarshal([]byte(fc.messages[0].payload), &msg))
	assert.Equal(t, RunMessage{
		RunID:                "run-1",
		Node:                 "north-field",
		PhotosAnalyzed:       2,
		ObservationsProduced: 7,
		Skipped:              1,
		SkippedByReason:      map[string]int{"image_missing": 1},
		StartedAt:            "2024-06-01T12:00:00Z",
		FinishedAt:           "2024-06-01T12:00:01Z",
		DurationMs:           1500,
	}, msg)

	n.Close()
	assert.True(t, fc.disconnected)
}

func TestNotifierErrors(t *testing.T) {
	t.Parallel()

	connectErr := errors.Newf("broker unreachable").Category(errors.CategoryMQTTConnect).Build()
	fc := &fakeClient{connectErr: connectErr}
	err := NewNotifier(fc, "fieldscan", "").NotifyRun(t.Context(), testSummary())
	require.ErrorIs(t, err, connectErr)
	assert.Empty(t, fc.messages)

	fc = &fakeClient{connected: true, publishErr: errors.Newf("publish timeout").Category(errors.CategoryMQTTPublish).Build()}
	err = NewNotifier(fc, "fieldscan", "").NotifyRun(t.Context(), testSummary())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
}

func TestNewRunMessageOmitsEmptyReasons(t *testing.T) {
	t.Parallel()
	s := pipeline.Summary{RunID: "empty"}
	msg := NewRunMessage("", &s)
	assert.Nil(t, msg.SkippedByReason)

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "skipped_by_reason")
	assert.NotContains(t, string(raw), "node")
}

// Notifier satisfies the pipeline hook.
var _ pipeline.Notifier = (*Notifier)(nil)
