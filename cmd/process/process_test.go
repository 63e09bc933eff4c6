package process

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/pipeline"
)

type stubRunner struct {
	summary pipeline.Summary
	err     error
}

func (s stubRunner) ProcessAll(context.Context) (pipeline.Summary, error) {
	return s.summary, s.err
}

func sampleSummary() pipeline.Summary {
	start := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	return pipeline.Summary{
		RunID:                "run-1",
		PhotosAnalyzed:       2,
		ObservationsProduced: 9,
		StartedAt:            start,
		FinishedAt:           start.Add(1500 * time.Millisecond),
		Items: []pipeline.ItemResult{
			{PhotoID: 1, Status: pipeline.StatusDone, Observations: 4},
			{PhotoID: 2, Status: pipeline.StatusDone, Observations: 5},
			{PhotoID: 3, Status: pipeline.StatusSkipped, Reason: pipeline.ReasonImageMissing, Error: "photo 3 not found"},
		},
	}
}

func TestRunPrintsSummary(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, Run(t.Context(), stubRunner{summary: sampleSummary()}, &out, false))

	text := out.String()
	assert.Contains(t, text, "run-1")
	assert.Contains(t, text, "Photos analyzed")
	assert.Contains(t, text, "image_missing")
	assert.Contains(t, text, "1.5s")
	assert.NotContains(t, text, "photo 3 not found", "skipped list needs --verbose")
}

func TestRunVerboseListsSkipped(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, Run(t.Context(), stubRunner{summary: sampleSummary()}, &out, true))
	assert.Contains(t, out.String(), "photo 3 not found")
}

func TestRunPropagatesFetchError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := Run(t.Context(), stubRunner{err: errors.NewStd("fetch failed")}, &out, false)
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestFormatSkippedOnlySkipped(t *testing.T) {
	t.Parallel()

	s := sampleSummary()
	lines := strings.Split(FormatSkipped(&s), "\n")
	// borders, header, separator and one skipped photo
	assert.Len(t, lines, 5)
}
