package stats

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/datastore"
)

func newStore(t *testing.T) datastore.Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "fieldscan.db")

	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestRunEmptyStore(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, Run(t.Context(), newStore(t), &out))
	assert.Contains(t, out.String(), "Not analyzed")
	assert.Contains(t, out.String(), "No plant observations yet.")
}

func TestRunReportsCellAverages(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := t.Context()

	photo, err := store.AddPhoto(ctx, 2, 5, 45)
	require.NoError(t, err)
	_, err = store.AddPhoto(ctx, 3, 5, 45)
	require.NoError(t, err)

	_, err = store.SaveAnalysis(ctx, photo.ID, []datastore.PlantObservation{
		{CellID: "C5", PlantHeight: 1.9, LeafAngle: 40, EarsHeight: 0.2},
		{CellID: "C5", PlantHeight: 2.1, LeafAngle: 50, EarsHeight: 0.3},
	}, time.Now())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Run(ctx, store, &out))

	text := out.String()
	assert.Contains(t, text, "C5")
	assert.Contains(t, text, "2.00")
	assert.Contains(t, text, "45.00")
	assert.Contains(t, text, "0.25")
	assert.NotContains(t, text, "No plant observations yet.")
}
