package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/errors"
)

func TestAddObservationRequiresPhoto(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()

	err := ds.AddObservation(ctx, &PlantObservation{CellID: "A1"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	err = ds.AddObservation(ctx, &PlantObservation{PhotoID: 77, CellID: "A1"})
	require.Error(t, err, "foreign key to a missing photo must be rejected")
	assert.True(t, IsStoreError(err))
}

func TestStatByCellIDAverages(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()
	photos := seedPhotos(t, ds, 2)

	observations := []PlantObservation{
		{PhotoID: photos[0].ID, CellID: "C5", PlantHeight: 1.9, LeafAngle: 40, EarsHeight: 0.2},
		{PhotoID: photos[1].ID, CellID: "C5", PlantHeight: 2.1, LeafAngle: 50, EarsHeight: 0.3},
		{PhotoID: photos[1].ID, CellID: "A7", PlantHeight: 1.8, LeafAngle: 30, EarsHeight: 0.25},
	}
	for i := range observations {
		require.NoError(t, ds.AddObservation(ctx, &observations[i]))
	}

	stats, err := ds.StatByCellID(ctx)
	require.NoError(t, err)

	want := []CellStat{
		{CellID: "A7", AvgPlantHeight: 1.8, AvgLeafAngle: 30, AvgEarsHeight: 0.25, Observations: 1},
		{CellID: "C5", AvgPlantHeight: 2.0, AvgLeafAngle: 45, AvgEarsHeight: 0.25, Observations: 2},
	}
	if diff := cmp.Diff(want, stats, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("StatByCellID mismatch (-want +got):\n%s", diff)
	}
}

func TestStatByCellIDEmpty(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))

	stats, err := ds.StatByCellID(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}

func TestSaveAnalysisCommitsTogether(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()
	photo, err := ds.AddPhoto(ctx, 2, 5, 45)
	require.NoError(t, err)

	observations := []PlantObservation{
		{CellID: "C5", PlantHeight: 2},
		{CellID: "C5", PlantHeight: 2.1},
	}
	saved, err := ds.SaveAnalysis(ctx, photo.ID, observations, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, saved)
	for _, obs := range observations {
		assert.NotZero(t, obs.ID)
		assert.Equal(t, photo.ID, obs.PhotoID)
	}

	got, err := ds.GetPhoto(ctx, photo.ID)
	require.NoError(t, err)
	assert.True(t, got.Analyzed())
}

func TestSaveAnalysisRollsBackOnAnalyzedPhoto(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()
	photo, err := ds.AddPhoto(ctx, 2, 5, 45)
	require.NoError(t, err)
	require.NoError(t, ds.MarkPhotoAnalyzed(ctx, photo.ID, time.Now()))

	saved, err := ds.SaveAnalysis(ctx, photo.ID, []PlantObservation{{CellID: "C5"}}, time.Now())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Zero(t, saved)

	total, _, err := PagedFindAndCount[PlantObservation](ctx, ds, Query{})
	require.NoError(t, err)
	assert.Zero(t, total, "nothing may persist when the mark fails")
}

func TestSaveAnalysisWithoutObservations(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()
	photo, err := ds.AddPhoto(ctx, 0, 0, 0)
	require.NoError(t, err)

	saved, err := ds.SaveAnalysis(ctx, photo.ID, nil, time.Now())
	require.NoError(t, err)
	assert.Zero(t, saved)

	analyzed, _, err := ds.CountPhotosByAnalysis(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), analyzed)
}

func TestListObservationPoints(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()
	a, err := ds.AddPhoto(ctx, 116.1, 39.1, 0)
	require.NoError(t, err)
	b, err := ds.AddPhoto(ctx, 116.2, 39.2, 0)
	require.NoError(t, err)

	require.NoError(t, ds.AddObservation(ctx, &PlantObservation{PhotoID: b.ID, CellID: "B1", PlantHeight: 2}))
	require.NoError(t, ds.AddObservation(ctx, &PlantObservation{PhotoID: a.ID, CellID: "A1", PlantHeight: 1.9}))

	points, err := ds.ListObservationPoints(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "B1", points[0].CellID)
	assert.Equal(t, b.ID, points[0].PhotoID)
	assert.InDelta(t, 116.2, points[0].Longitude, 1e-9)
	assert.InDelta(t, 39.2, points[0].Latitude, 1e-9)
	assert.Equal(t, "A1", points[1].CellID)
	assert.InDelta(t, 116.1, points[1].Longitude, 1e-9)
}
