package datastore

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/errors"
)

func photoIDs(photos []PhotoRecord) []uint {
	ids := make([]uint, 0, len(photos))
	for _, p := range photos {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestPagedFindAndCount_PagesConcatenateToUnpaged(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	seedPhotos(t, ds, 23)
	ctx := context.Background()

	orderings := []OrderKey{Desc("heading_degrees")}

	total, all, err := PagedFindAndCount[PhotoRecord](ctx, ds, Query{Orderings: orderings})
	require.NoError(t, err)
	require.Equal(t, int64(23), total)
	require.Len(t, all, 23)

	for _, size := range []int{1, 4, 5, 23, 40} {
		var paged []PhotoRecord
		for page := 1; ; page++ {
			pageTotal, items, err := PagedFindAndCount[PhotoRecord](ctx, ds, Query{
				Orderings:  orderings,
				PageSize:   size,
				PageNumber: page,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(23), pageTotal, "total is independent of paging")
			assert.LessOrEqual(t, len(items), size)
			if len(items) == 0 {
				break
			}
			paged = append(paged, items...)
		}
		if diff := cmp.Diff(photoIDs(all), photoIDs(paged)); diff != "" {
			t.Errorf("page size %d: concatenated pages differ from unpaged result (-want +got):\n%s", size, diff)
		}
	}
}

func TestPagedFindAndCount_TieBreakByPrimaryKey(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	seedPhotos(t, ds, 8)

	_, items, err := PagedFindAndCount[PhotoRecord](context.Background(), ds, Query{
		Orderings: []OrderKey{Asc("heading_degrees")},
	})
	require.NoError(t, err)

	// headings cycle 0,90,180,270, so each heading appears twice with ids ascending
	want := []uint{1, 5, 2, 6, 3, 7, 4, 8}
	if diff := cmp.Diff(want, photoIDs(items)); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestPagedFindAndCount_DefaultOrderIsPrimaryKey(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	seeded := seedPhotos(t, ds, 5)

	total, items, err := PagedFindAndCount[PhotoRecord](context.Background(), ds, Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Equal(t, photoIDs(seeded), photoIDs(items))
}

func TestPagedFindAndCount_PageSizeZeroIgnoresPageNumber(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	seedPhotos(t, ds, 7)

	for _, pageNumber := range []int{0, 1, 3, -2} {
		total, items, err := PagedFindAndCount[PhotoRecord](context.Background(), ds, Query{PageNumber: pageNumber})
		require.NoError(t, err)
		assert.Equal(t, int64(7), total)
		assert.Len(t, items, 7)
	}
}

func TestPagedFindAndCount_PageBeyondEnd(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	seedPhotos(t, ds, 3)

	total, items, err := PagedFindAndCount[PhotoRecord](context.Background(), ds, Query{PageSize: 10, PageNumber: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestPagedFindAndCount_Condition(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	photos := seedPhotos(t, ds, 6)
	ctx := context.Background()

	require.NoError(t, ds.MarkPhotoAnalyzed(ctx, photos[1].ID, time.Now()))
	require.NoError(t, ds.MarkPhotoAnalyzed(ctx, photos[4].ID, time.Now()))

	total, items, err := PagedFindAndCount[PhotoRecord](ctx, ds, Query{
		Condition:  Where("analyzed_at IS NULL"),
		PageSize:   2,
		PageNumber: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, []uint{photos[0].ID, photos[2].ID}, photoIDs(items))

	total, items, err = PagedFindAndCount[PhotoRecord](ctx, ds, Query{
		Condition: Where("heading_degrees >= ? AND analyzed_at IS NULL", 180.0),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []uint{photos[2].ID, photos[3].ID}, photoIDs(items))
}

func TestPagedFindAndCount_Validation(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))

	tests := []struct {
		name  string
		query Query
	}{
		{"negative page size", Query{PageSize: -1}},
		{"zero page number", Query{PageSize: 5, PageNumber: 0}},
		{"negative page number", Query{PageSize: 5, PageNumber: -1}},
		{"injected order column", Query{Orderings: []OrderKey{Asc("id; DROP TABLE photos")}}},
		{"empty order column", Query{Orderings: []OrderKey{Asc("")}}},
		{"empty condition", Query{Condition: &Condition{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			total, items, err := PagedFindAndCount[PhotoRecord](context.Background(), ds, tt.query)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
			assert.False(t, IsStoreError(err))
			assert.Zero(t, total)
			assert.Nil(t, items)
		})
	}
}

func TestPagedFindAndCount_StoreErrorReturnsNoItems(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	seedPhotos(t, ds, 3)

	total, items, err := PagedFindAndCount[PhotoRecord](context.Background(), ds, Query{
		Condition: Where("no_such_column = 1"),
	})
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
	assert.Zero(t, total)
	assert.Nil(t, items)
}

func TestPagedFindAndCount_Observations(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	photos := seedPhotos(t, ds, 1)
	ctx := context.Background()

	for _, cell := range []string{"C5", "A1", "B2"} {
		require.NoError(t, ds.AddObservation(ctx, &PlantObservation{PhotoID: photos[0].ID, CellID: cell, PlantHeight: 2}))
	}

	total, items, err := PagedFindAndCount[PlantObservation](ctx, ds, Query{Orderings: []OrderKey{Asc("cell_id")}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 3)
	assert.Equal(t, "A1", items[0].CellID)
	assert.Equal(t, "C5", items[2].CellID)
}

func TestPagedFindAndCount_ConcurrentCallers(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	ctx := context.Background()

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	for range writers {
		wg.Go(func() {
			for range perWriter {
				_, err := ds.AddPhoto(ctx, 1, 2, 45)
				assert.NoError(t, err)
				total, items, err := PagedFindAndCount[PhotoRecord](ctx, ds, Query{PageSize: 3, PageNumber: 1})
				assert.NoError(t, err)
				assert.GreaterOrEqual(t, total, int64(len(items)))
			}
		})
	}
	wg.Wait()

	total, _, err := PagedFindAndCount[PhotoRecord](ctx, ds, Query{PageSize: 1, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(writers*perWriter), total)
}

func TestQueryOffset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, Query{}.Offset())
	assert.Equal(t, 0, Query{PageSize: 10, PageNumber: 1}.Offset())
	assert.Equal(t, 20, Query{PageSize: 10, PageNumber: 3}.Offset())
	assert.Equal(t, math.MaxInt, Query{PageSize: math.MaxInt / 2, PageNumber: 4}.Offset())
	assert.Equal(t, math.MaxInt, Query{PageSize: math.MaxInt, PageNumber: 2}.Offset())
}

func TestPagedFindAndCount_HugeOffsetReturnsEmptyPage(t *testing.T) {
	t.Parallel()

	ds := createDatabase(t, createTestSettings(t))
	seedPhotos(t, ds, 5)

	for _, q := range []Query{
		{PageSize: math.MaxInt / 2, PageNumber: 4},
		{PageSize: math.MaxInt, PageNumber: 2},
		{PageSize: 2, PageNumber: math.MaxInt},
	} {
		total, items, err := PagedFindAndCount[PhotoRecord](context.Background(), ds, q)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Empty(t, items, "size %d page %d", q.PageSize, q.PageNumber)
	}
}
