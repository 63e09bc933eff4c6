package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscan/fieldscan/internal/analyzer/analyzertest"
	"github.com/fieldscan/fieldscan/internal/conf"
	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/imagestore"
	"github.com/fieldscan/fieldscan/internal/observability/metrics"
	"github.com/fieldscan/fieldscan/internal/pipeline"
)

type testEnv struct {
	e          *echo.Echo
	controller *Controller
	store      datastore.Interface
	images     *imagestore.FileStore
	analyzer   *analyzertest.Scripted
	http       *metrics.HTTPMetrics
}

func newTestEnv(t *testing.T, runner BatchRunner) *testEnv {
	t.Helper()

	dir := t.TempDir()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(dir, "fieldscan.db")
	settings.WebServer.CacheTTL = time.Minute
	settings.WebServer.MaxUploadSize = 1 << 20

	store, err := datastore.New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	images, err := imagestore.NewFileStore(filepath.Join(dir, "images"))
	require.NoError(t, err)

	a := &analyzertest.Scripted{Default: analyzertest.Succeed("C5", 2)}
	if runner == nil {
		runner = pipeline.New(store, images, a)
	}

	m, err := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	e := echo.New()
	c := New(e, store, images, runner, settings, WithHTTPMetrics(m))
	t.Cleanup(c.Shutdown)

	return &testEnv{e: e, controller: c, store: store, images: images, analyzer: a, http: m}
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return env.do(t, httptest.NewRequest(http.MethodGet, path, http.NoBody))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for x := range 8 {
		img.Set(x, 3, color.RGBA{R: 200, G: 180, B: 20, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, fields map[string]string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("file", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/photos/upload", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func validFields() map[string]string {
	return map[string]string{"longitude": "2.5", "latitude": "5.25", "orientation_angle": "45"}
}

func TestUploadPhoto(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, uploadRequest(t, validFields(), pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[UploadPhotoResponse](t, rec)
	assert.True(t, resp.Status.OK)
	require.NotZero(t, resp.PhotoID)

	photo, err := env.store.GetPhoto(t.Context(), resp.PhotoID)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, photo.Longitude, 0)
	assert.InDelta(t, 5.25, photo.Latitude, 0)
	assert.InDelta(t, 45.0, photo.HeadingDegrees, 0)
	assert.Nil(t, photo.AnalyzedAt)

	data, err := env.images.Load(t.Context(), resp.PhotoID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "stored as JPEG")
}

func TestUploadPhotoValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		fields map[string]string
		file   []byte
		want   int
	}{
		{"missing longitude", map[string]string{"latitude": "1", "orientation_angle": "0"}, pngBytes(t), http.StatusBadRequest},
		{"non numeric heading", map[string]string{"longitude": "1", "latitude": "1", "orientation_angle": "north"}, pngBytes(t), http.StatusBadRequest},
		{"nan latitude", map[string]string{"longitude": "1", "latitude": "NaN", "orientation_angle": "0"}, pngBytes(t), http.StatusBadRequest},
		{"missing file", validFields(), nil, http.StatusBadRequest},
		{"not an image", validFields(), []byte("definitely not an image"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, uploadRequest(t, tt.fields, tt.file))
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			resp := decode[ErrorResponse](t, rec)
			assert.False(t, resp.Status.OK)
			assert.NotEmpty(t, resp.CorrelationID)
			assert.Equal(t, resp.CorrelationID, rec.Header().Get("X-Correlation-ID"))
		})
	}

	_, notAnalyzed, err := env.store.CountPhotosByAnalysis(t.Context())
	require.NoError(t, err)
	assert.Zero(t, notAnalyzed, "rejected uploads create no records")
}

// failingImages fails every save.
type failingImages struct{ imagestore.Store }

func (failingImages) Save(context.Context, uint, []byte) error {
	return errors.Newf("disk full").Category(errors.CategoryImageStore).Build()
}

func TestUploadPhotoRollsBackRecordWhenImageSaveFails(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	env.controller.Images = failingImages{env.images}

	rec := env.do(t, uploadRequest(t, validFields(), pngBytes(t)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	analyzed, notAnalyzed, err := env.store.CountPhotosByAnalysis(t.Context())
	require.NoError(t, err)
	assert.Zero(t, analyzed+notAnalyzed)
}

func TestProcessAllAndReports(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	for range 3 {
		rec := env.do(t, uploadRequest(t, validFields(), pngBytes(t)))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	counts := decode[StatPhotoCountResponse](t, env.get(t, "/photos/count_analyzed"))
	assert.Equal(t, int64(0), counts.AnalyzedPhotoCount)
	assert.Equal(t, int64(3), counts.NotAnalyzedPhotoCount)

	// prime the stats cache while empty
	stats := decode[StatByAreaResponse](t, env.get(t, "/analyze/stat_by_area"))
	assert.Empty(t, stats.Results)

	rec := env.do(t, httptest.NewRequest(http.MethodPut, "/analyze/process_all", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[ProcessAllResponse](t, rec)
	assert.True(t, run.Status.OK)
	assert.Equal(t, 3, run.AnalyzedPhotoCount)
	assert.Equal(t, 6, run.ProducedPlantCount)
	assert.NotEmpty(t, run.RunID)

	counts = decode[StatPhotoCountResponse](t, env.get(t, "/photos/count_analyzed"))
	assert.Equal(t, int64(3), counts.AnalyzedPhotoCount)
	assert.Equal(t, int64(0), counts.NotAnalyzedPhotoCount)

	// process_all invalidated the cached empty result
	stats = decode[StatByAreaResponse](t, env.get(t, "/analyze/stat_by_area"))
	require.Len(t, stats.Results, 1)
	assert.Equal(t, "C5", stats.Results[0].CellID)
	assert.InDelta(t, 2.0, stats.Results[0].AvgPlantHeight, 1e-9)
	assert.Equal(t, int64(6), stats.Results[0].Observations)

	decode[StatByAreaResponse](t, env.get(t, "/analyze/stat_by_area"))
	assert.InDelta(t, 1.0, testutil.ToFloat64(env.http.CacheCounter(statCacheKey, "hit")), 0)
	assert.InDelta(t, 2.0, testutil.ToFloat64(env.http.CacheCounter(statCacheKey, "miss")), 0)

	list := decode[ListAllPlantsResponse](t, env.get(t, "/analyze/corn_plants/list_all"))
	assert.Equal(t, int64(6), list.Count)
	assert.Len(t, list.Results, 6)

	page := decode[ListAllPlantsResponse](t, env.get(t, "/analyze/corn_plants/list_all?page_size=4&page_number=2"))
	assert.Equal(t, int64(6), page.Count)
	require.Len(t, page.Results, 2)
	assert.Equal(t, list.Results[4].ID, page.Results[0].ID)

	filtered := decode[ListAllPlantsResponse](t, env.get(t, "/analyze/corn_plants/list_all?cell=B2"))
	assert.Zero(t, filtered.Count)
	assert.Empty(t, filtered.Results)

	// page_size * (page_number-1) overflows int
	far := decode[ListAllPlantsResponse](t, env.get(t, "/analyze/corn_plants/list_all?page_size=4611686018427387903&page_number=4"))
	assert.Equal(t, int64(6), far.Count)
	assert.Empty(t, far.Results)
}

func TestListAllPlantsValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	for _, path := range []string{
		"/analyze/corn_plants/list_all?page_size=abc",
		"/analyze/corn_plants/list_all?page_size=-1",
		"/analyze/corn_plants/list_all?page_size=5&page_number=0",
		"/analyze/corn_plants/list_all?cell=7C",
		"/analyze/corn_plants/list_all?cell=A05",
		"/analyze/corn_plants/list_all?cell=Z-0",
	} {
		rec := env.get(t, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestPlantsGeoJSON(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	rec := env.do(t, uploadRequest(t, validFields(), pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, httptest.NewRequest(http.MethodPut, "/analyze/process_all", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.get(t, "/analyze/corn_plants/geojson")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get(echo.HeaderContentType))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "Point", fc.Features[0].Geometry.Type)
	assert.Equal(t, []float64{2.5, 5.25}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "C5", fc.Features[0].Properties["cell_id"])
}

func TestClearAllPhotos(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	rec := env.do(t, uploadRequest(t, validFields(), pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[UploadPhotoResponse](t, rec).PhotoID

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/photos/clear_all", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[ClearAllPhotosResponse](t, rec).Status.OK)

	_, err := env.images.Load(t.Context(), id)
	assert.True(t, errors.IsNotFound(err))
	counts := decode[StatPhotoCountResponse](t, env.get(t, "/photos/count_analyzed"))
	assert.Zero(t, counts.AnalyzedPhotoCount+counts.NotAnalyzedPhotoCount)
}

func TestGetAndDeletePhoto(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	rec := env.do(t, uploadRequest(t, validFields(), pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode[UploadPhotoResponse](t, rec).PhotoID

	rec = env.get(t, "/photos/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[PhotoResponse](t, rec).Photo.ID)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/photos/abc").Code)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/photos/999").Code)

	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/photos/1", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, httptest.NewRequest(http.MethodDelete, "/photos/1", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubRunner struct {
	summary pipeline.Summary
	err     error
}

func (s stubRunner) ProcessAll(context.Context) (pipeline.Summary, error) {
	return s.summary, s.err
}

func TestProcessAllErrors(t *testing.T) {
	t.Parallel()

	busy := errors.New(pipeline.ErrRunInProgress).Category(errors.CategoryState).Build()
	env := newTestEnv(t, stubRunner{err: busy})
	rec := env.do(t, httptest.NewRequest(http.MethodPut, "/analyze/process_all", http.NoBody))
	assert.Equal(t, http.StatusConflict, rec.Code)

	fetchFailed := errors.Newf("fetch failed").Category(errors.CategoryPipeline).Build()
	env = newTestEnv(t, stubRunner{err: fetchFailed})
	rec = env.do(t, httptest.NewRequest(http.MethodPut, "/analyze/process_all", http.NoBody))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "processing failed", resp.Message)
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category errors.ErrorCategory
		want     int
	}{
		{errors.CategoryValidation, http.StatusBadRequest},
		{errors.CategoryImageDecode, http.StatusBadRequest},
		{errors.CategoryNotFound, http.StatusNotFound},
		{errors.CategoryState, http.StatusConflict},
		{errors.CategoryConflict, http.StatusConflict},
		{errors.CategoryDatabase, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := errors.Newf("x").Category(tt.category).Build()
		assert.Equal(t, tt.want, StatusForError(err), string(tt.category))
	}
	assert.Equal(t, http.StatusInternalServerError, StatusForError(errors.NewStd("plain")))
}
