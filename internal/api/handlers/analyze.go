package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/grid"
)

const statCacheKey = "stat_by_area"

// ProcessAllResponse is returned by PUT /analyze/process_all.
type ProcessAllResponse struct {
	Status             ServeStatus `json:"status"`
	RunID              string      `json:"run_id"`
	AnalyzedPhotoCount int         `json:"analyzed_photo_count"`
	ProducedPlantCount int         `json:"produced_plant_count"`
	Skipped            int         `json:"skipped"`
	Canceled           bool        `json:"canceled"`
	Shared             bool        `json:"shared"`
}

// ProcessAll runs the analysis pipeline over every unanalyzed photo.
func (c *Controller) ProcessAll(ctx echo.Context) error {
	summary, err := c.Processor.ProcessAll(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "processing failed", 0)
	}
	if summary.PhotosAnalyzed > 0 || summary.ObservationsProduced > 0 {
		c.invalidateStats()
	}

	return ctx.JSON(http.StatusOK, ProcessAllResponse{
		Status:             okStatus("processing finished"),
		RunID:              summary.RunID,
		AnalyzedPhotoCount: summary.PhotosAnalyzed,
		ProducedPlantCount: summary.ObservationsProduced,
		Skipped:            summary.Skipped(),
		Canceled:           summary.Canceled,
		Shared:             summary.Shared,
	})
}

// ListAllPlantsResponse is returned by GET /analyze/corn_plants/list_all.
type ListAllPlantsResponse struct {
	Status  ServeStatus                  `json:"status"`
	Count   int64                        `json:"count"`
	Results []datastore.PlantObservation `json:"results"`
}

// ListAllPlants lists observations, optionally paged and filtered by cell.
//
// Query parameters: page_size (0 = all, default), page_number (1-based),
// cell (cell id filter).
func (c *Controller) ListAllPlants(ctx echo.Context) error {
	q := datastore.Query{}

	var err error
	if q.PageSize, err = queryInt(ctx, "page_size", 0); err != nil {
		return c.HandleError(ctx, err, "invalid page_size", http.StatusBadRequest)
	}
	if q.PageNumber, err = queryInt(ctx, "page_number", 1); err != nil {
		return c.HandleError(ctx, err, "invalid page_number", http.StatusBadRequest)
	}
	if cell := ctx.QueryParam("cell"); cell != "" {
		if _, _, err := grid.ParseCellID(cell); err != nil {
			return c.HandleError(ctx, err, "invalid cell", http.StatusBadRequest)
		}
		q.Condition = datastore.Where("cell_id = ?", cell)
	}

	total, plants, err := datastore.PagedFindAndCount[datastore.PlantObservation](ctx.Request().Context(), c.DS, q)
	if err != nil {
		return c.HandleError(ctx, err, "listing failed", 0)
	}

	return ctx.JSON(http.StatusOK, ListAllPlantsResponse{
		Status:  okStatus("ok"),
		Count:   total,
		Results: plants,
	})
}

// PlantsGeoJSON exports every observation as a GeoJSON point feature placed
// at the position of its photo.
func (c *Controller) PlantsGeoJSON(ctx echo.Context) error {
	points, err := c.DS.ListObservationPoints(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "export failed", 0)
	}

	fc := geojson.NewFeatureCollection()
	for i := range points {
		p := &points[i]
		f := geojson.NewFeature(orb.Point{p.Longitude, p.Latitude})
		f.ID = p.ID
		f.Properties["photo_id"] = p.PhotoID
		f.Properties["cell_id"] = p.CellID
		f.Properties["plant_height"] = p.PlantHeight
		f.Properties["leaf_angle"] = p.LeafAngle
		f.Properties["ears_height"] = p.EarsHeight
		fc.Append(f)
	}

	body, err := fc.MarshalJSON()
	if err != nil {
		return c.HandleError(ctx, err, "export failed", http.StatusInternalServerError)
	}
	return ctx.Blob(http.StatusOK, "application/geo+json", body)
}

// StatByAreaResponse is returned by GET /analyze/stat_by_area.
type StatByAreaResponse struct {
	Status  ServeStatus          `json:"status"`
	Results []datastore.CellStat `json:"results"`
}

// StatByArea returns per-cell averages. Results are cached until the data changes
// or the cache TTL passes.
func (c *Controller) StatByArea(ctx echo.Context) error {
	if c.statCache != nil {
		if cached, ok := c.statCache.Get(statCacheKey); ok {
			if stats, ok := cached.([]datastore.CellStat); ok {
				c.recordCache("hit")
				return ctx.JSON(http.StatusOK, StatByAreaResponse{Status: okStatus("ok"), Results: stats})
			}
		}
		c.recordCache("miss")
	}

	stats, err := c.DS.StatByCellID(ctx.Request().Context())
	if err != nil {
		return c.HandleError(ctx, err, "statistics failed", 0)
	}
	if stats == nil {
		stats = []datastore.CellStat{}
	}

	if c.statCache != nil {
		c.statCache.SetDefault(statCacheKey, stats)
	}
	return ctx.JSON(http.StatusOK, StatByAreaResponse{Status: okStatus("ok"), Results: stats})
}

func queryInt(ctx echo.Context, name string, def int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Newf("%s must be an integer, got %q", name, raw).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return v, nil
}
