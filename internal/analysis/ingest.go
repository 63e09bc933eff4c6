package analysis

import (
	"context"
	"io"

	"github.com/fieldscan/fieldscan/internal/datastore"
	"github.com/fieldscan/fieldscan/internal/pipeline"
)

// Ingest stores one photo and its image. See pipeline.Ingest.
func (rt *Runtime) Ingest(ctx context.Context, r io.Reader, longitude, latitude, headingDegrees float64) (datastore.PhotoRecord, error) {
	return pipeline.Ingest(ctx, rt.Store, rt.Images, r, longitude, latitude, headingDegrees)
}

// ClearAll deletes every photo, its observations and all stored images.
func (rt *Runtime) ClearAll(ctx context.Context) error {
	if err := rt.Store.ClearAll(ctx); err != nil {
		return err
	}
	return rt.Images.DeleteAll(ctx)
}
