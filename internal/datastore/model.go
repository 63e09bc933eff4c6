// model.go this code defines the data model for the application
package datastore

import "time"

// PhotoRecord is one uploaded field photograph. AnalyzedAt is nil until the
// pipeline has processed the photo.
type PhotoRecord struct {
	ID             uint               `gorm:"primaryKey" json:"id"`
	Longitude      float64            `json:"longitude"`
	Latitude       float64            `json:"latitude"`
	HeadingDegrees float64            `json:"heading_degrees"`
	AnalyzedAt     *time.Time         `gorm:"index:idx_photos_analyzed_at" json:"analyzed_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Observations   []PlantObservation `gorm:"foreignKey:PhotoID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName overrides the gorm default.
func (PhotoRecord) TableName() string { return "photos" }

// Analyzed reports whether the photo has been marked analyzed.
func (p *PhotoRecord) Analyzed() bool { return p.AnalyzedAt != nil }

// PlantObservation is one plant measured on a photo, placed in a grid cell.
type PlantObservation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PhotoID     uint      `gorm:"index;not null" json:"photo_id"`
	CellID      string    `gorm:"size:16;index:idx_plant_observations_cell_id" json:"cell_id"`
	PlantHeight float64   `json:"plant_height"`
	LeafAngle   float64   `json:"leaf_angle"`
	EarsHeight  float64   `json:"ears_height"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName overrides the gorm default.
func (PlantObservation) TableName() string { return "plant_observations" }

// CellStat holds per-cell averages over all observations in the cell.
type CellStat struct {
	CellID         string  `json:"cell_id"`
	AvgPlantHeight float64 `json:"plant_height_avg"`
	AvgLeafAngle   float64 `json:"leaf_angle_avg"`
	AvgEarsHeight  float64 `json:"ears_height_avg"`
	Observations   int64   `json:"count"`
}

// ObservationPoint is an observation joined with the position of its photo.
type ObservationPoint struct {
	PlantObservation
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// models lists everything AutoMigrate manages, parents first.
var models = []any{&PhotoRecord{}, &PlantObservation{}}
