// Package analyzer turns a field photo into plant observations.
//
// Only a placeholder analyzer exists: it produces random plausible
// measurements so the rest of the system can be exercised end to end. A real
// vision model replaces Placeholder behind the same Analyzer interface.
package analyzer

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/grid"
)

// Observation is one plant found on a photo.
type Observation struct {
	CellID      grid.CellID
	PlantHeight float64 // meters
	LeafAngle   float64 // degrees
	EarsHeight  float64 // meters
}

// Result is the outcome of analyzing one photo. OK is false when the photo
// could not be analyzed; Observations is then empty.
type Result struct {
	OK           bool
	Observations []Observation
}

// Analyzer analyzes one photo taken at (longitude, latitude) facing heading.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, longitude, latitude, headingDegrees float64) (Result, error)
}

// Func adapts a plain function to Analyzer.
type Func func(ctx context.Context, image []byte, longitude, latitude, headingDegrees float64) (Result, error)

// Analyze implements Analyzer.
func (f Func) Analyze(ctx context.Context, image []byte, longitude, latitude, headingDegrees float64) (Result, error) {
	return f(ctx, image, longitude, latitude, headingDegrees)
}

// Measurement ranges of the placeholder.
const (
	MinObservations = 1
	MaxObservations = 10

	MinPlantHeight = 1.8
	MaxPlantHeight = 2.2
	MinLeafAngle   = 30.0
	MaxLeafAngle   = 60.0
	MinEarsHeight  = 0.2
	MaxEarsHeight  = 0.3
)

// Placeholder produces 1 to 10 random observations per photo, all placed in
// the cell the resolver returns for the photo's position and heading.
type Placeholder struct {
	resolver *grid.Resolver

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPlaceholder returns a placeholder analyzer. A nil resolver uses
// grid.Default(); seed 0 seeds from the clock.
func NewPlaceholder(resolver *grid.Resolver, seed uint64) *Placeholder {
	if resolver == nil {
		resolver = grid.Default()
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Placeholder{
		resolver: resolver,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Analyze implements Analyzer.
func (p *Placeholder) Analyze(ctx context.Context, image []byte, longitude, latitude, headingDegrees float64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(image) == 0 {
		return Result{}, errors.Newf("analyzer: empty image").
			Component("analyzer").
			Category(errors.CategoryAnalysis).
			Build()
	}

	cell, err := p.resolver.Resolve(longitude, latitude, headingDegrees)
	if err != nil {
		return Result{}, errors.New(err).
			Component("analyzer").
			Category(errors.CategoryAnalysis).
			Context("longitude", longitude).
			Context("latitude", latitude).
			Context("heading", headingDegrees).
			Build()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := MinObservations + p.rng.IntN(MaxObservations-MinObservations+1)
	observations := make([]Observation, n)
	for i := range observations {
		observations[i] = Observation{
			CellID:      cell,
			PlantHeight: p.uniform(MinPlantHeight, MaxPlantHeight),
			LeafAngle:   p.uniform(MinLeafAngle, MaxLeafAngle),
			EarsHeight:  p.uniform(MinEarsHeight, MaxEarsHeight),
		}
	}
	return Result{OK: true, Observations: observations}, nil
}

func (p *Placeholder) uniform(lo, hi float64) float64 {
	return lo + p.rng.Float64()*(hi-lo)
}
