// Package analyzertest provides a deterministic analyzer for tests.
package analyzertest

import (
	"context"
	"sync"

	"github.com/fieldscan/fieldscan/internal/analyzer"
	"github.com/fieldscan/fieldscan/internal/grid"
)

// Step is the scripted outcome of one Analyze call.
type Step struct {
	Result analyzer.Result
	Err    error
}

// Call records the arguments of one Analyze call.
type Call struct {
	Longitude      float64
	Latitude       float64
	HeadingDegrees float64
	ImageSize      int
}

// Scripted answers Analyze from a script keyed by the photo longitude, so a
// test can give each photo its own outcome. Photos without an entry get
// Default.
type Scripted struct {
	Steps   map[float64]Step
	Default Step

	mu    sync.Mutex
	calls []Call
}

// Analyze implements analyzer.Analyzer.
func (s *Scripted) Analyze(ctx context.Context, image []byte, longitude, latitude, headingDegrees float64) (analyzer.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Longitude:      longitude,
		Latitude:       latitude,
		HeadingDegrees: headingDegrees,
		ImageSize:      len(image),
	})
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return analyzer.Result{}, err
	}

	step, ok := s.Steps[longitude]
	if !ok {
		step = s.Default
	}
	return step.Result, step.Err
}

// Calls returns a copy of the recorded calls in call order.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Succeed returns a successful step with n observations in cell.
func Succeed(cell string, n int) Step {
	observations := make([]analyzer.Observation, n)
	for i := range observations {
		observations[i] = analyzer.Observation{
			CellID:      grid.CellID(cell),
			PlantHeight: 2.0,
			LeafAngle:   45,
			EarsHeight:  0.25,
		}
	}
	return Step{Result: analyzer.Result{OK: true, Observations: observations}}
}

// Fail returns a step that reports OK=false without an error.
func Fail() Step {
	return Step{Result: analyzer.Result{OK: false}}
}
