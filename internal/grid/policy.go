package grid

import (
	"math"
	"strings"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// Policy picks a column index and row for a position. The heading passed to
// Locate is already normalized into [0, 360).
type Policy interface {
	Name() string
	Locate(x, y, heading float64) (column, row int)
}

// QuadrantPolicy selects the cell ahead of the camera by 90 degree heading
// quadrant. Lower quadrant bounds are inclusive:
//
//	[0, 90)    column floor(x)     row floor(y)
//	[90, 180)  column floor(x)     row floor(y)+1
//	[180, 270) column floor(x)-1   row floor(y)+1
//	[270, 360) column floor(x)-1   row floor(y)
type QuadrantPolicy struct{}

// Name implements Policy.
func (QuadrantPolicy) Name() string { return "quadrant" }

// Locate implements Policy.
func (QuadrantPolicy) Locate(x, y, heading float64) (column, row int) {
	column = int(math.Floor(x))
	row = int(math.Floor(y))

	switch {
	case heading < 90:
	case heading < 180:
		row++
	case heading < 270:
		column--
		row++
	default:
		column--
	}
	return column, row
}

// NearestLinePolicy is the older placement rule: it looks at whichever grid
// line (horizontal or vertical) the point is closer to and uses the heading
// only to decide which side of that line the cell lies on. Lines are found by
// round-half-to-even and the other coordinate is truncated toward zero, which
// keeps ids identical to data recorded with this rule.
type NearestLinePolicy struct{}

// Name implements Policy.
func (NearestLinePolicy) Name() string { return "nearestline" }

// Locate implements Policy.
func (NearestLinePolicy) Locate(x, y, heading float64) (column, row int) {
	horizontalLine := math.RoundToEven(y)
	verticalLine := math.RoundToEven(x)

	if math.Abs(y-horizontalLine) < math.Abs(x-verticalLine) {
		column = int(math.Trunc(x))
		row = int(horizontalLine)
		if heading < 180 {
			row++
		}
		return column, row
	}

	column = int(verticalLine)
	if heading >= 90 && heading < 270 {
		column--
	}
	return column, int(math.Trunc(y)) + 1
}

// PolicyByName returns the policy for a configuration value. An empty name
// selects the quadrant policy.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "quadrant":
		return QuadrantPolicy{}, nil
	case "nearestline":
		return NearestLinePolicy{}, nil
	default:
		return nil, errors.Newf("grid: unknown policy %q", name).
			Component("grid").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
