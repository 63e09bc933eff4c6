// Package grid maps a field position and camera heading to the grid cell the
// observation belongs to.
//
// The field is an integer grid. Columns are lettered from 'A' (index 0) and
// rows are plain integers, so a cell id reads "C7" or "B-2". Resolution is a
// pure function of (x, y, heading) plus the resolver's column bound and
// policy; nothing here touches I/O.
package grid

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/fieldscan/fieldscan/internal/errors"
)

// MaxColumns is the number of single-letter columns, 'A' through 'Z'.
const MaxColumns = 26

// maxCoordinate keeps floored coordinates exactly representable as int.
const maxCoordinate = 1 << 52

// CellID identifies one grid cell, e.g. "C7".
type CellID string

// String implements fmt.Stringer.
func (c CellID) String() string { return string(c) }

var (
	// ErrInvalidInput is returned for NaN or infinite coordinates or heading.
	ErrInvalidInput = errors.NewStd("grid: coordinates and heading must be finite")

	// ErrColumnOutOfRange is returned when the computed column index falls
	// outside [0, columns).
	ErrColumnOutOfRange = errors.NewStd("grid: column index out of range")
)

// ColumnRangeError carries the offending column index.
type ColumnRangeError struct {
	Index   int
	Columns int
}

func (e *ColumnRangeError) Error() string {
	return fmt.Sprintf("grid: column index %d outside [0, %d)", e.Index, e.Columns)
}

// Unwrap lets errors.Is match ErrColumnOutOfRange.
func (e *ColumnRangeError) Unwrap() error { return ErrColumnOutOfRange }

// Resolver resolves positions to cells for a field with a fixed column count.
// A Resolver is immutable and safe for concurrent use.
type Resolver struct {
	columns int
	policy  Policy
}

var defaultResolver = &Resolver{columns: MaxColumns, policy: QuadrantPolicy{}}

// Default returns the resolver with 26 columns and the quadrant policy.
func Default() *Resolver {
	return defaultResolver
}

// New returns a resolver bounded to columns lettered columns. A nil policy
// selects QuadrantPolicy.
func New(columns int, policy Policy) (*Resolver, error) {
	if columns < 1 || columns > MaxColumns {
		return nil, errors.Newf("grid: columns must be between 1 and %d, got %d", MaxColumns, columns).
			Component("grid").
			Category(errors.CategoryValidation).
			Context("columns", columns).
			Build()
	}
	if policy == nil {
		policy = QuadrantPolicy{}
	}
	return &Resolver{columns: columns, policy: policy}, nil
}

// Columns returns the column bound.
func (r *Resolver) Columns() int { return r.columns }

// Policy returns the placement policy.
func (r *Resolver) Policy() Policy { return r.policy }

// ResolveCell resolves with the default resolver.
func ResolveCell(x, y, headingDegrees float64) (CellID, error) {
	return defaultResolver.Resolve(x, y, headingDegrees)
}

// Resolve returns the cell for position (x, y) seen with the given heading.
// Headings are normalized into [0, 360) first, so 360 behaves as 0 and -90 as 270.
func (r *Resolver) Resolve(x, y, headingDegrees float64) (CellID, error) {
	for _, v := range [...]float64{x, y, headingDegrees} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", invalidInput(x, y, headingDegrees)
		}
	}
	if math.Abs(x) > maxCoordinate || math.Abs(y) > maxCoordinate {
		return "", invalidInput(x, y, headingDegrees)
	}

	column, row := r.policy.Locate(x, y, NormalizeHeading(headingDegrees))
	if column < 0 || column >= r.columns {
		return "", errors.New(&ColumnRangeError{Index: column, Columns: r.columns}).
			Component("grid").
			Category(errors.CategoryValidation).
			Context("column_index", column).
			Context("policy", r.policy.Name()).
			Build()
	}

	return FormatCellID(column, row), nil
}

// ResolvePoint resolves an orb.Point, using its X as x and Y as y.
func (r *Resolver) ResolvePoint(p orb.Point, headingDegrees float64) (CellID, error) {
	return r.Resolve(p.X(), p.Y(), headingDegrees)
}

func invalidInput(x, y, heading float64) error {
	return errors.New(fmt.Errorf("%w: x=%v y=%v heading=%v", ErrInvalidInput, x, y, heading)).
		Component("grid").
		Category(errors.CategoryValidation).
		Build()
}

// NormalizeHeading maps any finite heading into [0, 360) with a floored modulo.
func NormalizeHeading(headingDegrees float64) float64 {
	h := math.Mod(headingDegrees, 360)
	if h < 0 {
		h += 360
	}
	// tiny negative inputs round up to exactly 360
	if h >= 360 {
		h = 0
	}
	return h
}

// FormatCellID renders a column index and row as a cell id. It does not
// check the column bound.
func FormatCellID(column, row int) CellID {
	return CellID(string(rune('A'+column)) + strconv.Itoa(row))
}

// ParseCellID splits a cell id into its column index and row. Only ids in the
// form FormatCellID produces are accepted, so "A05" and "Z-0" are rejected.
func ParseCellID(s string) (column, row int, err error) {
	if len(s) < 2 || s[0] < 'A' || s[0] > 'Z' {
		return 0, 0, malformedCellID(s, "")
	}
	row, convErr := strconv.Atoi(s[1:])
	if convErr != nil {
		return 0, 0, malformedCellID(s, ": row is not an integer")
	}
	column = int(s[0] - 'A')
	if string(FormatCellID(column, row)) != s {
		return 0, 0, malformedCellID(s, ": row is not in canonical form")
	}
	return column, row, nil
}

func malformedCellID(s, detail string) error {
	return errors.Newf("grid: malformed cell id %q%s", s, detail).
		Component("grid").
		Category(errors.CategoryValidation).
		Build()
}
