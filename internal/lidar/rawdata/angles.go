package rawdata

import "math"

type sinCos struct {
	Sin, Cos float64
}

// AngleTable caches sine and cosine for every rotation unit from 0 to
// ROTATION_MAX_UNITS inclusive. It is read-only once built.
type AngleTable [ROTATION_MAX_UNITS + 1]sinCos

// NewAngleTable builds the table.
func NewAngleTable() *AngleTable {
	var t AngleTable
	for rot := range t {
		rad := float64(rot) * ROTATION_RESOLUTION * math.Pi / 180.0
		t[rot] = sinCos{Sin: math.Sin(rad), Cos: math.Cos(rad)}
	}
	return &t
}

// At returns sin and cos of rot hundredths of a degree. rot must be in
// [0, ROTATION_MAX_UNITS].
func (t *AngleTable) At(rot int) (sin, cos float64) {
	e := t[rot]
	return e.Sin, e.Cos
}
