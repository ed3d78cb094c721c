package rawdata

import "math"

// Gate limits output to a range band and an azimuth sector. Angles are in
// hardware rotation units, oriented opposite to the configured view direction.
type Gate struct {
	MinRange float64 // metres, inclusive
	MaxRange float64 // metres, inclusive
	MinAngle int     // hundredths of a degree
	MaxAngle int     // hundredths of a degree
}

// NewGate converts a view sector given in radians (direction of the sector
// centre and its width, counter-clockwise positive) into hardware bounds.
// Bounds that collapse to the same value are widened to the full circle.
func NewGate(minRange, maxRange, viewDirection, viewWidth float64) Gate {
	tmpMin := positiveMod(viewDirection+viewWidth/2, 2*math.Pi)
	tmpMax := positiveMod(viewDirection-viewWidth/2, 2*math.Pi)

	g := Gate{
		MinRange: minRange,
		MaxRange: maxRange,
		MinAngle: toRotationUnits(2*math.Pi - tmpMin),
		MaxAngle: toRotationUnits(2*math.Pi - tmpMax),
	}
	if g.MinAngle == g.MaxAngle {
		g.MinAngle = 0
		g.MaxAngle = ROTATION_MAX_UNITS
	}
	return g
}

// FullCircleGate accepts every azimuth between the given ranges.
func FullCircleGate(minRange, maxRange float64) Gate {
	return Gate{MinRange: minRange, MaxRange: maxRange, MinAngle: 0, MaxAngle: ROTATION_MAX_UNITS}
}

// AzimuthInRange reports whether rot falls inside the sector. When
// MinAngle > MaxAngle the sector wraps through zero.
func (g Gate) AzimuthInRange(rot int) bool {
	switch {
	case g.MinAngle < g.MaxAngle:
		return rot >= g.MinAngle && rot <= g.MaxAngle
	case g.MinAngle > g.MaxAngle:
		return rot <= g.MaxAngle || rot >= g.MinAngle
	default:
		return false
	}
}

// DistanceInRange reports whether d lies within [MinRange, MaxRange].
func (g Gate) DistanceInRange(d float64) bool {
	return d >= g.MinRange && d <= g.MaxRange
}

func positiveMod(v, m float64) float64 {
	return math.Mod(math.Mod(v, m)+m, m)
}

// toRotationUnits rounds radians to hundredths of a degree.
func toRotationUnits(rad float64) int {
	return int(100*rad*180/math.Pi + 0.5)
}
