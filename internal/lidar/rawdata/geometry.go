package rawdata

import (
	"math"

	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
)

// Two-point distance correction reference distances, metres.
const (
	twoPtNearX = 2.4
	twoPtNearY = 1.93
	twoPtFar   = 25.04
)

// Focal intensity model constants.
const (
	focalScale    = 256.0
	focalMaxRange = 13100.0
	rawDistMax    = 65535.0
)

// computePoint converts one raw return into calibrated output coordinates and
// intensity. rot must already be within the angle table. The returned
// distance is the corrected range used for range gating. The point has no
// timestamp.
func (d *Decoder) computePoint(corr *calibration.LaserCorrection, rot int, rawDistance uint16, rawIntensity uint8, resolution float64) (Point, float64) {
	distance := float64(rawDistance)*resolution + corr.DistCorrection

	cosVert := corr.CosVertCorrection
	sinVert := corr.SinVertCorrection
	horizOffset := corr.HorizOffsetCorrection
	vertOffset := corr.VertOffsetCorrection

	// cos(a-b) = cos(a)*cos(b) + sin(a)*sin(b)
	// sin(a-b) = sin(a)*cos(b) - cos(a)*sin(b)
	sinTable, cosTable := d.angles.At(rot)
	cosRot := cosTable*corr.CosRotCorrection + sinTable*corr.SinRotCorrection
	sinRot := sinTable*corr.CosRotCorrection - cosTable*corr.SinRotCorrection

	// Uncorrected pass: planar magnitudes pick the interpolation point.
	xyDistance := distance*cosVert - vertOffset*sinVert
	xx := math.Abs(xyDistance*sinRot - horizOffset*cosRot)
	yy := math.Abs(xyDistance*cosRot + horizOffset*sinRot)

	var distCorrX, distCorrY float64
	if corr.TwoPtCorrectionAvailable {
		distCorrX = (corr.DistCorrection-corr.DistCorrectionX)*(xx-twoPtNearX)/(twoPtFar-twoPtNearX) +
			corr.DistCorrectionX - corr.DistCorrection
		distCorrY = (corr.DistCorrection-corr.DistCorrectionY)*(yy-twoPtNearY)/(twoPtFar-twoPtNearY) +
			corr.DistCorrectionY - corr.DistCorrection
	}

	distanceX := distance + distCorrX
	xyDistance = distanceX*cosVert - vertOffset*sinVert
	x := xyDistance*sinRot - horizOffset*cosRot

	// Z reuses the Y-corrected distance. Not symmetric, but it is what the
	// sensor manual prescribes.
	distanceY := distance + distCorrY
	xyDistance = distanceY*cosVert - vertOffset*sinVert
	y := xyDistance*cosRot + horizOffset*sinRot
	z := distanceY*sinVert + vertOffset*cosVert

	p := Point{
		X:         y,
		Y:         -x,
		Z:         z,
		Intensity: intensity(corr, rawDistance, rawIntensity),
		Ring:      uint16(corr.LaserRing),
	}
	return p, distance
}

// intensity applies the focal distance correction and clamps to the laser's
// calibrated bounds.
func intensity(corr *calibration.LaserCorrection, rawDistance uint16, rawIntensity uint8) float64 {
	focal := 1 - corr.FocalDistance/focalMaxRange
	focalOffset := focalScale * focal * focal
	rd := 1 - float64(rawDistance)/rawDistMax

	v := float64(rawIntensity) + corr.FocalSlope*math.Abs(focalOffset-focalScale*rd*rd)
	if v < corr.MinIntensity {
		v = corr.MinIntensity
	}
	if v > corr.MaxIntensity {
		v = corr.MaxIntensity
	}
	return v
}
