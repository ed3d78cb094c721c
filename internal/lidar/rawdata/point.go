package rawdata

import "time"

// Point is one calibrated return in the output frame (X forward, Y left, Z up).
type Point struct {
	X, Y, Z   float64 // metres
	Intensity float64
	TimeSec   uint32
	TimeNsec  uint32
	Ring      uint16
}

// Time reassembles the point timestamp.
func (p Point) Time() time.Time {
	return time.Unix(int64(p.TimeSec), int64(p.TimeNsec))
}

func (p *Point) setTime(t time.Time) {
	p.TimeSec = uint32(t.Unix())
	p.TimeNsec = uint32(t.Nanosecond())
}

// PointAppender receives decoded points. The decoder only ever appends; it
// never reads, removes or reorders what is already there.
type PointAppender interface {
	Append(p Point)
}

// PointCloud is an unordered, unorganised cloud. It does no locking: a cloud
// shared between goroutines needs a single writer.
type PointCloud struct {
	Points []Point
	Width  int
}

// NewPointCloud preallocates room for n points.
func NewPointCloud(n int) *PointCloud {
	return &PointCloud{Points: make([]Point, 0, n)}
}

// Append adds p to the cloud.
func (pc *PointCloud) Append(p Point) {
	pc.Points = append(pc.Points, p)
	pc.Width++
}

// Reset empties the cloud, keeping its capacity.
func (pc *PointCloud) Reset() {
	pc.Points = pc.Points[:0]
	pc.Width = 0
}
