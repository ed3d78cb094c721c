package lidar

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/velodyne.report/internal/lidar/rawdata"
)

// CloudSummary describes a batch of decoded points.
type CloudSummary struct {
	Points int

	RangeMin, RangeMax             float64 // metres from the sensor origin
	RangeMean, RangeStdDev         float64
	IntensityMean, IntensityStdDev float64

	// RingCounts is indexed by ring; rings that never appeared are zero.
	RingCounts []int

	Start, End time.Time // earliest and latest point times

	// SweptDegrees is the rotation reported by firing-sequence packets.
	// Set by CloudCollector; zero for dual-bank sensors.
	SweptDegrees float64
}

// Summarize computes range, intensity and ring statistics over points.
// An empty slice yields a zero summary.
func Summarize(points []rawdata.Point) CloudSummary {
	var s CloudSummary
	if len(points) == 0 {
		return s
	}

	ranges := make([]float64, len(points))
	intensities := make([]float64, len(points))
	maxRing := 0
	for _, p := range points {
		if int(p.Ring) > maxRing {
			maxRing = int(p.Ring)
		}
	}
	s.RingCounts = make([]int, maxRing+1)

	for i, p := range points {
		ranges[i] = math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
		intensities[i] = p.Intensity
		s.RingCounts[p.Ring]++

		t := p.Time()
		if i == 0 || t.Before(s.Start) {
			s.Start = t
		}
		if i == 0 || t.After(s.End) {
			s.End = t
		}
	}

	s.Points = len(points)
	s.RangeMin = floats.Min(ranges)
	s.RangeMax = floats.Max(ranges)
	s.RangeMean, s.RangeStdDev = stat.MeanStdDev(ranges, nil)
	s.IntensityMean, s.IntensityStdDev = stat.MeanStdDev(intensities, nil)

	// The unbiased estimator is undefined for a single sample.
	if s.Points < 2 {
		s.RangeStdDev = 0
		s.IntensityStdDev = 0
	}
	return s
}

// RingQuantiles returns the given quantiles of per-ring point counts over
// rings that received at least one point.
func (s CloudSummary) RingQuantiles(ps ...float64) []float64 {
	var counts []float64
	for _, c := range s.RingCounts {
		if c > 0 {
			counts = append(counts, float64(c))
		}
	}
	out := make([]float64, len(ps))
	if len(counts) == 0 {
		return out
	}
	sort.Float64s(counts)
	for i, p := range ps {
		out[i] = stat.Quantile(p, stat.Empirical, counts, nil)
	}
	return out
}

// String renders the summary on one line for the ops log.
func (s CloudSummary) String() string {
	if s.Points == 0 {
		return "0 points"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s points, range %.2f..%.2f m (mean %.2f, sd %.2f), intensity mean %.1f sd %.1f",
		FormatWithCommas(int64(s.Points)), s.RangeMin, s.RangeMax, s.RangeMean, s.RangeStdDev,
		s.IntensityMean, s.IntensityStdDev)

	rings := 0
	for _, c := range s.RingCounts {
		if c > 0 {
			rings++
		}
	}
	fmt.Fprintf(&b, ", %d rings", rings)
	if span := s.End.Sub(s.Start); span > 0 {
		fmt.Fprintf(&b, ", span %s", span)
	}
	if s.SweptDegrees > 0 {
		fmt.Fprintf(&b, ", swept %.1f deg", s.SweptDegrees)
	}
	return b.String()
}

// CloudCollector accumulates decoded points between summaries. It keeps at
// most limit points per window; the rest are counted but not stored.
type CloudCollector struct {
	mu       sync.Mutex
	limit    int
	points   []rawdata.Point
	overflow int
	swept    float64
}

// NewCloudCollector keeps up to limit points per window.
func NewCloudCollector(limit int) *CloudCollector {
	return &CloudCollector{limit: limit}
}

// WritePoints adds one packet's points to the current window.
func (c *CloudCollector) WritePoints(points []rawdata.Point, res rawdata.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.limit - len(c.points)
	if room < 0 {
		room = 0
	}
	if len(points) > room {
		c.overflow += len(points) - room
		points = points[:room]
	}
	c.points = append(c.points, points...)
	if res.HasSliceAngle {
		c.swept += res.SliceAngle / 100
	}
	return nil
}

// Flush summarizes the window, starts a new one, and reports how many points
// did not fit.
func (c *CloudCollector) Flush() (CloudSummary, int) {
	c.mu.Lock()
	points, overflow, swept := c.points, c.overflow, c.swept
	c.points, c.overflow, c.swept = nil, 0, 0
	c.mu.Unlock()

	s := Summarize(points)
	s.SweptDegrees = swept
	return s, overflow
}
