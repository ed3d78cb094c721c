// Package calibration holds per-laser correction tables for Velodyne sensors
// and loads them from the YAML calibration files shipped with each unit.
package calibration

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed params/*.yaml
var embeddedParams embed.FS

// DefaultDistanceResolution applies when a calibration file omits
// distance_resolution (2mm per LSB).
const DefaultDistanceResolution = 0.002

// ErrLaserOutOfRange is returned by Correction for an index the table does not hold.
var ErrLaserOutOfRange = errors.New("laser index out of range")

// LaserCorrection contains the calibration parameters of a single laser.
// Angles are in radians, offsets and distances in metres. The sine and cosine
// fields are cached at load time and must not be modified afterwards.
type LaserCorrection struct {
	RotCorrection     float64
	VertCorrection    float64
	CosRotCorrection  float64
	SinRotCorrection  float64
	CosVertCorrection float64
	SinVertCorrection float64

	HorizOffsetCorrection float64
	VertOffsetCorrection  float64

	DistCorrection           float64
	TwoPtCorrectionAvailable bool
	DistCorrectionX          float64
	DistCorrectionY          float64

	MinIntensity  float64
	MaxIntensity  float64
	FocalDistance float64
	FocalSlope    float64

	LaserIdx  int // hardware laser number
	LaserRing int // ring number, 0 is the lowest beam
}

// Calibration is the resolved correction table for one sensor.
type Calibration struct {
	// DistanceResolution is informational; the decoder uses the fixed
	// resolution of the resolved sensor model and warns when they differ.
	DistanceResolution float64
	Lasers             []LaserCorrection // indexed by hardware laser number
}

// NumLasers returns the number of lasers described by the calibration.
func (c *Calibration) NumLasers() int {
	return len(c.Lasers)
}

// Correction returns the correction for the given hardware laser number.
func (c *Calibration) Correction(laser int) (LaserCorrection, error) {
	if laser < 0 || laser >= len(c.Lasers) {
		return LaserCorrection{}, fmt.Errorf("%w: %d (have %d lasers)", ErrLaserOutOfRange, laser, len(c.Lasers))
	}
	return c.Lasers[laser], nil
}

// yamlFile mirrors the on-disk calibration format. Optional values are
// pointers so that absent keys can take their documented defaults.
type yamlFile struct {
	NumLasers          int         `yaml:"num_lasers"`
	DistanceResolution *float64    `yaml:"distance_resolution"`
	Lasers             []yamlLaser `yaml:"lasers"`
}

type yamlLaser struct {
	LaserID                  *int     `yaml:"laser_id"`
	RotCorrection            float64  `yaml:"rot_correction"`
	VertCorrection           float64  `yaml:"vert_correction"`
	DistCorrection           float64  `yaml:"dist_correction"`
	TwoPtCorrectionAvailable bool     `yaml:"two_pt_correction_available"`
	DistCorrectionX          float64  `yaml:"dist_correction_x"`
	DistCorrectionY          float64  `yaml:"dist_correction_y"`
	VertOffsetCorrection     float64  `yaml:"vert_offset_correction"`
	HorizOffsetCorrection    float64  `yaml:"horiz_offset_correction"`
	MaxIntensity             *float64 `yaml:"max_intensity"`
	MinIntensity             *float64 `yaml:"min_intensity"`
	FocalDistance            float64  `yaml:"focal_distance"`
	FocalSlope               float64  `yaml:"focal_slope"`
}

// Read loads a calibration file from disk.
func Read(path string) (*Calibration, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}
	cal, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("calibration %s: %w", path, err)
	}
	return cal, nil
}

// DefaultVLP16 returns the embedded nominal VLP-16 calibration.
func DefaultVLP16() (*Calibration, error) {
	f, err := embeddedParams.Open("params/VLP16db.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded calibration: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a YAML calibration document, fills in defaults and cached
// trigonometry, and assigns ring numbers.
func Parse(r io.Reader) (*Calibration, error) {
	var doc yamlFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse calibration YAML: %w", err)
	}

	if len(doc.Lasers) == 0 {
		return nil, fmt.Errorf("calibration has no lasers")
	}
	num := doc.NumLasers
	if num == 0 {
		num = len(doc.Lasers)
	}
	if num != len(doc.Lasers) {
		return nil, fmt.Errorf("num_lasers is %d but %d lasers are listed", num, len(doc.Lasers))
	}

	cal := &Calibration{
		DistanceResolution: DefaultDistanceResolution,
		Lasers:             make([]LaserCorrection, num),
	}
	if doc.DistanceResolution != nil {
		if *doc.DistanceResolution <= 0 {
			return nil, fmt.Errorf("distance_resolution must be positive, got %f", *doc.DistanceResolution)
		}
		cal.DistanceResolution = *doc.DistanceResolution
	}

	seen := make([]bool, num)
	for i, l := range doc.Lasers {
		if l.LaserID == nil {
			return nil, fmt.Errorf("laser entry %d has no laser_id", i)
		}
		id := *l.LaserID
		if id < 0 || id >= num {
			return nil, fmt.Errorf("laser_id %d out of range (0-%d)", id, num-1)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate laser_id %d", id)
		}
		seen[id] = true

		lc := LaserCorrection{
			RotCorrection:            l.RotCorrection,
			VertCorrection:           l.VertCorrection,
			DistCorrection:           l.DistCorrection,
			TwoPtCorrectionAvailable: l.TwoPtCorrectionAvailable,
			DistCorrectionX:          l.DistCorrectionX,
			DistCorrectionY:          l.DistCorrectionY,
			VertOffsetCorrection:     l.VertOffsetCorrection,
			HorizOffsetCorrection:    l.HorizOffsetCorrection,
			MinIntensity:             0,
			MaxIntensity:             255,
			FocalDistance:            l.FocalDistance,
			FocalSlope:               l.FocalSlope,
			LaserIdx:                 id,
		}
		if l.MinIntensity != nil {
			lc.MinIntensity = *l.MinIntensity
		}
		if l.MaxIntensity != nil {
			lc.MaxIntensity = *l.MaxIntensity
		}
		if lc.MinIntensity > lc.MaxIntensity {
			return nil, fmt.Errorf("laser %d: min_intensity %.1f exceeds max_intensity %.1f", id, lc.MinIntensity, lc.MaxIntensity)
		}
		lc.CacheTrig()
		cal.Lasers[id] = lc
	}

	cal.assignRings()
	return cal, nil
}

// CacheTrig fills the cached sine/cosine fields from the raw angles.
func (lc *LaserCorrection) CacheTrig() {
	lc.CosRotCorrection = math.Cos(lc.RotCorrection)
	lc.SinRotCorrection = math.Sin(lc.RotCorrection)
	lc.CosVertCorrection = math.Cos(lc.VertCorrection)
	lc.SinVertCorrection = math.Sin(lc.VertCorrection)
}

// assignRings numbers lasers by ascending vertical angle; ties keep
// hardware order.
func (c *Calibration) assignRings() {
	order := make([]int, len(c.Lasers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c.Lasers[order[a]].VertCorrection < c.Lasers[order[b]].VertCorrection
	})
	for ring, idx := range order {
		c.Lasers[idx].LaserRing = ring
	}
}
