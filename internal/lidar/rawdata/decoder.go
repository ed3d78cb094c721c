package rawdata

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.report/internal/timeutil"
)

// FailureSentinel is the value UnpackAndAdd returns when it has no angle to
// report: always for the dual-bank layout, and for rejected packets in the
// firing-sequence layout.
const FailureSentinel = -1.0

// DefaultWarnInterval bounds how often invalid-packet warnings are logged.
const DefaultWarnInterval = time.Minute

// CorrectionSource resolves per-laser calibration. *calibration.Calibration
// satisfies it.
type CorrectionSource interface {
	NumLasers() int
	Correction(laser int) (calibration.LaserCorrection, error)
}

// Config selects the sensor model and the initial output gate.
type Config struct {
	DeviceModel   string
	MinRange      float64 // metres
	MaxRange      float64 // metres
	ViewDirection float64 // radians
	ViewWidth     float64 // radians

	// StrictBankHeaders makes the dual-bank layout reject blocks whose header
	// is neither upper nor lower bank instead of treating them as upper bank.
	StrictBankHeaders bool

	WarnInterval time.Duration  // defaults to DefaultWarnInterval
	Clock        timeutil.Clock // defaults to timeutil.RealClock
}

// Result describes one decoded packet.
type Result struct {
	Points int // points appended to the output

	// SliceAngle is the rotation covered by the packet in hundredths of a
	// degree, the sum of consecutive block-to-block deltas. Only set when
	// HasSliceAngle is true (firing-sequence layout).
	SliceAngle    float64
	HasSliceAngle bool
}

// Decoder turns raw packets into calibrated points. All state is built by New
// and read-only afterwards apart from the gate, which SetParameters swaps
// atomically, so Unpack may be called from several goroutines as long as
// each has its own output or appends are serialised by the caller.
type Decoder struct {
	model       Model
	corrections []calibration.LaserCorrection
	angles      *AngleTable
	timing      TimingOffsets
	gate        atomic.Pointer[Gate]
	strictBank  bool
	badBlockLog *throttle
}

// New resolves the sensor model from src and cfg and builds the lookup
// tables. It must complete before any Unpack call.
func New(src CorrectionSource, cfg Config) (*Decoder, error) {
	numLasers := src.NumLasers()
	diagf("Number of lasers: %d", numLasers)
	if cfg.DeviceModel == "" {
		opsf("device_model not specified")
	}

	model, err := ResolveModel(numLasers, cfg.DeviceModel)
	if err != nil {
		return nil, err
	}

	if cal, ok := src.(*calibration.Calibration); ok && cal.DistanceResolution != model.DistanceResolution() {
		opsf("calibration distance_resolution %g ignored: %s packets are decoded at %g m per unit",
			cal.DistanceResolution, model.Name, model.DistanceResolution())
	}

	corrections := make([]calibration.LaserCorrection, model.Lasers)
	for i := range corrections {
		c, err := src.Correction(i)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve correction for laser %d: %w", i, err)
		}
		corrections[i] = c
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	warnInterval := cfg.WarnInterval
	if warnInterval <= 0 {
		warnInterval = DefaultWarnInterval
	}

	d := &Decoder{
		model:       model,
		corrections: corrections,
		angles:      NewAngleTable(),
		strictBank:  cfg.StrictBankHeaders,
		badBlockLog: newThrottle(clock, warnInterval),
	}
	if model.Timed {
		d.timing = BuildTimingOffsets(model.Spec, BLOCKS_PER_PACKET, model.Spec.LasersPerFiringSeq)
	}
	d.SetParameters(cfg.MinRange, cfg.MaxRange, cfg.ViewDirection, cfg.ViewWidth)

	diagf("Decoder ready: model=%s layout=%s timed=%v", model.Name, model.Layout, model.Timed)
	return d, nil
}

// SetParameters replaces the range and view sector gate. Decode calls already
// in flight finish with the previous gate.
func (d *Decoder) SetParameters(minRange, maxRange, viewDirection, viewWidth float64) {
	g := NewGate(minRange, maxRange, viewDirection, viewWidth)
	d.gate.Store(&g)
	diagf("Gate: range=[%.2f, %.2f] m, angle=[%d, %d] (0.01 deg)", g.MinRange, g.MaxRange, g.MinAngle, g.MaxAngle)
}

// Gate returns the active gate.
func (d *Decoder) Gate() Gate {
	return *d.gate.Load()
}

// Model returns the resolved sensor model.
func (d *Decoder) Model() Model {
	return d.model
}

// Unpack decodes pkt and appends the points that pass the gate to out. On a
// rejected block the points of earlier blocks stay appended and the error
// wraps ErrInvalidBlockHeader.
func (d *Decoder) Unpack(pkt Packet, out PointAppender) (Result, error) {
	if err := pkt.validate(); err != nil {
		return Result{}, err
	}
	tracef("Received packet, time: %s", pkt.Stamp.Format(time.RFC3339Nano))

	gate := d.gate.Load()
	if d.model.Layout == LayoutFiringSequence {
		return d.unpackFiringSequence(pkt, gate, out)
	}
	return d.unpackDualBank(pkt, gate, out)
}

// UnpackAndAdd is Unpack with the legacy single-value contract of the ROS
// driver: the firing-sequence slice angle, or FailureSentinel. A dual-bank
// packet always yields FailureSentinel, so the value cannot tell success from
// failure there; use Unpack when that matters.
func (d *Decoder) UnpackAndAdd(pkt Packet, out PointAppender) float64 {
	res, err := d.Unpack(pkt, out)
	if err != nil || !res.HasSliceAngle {
		return FailureSentinel
	}
	return res.SliceAngle
}

// warnBadBlock logs a rejected block at most once per warn interval.
func (d *Decoder) warnBadBlock(err *BlockHeaderError) {
	if ok, suppressed := d.badBlockLog.allow(); ok {
		if suppressed > 0 {
			opsf("skipping invalid %s packet: %v (%d similar suppressed)", d.model.Name, err, suppressed)
			return
		}
		opsf("skipping invalid %s packet: %v", d.model.Name, err)
	}
}

// emit stamps p and appends it when distance passes the range gate.
func emit(out PointAppender, gate *Gate, p Point, distance float64, stamp time.Time) bool {
	if !gate.DistanceInRange(distance) {
		return false
	}
	p.setTime(stamp)
	out.Append(p)
	return true
}

// roundRotation rounds an interpolated azimuth and wraps it into
// [0, ROTATION_MAX_UNITS).
func roundRotation(azimuth float64) int {
	return int(math.Round(azimuth)) % ROTATION_MAX_UNITS
}
