package rawdata

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
)

var testStamp = time.Unix(1700000000, 123456789)

// benignCalibration returns n lasers with no corrections, ring == laser index.
func benignCalibration(n int) *calibration.Calibration {
	cal := &calibration.Calibration{
		DistanceResolution: calibration.DefaultDistanceResolution,
		Lasers:             make([]calibration.LaserCorrection, n),
	}
	for i := range cal.Lasers {
		lc := calibration.LaserCorrection{
			MaxIntensity: 255,
			LaserIdx:     i,
			LaserRing:    i,
		}
		lc.CacheTrig()
		cal.Lasers[i] = lc
	}
	return cal
}

// fullGateConfig accepts every azimuth from 0.9 m to 130 m.
func fullGateConfig(model string) Config {
	return Config{
		DeviceModel: model,
		MinRange:    0.9,
		MaxRange:    130,
		ViewWidth:   2 * math.Pi,
	}
}

// newPacketBytes returns a zeroed packet with every block header set.
func newPacketBytes(header uint16) []byte {
	data := make([]byte, PACKET_SIZE)
	for i := 0; i < BLOCKS_PER_PACKET; i++ {
		setBlock(data, i, header, 0)
	}
	return data
}

func setBlock(data []byte, block int, header, rotation uint16) {
	off := block * BLOCK_SIZE
	binary.LittleEndian.PutUint16(data[off:], header)
	binary.LittleEndian.PutUint16(data[off+2:], rotation)
}

func setReturn(data []byte, block, k int, distance uint16, intensity uint8) {
	off := block*BLOCK_SIZE + BLOCK_HEADER_SIZE + ROTATION_SIZE + k*RAW_SCAN_SIZE
	binary.LittleEndian.PutUint16(data[off:], distance)
	data[off+2] = intensity
}

// fillBlock sets every return of a block to the same distance and intensity.
func fillBlock(data []byte, block int, distance uint16, intensity uint8) {
	for k := 0; k < SCANS_PER_BLOCK; k++ {
		setReturn(data, block, k, distance, intensity)
	}
}

// azimuthUnits recovers the hardware rotation of an output point produced
// with zero rotational correction.
func azimuthUnits(p Point) float64 {
	deg := math.Atan2(-p.Y, p.X) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg * 100
}
