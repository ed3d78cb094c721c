package rawdata

import "time"

// TimingOffsets holds the firing time of each [block][firing sequence] slot
// relative to the packet stamp. Empty means the packet stamp is used verbatim.
type TimingOffsets [][]time.Duration

// BuildTimingOffsets computes a blocks × points offset table from the
// firing cycle and single firing durations of spec. Lasers fire in pairs, so
// adjacent point indices share an offset.
func BuildTimingOffsets(spec SensorSpec, blocks, points int) TimingOffsets {
	fullFiringCycle := spec.FiringSeqDuration * 1e-6
	singleFiring := spec.FiringDuration * 1e-6

	offsets := make(TimingOffsets, blocks)
	for i := range offsets {
		offsets[i] = make([]time.Duration, points)
		for j := range offsets[i] {
			ptIdx := j / 2
			secs := fullFiringCycle*float64(i) + singleFiring*float64(ptIdx)
			offsets[i][j] = time.Duration(secs * float64(time.Second))
		}
	}
	return offsets
}

// VLP32TimingOffsets is the 12 × 32 table for the VLP-32C.
func VLP32TimingOffsets() TimingOffsets {
	return BuildTimingOffsets(VLP32Spec, BLOCKS_PER_PACKET, VLP32Spec.LasersPerFiringSeq)
}

// at returns the offset for a slot, or zero when no table is present.
func (o TimingOffsets) at(block, seq int) time.Duration {
	if len(o) == 0 {
		return 0
	}
	return o[block][seq]
}
