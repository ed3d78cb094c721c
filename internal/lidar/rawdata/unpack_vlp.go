package rawdata

// unpackFiringSequence decodes the VLP-16 / VLP-32C layout. Each laser's
// azimuth is interpolated between this block's rotation and the next one
// according to when it fired within the block.
func (d *Decoder) unpackFiringSequence(pkt Packet, gate *Gate, out PointAppender) (Result, error) {
	spec := d.model.Spec
	res := Result{HasSliceAngle: true}
	var lastAzimuthDiff float64

	for block := 0; block < BLOCKS_PER_PACKET; block++ {
		blk := pkt.block(block)

		// ignore packets with mangled or otherwise different contents
		if header := blk.header(); header != UPPER_BANK {
			err := &BlockHeaderError{Block: block, Header: header}
			d.warnBadBlock(err)
			return Result{Points: res.Points}, err
		}

		rotation := int(blk.rotation())
		azimuth := float64(rotation)

		var azimuthDiff float64
		if block < BLOCKS_PER_PACKET-1 {
			next := int(pkt.block(block + 1).rotation())
			azimuthDiff = float64(wrapRotation(next - rotation))
			res.SliceAngle += azimuthDiff
			lastAzimuthDiff = azimuthDiff
		} else {
			azimuthDiff = lastAzimuthDiff
		}

		k := 0
		for seq := 0; seq < spec.FiringSeqsPerBlock; seq++ {
			seqOffset := float64(seq) * spec.FiringSeqDuration
			stamp := pkt.Stamp.Add(d.timing.at(block, seq))

			for laser := 0; laser < spec.LasersPerFiringSeq; laser, k = laser+1, k+1 {
				rawDistance, rawIntensity := blk.scan(k)

				firingOffset := float64(laser/spec.LasersPerFiring) * spec.FiringDuration
				rot := roundRotation(azimuth + azimuthDiff*(firingOffset+seqOffset)/spec.BlockDuration)
				if !gate.AzimuthInRange(rot) {
					continue
				}

				p, distance := d.computePoint(&d.corrections[laser], rot, rawDistance, rawIntensity, spec.DistanceResolution)
				if emit(out, gate, p, distance, stamp) {
					res.Points++
				}
			}
		}
	}

	tracef("Firing-sequence packet: %d points, slice angle %.0f", res.Points, res.SliceAngle)
	return res, nil
}

// wrapRotation maps a rotation difference into [0, ROTATION_MAX_UNITS).
func wrapRotation(diff int) int {
	return ((diff % ROTATION_MAX_UNITS) + ROTATION_MAX_UNITS) % ROTATION_MAX_UNITS
}
