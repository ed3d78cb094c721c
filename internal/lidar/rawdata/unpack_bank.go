package rawdata

// unpackDualBank decodes the HDL-64E layout. Every return in a block shares
// the block rotation and the packet stamp.
func (d *Decoder) unpackDualBank(pkt Packet, gate *Gate, out PointAppender) (Result, error) {
	var res Result
	resolution := d.model.DistanceResolution()

	for i := 0; i < BLOCKS_PER_PACKET; i++ {
		blk := pkt.block(i)

		// upper bank lasers are numbered [0..31], lower bank [32..63]
		bankOrigin := 0
		switch header := blk.header(); header {
		case LOWER_BANK:
			bankOrigin = SCANS_PER_BLOCK
		case UPPER_BANK:
		default:
			if d.strictBank {
				err := &BlockHeaderError{Block: i, Header: header}
				d.warnBadBlock(err)
				return res, err
			}
		}

		// Values past a full turn cannot index the angle table.
		rot := int(blk.rotation())
		if rot > ROTATION_MAX_UNITS || !gate.AzimuthInRange(rot) {
			continue
		}

		for j := 0; j < SCANS_PER_BLOCK; j++ {
			rawDistance, rawIntensity := blk.scan(j)
			corr := &d.corrections[j+bankOrigin]

			p, distance := d.computePoint(corr, rot, rawDistance, rawIntensity, resolution)
			if emit(out, gate, p, distance, pkt.Stamp) {
				res.Points++
			}
		}
	}

	return res, nil
}
