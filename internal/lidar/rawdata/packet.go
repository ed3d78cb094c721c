package rawdata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

/*
Velodyne Raw Packet Decoder

Velodyne HDL-64E, VLP-16 and VLP-32C sensors send 1206-byte UDP payloads on port
2368. Every payload has the same outer shape; what differs between models is
how the 32 returns inside a block map onto lasers and firing times.

PACKET STRUCTURE (1206 bytes total):
├── Data Blocks (1200 bytes) - 12 blocks × 100 bytes each, starting at offset 0
│   └── Each block: 2-byte header + 2-byte rotation + 32 returns × 3 bytes (distance + intensity)
└── Status (6 bytes) - 4-byte GPS timestamp + 2 factory bytes [NOT PARSED]

BLOCK HEADER:
- 0xFFEE on the wire (0xEEFF little-endian): upper bank, lasers 0-31 (HDL-64E) or
  the only valid header for VLP-16/VLP-32C
- 0xFFDD on the wire (0xDDFF little-endian): lower bank, lasers 32-63 (HDL-64E only)

ROTATION:
- Hundredths of a degree, 0-35999, measured clockwise looking down on the sensor.

DECODE LAYOUTS:
1. Dual bank (HDL-64E): a block carries 32 lasers of one bank, all sharing the
   block rotation, stamped with the packet time.
2. Firing sequence (VLP-16, VLP-32C): a block carries one or two firing sequences.
   Each laser's azimuth is interpolated between this block's rotation and the next,
   and VLP-32C points get a per-block timing offset.

All fields are read with explicit little-endian offset extraction; the packet is
never reinterpreted as a struct.
*/

// Velodyne packet structure constants
const (
	PACKET_SIZE       = 1206                                                // Full UDP payload size in bytes
	BLOCKS_PER_PACKET = 12                                                  // Data blocks per packet
	SCANS_PER_BLOCK   = 32                                                  // Laser returns per block
	RAW_SCAN_SIZE     = 3                                                   // Return size: 2 bytes distance + 1 byte intensity
	BLOCK_HEADER_SIZE = 2                                                   // Bank/layout tag
	ROTATION_SIZE     = 2                                                   // Rotation field size (little-endian)
	BLOCK_DATA_SIZE   = SCANS_PER_BLOCK * RAW_SCAN_SIZE                     // 96 bytes of returns per block
	BLOCK_SIZE        = BLOCK_HEADER_SIZE + ROTATION_SIZE + BLOCK_DATA_SIZE // 100 bytes
	BLOCKS_DATA_SIZE  = BLOCKS_PER_PACKET * BLOCK_SIZE                      // 1200 bytes read by the decoders

	UPPER_BANK uint16 = 0xeeff // Header of upper bank (and every VLP) block
	LOWER_BANK uint16 = 0xddff // Header of HDL-64E lower bank block

	// Physical measurement conversion constants
	ROTATION_RESOLUTION = 0.01  // Rotation unit: 0.01 degrees per LSB
	ROTATION_MAX_UNITS  = 36000 // Rotation value representing 360.00 degrees
	DISTANCE_RESOLUTION = 0.002 // HDL-64E distance unit: 2mm per LSB
)

// ErrShortPacket is returned when a packet cannot hold all data blocks.
var ErrShortPacket = errors.New("packet too short")

// ErrInvalidBlockHeader classifies packets rejected because a block carries an
// unexpected header.
var ErrInvalidBlockHeader = errors.New("invalid block header")

// BlockHeaderError reports the block that stopped decoding of a packet.
type BlockHeaderError struct {
	Block  int
	Header uint16
}

func (e *BlockHeaderError) Error() string {
	return fmt.Sprintf("block %d header value is 0x%04x", e.Block, e.Header)
}

// Unwrap lets errors.Is match ErrInvalidBlockHeader.
func (e *BlockHeaderError) Unwrap() error {
	return ErrInvalidBlockHeader
}

// Packet is one raw sensor payload and the time it was captured.
type Packet struct {
	Data  []byte
	Stamp time.Time
}

// validate checks that every block offset the decoders touch is in bounds.
func (p Packet) validate() error {
	if len(p.Data) < BLOCKS_DATA_SIZE {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrShortPacket, BLOCKS_DATA_SIZE, len(p.Data))
	}
	return nil
}

// block returns the byte view of one data block. Callers must validate first.
func (p Packet) block(i int) rawBlock {
	off := i * BLOCK_SIZE
	return rawBlock(p.Data[off : off+BLOCK_SIZE])
}

// rawBlock is a BLOCK_SIZE byte slice with accessors for its fields.
type rawBlock []byte

func (b rawBlock) header() uint16 {
	return binary.LittleEndian.Uint16(b[0:2])
}

func (b rawBlock) rotation() uint16 {
	return binary.LittleEndian.Uint16(b[2:4])
}

// scan returns the raw distance and intensity of the k-th return in the block.
func (b rawBlock) scan(k int) (distance uint16, intensity uint8) {
	off := BLOCK_HEADER_SIZE + ROTATION_SIZE + k*RAW_SCAN_SIZE
	return binary.LittleEndian.Uint16(b[off : off+2]), b[off+2]
}
