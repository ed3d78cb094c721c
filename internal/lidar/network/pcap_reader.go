package network

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapngMagic is the block type of a pcapng section header.
const pcapngMagic = 0x0A0D0D0A

// PCAPPacket represents a single frame read from a capture file.
type PCAPPacket struct {
	Data      []byte
	Timestamp time.Time
}

// PCAPReader reads link-layer frames from a capture file.
// This abstraction enables unit testing without real capture files.
type PCAPReader interface {
	// Open opens a capture file for reading.
	Open(filename string) error

	// NextPacket returns the next frame, or io.EOF when the file is exhausted.
	NextPacket() (*PCAPPacket, error)

	// Close releases the file.
	Close()

	// LinkType returns the link type of the capture, as a layers.LinkType
	// value.
	LinkType() int
}

// PCAPFileReader reads classic pcap and pcapng files with the pure Go
// pcapgo readers, so no libpcap is needed.
type PCAPFileReader struct {
	file     *os.File
	source   gopacket.PacketDataSource
	linkType layers.LinkType
}

// NewPCAPFileReader returns an unopened reader.
func NewPCAPFileReader() *PCAPFileReader {
	return &PCAPFileReader{}
}

// Open opens filename and detects whether it is pcap or pcapng.
func (r *PCAPFileReader) Open(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", filename, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read PCAP header from %s: %w", filename, err)
	}

	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to parse pcapng file %s: %w", filename, err)
		}
		r.source, r.linkType = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to parse PCAP file %s: %w", filename, err)
		}
		r.source, r.linkType = pr, pr.LinkType()
	}

	r.file = f
	return nil
}

// NextPacket returns the next frame in the file.
func (r *PCAPFileReader) NextPacket() (*PCAPPacket, error) {
	if r.source == nil {
		return nil, errors.New("PCAP reader not open")
	}
	data, ci, err := r.source.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return &PCAPPacket{Data: data, Timestamp: ci.Timestamp}, nil
}

// Close closes the underlying file.
func (r *PCAPFileReader) Close() {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	r.source = nil
}

// LinkType returns the capture link type.
func (r *PCAPFileReader) LinkType() int {
	return int(r.linkType)
}

// MockPCAPReader implements PCAPReader for testing.
type MockPCAPReader struct {
	mu sync.Mutex

	// Packets holds the frames to return from NextPacket.
	Packets []PCAPPacket

	// ReadIndex tracks the current position in Packets.
	ReadIndex int

	// OpenError is returned by Open if set.
	OpenError error

	// ReadError is returned by NextPacket once Packets are exhausted, in
	// place of io.EOF.
	ReadError error

	// OpenedFile records the filename passed to Open.
	OpenedFile string

	// Closed indicates whether Close was called.
	Closed bool

	// MockLinkType is the link type to return.
	MockLinkType int
}

// NewMockPCAPReader creates a MockPCAPReader over Ethernet frames.
func NewMockPCAPReader(packets []PCAPPacket) *MockPCAPReader {
	return &MockPCAPReader{
		Packets:      packets,
		MockLinkType: int(layers.LinkTypeEthernet),
	}
}

// Open records the filename and returns any configured error.
func (m *MockPCAPReader) Open(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpenedFile = filename
	return m.OpenError
}

// NextPacket returns the next frame from the mock buffer.
func (m *MockPCAPReader) NextPacket() (*PCAPPacket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return nil, errors.New("reader closed")
	}
	if m.ReadIndex >= len(m.Packets) {
		if m.ReadError != nil {
			return nil, m.ReadError
		}
		return nil, io.EOF
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return &pkt, nil
}

// Close marks the reader as closed.
func (m *MockPCAPReader) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
}

// LinkType returns the mock link type.
func (m *MockPCAPReader) LinkType() int {
	return m.MockLinkType
}

// Reset rewinds the mock so the same frames can be read again.
func (m *MockPCAPReader) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadIndex = 0
	m.Closed = false
	m.OpenedFile = ""
}

// AddPacket appends a frame to the mock reader.
func (m *MockPCAPReader) AddPacket(data []byte, timestamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Packets = append(m.Packets, PCAPPacket{
		Data:      data,
		Timestamp: timestamp,
	})
}
