package network

import (
	"encoding/binary"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.report/internal/lidar/rawdata"
)

func newVLP16Decoder(t *testing.T) *rawdata.Decoder {
	t.Helper()
	cal, err := calibration.DefaultVLP16()
	require.NoError(t, err)
	d, err := rawdata.New(cal, rawdata.Config{
		DeviceModel: rawdata.ModelVLP16,
		MinRange:    0.9,
		MaxRange:    130,
		ViewWidth:   2 * math.Pi,
	})
	require.NoError(t, err)
	return d
}

// sensorPacket builds a VLP-16 data packet with blocks 40 units apart and
// every return at 10 m.
func sensorPacket(start int) []byte {
	data := make([]byte, rawdata.PACKET_SIZE)
	for b := 0; b < rawdata.BLOCKS_PER_PACKET; b++ {
		off := b * rawdata.BLOCK_SIZE
		binary.LittleEndian.PutUint16(data[off:], rawdata.UPPER_BANK)
		binary.LittleEndian.PutUint16(data[off+2:], uint16((start+40*b)%rawdata.ROTATION_MAX_UNITS))
		for k := 0; k < rawdata.SCANS_PER_BLOCK; k++ {
			r := off + rawdata.BLOCK_HEADER_SIZE + rawdata.ROTATION_SIZE + k*rawdata.RAW_SCAN_SIZE
			binary.LittleEndian.PutUint16(data[r:], 5000)
			data[r+2] = 40
		}
	}
	return data
}

// udpFrame wraps payload in Ethernet/IPv4/UDP headers.
func udpFrame(t *testing.T, payload []byte, srcPort, dstPort int) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x60, 0x76, 0x88, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 201),
		DstIP:    net.IPv4(255, 255, 255, 255),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

// tcpFrame wraps payload in Ethernet/IPv4/TCP headers.
func tcpFrame(t *testing.T, payload []byte, port int) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x60, 0x76, 0x88, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(192, 168, 1, 201),
		DstIP:    net.IPv4(192, 168, 1, 10),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(port), DstPort: layers.TCPPort(port), Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, gopacket.Payload(payload)))
	return buf.Bytes()
}

// fakeStats records StatsRecorder calls.
type fakeStats struct {
	mu       sync.Mutex
	packets  int
	bytes    int
	rejected int
	dropped  int
	points   int
	logs     int
}

func (s *fakeStats) AddPacket(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets++
	s.bytes += n
}

func (s *fakeStats) AddRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected++
}

func (s *fakeStats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

func (s *fakeStats) AddPoints(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points += n
}

func (s *fakeStats) LogStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs++
}

func (s *fakeStats) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logs
}

// recordingHandler keeps a copy of every packet it is handed.
type recordingHandler struct {
	mu      sync.Mutex
	packets [][]byte
	stamps  []time.Time
	err     error
}

func (h *recordingHandler) HandlePacket(data []byte, stamp time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, append([]byte(nil), data...))
	h.stamps = append(h.stamps, stamp)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.packets)
}

// recordingSink keeps a copy of every batch of points.
type recordingSink struct {
	batches [][]rawdata.Point
	results []rawdata.Result
	err     error
}

func (s *recordingSink) WritePoints(points []rawdata.Point, res rawdata.Result) error {
	s.batches = append(s.batches, append([]rawdata.Point(nil), points...))
	s.results = append(s.results, res)
	return s.err
}
