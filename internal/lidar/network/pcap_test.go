package network

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/velodyne.report/internal/lidar/rawdata"
)

var captureStart = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func TestUDPPayload(t *testing.T) {
	payload := []byte("velodyne")

	tests := []struct {
		name   string
		frame  []byte
		port   int
		wantOK bool
	}{
		{"destination port", udpFrame(t, payload, 40000, 2368), 2368, true},
		{"source port", udpFrame(t, payload, 2368, 40000), 2368, true},
		{"other port", udpFrame(t, payload, 8308, 8308), 2368, false},
		{"any port", udpFrame(t, payload, 8308, 8308), 0, true},
		{"tcp", tcpFrame(t, payload, 2368), 2368, false},
		{"empty udp", udpFrame(t, nil, 2368, 2368), 2368, false},
		{"garbage", []byte{0x01, 0x02, 0x03}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := UDPPayload(tt.frame, int(layers.LinkTypeEthernet), tt.port)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, payload, got)
			}
		})
	}
}

func mockCapture(t *testing.T) *MockPCAPReader {
	t.Helper()
	reader := NewMockPCAPReader(nil)
	reader.AddPacket(udpFrame(t, sensorPacket(0), 2368, 2368), captureStart)
	reader.AddPacket(udpFrame(t, []byte("gps"), 8308, 8308), captureStart.Add(time.Millisecond))
	reader.AddPacket(udpFrame(t, sensorPacket(480), 2368, 2368), captureStart.Add(1327*time.Microsecond))
	reader.AddPacket(tcpFrame(t, []byte("ssh"), 22), captureStart.Add(2*time.Millisecond))
	reader.AddPacket(udpFrame(t, sensorPacket(960), 2368, 2368), captureStart.Add(2654*time.Microsecond))
	return reader
}

func TestReadPCAPFile_Mock(t *testing.T) {
	reader := mockCapture(t)
	handler := &recordingHandler{}
	stats := &fakeStats{}

	err := ReadPCAPFile(context.Background(), reader, "capture.pcap", DefaultUDPPort, handler, stats)
	require.NoError(t, err)

	assert.Equal(t, "capture.pcap", reader.OpenedFile)
	assert.True(t, reader.Closed)
	assert.Equal(t, 2, stats.dropped)

	require.Equal(t, 3, handler.count())
	assert.Equal(t, sensorPacket(480), handler.packets[1])
	assert.Equal(t, []time.Time{
		captureStart,
		captureStart.Add(1327 * time.Microsecond),
		captureStart.Add(2654 * time.Microsecond),
	}, handler.stamps)
}

func TestReadPCAPFile_WithDecoder(t *testing.T) {
	stats := &fakeStats{}
	sink := &recordingSink{}
	h := NewDecodeHandler(newVLP16Decoder(t), sink, stats)

	require.NoError(t, ReadPCAPFile(context.Background(), mockCapture(t), "capture.pcap", DefaultUDPPort, h, stats))

	assert.Equal(t, 3, stats.packets)
	assert.Equal(t, 3*384, stats.points)
	require.Len(t, sink.batches, 3)
	assert.True(t, sink.batches[2][0].Time().Equal(captureStart.Add(2654*time.Microsecond)))
}

func TestReadPCAPFile_OpenError(t *testing.T) {
	reader := NewMockPCAPReader(nil)
	reader.OpenError = errors.New("file not found")

	err := ReadPCAPFile(context.Background(), reader, "missing.pcap", DefaultUDPPort, &recordingHandler{}, nil)
	assert.EqualError(t, err, "file not found")
}

func TestReadPCAPFile_ReadError(t *testing.T) {
	reader := mockCapture(t)
	reader.ReadError = errors.New("unexpected EOF in record")

	err := ReadPCAPFile(context.Background(), reader, "truncated.pcap", DefaultUDPPort, &recordingHandler{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 6 of truncated.pcap")
	assert.True(t, reader.Closed)
}

func TestReadPCAPFile_HandlerErrorStops(t *testing.T) {
	handler := &recordingHandler{err: errors.New("sink closed")}

	err := ReadPCAPFile(context.Background(), mockCapture(t), "capture.pcap", DefaultUDPPort, handler, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink closed")
	assert.Equal(t, 1, handler.count())
}

func TestReadPCAPFile_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	handler := &recordingHandler{}
	err := ReadPCAPFile(ctx, mockCapture(t), "capture.pcap", DefaultUDPPort, handler, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, handler.count())
}

func TestReplayPCAPFile_Paced(t *testing.T) {
	handler := &recordingHandler{}
	cfg := ReplayConfig{SpeedMultiplier: 1000, ProgressEvery: 1}

	start := time.Now()
	require.NoError(t, ReplayPCAPFile(context.Background(), mockCapture(t), "capture.pcap", DefaultUDPPort, handler, nil, cfg))
	assert.Equal(t, 3, handler.count())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCountPCAPPackets(t *testing.T) {
	n, err := CountPCAPPackets(mockCapture(t), "capture.pcap", DefaultUDPPort)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	n, err = CountPCAPPackets(mockCapture(t), "capture.pcap", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}

func writePCAP(t *testing.T, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     captureStart.Add(time.Duration(i) * 1327 * time.Microsecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func writePCAPNG(t *testing.T, frames [][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.pcapng")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     captureStart.Add(time.Duration(i) * 1327 * time.Microsecond),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	require.NoError(t, w.Flush())
	return path
}

func TestPCAPFileReader_Formats(t *testing.T) {
	frames := [][]byte{
		udpFrame(t, sensorPacket(0), 2368, 2368),
		udpFrame(t, []byte("gps"), 8308, 8308),
		udpFrame(t, sensorPacket(960), 2368, 2368),
	}

	for name, path := range map[string]string{
		"pcap":   writePCAP(t, frames),
		"pcapng": writePCAPNG(t, frames),
	} {
		t.Run(name, func(t *testing.T) {
			reader := NewPCAPFileReader()
			handler := &recordingHandler{}
			stats := &fakeStats{}

			require.NoError(t, ReadPCAPFile(context.Background(), reader, path, DefaultUDPPort, handler, stats))
			assert.Equal(t, int(layers.LinkTypeEthernet), reader.LinkType())
			assert.Equal(t, 1, stats.dropped)
			require.Equal(t, 2, handler.count())
			assert.Len(t, handler.packets[0], rawdata.PACKET_SIZE)
			assert.True(t, handler.stamps[1].Equal(captureStart.Add(2*1327*time.Microsecond)))
		})
	}
}

func TestPCAPFileReader_Errors(t *testing.T) {
	reader := NewPCAPFileReader()

	err := reader.Open(filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)

	notPCAP := filepath.Join(t.TempDir(), "notes.pcap")
	require.NoError(t, os.WriteFile(notPCAP, []byte("this is not a capture file"), 0644))
	assert.Error(t, reader.Open(notPCAP))

	_, err = reader.NextPacket()
	assert.Error(t, err, "unopened reader")
	reader.Close()
}

func TestMockPCAPReader(t *testing.T) {
	reader := NewMockPCAPReader([]PCAPPacket{{Data: []byte("a"), Timestamp: captureStart}})
	require.NoError(t, reader.Open("x.pcap"))

	pkt, err := reader.NextPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), pkt.Data)

	_, err = reader.NextPacket()
	assert.ErrorIs(t, err, io.EOF)

	reader.Reset()
	pkt, err = reader.NextPacket()
	require.NoError(t, err)
	assert.Equal(t, captureStart, pkt.Timestamp)

	reader.Close()
	_, err = reader.NextPacket()
	assert.Error(t, err)
}
