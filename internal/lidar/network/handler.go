package network

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/velodyne.report/internal/lidar/rawdata"
)

// StatsRecorder collects transport and decode counters.
// *lidar.PacketStats satisfies it.
type StatsRecorder interface {
	AddPacket(bytes int)
	AddRejected()
	AddDropped()
	AddPoints(count int)
	LogStats()
}

// noopStats is a StatsRecorder that does nothing, used when the caller
// supplies none.
type noopStats struct{}

func (noopStats) AddPacket(int) {}
func (noopStats) AddRejected()  {}
func (noopStats) AddDropped()   {}
func (noopStats) AddPoints(int) {}
func (noopStats) LogStats()     {}

func statsOrNoop(s StatsRecorder) StatsRecorder {
	if s == nil {
		return noopStats{}
	}
	return s
}

// PacketHandler consumes one sensor datagram. data is only valid for the
// duration of the call.
type PacketHandler interface {
	HandlePacket(data []byte, stamp time.Time) error
}

// PacketHandlerFunc adapts a function to PacketHandler.
type PacketHandlerFunc func(data []byte, stamp time.Time) error

// HandlePacket calls f.
func (f PacketHandlerFunc) HandlePacket(data []byte, stamp time.Time) error {
	return f(data, stamp)
}

// PointSink receives the points decoded from one packet. The slice is reused
// after WritePoints returns.
type PointSink interface {
	WritePoints(points []rawdata.Point, res rawdata.Result) error
}

// MultiSink fans points out to several sinks in order, stopping at the
// first error.
type MultiSink []PointSink

// WritePoints writes to every sink.
func (m MultiSink) WritePoints(points []rawdata.Point, res rawdata.Result) error {
	for _, s := range m {
		if err := s.WritePoints(points, res); err != nil {
			return err
		}
	}
	return nil
}

// DecodeHandler runs each packet through a Decoder and passes the result on
// to a PointSink. It reuses one point buffer, so calls must not overlap.
type DecodeHandler struct {
	decoder *rawdata.Decoder
	sink    PointSink
	stats   StatsRecorder
	cloud   *rawdata.PointCloud
}

// NewDecodeHandler builds a handler. sink and stats may be nil.
func NewDecodeHandler(decoder *rawdata.Decoder, sink PointSink, stats StatsRecorder) *DecodeHandler {
	return &DecodeHandler{
		decoder: decoder,
		sink:    sink,
		stats:   statsOrNoop(stats),
		cloud:   rawdata.NewPointCloud(rawdata.BLOCKS_PER_PACKET * rawdata.SCANS_PER_BLOCK),
	}
}

// HandlePacket decodes data. Packets the decoder rejects are counted, and any
// points decoded before the bad block are still delivered; the rejection
// itself is already logged by the decoder, so it is not returned here. Only
// sink failures are returned.
func (h *DecodeHandler) HandlePacket(data []byte, stamp time.Time) error {
	h.stats.AddPacket(len(data))
	h.cloud.Reset()

	res, err := h.decoder.Unpack(rawdata.Packet{Data: data, Stamp: stamp}, h.cloud)
	if err != nil {
		h.stats.AddRejected()
		if !errors.Is(err, rawdata.ErrInvalidBlockHeader) && !errors.Is(err, rawdata.ErrShortPacket) {
			return fmt.Errorf("decode failed: %w", err)
		}
	}
	h.stats.AddPoints(res.Points)

	if h.sink == nil || len(h.cloud.Points) == 0 {
		return nil
	}
	if err := h.sink.WritePoints(h.cloud.Points, res); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}
	return nil
}
