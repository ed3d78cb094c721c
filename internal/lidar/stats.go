package lidar

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/velodyne.report/internal/timeutil"
)

// StatsSnapshot is one reporting window of PacketStats.
type StatsSnapshot struct {
	Packets  int64 // datagrams or pcap frames handed to the decoder
	Bytes    int64
	Rejected int64 // packets the decoder refused (short or malformed block)
	Dropped  int64 // frames that never reached the decoder
	Points   int64
	Duration time.Duration
}

// PerSecond returns packets, megabytes and points per second over the window.
func (s StatsSnapshot) PerSecond() (packets, mb, points float64) {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return 0, 0, 0
	}
	return float64(s.Packets) / secs, float64(s.Bytes) / secs / (1024 * 1024), float64(s.Points) / secs
}

// PacketStats tracks decode statistics with thread-safe operations
type PacketStats struct {
	mu            sync.Mutex
	clock         timeutil.Clock
	packetCount   int64
	byteCount     int64
	rejectedCount int64
	droppedCount  int64
	pointCount    int64
	lastReset     time.Time
}

// NewPacketStats creates a new PacketStats instance on the real clock
func NewPacketStats() *PacketStats {
	return NewPacketStatsWithClock(timeutil.RealClock{})
}

// NewPacketStatsWithClock creates a PacketStats whose windows are measured on clock.
func NewPacketStatsWithClock(clock timeutil.Clock) *PacketStats {
	return &PacketStats{
		clock:     clock,
		lastReset: clock.Now(),
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddRejected counts a packet the decoder refused.
func (ps *PacketStats) AddRejected() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rejectedCount++
}

// AddDropped counts a frame that was not a sensor datagram.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddPoints increments decoded point count
func (ps *PacketStats) AddPoints(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pointCount += int64(count)
}

// GetAndReset returns the current window and starts a new one
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.clock.Now()
	snap := StatsSnapshot{
		Packets:  ps.packetCount,
		Bytes:    ps.byteCount,
		Rejected: ps.rejectedCount,
		Dropped:  ps.droppedCount,
		Points:   ps.pointCount,
		Duration: now.Sub(ps.lastReset),
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.rejectedCount = 0
	ps.droppedCount = 0
	ps.pointCount = 0
	ps.lastReset = now

	return snap
}

// FormatStats renders a snapshot as a single log line. It returns "" for an
// idle window.
func FormatStats(s StatsSnapshot) string {
	if s.Packets == 0 && s.Dropped == 0 {
		return ""
	}
	packetsPerSec, mbPerSec, pointsPerSec := s.PerSecond()

	msg := fmt.Sprintf("Lidar stats (/sec): %.2f MB, %.1f packets, %s points",
		mbPerSec, packetsPerSec, FormatWithCommas(int64(pointsPerSec)))
	if s.Rejected > 0 {
		msg += fmt.Sprintf(", %d rejected", s.Rejected)
	}
	if s.Dropped > 0 {
		msg += fmt.Sprintf(", %d non-sensor frames dropped", s.Dropped)
	}
	return msg
}

// LogStats logs and resets the current window
func (ps *PacketStats) LogStats() {
	if msg := FormatStats(ps.GetAndReset()); msg != "" {
		log.Print(msg)
	}
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	if n < 0 {
		return "-" + FormatWithCommas(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
