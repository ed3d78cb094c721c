package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/banshee-data/velodyne.report/internal/timeutil"
)

// UDPPayload decodes a link-layer frame and returns its UDP payload when
// either UDP port equals udpPort. udpPort 0 accepts any port.
func UDPPayload(frame []byte, linkType int, udpPort int) ([]byte, bool) {
	packet := gopacket.NewPacket(frame, layers.LinkType(linkType), gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		return nil, false
	}
	if udpPort > 0 && int(udp.DstPort) != udpPort && int(udp.SrcPort) != udpPort {
		return nil, false
	}
	if len(udp.Payload) == 0 {
		return nil, false
	}
	return udp.Payload, true
}

// ReplayConfig controls how a capture is paced.
type ReplayConfig struct {
	// SpeedMultiplier paces delivery against capture timestamps (1.0 =
	// real time, 2.0 = twice as fast). Zero or less replays as fast as the
	// handler allows.
	SpeedMultiplier float64

	// Clock drives pacing and progress timing. Defaults to the real clock.
	Clock timeutil.Clock

	// ProgressEvery logs progress every this many sensor packets.
	// Defaults to 10000.
	ProgressEvery int
}

// ReadPCAPFile feeds every matching UDP payload in path to handler as fast
// as possible, stamped with its capture time.
func ReadPCAPFile(ctx context.Context, reader PCAPReader, path string, udpPort int, handler PacketHandler, stats StatsRecorder) error {
	return ReplayPCAPFile(ctx, reader, path, udpPort, handler, stats, ReplayConfig{})
}

// ReplayPCAPFile is ReadPCAPFile with pacing. Frames that are not UDP on
// udpPort are counted as dropped. A handler error stops the replay.
func ReplayPCAPFile(ctx context.Context, reader PCAPReader, path string, udpPort int, handler PacketHandler, stats StatsRecorder, cfg ReplayConfig) error {
	stats = statsOrNoop(stats)
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	progressEvery := cfg.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 10000
	}

	if err := reader.Open(path); err != nil {
		return err
	}
	defer reader.Close()

	linkType := reader.LinkType()
	if cfg.SpeedMultiplier > 0 {
		log.Printf("PCAP replay of %s on UDP port %d (speed: %.1fx)", path, udpPort, cfg.SpeedMultiplier)
	} else {
		log.Printf("PCAP read of %s on UDP port %d", path, udpPort)
	}

	var frameCount, packetCount int
	var lastCapture time.Time
	startTime := clock.Now()

	for {
		if err := ctx.Err(); err != nil {
			log.Printf("PCAP reader stopping due to context cancellation (processed %d packets)", packetCount)
			return err
		}

		pkt, err := reader.NextPacket()
		if errors.Is(err, io.EOF) {
			log.Printf("PCAP file reading complete: %d packets from %d frames in %v",
				packetCount, frameCount, clock.Since(startTime))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read frame %d of %s: %w", frameCount+1, path, err)
		}
		frameCount++

		if cfg.SpeedMultiplier > 0 {
			if !lastCapture.IsZero() {
				delay := time.Duration(float64(pkt.Timestamp.Sub(lastCapture)) / cfg.SpeedMultiplier)
				if delay > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-clock.After(delay):
					}
				}
			}
			lastCapture = pkt.Timestamp
		}

		payload, ok := UDPPayload(pkt.Data, linkType, udpPort)
		if !ok {
			stats.AddDropped()
			continue
		}
		packetCount++

		if err := handler.HandlePacket(payload, pkt.Timestamp); err != nil {
			return fmt.Errorf("packet %d: %w", packetCount, err)
		}

		if packetCount%progressEvery == 0 {
			elapsed := clock.Since(startTime)
			log.Printf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
				packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
		}
	}
}

// CountPCAPPackets counts the UDP payloads on udpPort in path.
func CountPCAPPackets(reader PCAPReader, path string, udpPort int) (uint64, error) {
	if err := reader.Open(path); err != nil {
		return 0, err
	}
	defer reader.Close()

	linkType := reader.LinkType()
	var count uint64
	for {
		pkt, err := reader.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to count packets in %s: %w", path, err)
		}
		if _, ok := UDPPayload(pkt.Data, linkType, udpPort); ok {
			count++
		}
	}

	log.Printf("PCAP packet count: %d packets on UDP port %d in %s", count, udpPort, path)
	return count, nil
}
