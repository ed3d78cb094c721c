package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/velodyne.report/internal/timeutil"
)

// DefaultUDPPort is the Velodyne data port.
const DefaultUDPPort = 2368

// readTimeout bounds each socket read so cancellation is noticed promptly.
const readTimeout = 100 * time.Millisecond

// UDPListener receives sensor datagrams and passes each one, stamped with
// its arrival time, to a PacketHandler.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	handler     PacketHandler
	stats       StatsRecorder
	sockets     UDPSocketFactory
	clock       timeutil.Clock

	mu   sync.Mutex
	conn UDPSocket
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration // defaults to one minute
	Handler     PacketHandler
	Stats       StatsRecorder    // optional
	Sockets     UDPSocketFactory // defaults to real sockets
	Clock       timeutil.Clock   // defaults to the real clock
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	logInterval := config.LogInterval
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	sockets := config.Sockets
	if sockets == nil {
		sockets = RealUDPSocketFactory{}
	}
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		handler:     config.Handler,
		stats:       statsOrNoop(config.Stats),
		sockets:     sockets,
		clock:       clock,
	}
}

// Start listens until ctx is cancelled or the socket fails. It returns
// ctx.Err() on cancellation.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.sockets.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	log.Printf("UDP listener started on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)

	go l.startStatsLogging(ctx)

	// 1206-byte data packets plus margin for the 512-byte position packets
	// some sensors send to the same port.
	buffer := make([]byte, 2048)

	for {
		if err := ctx.Err(); err != nil {
			log.Print("UDP listener stopping due to context cancellation")
			return err
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("UDP read error: %v", err)
			continue
		}

		if err := l.handler.HandlePacket(buffer[:n], l.clock.Now()); err != nil {
			log.Printf("Error handling packet from %v: %v", from, err)
		}
	}
}

// startStatsLogging logs statistics shortly after startup and then on
// every log interval.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-l.clock.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := l.clock.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			l.stats.LogStats()
		}
	}
}

// Close closes the socket, which ends Start.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
