package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/velodyne.report/internal/config"
	"github.com/banshee-data/velodyne.report/internal/lidar"
	"github.com/banshee-data/velodyne.report/internal/lidar/calibration"
	"github.com/banshee-data/velodyne.report/internal/lidar/network"
	"github.com/banshee-data/velodyne.report/internal/lidar/rawdata"
	"github.com/banshee-data/velodyne.report/internal/timeutil"
	"github.com/banshee-data/velodyne.report/internal/version"
)

var (
	configPath      = flag.String("config", "", "Path to a JSON decoder config (default: "+config.DefaultConfigPath+" if present)")
	calibrationPath = flag.String("calibration", "", "Velodyne YAML calibration file (default: embedded VLP-16 table)")
	deviceModel     = flag.String("model", "", "Device model: 64E, VLP16 or VLP32 (default: inferred from laser count)")
	pcapFile        = flag.String("pcap", "", "Decode a pcap/pcapng capture instead of listening on UDP")
	replaySpeed     = flag.Float64("replay-speed", 0, "Pace PCAP replay against capture time (1.0 = real time, 0 = as fast as possible)")
	countOnly       = flag.Bool("count", false, "Count sensor packets in the -pcap file and exit")
	udpAddress      = flag.String("udp-addr", "", "UDP bind address (default: all interfaces)")
	udpPort         = flag.Int("udp-port", network.DefaultUDPPort, "UDP port of sensor data packets")
	minRange        = flag.Float64("min-range", 0.9, "Discard returns closer than this many metres")
	maxRange        = flag.Float64("max-range", 130.0, "Discard returns farther than this many metres")
	viewDirection   = flag.Float64("view-direction", 0, "Centre of the output sector in radians, counter-clockwise from X")
	viewWidth       = flag.Float64("view-width", 6.283185307179586, "Width of the output sector in radians")
	strict          = flag.Bool("strict", false, "Reject HDL-64E blocks with unknown bank headers")
	csvPath         = flag.String("csv", "", "Write decoded points to this CSV file ('-' for stdout)")
	logInterval     = flag.Duration("log-interval", 5*time.Second, "Statistics logging interval")
	trace           = flag.Bool("trace", false, "Log per-packet decoder telemetry")
	summaryPoints   = flag.Int("summary-points", 200000, "Points kept per interval for the cloud summary")
	showVersion     = flag.Bool("version", false, "Print version information and exit")
)

// loadConfig reads the config file, if any, and applies the flags the user
// set explicitly on top of it.
func loadConfig() (*config.DecoderConfig, error) {
	cfg := config.EmptyDecoderConfig()

	path := *configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		}
	}
	if path != "" {
		loaded, err := config.LoadDecoderConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		log.Printf("Loaded decoder config from %s", path)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "calibration":
			cfg.Calibration = calibrationPath
		case "model":
			cfg.DeviceModel = deviceModel
		case "min-range":
			cfg.MinRange = minRange
		case "max-range":
			cfg.MaxRange = maxRange
		case "view-direction":
			cfg.ViewDirection = viewDirection
		case "view-width":
			cfg.ViewWidth = viewWidth
		case "strict":
			cfg.StrictBankHeaders = strict
		case "log-interval":
			s := logInterval.String()
			cfg.LogInterval = &s
		case "udp-addr", "udp-port":
			addr := net.JoinHostPort(*udpAddress, strconv.Itoa(*udpPort))
			cfg.UDPAddress = &addr
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadCalibration(path string) (*calibration.Calibration, error) {
	if path == "" {
		log.Print("No calibration file given, using the embedded VLP-16 table")
		return calibration.DefaultVLP16()
	}
	return calibration.Read(path)
}

// openCSV returns the CSV destination and a function that closes it.
func openCSV(path string) (io.Writer, func() error, error) {
	if path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CSV file: %w", err)
	}
	return f, f.Close, nil
}

// reportLoop logs a summary of the collected cloud every interval until ctx
// is done.
func reportLoop(ctx context.Context, clock timeutil.Clock, interval time.Duration, collector *lidar.CloudCollector) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			report(collector)
		}
	}
}

func report(collector *lidar.CloudCollector) {
	summary, overflow := collector.Flush()
	if summary.Points == 0 {
		return
	}
	p := summary.RingQuantiles(0, 0.5, 1)
	lidar.Opsf("Cloud: %s", summary)
	lidar.Diagf("Points per ring: min %.0f, median %.0f, max %.0f", p[0], p[1], p[2])
	lidar.Tracef("Ring counts: %v", summary.RingCounts)
	if overflow > 0 {
		lidar.Diagf("Summary sampled the first %s points, %s more not included",
			lidar.FormatWithCommas(int64(summary.Points)), lidar.FormatWithCommas(int64(overflow)))
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("velodyne-decode"))
		return
	}

	var traceWriter io.Writer
	if *trace {
		traceWriter = os.Stderr
	}
	lidar.SetLogWriters(lidar.LogWriters{Ops: os.Stderr, Diag: os.Stderr, Trace: traceWriter})

	if *countOnly {
		if *pcapFile == "" {
			log.Fatal("-count requires -pcap")
		}
		n, err := network.CountPCAPPackets(network.NewPCAPFileReader(), *pcapFile, *udpPort)
		if err != nil {
			log.Fatalf("Failed to count packets: %v", err)
		}
		fmt.Println(n)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		log.Fatalf("Decoder stopped: %v", err)
	}
	log.Print("Graceful shutdown complete")
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cal, err := loadCalibration(cfg.GetCalibration())
	if err != nil {
		return fmt.Errorf("failed to load calibration: %w", err)
	}

	decoder, err := rawdata.New(cal, rawdata.Config{
		DeviceModel:       cfg.GetDeviceModel(),
		MinRange:          cfg.GetMinRange(),
		MaxRange:          cfg.GetMaxRange(),
		ViewDirection:     cfg.GetViewDirection(),
		ViewWidth:         cfg.GetViewWidth(),
		StrictBankHeaders: cfg.GetStrictBankHeaders(),
		WarnInterval:      cfg.GetWarnInterval(),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	model := decoder.Model()
	log.Printf("Decoding %s (%s layout, %d lasers)", model.Name, model.Layout, model.Lasers)

	collector := lidar.NewCloudCollector(*summaryPoints)
	sinks := network.MultiSink{collector}

	if *csvPath != "" {
		w, closeCSV, err := openCSV(*csvPath)
		if err != nil {
			return err
		}
		csvWriter := lidar.NewCSVPointWriter(w)
		sinks = append(sinks, csvWriter)
		defer func() {
			if err := csvWriter.Flush(); err != nil {
				log.Printf("Failed to flush CSV output: %v", err)
			}
			if err := closeCSV(); err != nil {
				log.Printf("Failed to close CSV output: %v", err)
			}
			log.Printf("Wrote %s points to %s", lidar.FormatWithCommas(csvWriter.Rows()), *csvPath)
		}()
	}

	stats := lidar.NewPacketStats()
	handler := network.NewDecodeHandler(decoder, sinks, stats)

	var wg sync.WaitGroup
	reportCtx, stopReports := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reportLoop(reportCtx, timeutil.RealClock{}, cfg.GetLogInterval(), collector)
	}()
	defer func() {
		stopReports()
		wg.Wait()
		report(collector)
	}()

	if *pcapFile != "" {
		err := network.ReplayPCAPFile(ctx, network.NewPCAPFileReader(), *pcapFile, *udpPort, handler, stats,
			network.ReplayConfig{SpeedMultiplier: *replaySpeed})
		stats.LogStats()
		return err
	}

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:     cfg.GetUDPAddress(),
		RcvBuf:      cfg.GetRcvBuf(),
		LogInterval: cfg.GetLogInterval(),
		Handler:     handler,
		Stats:       stats,
	})
	return listener.Start(ctx)
}
