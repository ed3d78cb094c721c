package lidar

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/banshee-data/velodyne.report/internal/lidar/rawdata"
)

// csvHeader names the columns written by CSVPointWriter.
var csvHeader = []string{"x", "y", "z", "intensity", "ring", "time_sec", "time_nsec"}

// CSVPointWriter streams decoded points as CSV rows. It is safe for
// concurrent use.
type CSVPointWriter struct {
	mu          sync.Mutex
	w           *csv.Writer
	wroteHeader bool
	rows        int64
	row         []string
}

// NewCSVPointWriter writes to w. The header is written with the first batch.
func NewCSVPointWriter(w io.Writer) *CSVPointWriter {
	return &CSVPointWriter{
		w:   csv.NewWriter(w),
		row: make([]string, len(csvHeader)),
	}
}

// WritePoints appends one row per point.
func (cw *CSVPointWriter) WritePoints(points []rawdata.Point, _ rawdata.Result) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.wroteHeader {
		if err := cw.w.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		cw.wroteHeader = true
	}

	for _, p := range points {
		cw.row[0] = strconv.FormatFloat(p.X, 'f', 4, 64)
		cw.row[1] = strconv.FormatFloat(p.Y, 'f', 4, 64)
		cw.row[2] = strconv.FormatFloat(p.Z, 'f', 4, 64)
		cw.row[3] = strconv.FormatFloat(p.Intensity, 'f', 1, 64)
		cw.row[4] = strconv.Itoa(int(p.Ring))
		cw.row[5] = strconv.FormatUint(uint64(p.TimeSec), 10)
		cw.row[6] = strconv.FormatUint(uint64(p.TimeNsec), 10)
		if err := cw.w.Write(cw.row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
		cw.rows++
	}
	return cw.w.Error()
}

// Flush writes any buffered rows to the underlying writer.
func (cw *CSVPointWriter) Flush() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.w.Flush()
	return cw.w.Error()
}

// Rows returns the number of points written so far.
func (cw *CSVPointWriter) Rows() int64 {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.rows
}
