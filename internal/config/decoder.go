package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is where the CLI looks for a decoder config when no
// -config flag is given.
const DefaultConfigPath = "config/decoder.defaults.json"

// Known device_model values. An empty model lets the laser count decide.
var knownDeviceModels = map[string]bool{
	"":      true,
	"64E":   true,
	"VLP16": true,
	"VLP32": true,
}

// DecoderConfig is the runtime configuration for the packet decoder and
// its transport. Every field is optional; the Get* methods supply defaults
// for absent fields, so partial configs are safe.
type DecoderConfig struct {
	// Sensor
	Calibration *string `json:"calibration,omitempty"`  // path to a YAML calibration file
	DeviceModel *string `json:"device_model,omitempty"` // "64E", "VLP16" or "VLP32"

	// Gate
	MinRange      *float64 `json:"min_range,omitempty"`      // metres
	MaxRange      *float64 `json:"max_range,omitempty"`      // metres
	ViewDirection *float64 `json:"view_direction,omitempty"` // radians
	ViewWidth     *float64 `json:"view_width,omitempty"`     // radians

	// Validation
	StrictBankHeaders *bool   `json:"strict_bank_headers,omitempty"`
	WarnInterval      *string `json:"warn_interval,omitempty"` // duration string like "60s"

	// Transport
	UDPAddress  *string `json:"udp_address,omitempty"`
	RcvBuf      *int    `json:"rcv_buf,omitempty"`      // bytes
	LogInterval *string `json:"log_interval,omitempty"` // duration string like "5s"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyDecoderConfig returns a DecoderConfig with all fields set to nil.
func EmptyDecoderConfig() *DecoderConfig {
	return &DecoderConfig{}
}

// DefaultDecoderConfig returns a DecoderConfig with every field populated
// with its default value.
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		Calibration:       ptrString(""),
		DeviceModel:       ptrString(""),
		MinRange:          ptrFloat64(0.9),
		MaxRange:          ptrFloat64(130.0),
		ViewDirection:     ptrFloat64(0),
		ViewWidth:         ptrFloat64(2 * math.Pi),
		StrictBankHeaders: ptrBool(false),
		WarnInterval:      ptrString("60s"),
		UDPAddress:        ptrString(":2368"),
		RcvBuf:            ptrInt(4 << 20),
		LogInterval:       ptrString("5s"),
	}
}

// LoadDecoderConfig loads a DecoderConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadDecoderConfig(path string) (*DecoderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDecoderConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// A relative calibration path is relative to the config file.
	if cfg.Calibration != nil && *cfg.Calibration != "" && !filepath.IsAbs(*cfg.Calibration) {
		cfg.Calibration = ptrString(filepath.Join(filepath.Dir(cleanPath), *cfg.Calibration))
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *DecoderConfig) Validate() error {
	if c.DeviceModel != nil && !knownDeviceModels[*c.DeviceModel] {
		return fmt.Errorf("unknown device_model %q (want 64E, VLP16 or VLP32)", *c.DeviceModel)
	}

	minRange, maxRange := c.GetMinRange(), c.GetMaxRange()
	if math.IsNaN(minRange) || math.IsInf(minRange, 0) {
		return fmt.Errorf("min_range must be finite, got %f", minRange)
	}
	if math.IsNaN(maxRange) || math.IsInf(maxRange, 0) {
		return fmt.Errorf("max_range must be finite, got %f", maxRange)
	}
	if minRange < 0 {
		return fmt.Errorf("min_range must be non-negative, got %f", minRange)
	}
	if maxRange < minRange {
		return fmt.Errorf("max_range (%f) must not be below min_range (%f)", maxRange, minRange)
	}

	if c.ViewWidth != nil {
		if *c.ViewWidth < 0 || *c.ViewWidth > 2*math.Pi {
			return fmt.Errorf("view_width must be between 0 and 2π, got %f", *c.ViewWidth)
		}
	}
	if c.ViewDirection != nil && (math.IsNaN(*c.ViewDirection) || math.IsInf(*c.ViewDirection, 0)) {
		return fmt.Errorf("view_direction must be finite, got %f", *c.ViewDirection)
	}

	if c.WarnInterval != nil && *c.WarnInterval != "" {
		d, err := time.ParseDuration(*c.WarnInterval)
		if err != nil {
			return fmt.Errorf("invalid warn_interval '%s': %w", *c.WarnInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("warn_interval must be positive, got %s", d)
		}
	}

	if c.LogInterval != nil && *c.LogInterval != "" {
		d, err := time.ParseDuration(*c.LogInterval)
		if err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("log_interval must be positive, got %s", d)
		}
	}

	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcv_buf must be non-negative, got %d", *c.RcvBuf)
	}

	return nil
}

// GetCalibration returns the calibration path, or "" for the embedded VLP-16 table.
func (c *DecoderConfig) GetCalibration() string {
	if c.Calibration == nil {
		return ""
	}
	return *c.Calibration
}

// GetDeviceModel returns the device_model value or the default.
func (c *DecoderConfig) GetDeviceModel() string {
	if c.DeviceModel == nil {
		return ""
	}
	return *c.DeviceModel
}

// GetMinRange returns the min_range value or the default.
func (c *DecoderConfig) GetMinRange() float64 {
	if c.MinRange == nil {
		return 0.9
	}
	return *c.MinRange
}

// GetMaxRange returns the max_range value or the default.
func (c *DecoderConfig) GetMaxRange() float64 {
	if c.MaxRange == nil {
		return 130.0
	}
	return *c.MaxRange
}

// GetViewDirection returns the view_direction value or the default.
func (c *DecoderConfig) GetViewDirection() float64 {
	if c.ViewDirection == nil {
		return 0
	}
	return *c.ViewDirection
}

// GetViewWidth returns the view_width value or the default (full circle).
func (c *DecoderConfig) GetViewWidth() float64 {
	if c.ViewWidth == nil {
		return 2 * math.Pi
	}
	return *c.ViewWidth
}

// GetStrictBankHeaders returns the strict_bank_headers value or the default.
func (c *DecoderConfig) GetStrictBankHeaders() bool {
	if c.StrictBankHeaders == nil {
		return false
	}
	return *c.StrictBankHeaders
}

// GetWarnInterval parses and returns the WarnInterval as a time.Duration.
func (c *DecoderConfig) GetWarnInterval() time.Duration {
	if c.WarnInterval == nil || *c.WarnInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.WarnInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetUDPAddress returns the udp_address value or the default.
func (c *DecoderConfig) GetUDPAddress() string {
	if c.UDPAddress == nil || *c.UDPAddress == "" {
		return ":2368"
	}
	return *c.UDPAddress
}

// GetRcvBuf returns the rcv_buf value or the default.
func (c *DecoderConfig) GetRcvBuf() int {
	if c.RcvBuf == nil {
		return 4 << 20
	}
	return *c.RcvBuf
}

// GetLogInterval parses and returns the LogInterval as a time.Duration.
func (c *DecoderConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil {
		return 5 * time.Second
	}
	return d
}
