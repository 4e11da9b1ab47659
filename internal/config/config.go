// Package config defines the scanner's configuration surface and its loader.
package config

import "time"

// MatchPolicy selects how the pipeline turns detections into match decisions.
type MatchPolicy string

const (
	// MatchPolicyTextConfirmed flags an item only when a detection co-occurs
	// with readable on-image text.
	MatchPolicyTextConfirmed MatchPolicy = "text_confirmed"

	// MatchPolicyDetectorOnly flags an item on any above-threshold detection.
	MatchPolicyDetectorOnly MatchPolicy = "detector_only"
)

// ScanConfig controls the scan loop and detection pipeline.
type ScanConfig struct {
	// Threshold is the detector confidence cutoff in percent (0-100).
	// Changing it invalidates persisted progress.
	Threshold int `mapstructure:"threshold"`

	// BatchSize is how many items are processed between checkpoints.
	BatchSize int `mapstructure:"batch_size"`

	// MatchPolicy selects the match decision rule.
	MatchPolicy MatchPolicy `mapstructure:"match_policy"`

	// StatePath is where the durable scan state record lives.
	StatePath string `mapstructure:"state_path"`

	// LabelFile optionally points at a YAML label map for detectors that
	// report numeric class indices.
	LabelFile string `mapstructure:"label_file"`
}

// MediaConfig locates the photo library.
type MediaConfig struct {
	// Root is the image directory treated as the device photo library.
	Root string `mapstructure:"root"`
}

// CloudConfig controls the optional remote risk classifier.
type CloudConfig struct {
	// Consented must be set explicitly before any text leaves the device.
	Consented bool `mapstructure:"consented"`

	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RPS      float64       `mapstructure:"rps"`
	Burst    int           `mapstructure:"burst"`
}

// TelemetryConfig controls the OTLP export pipeline.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Host        string  `mapstructure:"host"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ExtensionConfig controls the emulated background-execution budget.
type ExtensionConfig struct {
	Budget  time.Duration `mapstructure:"budget"`
	Warning time.Duration `mapstructure:"warning"`
}

// Config is the top-level configuration.
type Config struct {
	Scan      ScanConfig      `mapstructure:"scan"`
	Media     MediaConfig     `mapstructure:"media"`
	Cloud     CloudConfig     `mapstructure:"cloud"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Extension ExtensionConfig `mapstructure:"extension"`
}
