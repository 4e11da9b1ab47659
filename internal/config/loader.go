package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads configuration from the given YAML file, applying defaults and
// PHOTOSENTRY_* environment overrides. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PHOTOSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	// Environment overrides arrive as strings; decode them weakly so numeric
	// and duration fields still populate.
	weak := func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }
	if err := v.Unmarshal(&cfg, weak); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.threshold", 50)
	v.SetDefault("scan.batch_size", 20)
	v.SetDefault("scan.match_policy", string(MatchPolicyTextConfirmed))
	v.SetDefault("scan.state_path", "scanstate.json")
	v.SetDefault("scan.label_file", "")

	v.SetDefault("media.root", "photos")

	v.SetDefault("cloud.consented", false)
	v.SetDefault("cloud.endpoint", "")
	v.SetDefault("cloud.api_key", "")
	v.SetDefault("cloud.timeout", 15*time.Second)
	v.SetDefault("cloud.rps", 1.0)
	v.SetDefault("cloud.burst", 1)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.host", "localhost:4317")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("extension.budget", 25*time.Second)
	v.SetDefault("extension.warning", 3*time.Second)
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Scan.Threshold < 0 || c.Scan.Threshold > 100 {
		return fmt.Errorf("scan.threshold must be in [0,100], got %d", c.Scan.Threshold)
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan.batch_size must be positive, got %d", c.Scan.BatchSize)
	}
	switch c.Scan.MatchPolicy {
	case MatchPolicyTextConfirmed, MatchPolicyDetectorOnly:
	default:
		return fmt.Errorf("scan.match_policy must be %q or %q, got %q",
			MatchPolicyTextConfirmed, MatchPolicyDetectorOnly, c.Scan.MatchPolicy)
	}
	if c.Scan.StatePath == "" {
		return fmt.Errorf("scan.state_path is required")
	}
	if c.Cloud.Consented && c.Cloud.Endpoint == "" {
		return fmt.Errorf("cloud.endpoint is required when cloud.consented is set")
	}
	if c.Extension.Warning >= c.Extension.Budget {
		return fmt.Errorf("extension.warning must be shorter than extension.budget")
	}
	return nil
}
