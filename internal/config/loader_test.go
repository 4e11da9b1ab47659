package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Scan.Threshold)
	assert.Equal(t, 20, cfg.Scan.BatchSize)
	assert.Equal(t, MatchPolicyTextConfirmed, cfg.Scan.MatchPolicy)
	assert.Equal(t, "scanstate.json", cfg.Scan.StatePath)
	assert.False(t, cfg.Cloud.Consented)
	assert.Equal(t, 25*time.Second, cfg.Extension.Budget)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
scan:
  threshold: 70
  batch_size: 10
  match_policy: detector_only
  state_path: /tmp/state.json
media:
  root: /photos
cloud:
  consented: true
  endpoint: https://risk.example.com/analyze
  api_key: secret
  timeout: 5s
  rps: 2.5
  burst: 3
extension:
  budget: 40s
  warning: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 70, cfg.Scan.Threshold)
	assert.Equal(t, 10, cfg.Scan.BatchSize)
	assert.Equal(t, MatchPolicyDetectorOnly, cfg.Scan.MatchPolicy)
	assert.Equal(t, "/photos", cfg.Media.Root)
	assert.True(t, cfg.Cloud.Consented)
	assert.Equal(t, "https://risk.example.com/analyze", cfg.Cloud.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.Cloud.Timeout)
	assert.Equal(t, 2.5, cfg.Cloud.RPS)
	assert.Equal(t, 40*time.Second, cfg.Extension.Budget)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PHOTOSENTRY_SCAN_THRESHOLD", "85")
	t.Setenv("PHOTOSENTRY_MEDIA_ROOT", "/mnt/photos")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 85, cfg.Scan.Threshold)
	assert.Equal(t, "/mnt/photos", cfg.Media.Root)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "threshold out of range",
			yaml: "scan:\n  threshold: 150\n",
		},
		{
			name: "zero batch size",
			yaml: "scan:\n  batch_size: 0\n",
		},
		{
			name: "unknown match policy",
			yaml: "scan:\n  match_policy: maybe\n",
		},
		{
			name: "consent without endpoint",
			yaml: "cloud:\n  consented: true\n",
		},
		{
			name: "warning exceeds budget",
			yaml: "extension:\n  budget: 2s\n  warning: 3s\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
