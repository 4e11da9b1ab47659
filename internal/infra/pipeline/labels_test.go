package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelResolver_ChainPriority(t *testing.T) {
	t.Parallel()

	failing := LabelSourceFunc(func() ([]string, error) {
		return nil, fmt.Errorf("metadata unavailable")
	})
	empty := LabelSourceFunc(func() ([]string, error) { return nil, nil })

	resolver := NewLabelResolver(
		failing,
		empty,
		ModelMetadataLabels([]string{"credit_card", "id_card", "passport"}),
		SynthesizedLabels(3),
	)

	assert.Equal(t, "credit_card", resolver.Name(0))
	assert.Equal(t, "id_card", resolver.Name(1))
	assert.Equal(t, "passport", resolver.Name(2))
	assert.Equal(t, 3, resolver.Count())
}

func TestLabelResolver_SynthesizedFallback(t *testing.T) {
	t.Parallel()

	resolver := NewLabelResolver(SynthesizedLabels(2))
	assert.Equal(t, "class_0", resolver.Name(0))
	assert.Equal(t, "class_1", resolver.Name(1))

	// Out of range still yields a name.
	assert.Equal(t, "class_7", resolver.Name(7))
}

func TestLabelResolver_NoSources(t *testing.T) {
	t.Parallel()

	resolver := NewLabelResolver()
	assert.Equal(t, "class_0", resolver.Name(0))
	assert.Equal(t, 0, resolver.Count())
}

func TestBundledFileLabels(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("names:\n  - credit_card\n  - id_card\n  - passport\n"), 0o600))

	resolver := NewLabelResolver(BundledFileLabels(path))
	assert.Equal(t, "passport", resolver.Name(2))
}

func TestBundledFileLabels_MissingFileDefers(t *testing.T) {
	t.Parallel()

	resolver := NewLabelResolver(
		BundledFileLabels(filepath.Join(t.TempDir(), "absent.yaml")),
		SynthesizedLabels(1),
	)
	assert.Equal(t, "class_0", resolver.Name(0))
}
