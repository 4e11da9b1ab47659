package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosentry/photosentry/internal/domain/scanning"
)

const sampleScene = `
detections:
  - label: id_card
    confidence: 0.91
    box: {x: 0.1, y: 0.2, width: 0.5, height: 0.3}
  - label: passport
    confidence: 0.42
text: |
  DRIVER LICENSE
  DL 1234567
`

func TestEmulatedDetector_FiltersByThreshold(t *testing.T) {
	t.Parallel()

	detector := NewEmulatedDetector()

	detections, err := detector.Detect(context.Background(), []byte(sampleScene), 0.5)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, scanning.LabelIDCard, detections[0].Label)
	assert.InDelta(t, 0.91, detections[0].Confidence, 1e-9)
	assert.InDelta(t, 0.5, detections[0].Box.Width, 1e-9)

	detections, err = detector.Detect(context.Background(), []byte(sampleScene), 0.3)
	require.NoError(t, err)
	assert.Len(t, detections, 2)
}

func TestEmulatedDetector_NonSceneContentIsEmpty(t *testing.T) {
	t.Parallel()

	detector := NewEmulatedDetector()
	detections, err := detector.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0}, 0.1)
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestEmulatedExtractor_Text(t *testing.T) {
	t.Parallel()

	extractor := NewEmulatedExtractor()

	text, err := extractor.ExtractText(context.Background(), []byte(sampleScene))
	require.NoError(t, err)
	assert.Contains(t, text, "DRIVER LICENSE")

	segments, err := extractor.ExtractSegments(context.Background(), []byte(sampleScene),
		[]scanning.BoundingBox{{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.3}})
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Contains(t, segments[0].Text, "DL 1234567")

	segments, err = extractor.ExtractSegments(context.Background(), []byte(sampleScene), nil)
	require.NoError(t, err)
	assert.Empty(t, segments)
}
