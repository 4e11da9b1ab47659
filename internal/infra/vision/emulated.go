// Package vision provides ObjectDetector and TextExtractor adapters for
// builds without on-device ML models. The emulated adapters parse assets as
// scene documents: a small YAML description of what a real detector and OCR
// engine would have reported for the photo.
package vision

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/photosentry/photosentry/internal/domain/scanning"
)

var (
	_ scanning.ObjectDetector = (*EmulatedDetector)(nil)
	_ scanning.TextExtractor  = (*EmulatedExtractor)(nil)
)

// sceneDoc is the YAML layout of an emulated asset.
type sceneDoc struct {
	Detections []struct {
		Label      string  `yaml:"label"`
		Confidence float64 `yaml:"confidence"`
		Box        struct {
			X      float64 `yaml:"x"`
			Y      float64 `yaml:"y"`
			Width  float64 `yaml:"width"`
			Height float64 `yaml:"height"`
		} `yaml:"box"`
	} `yaml:"detections"`
	Text string `yaml:"text"`
}

func parseScene(content []byte) (sceneDoc, bool) {
	var doc sceneDoc
	if err := yaml.Unmarshal(content, &doc); err != nil {
		// Not a scene document, e.g. real image bytes. An empty scene models
		// a photo with nothing of interest in it.
		return sceneDoc{}, false
	}
	return doc, true
}

// EmulatedDetector reports the detections a scene document declares, filtered
// to the requested confidence threshold.
type EmulatedDetector struct{}

// NewEmulatedDetector creates a scene-document-backed detector.
func NewEmulatedDetector() *EmulatedDetector { return &EmulatedDetector{} }

// Detect implements the ObjectDetector port.
func (d *EmulatedDetector) Detect(_ context.Context, content []byte, confidenceThreshold float64) ([]scanning.Detection, error) {
	doc, ok := parseScene(content)
	if !ok {
		return nil, nil
	}

	var out []scanning.Detection
	for _, det := range doc.Detections {
		if det.Confidence < confidenceThreshold {
			continue
		}
		out = append(out, scanning.Detection{
			Label:      det.Label,
			Confidence: det.Confidence,
			Box: scanning.BoundingBox{
				X:      det.Box.X,
				Y:      det.Box.Y,
				Width:  det.Box.Width,
				Height: det.Box.Height,
			},
		})
	}
	return out, nil
}

// EmulatedExtractor reports the text a scene document declares.
type EmulatedExtractor struct{}

// NewEmulatedExtractor creates a scene-document-backed OCR engine.
func NewEmulatedExtractor() *EmulatedExtractor { return &EmulatedExtractor{} }

// ExtractText implements the TextExtractor port.
func (e *EmulatedExtractor) ExtractText(_ context.Context, content []byte) (string, error) {
	doc, _ := parseScene(content)
	return doc.Text, nil
}

// ExtractSegments returns the scene's text as a single segment per requested
// region. The emulation has no per-region text, so each region sees the full
// scene text once; additional regions are empty.
func (e *EmulatedExtractor) ExtractSegments(_ context.Context, content []byte, regions []scanning.BoundingBox) ([]scanning.TextSegment, error) {
	doc, _ := parseScene(content)
	if len(regions) == 0 || doc.Text == "" {
		return nil, nil
	}

	segments := make([]scanning.TextSegment, 0, 1)
	segments = append(segments, scanning.TextSegment{Text: doc.Text, Box: regions[0]})
	return segments, nil
}
