package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

// mockDetector returns canned detections or an error.
type mockDetector struct {
	detections []scanning.Detection
	err        error
}

func (m *mockDetector) Detect(ctx context.Context, content []byte, threshold float64) ([]scanning.Detection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detections, nil
}

// mockExtractor returns canned text or an error.
type mockExtractor struct {
	text string
	err  error
}

func (m *mockExtractor) ExtractText(ctx context.Context, content []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockExtractor) ExtractSegments(ctx context.Context, content []byte, regions []scanning.BoundingBox) ([]scanning.TextSegment, error) {
	return nil, fmt.Errorf("not used by the scan loop")
}

func newTestPipeline(det *mockDetector, ext *mockExtractor, threshold int, opts ...Option) *Pipeline {
	tracer := noop.NewTracerProvider().Tracer("test")
	return New(det, ext, threshold, logger.Noop(), tracer, opts...)
}

func TestPipeline_NoDetectionsNoMatch(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(&mockDetector{}, &mockExtractor{}, 70)

	outcome, err := p.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.False(t, outcome.Matched())
	assert.Empty(t, outcome.Detections())
}

func TestPipeline_TextConfirmedPolicy(t *testing.T) {
	t.Parallel()

	detections := []scanning.Detection{{Label: scanning.LabelCreditCard, Confidence: 0.9}}

	tests := []struct {
		name        string
		text        string
		textErr     error
		wantMatched bool
	}{
		{name: "readable text confirms", text: "VISA 4111 1111 1111 1111", wantMatched: true},
		{name: "no text rejects shape-only hit", text: "", wantMatched: false},
		{name: "whitespace only rejects", text: "  \n\t ", wantMatched: false},
		{name: "extraction failure treated as no text", textErr: fmt.Errorf("ocr crashed"), wantMatched: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestPipeline(
				&mockDetector{detections: detections},
				&mockExtractor{text: tt.text, err: tt.textErr},
				70,
			)

			outcome, err := p.Classify(context.Background(), []byte("img"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantMatched, outcome.Matched())
		})
	}
}

func TestPipeline_DetectorOnlyPolicy(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(
		&mockDetector{detections: []scanning.Detection{{Label: scanning.LabelPassport, Confidence: 0.8}}},
		&mockExtractor{text: ""},
		70,
		WithMatchPolicy(MatchPolicyDetectorOnly),
	)

	outcome, err := p.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.True(t, outcome.Matched())
}

func TestPipeline_DetectorFailureDegrades(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(
		&mockDetector{err: fmt.Errorf("model crashed")},
		&mockExtractor{text: "irrelevant"},
		70,
	)

	outcome, err := p.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.False(t, outcome.Matched())
	assert.Empty(t, outcome.Detections())
}

func TestPipeline_BelowThresholdFiltered(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(
		&mockDetector{detections: []scanning.Detection{
			{Label: scanning.LabelIDCard, Confidence: 0.65},
			{Label: scanning.LabelPassport, Confidence: 0.71},
		}},
		&mockExtractor{text: "passport surname nationality date of birth"},
		70,
	)

	outcome, err := p.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Len(t, outcome.Detections(), 1)
	assert.Equal(t, scanning.LabelPassport, outcome.Detections()[0].Label)
	assert.True(t, outcome.Matched())
}

func TestPipeline_RefinementOverridesGenericLabel(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(
		&mockDetector{detections: []scanning.Detection{{Label: scanning.LabelIDCard, Confidence: 0.8}}},
		&mockExtractor{text: "VISA\nVALID THRU 11/28\n4111 1111 1111 1111"},
		70,
	)

	outcome, err := p.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.True(t, outcome.Matched())
	assert.Equal(t, scanning.LabelCreditCard, outcome.RefinedLabel())
	assert.Equal(t, scanning.LabelCreditCard, outcome.TopLabel())
}

func TestPipeline_RefinementNeverVetoesMatch(t *testing.T) {
	t.Parallel()

	// Text is readable but matches no document signature: the generic label
	// stands and the match decision is unaffected.
	p := newTestPipeline(
		&mockDetector{detections: []scanning.Detection{{Label: scanning.LabelIDCard, Confidence: 0.8}}},
		&mockExtractor{text: "some readable but unstructured text"},
		70,
	)

	outcome, err := p.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.True(t, outcome.Matched())
	assert.Empty(t, outcome.RefinedLabel())
	assert.Equal(t, scanning.LabelIDCard, outcome.TopLabel())
}

func TestPipeline_NumericClassIndicesResolved(t *testing.T) {
	t.Parallel()

	resolver := NewLabelResolver(ModelMetadataLabels([]string{"credit_card", "id_card", "passport"}))
	p := newTestPipeline(
		&mockDetector{detections: []scanning.Detection{{Label: "2", Confidence: 0.9}}},
		&mockExtractor{text: "passport surname nationality"},
		70,
		WithLabelResolver(resolver),
	)

	outcome, err := p.Classify(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Len(t, outcome.Detections(), 1)
	assert.Equal(t, scanning.LabelPassport, outcome.Detections()[0].Label)
}
