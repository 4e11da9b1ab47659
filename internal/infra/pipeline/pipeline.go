// Package pipeline implements the layered classification pipeline that
// decides whether an individual photo contains a sensitive document.
// It composes the black-box object detector, the OCR text-presence check,
// and document-type refinement while keeping per-stage failures isolated:
// a failing stage degrades the decision for that item, it never aborts the
// surrounding scan.
package pipeline

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

var _ scanning.DetectionPipeline = (*Pipeline)(nil)

// MatchPolicy selects how strict the per-item match decision is. Two
// generations of this system disagreed: the earlier one required confirmed
// readable on-image text as a second gate to filter out shape-only false
// positives; the later one flagged on detector confidence alone.
type MatchPolicy int

const (
	// MatchPolicyTextConfirmed flags an item only when the detector fired
	// above threshold AND readable text was confirmed on the image. This is
	// the default: a blank rectangular object misclassified as an ID does
	// not survive the text gate.
	MatchPolicyTextConfirmed MatchPolicy = iota

	// MatchPolicyDetectorOnly flags on detector confidence alone.
	MatchPolicyDetectorOnly
)

// minTextRunes is the minimum amount of recognized text that counts as
// "readable text present" under the text-confirmed policy. Single stray
// characters from texture noise do not confirm a document.
const minTextRunes = 4

// Pipeline classifies one photo at a time. It holds a shared handle to the
// expensive detector model; the pipeline itself is stateless per call and
// safe for reuse across a whole scan.
type Pipeline struct {
	detector  scanning.ObjectDetector
	extractor scanning.TextExtractor
	labels    *LabelResolver

	// threshold is the run's confidence cutoff in [0,100], applied to the
	// detector as a [0,1] float.
	threshold int
	policy    MatchPolicy

	logger *logger.Logger
	tracer trace.Tracer
}

// Option defines functional options for configuring a Pipeline.
type Option func(*Pipeline)

// WithMatchPolicy overrides the default text-confirmed match policy.
func WithMatchPolicy(p MatchPolicy) Option {
	return func(pl *Pipeline) { pl.policy = p }
}

// WithLabelResolver sets the resolver used to map bare class indices coming
// out of the detector to human-readable label names.
func WithLabelResolver(r *LabelResolver) Option {
	return func(pl *Pipeline) { pl.labels = r }
}

// New creates a Pipeline bound to a run's confidence threshold (0-100).
func New(
	detector scanning.ObjectDetector,
	extractor scanning.TextExtractor,
	threshold int,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		detector:  detector,
		extractor: extractor,
		labels:    NewLabelResolver(SynthesizedLabels(defaultClassCount)),
		threshold: threshold,
		policy:    MatchPolicyTextConfirmed,
		logger:    log.With("component", "detection_pipeline"),
		tracer:    tracer,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Classify runs the full multi-stage decision for one item. It never returns
// an error for stage failures; those degrade to "no detections" or "no
// refinement" so a single bad item cannot take down a scan.
func (p *Pipeline) Classify(ctx context.Context, content []byte) (scanning.DetectionOutcome, error) {
	ctx, span := p.tracer.Start(ctx, "detection_pipeline.classify",
		trace.WithAttributes(
			attribute.Int("threshold", p.threshold),
			attribute.Int("content_size", len(content)),
		),
	)
	defer span.End()

	detections := p.detect(ctx, content)
	span.SetAttributes(attribute.Int("num_detections", len(detections)))

	if len(detections) == 0 {
		span.SetStatus(codes.Ok, "no detections")
		return scanning.NewDetectionOutcome(nil, false, ""), nil
	}

	// The outcome keeps detections sorted descending by confidence; the top
	// label drives refinement.
	outcome := scanning.NewDetectionOutcome(detections, true, "")

	var text string
	needText := p.policy == MatchPolicyTextConfirmed || outcome.TopLabel() == scanning.LabelIDCard
	if needText {
		text = p.extractText(ctx, content)
	}

	matched := true
	if p.policy == MatchPolicyTextConfirmed && !hasReadableText(text) {
		matched = false
		span.AddEvent("text_gate_rejected")
	}

	refined := ""
	if outcome.TopLabel() == scanning.LabelIDCard {
		if label, ok := RefineDocumentType(text); ok {
			refined = label
			span.SetAttributes(attribute.String("refined_label", refined))
		}
	}

	span.SetAttributes(attribute.Bool("matched", matched))
	span.SetStatus(codes.Ok, "classified")

	return scanning.NewDetectionOutcome(detections, matched, refined), nil
}

// detect runs the object detector and normalizes its labels. Detector
// failures degrade to an empty detection list.
func (p *Pipeline) detect(ctx context.Context, content []byte) []scanning.Detection {
	detections, err := p.detector.Detect(ctx, content, float64(p.threshold)/100)
	if err != nil {
		p.logger.Warn(ctx, "object detector failed, treating item as no detections", "error", err)
		return nil
	}

	cutoff := float64(p.threshold) / 100
	kept := detections[:0:0]
	for _, d := range detections {
		if d.Confidence < cutoff {
			continue
		}
		d.Label = p.normalizeLabel(d.Label)
		kept = append(kept, d)
	}
	return kept
}

// normalizeLabel maps a bare class index coming out of the model to a label
// name through the resolution chain. Named labels pass through untouched.
func (p *Pipeline) normalizeLabel(label string) string {
	idx, err := strconv.Atoi(label)
	if err != nil {
		return label
	}
	return p.labels.Name(idx)
}

// extractText runs OCR over the whole image. Extraction failures degrade to
// empty text: refinement is skipped and the text gate treats the item as
// having no readable text.
func (p *Pipeline) extractText(ctx context.Context, content []byte) string {
	text, err := p.extractor.ExtractText(ctx, content)
	if err != nil {
		p.logger.Warn(ctx, "text extraction failed, proceeding without text", "error", err)
		return ""
	}
	return text
}

func hasReadableText(text string) bool {
	n := 0
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			continue
		}
		n++
		if n >= minTextRunes {
			return true
		}
	}
	return false
}
