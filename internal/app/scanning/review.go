package scanning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

// Decision is the reviewer's verdict on a single flagged item.
type Decision string

const (
	// DecisionKeep leaves the item in the library untouched.
	DecisionKeep Decision = "KEEP"

	// DecisionDelete stages the item for batch deletion on Commit.
	DecisionDelete Decision = "DELETE"

	// DecisionRedact keeps the item but records that its sensitive regions
	// should be obscured before sharing.
	DecisionRedact Decision = "REDACT"
)

// SelectionSource exposes the persisted match set the reviewer works through.
// The scan orchestrator satisfies it.
type SelectionSource interface {
	SelectedAssetIDs(ctx context.Context) ([]string, error)
}

// ReviewService drives the post-scan review flow: listing flagged items,
// enriching them on demand with OCR plus cloud risk analysis, and managing a
// staged-deletion set that is only acted on at Commit.
//
// Enrichment results are cached in memory per item. A failed enrichment
// yields an unclassified placeholder and is not cached, so a later attempt
// retries.
type ReviewService struct {
	threshold int

	selection  SelectionSource
	mediaStore scanning.MediaStore
	detector   scanning.ObjectDetector
	extractor  scanning.TextExtractor
	classifier scanning.RiskClassifier

	mu        sync.Mutex
	staged    map[string]struct{}
	decisions map[string]Decision
	analyses  map[string]*scanning.SensitiveAnalysis

	logger *logger.Logger
	tracer trace.Tracer
}

// NewReviewService creates a review service over the given match set. The
// classifier may be nil when the user has not consented to cloud analysis;
// enrichment then degrades to unclassified.
func NewReviewService(
	threshold int,
	selection SelectionSource,
	mediaStore scanning.MediaStore,
	detector scanning.ObjectDetector,
	extractor scanning.TextExtractor,
	classifier scanning.RiskClassifier,
	log *logger.Logger,
	tracer trace.Tracer,
) *ReviewService {
	return &ReviewService{
		threshold:  threshold,
		selection:  selection,
		mediaStore: mediaStore,
		detector:   detector,
		extractor:  extractor,
		classifier: classifier,
		staged:     make(map[string]struct{}),
		decisions:  make(map[string]Decision),
		analyses:   make(map[string]*scanning.SensitiveAnalysis),
		logger:     log.With("component", "review_service"),
		tracer:     tracer,
	}
}

// FlaggedItems returns the persisted match set in stable sorted order.
func (r *ReviewService) FlaggedItems(ctx context.Context) ([]string, error) {
	return r.selection.SelectedAssetIDs(ctx)
}

// Decide records the reviewer's verdict for an item. A delete decision stages
// the item; any other decision unstages it.
func (r *ReviewService) Decide(id string, decision Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decisions[id] = decision
	if decision == DecisionDelete {
		r.staged[id] = struct{}{}
	} else {
		delete(r.staged, id)
	}
}

// DecisionFor returns the recorded decision for an item, defaulting to keep.
func (r *ReviewService) DecisionFor(id string) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.decisions[id]; ok {
		return d
	}
	return DecisionKeep
}

// Stage adds an item to the staged-deletion set.
func (r *ReviewService) Stage(id string) { r.Decide(id, DecisionDelete) }

// Unstage removes an item from the staged-deletion set.
func (r *ReviewService) Unstage(id string) { r.Decide(id, DecisionKeep) }

// IsStaged reports whether an item is staged for deletion.
func (r *ReviewService) IsStaged(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.staged[id]
	return ok
}

// Staged returns the staged-deletion set in stable sorted order.
func (r *ReviewService) Staged() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.staged))
	for id := range r.staged {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Commit deletes every staged item from the media library in one batch. The
// set is cleared only when the deletion succeeds; on failure every staged
// item remains staged so the reviewer can retry.
func (r *ReviewService) Commit(ctx context.Context) error {
	ids := r.Staged()
	if len(ids) == 0 {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "review_service.commit",
		trace.WithAttributes(attribute.Int("staged_count", len(ids))))
	defer span.End()

	if err := r.mediaStore.Delete(ctx, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "staged deletion failed")
		return fmt.Errorf("deleting %d staged items: %w", len(ids), err)
	}

	r.mu.Lock()
	for _, id := range ids {
		delete(r.staged, id)
		delete(r.decisions, id)
		delete(r.analyses, id)
	}
	r.mu.Unlock()

	r.logger.Info(ctx, "staged deletion committed", "deleted", len(ids))
	return nil
}

// Analyze enriches a flagged item: on-device detection locates the document
// regions, OCR reads the text inside them, and the cloud classifier grades
// the exposure. Any stage failing degrades to an unclassified placeholder.
func (r *ReviewService) Analyze(ctx context.Context, id string) (*scanning.SensitiveAnalysis, error) {
	r.mu.Lock()
	if cached, ok := r.analyses[id]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, "review_service.analyze",
		trace.WithAttributes(attribute.String("asset_id", id)))
	defer span.End()

	analysis := r.enrich(ctx, span, id)
	if analysis.IsClassified() {
		r.mu.Lock()
		r.analyses[id] = analysis
		r.mu.Unlock()
	}
	return analysis, nil
}

func (r *ReviewService) enrich(ctx context.Context, span trace.Span, id string) *scanning.SensitiveAnalysis {
	if r.classifier == nil {
		span.AddEvent("cloud_analysis_not_consented")
		return scanning.UnclassifiedAnalysis()
	}

	content, err := r.mediaStore.Fetch(ctx, id)
	if err != nil || content == nil {
		if err != nil {
			span.RecordError(err)
			r.logger.Warn(ctx, "failed to fetch item for analysis", "asset_id", id, "error", err)
		}
		return scanning.UnclassifiedAnalysis()
	}

	detections, err := r.detector.Detect(ctx, content, float64(r.threshold)/100)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn(ctx, "detector failed during analysis", "asset_id", id, "error", err)
		return scanning.UnclassifiedAnalysis()
	}

	regions := make([]scanning.BoundingBox, len(detections))
	for i, d := range detections {
		regions[i] = d.Box
	}

	segments, err := r.extractor.ExtractSegments(ctx, content, regions)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn(ctx, "text extraction failed during analysis", "asset_id", id, "error", err)
		return scanning.UnclassifiedAnalysis()
	}

	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text != "" {
			texts = append(texts, seg.Text)
		}
	}

	analysis, err := r.classifier.GenerateAnalysis(ctx, strings.Join(texts, "\n"), detections)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn(ctx, "cloud analysis failed", "asset_id", id, "error", err)
		return scanning.UnclassifiedAnalysis()
	}

	span.AddEvent("analysis_obtained",
		trace.WithAttributes(attribute.String("risk_level", analysis.RiskLevel().String())))
	return analysis
}
