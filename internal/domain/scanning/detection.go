package scanning

import "sort"

// Well-known detector class labels. The on-device model is trained on a
// unified three-class schema; everything downstream keys off these names.
const (
	LabelCreditCard = "credit_card"
	LabelIDCard     = "id_card"
	LabelPassport   = "passport"
)

// BoundingBox is a detector-reported region in normalized [0,1] image
// coordinates.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is a single object-detector hit: a class label, its confidence
// in [0,1], and the normalized region it was found in.
type Detection struct {
	Label      string      `json:"label"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// DetectionOutcome is the per-item result of the classification pipeline.
// It is ephemeral; only the match decision is folded into the persisted
// selection set.
type DetectionOutcome struct {
	detections   []Detection
	matched      bool
	refinedLabel string
}

// NewDetectionOutcome creates an outcome from detections already filtered to
// the run's threshold. Detections are kept sorted descending by confidence.
func NewDetectionOutcome(detections []Detection, matched bool, refinedLabel string) DetectionOutcome {
	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return DetectionOutcome{detections: sorted, matched: matched, refinedLabel: refinedLabel}
}

// Detections returns the above-threshold detections sorted descending by
// confidence.
func (o DetectionOutcome) Detections() []Detection {
	out := make([]Detection, len(o.detections))
	copy(out, o.detections)
	return out
}

// Matched reports whether the item satisfied the pipeline's match policy.
func (o DetectionOutcome) Matched() bool { return o.matched }

// RefinedLabel returns the document-type label when refinement overrode the
// generic top label, or empty when no refinement applied.
func (o DetectionOutcome) RefinedLabel() string { return o.refinedLabel }

// TopLabel returns the effective label for downstream reporting: the refined
// label when present, otherwise the highest-confidence detection's label.
func (o DetectionOutcome) TopLabel() string {
	if o.refinedLabel != "" {
		return o.refinedLabel
	}
	if len(o.detections) == 0 {
		return ""
	}
	return o.detections[0].Label
}
