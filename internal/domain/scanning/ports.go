package scanning

import (
	"context"
)

// MediaStore abstracts the host's photo library. Implementations must return
// a deterministic ordering from ListAll within a device session so a resumed
// scan revisits the same positions.
type MediaStore interface {
	// RequestAccess asks the host for permission to read the media library.
	// A false return is a routine denial, not an error.
	RequestAccess(ctx context.Context) (bool, error)

	// ListAll returns the full ordered list of scannable asset identifiers.
	// An empty list means nothing to scan; access denial surfaces as empty.
	ListAll(ctx context.Context) ([]string, error)

	// Fetch resolves an identifier to the item's pixel data. It returns
	// (nil, nil) when the item no longer exists.
	Fetch(ctx context.Context, id string) ([]byte, error)

	// Delete removes the given assets from the library. Used only by the
	// review layer's staged-deletion commit.
	Delete(ctx context.Context, ids []string) error
}

// ObjectDetector is the black-box on-device model. Given pixel data and a
// confidence threshold in [0,1] it returns zero or more detections.
type ObjectDetector interface {
	Detect(ctx context.Context, content []byte, confidenceThreshold float64) ([]Detection, error)
}

// TextSegment is a piece of recognized text with the normalized region it was
// read from.
type TextSegment struct {
	Text string      `json:"text"`
	Box  BoundingBox `json:"box"`
}

// TextExtractor is the black-box OCR engine.
type TextExtractor interface {
	// ExtractText recognizes text across the whole image.
	ExtractText(ctx context.Context, content []byte) (string, error)

	// ExtractSegments recognizes text scoped to the given regions. Used by
	// the review layer, never by the scan loop.
	ExtractSegments(ctx context.Context, content []byte, regions []BoundingBox) ([]TextSegment, error)
}

// DetectionPipeline decides per item whether it contains a sensitive
// document. It is called synchronously once per item by the scan loop.
type DetectionPipeline interface {
	Classify(ctx context.Context, content []byte) (DetectionOutcome, error)
}

// StateRepository provides durable storage for the device's single ScanState
// record. It is a convenience cache: corrupt or missing records are replaced
// with a fresh empty state, never surfaced as errors.
type StateRepository interface {
	// LoadOrCreate returns the persisted state when present, well-formed, and
	// stamped with the same threshold; otherwise a fresh empty state bound to
	// threshold. A threshold mismatch discards stored progress.
	LoadOrCreate(ctx context.Context, threshold int) (*ScanState, error)

	// Save atomically replaces the whole persisted record.
	Save(ctx context.Context, state *ScanState) error

	// Reset deletes the persisted record. Idempotent.
	Reset(ctx context.Context) error
}

// RiskClassifier enriches a flagged item with an explanation and risk tier.
// Implementations must sanitize the text before transmission and must never
// transmit pixels.
type RiskClassifier interface {
	GenerateAnalysis(ctx context.Context, text string, detections []Detection) (*SensitiveAnalysis, error)
}

// ExtensionToken identifies one execution-extension grant.
type ExtensionToken uint64

// ExecutionExtender wraps the host primitive that grants additional
// execution time when the app is not in the foreground. Grants have an
// unspecified, possibly short duration; the host warns once shortly before
// revoking. Every Begin must be paired with exactly one End per run segment,
// on every exit path.
type ExecutionExtender interface {
	// Begin requests an execution-time grant. onExpiring is invoked at most
	// once when the grant is about to be revoked; the only safe response is
	// an immediate checkpoint.
	Begin(onExpiring func()) (ExtensionToken, error)

	// End releases a grant. Unknown or already-released tokens are ignored.
	End(token ExtensionToken)

	// ScheduleContinuation asks the host to re-invoke the scan later. It is
	// advisory: the host may decline, delay arbitrarily, or never invoke it.
	ScheduleContinuation() error

	// CancelContinuations withdraws any pending continuation requests.
	CancelContinuations()
}

// Notifier delivers user-facing notifications about scan lifecycle events.
type Notifier interface {
	// RequestPermission asks for notification permission. Denial is
	// best-effort; scanning proceeds without notifications.
	RequestPermission(ctx context.Context) (bool, error)

	// NotifyScanComplete announces a finished scan with the matched count.
	NotifyScanComplete(ctx context.Context, matchedCount int) error
}
