// Package scanning provides the application-layer services that drive the
// privacy scan: the orchestrator owning the resumable scan loop and the
// review service consuming its results.
package scanning

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

// defaultBatchSize is how many items are processed between durable
// checkpoints.
const defaultBatchSize = 20

// ScanOrchestrator owns the device's single scan run. It enumerates the media
// library, walks the asset list through the detection pipeline, checkpoints
// progress in batches, and cooperates with cancellation and execution-budget
// expiry at iteration boundaries.
//
// Start and ResumeOrStart block until the run yields; hosts launch them on a
// background goroutine. At most one run executes at a time; a second call
// while one is in flight is a no-op.
type ScanOrchestrator struct {
	threshold int
	batchSize int

	mediaStore scanning.MediaStore
	stateRepo  scanning.StateRepository
	pipeline   scanning.DetectionPipeline
	extender   scanning.ExecutionExtender
	notifier   scanning.Notifier
	reporter   ProgressReporter

	// mu guards status, state and runDone. The run loop takes it briefly per
	// item so the read surface always sees a consistent snapshot.
	mu      sync.Mutex
	status  scanning.ScanStatus
	state   *scanning.ScanState
	runDone chan struct{}

	cancelRequested atomic.Bool
	expireRequested atomic.Bool

	metrics ScanMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// OrchestratorOption defines functional options for configuring a
// ScanOrchestrator.
type OrchestratorOption func(*ScanOrchestrator)

// WithBatchSize overrides how many items are processed between checkpoints.
func WithBatchSize(n int) OrchestratorOption {
	return func(o *ScanOrchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithProgressReporter sets the sink for per-item progress snapshots.
func WithProgressReporter(r ProgressReporter) OrchestratorOption {
	return func(o *ScanOrchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// NewScanOrchestrator creates an orchestrator bound to the given confidence
// threshold (0-100). Persisted progress stamped with a different threshold is
// discarded on load.
func NewScanOrchestrator(
	threshold int,
	mediaStore scanning.MediaStore,
	stateRepo scanning.StateRepository,
	pipeline scanning.DetectionPipeline,
	extender scanning.ExecutionExtender,
	notifier scanning.Notifier,
	metrics ScanMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...OrchestratorOption,
) *ScanOrchestrator {
	o := &ScanOrchestrator{
		threshold:  threshold,
		batchSize:  defaultBatchSize,
		mediaStore: mediaStore,
		stateRepo:  stateRepo,
		pipeline:   pipeline,
		extender:   extender,
		notifier:   notifier,
		reporter:   NoopProgressReporter{},
		status:     scanning.ScanStatusIdle,
		metrics:    metrics,
		logger:     log.With("component", "scan_orchestrator"),
		tracer:     tracer,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Start begins a fresh run, discarding any persisted progress. It blocks
// until the run completes, is cancelled, or yields on budget expiry. Returns
// nil immediately when a run is already in flight.
func (o *ScanOrchestrator) Start(ctx context.Context) error {
	return o.run(ctx, false)
}

// ResumeOrStart continues from the persisted checkpoint when one with
// unfinished progress exists, otherwise it behaves like Start. A checkpoint
// already marked complete is honored as-is: the call returns success without
// enumerating or touching any state. It blocks until the run yields. Returns
// nil immediately when a run is already in flight.
func (o *ScanOrchestrator) ResumeOrStart(ctx context.Context) error {
	return o.run(ctx, true)
}

// Cancel requests cooperative cancellation. The run observes the request at
// the next iteration boundary, checkpoints, and stops. Calling Cancel with no
// run in flight has no effect.
func (o *ScanOrchestrator) Cancel() { o.cancelRequested.Store(true) }

// Status returns the current lifecycle status.
func (o *ScanOrchestrator) Status() scanning.ScanStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Progress returns a point-in-time snapshot of the run.
func (o *ScanOrchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progressLocked()
}

func (o *ScanOrchestrator) progressLocked() Progress {
	p := Progress{Running: o.status == scanning.ScanStatusRunning}
	if o.state != nil {
		p.Total = o.state.Total()
		p.Processed = o.state.CursorIndex()
		p.Matched = o.state.SelectedCount()
		p.Completed = o.state.Completed()
	}
	return p
}

// SelectedAssetIDs returns the identifiers flagged so far, in stable sorted
// order. With no run in memory it consults the persisted state. The copy is
// taken under the run lock so readers never observe the loop mid-write.
func (o *ScanOrchestrator) SelectedAssetIDs(ctx context.Context) ([]string, error) {
	o.mu.Lock()
	if o.state != nil {
		ids := o.state.SelectedIDs()
		o.mu.Unlock()
		return ids, nil
	}
	o.mu.Unlock()

	state, err := o.stateRepo.LoadOrCreate(ctx, o.threshold)
	if err != nil {
		return nil, err
	}
	return state.SelectedIDs(), nil
}

// IsCompleted reports whether the current run reached the end of the asset
// list. With no run in memory it consults the persisted state.
func (o *ScanOrchestrator) IsCompleted(ctx context.Context) (bool, error) {
	o.mu.Lock()
	if o.state != nil {
		completed := o.state.Completed()
		o.mu.Unlock()
		return completed, nil
	}
	o.mu.Unlock()

	state, err := o.stateRepo.LoadOrCreate(ctx, o.threshold)
	if err != nil {
		return false, err
	}
	return state.Completed(), nil
}

// Checkpoint durably persists the run's current progress. The loop calls it
// every batch; it is also safe to call externally at any time.
func (o *ScanOrchestrator) Checkpoint(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.checkpointLocked(ctx)
}

func (o *ScanOrchestrator) checkpointLocked(ctx context.Context) error {
	if o.state == nil {
		return nil
	}

	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.checkpoint",
		trace.WithAttributes(
			attribute.String("run_id", o.state.RunID().String()),
			attribute.Int("cursor_index", o.state.CursorIndex()),
		))
	defer span.End()

	if err := o.stateRepo.Save(ctx, o.state); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save scan state")
		return fmt.Errorf("saving scan state: %w", err)
	}

	o.metrics.IncCheckpointsWritten(ctx)
	return nil
}

// Reset cancels any in-flight run, then discards both in-memory and persisted
// progress. The next Start enumerates from scratch.
func (o *ScanOrchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	if o.status == scanning.ScanStatusRunning {
		done := o.runDone
		o.mu.Unlock()

		o.cancelRequested.Store(true)
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		o.mu.Lock()
	}

	o.state = nil
	o.status = scanning.ScanStatusIdle
	o.mu.Unlock()

	return o.stateRepo.Reset(ctx)
}

// run is the single entry point for Start and ResumeOrStart.
func (o *ScanOrchestrator) run(ctx context.Context, resume bool) error {
	o.mu.Lock()
	if o.status == scanning.ScanStatusRunning {
		o.mu.Unlock()
		o.logger.Info(ctx, "scan already running, ignoring start request")
		return nil
	}

	// A completed run is terminal; starting again synthesizes a new run.
	from := o.status
	if from == scanning.ScanStatusCompleted {
		from = scanning.ScanStatusIdle
	}
	if err := from.ValidateTransition(scanning.ScanStatusRunning); err != nil {
		o.mu.Unlock()
		return err
	}
	o.status = scanning.ScanStatusRunning
	done := make(chan struct{})
	o.runDone = done
	o.mu.Unlock()

	defer close(done)

	o.cancelRequested.Store(false)
	o.expireRequested.Store(false)

	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.run",
		trace.WithAttributes(
			attribute.Bool("resume", resume),
			attribute.Int("threshold", o.threshold),
		))
	defer span.End()

	// A resume over an already-completed run is a no-op: no enumeration, no
	// fetches, no state writes. Only a fresh Start synthesizes a new run.
	var persisted *scanning.ScanState
	if resume {
		loaded, err := o.stateRepo.LoadOrCreate(ctx, o.threshold)
		if err != nil {
			o.setStatus(ctx, scanning.ScanStatusIdle)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load scan state")
			return fmt.Errorf("loading scan state: %w", err)
		}
		if loaded.Completed() {
			o.mu.Lock()
			o.state = loaded
			o.mu.Unlock()
			o.setStatus(ctx, scanning.ScanStatusCompleted)
			span.AddEvent("scan_already_completed")
			o.logger.Info(ctx, "persisted scan already completed, nothing to do",
				"run_id", loaded.RunID().String(),
				"total", loaded.Total())
			return nil
		}
		persisted = loaded
	}

	granted, err := o.mediaStore.RequestAccess(ctx)
	if err != nil {
		o.setStatus(ctx, scanning.ScanStatusIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, "media access request failed")
		return fmt.Errorf("requesting media access: %w", err)
	}
	if !granted {
		o.setStatus(ctx, scanning.ScanStatusIdle)
		span.AddEvent("media_access_denied")
		o.logger.Warn(ctx, "media library access denied, aborting scan")
		return fmt.Errorf("media library access denied")
	}

	// Notification permission is best-effort; a denial never blocks the scan.
	if ok, err := o.notifier.RequestPermission(ctx); err != nil {
		o.logger.Warn(ctx, "notification permission request failed", "error", err)
	} else if !ok {
		o.logger.Info(ctx, "notification permission denied, scan proceeds silently")
	}

	state, resumed, err := o.prepareState(ctx, persisted)
	if err != nil {
		o.setStatus(ctx, scanning.ScanStatusIdle)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to prepare scan state")
		return err
	}

	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	if resumed {
		o.metrics.IncRunsResumed(ctx)
		o.logger.Info(ctx, "resuming scan from checkpoint",
			"run_id", state.RunID().String(),
			"cursor_index", state.CursorIndex(),
			"total", state.Total())
	} else {
		o.metrics.IncRunsStarted(ctx)
		o.logger.Info(ctx, "starting fresh scan",
			"run_id", state.RunID().String(),
			"total", state.Total())
		if err := o.Checkpoint(ctx); err != nil {
			o.setStatus(ctx, scanning.ScanStatusIdle)
			return err
		}
	}

	token, err := o.extender.Begin(o.onBudgetExpiring)
	hasGrant := err == nil
	if err != nil {
		o.logger.Warn(ctx, "execution extension unavailable, running without grant", "error", err)
	}
	endGrant := func() {
		if hasGrant {
			o.extender.End(token)
			hasGrant = false
		}
	}
	defer endGrant()

	return o.loop(ctx, span, endGrant)
}

// prepareState builds the ScanState for this run. A persisted state with
// unfinished progress resumes; anything else enumerates afresh.
func (o *ScanOrchestrator) prepareState(ctx context.Context, persisted *scanning.ScanState) (*scanning.ScanState, bool, error) {
	if persisted != nil && persisted.Total() > 0 && !persisted.Completed() {
		return persisted, true, nil
	}

	assetIDs, err := o.mediaStore.ListAll(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("enumerating media library: %w", err)
	}
	return scanning.NewScanState(o.threshold, assetIDs), false, nil
}

// onBudgetExpiring is the extension bridge's expiry callback. The only safe
// response is to flag the loop; it checkpoints and yields at the next
// iteration boundary.
func (o *ScanOrchestrator) onBudgetExpiring() {
	o.expireRequested.Store(true)
	o.metrics.IncBudgetExpirations(context.Background())
	o.logger.Warn(context.Background(), "execution budget expiring, scan will yield")
}

// loop processes items until exhaustion, cancellation, or budget expiry.
// Every exit path checkpoints and releases the extension grant.
func (o *ScanOrchestrator) loop(ctx context.Context, span trace.Span, endGrant func()) error {
	sinceCheckpoint := 0

	for {
		if o.cancelRequested.Load() || ctx.Err() != nil {
			return o.yieldCancelled(ctx, span, endGrant)
		}
		if o.expireRequested.Load() {
			return o.yieldExpired(ctx, span, endGrant)
		}

		o.mu.Lock()
		id, ok := o.state.CurrentAssetID()
		o.mu.Unlock()
		if !ok {
			break
		}

		matched, err := o.processItem(ctx, id)
		if err != nil {
			// Item-level failures are logged and skipped; the run survives.
			o.logger.Error(ctx, "failed to process item", "asset_id", id, "error", err)
		}

		o.mu.Lock()
		if matched {
			if err := o.state.MarkMatched(); err != nil {
				o.mu.Unlock()
				return err
			}
		}
		if err := o.state.Advance(); err != nil {
			o.mu.Unlock()
			return err
		}
		progress := o.progressLocked()
		o.mu.Unlock()

		o.metrics.IncItemsProcessed(ctx)
		if matched {
			o.metrics.IncItemsMatched(ctx)
		}
		o.reporter.ReportProgress(progress)

		sinceCheckpoint++
		if sinceCheckpoint >= o.batchSize {
			if err := o.Checkpoint(ctx); err != nil {
				o.logger.Error(ctx, "checkpoint failed, continuing scan", "error", err)
			}
			sinceCheckpoint = 0
		}
	}

	return o.finish(ctx, span, endGrant)
}

// processItem fetches and classifies a single asset. A missing item is
// skipped without error; the cursor still advances past it.
func (o *ScanOrchestrator) processItem(ctx context.Context, id string) (bool, error) {
	content, err := o.mediaStore.Fetch(ctx, id)
	if err != nil {
		return false, fmt.Errorf("fetching asset %s: %w", id, err)
	}
	if content == nil {
		o.metrics.IncItemsSkipped(ctx)
		o.logger.Debug(ctx, "asset no longer exists, skipping", "asset_id", id)
		return false, nil
	}

	start := time.Now()
	outcome, err := o.pipeline.Classify(ctx, content)
	o.metrics.ObserveItemClassifyTime(ctx, time.Since(start))
	if err != nil {
		return false, fmt.Errorf("classifying asset %s: %w", id, err)
	}

	return outcome.Matched(), nil
}

// finish marks the run complete and announces the result.
func (o *ScanOrchestrator) finish(ctx context.Context, span trace.Span, endGrant func()) error {
	o.mu.Lock()
	if err := o.state.Complete(); err != nil {
		o.mu.Unlock()
		return err
	}
	if err := o.checkpointLocked(ctx); err != nil {
		o.mu.Unlock()
		return err
	}
	matched := o.state.SelectedCount()
	o.mu.Unlock()

	endGrant()
	o.extender.CancelContinuations()

	o.setStatus(ctx, scanning.ScanStatusCompleted)
	o.metrics.IncRunsCompleted(ctx)
	span.AddEvent("scan_completed", trace.WithAttributes(attribute.Int("matched", matched)))
	o.logger.Info(ctx, "scan completed", "matched", matched)

	if err := o.notifier.NotifyScanComplete(ctx, matched); err != nil {
		o.logger.Warn(ctx, "failed to deliver completion notification", "error", err)
	}

	o.reporter.ReportProgress(o.Progress())
	return nil
}

// yieldCancelled checkpoints and stops in response to a cancellation request.
func (o *ScanOrchestrator) yieldCancelled(ctx context.Context, span trace.Span, endGrant func()) error {
	if err := o.Checkpoint(ctx); err != nil {
		o.logger.Error(ctx, "checkpoint on cancellation failed", "error", err)
	}

	endGrant()
	o.extender.CancelContinuations()

	o.setStatus(ctx, scanning.ScanStatusCancelled)
	span.AddEvent("scan_cancelled")
	o.logger.Info(ctx, "scan cancelled", "progress", o.Progress().Processed)

	o.reporter.ReportProgress(o.Progress())
	return nil
}

// yieldExpired checkpoints, asks the host for a later continuation, and
// returns the orchestrator to idle so ResumeOrStart can pick the run back up.
func (o *ScanOrchestrator) yieldExpired(ctx context.Context, span trace.Span, endGrant func()) error {
	if err := o.Checkpoint(ctx); err != nil {
		o.logger.Error(ctx, "checkpoint on budget expiry failed", "error", err)
	}

	if err := o.extender.ScheduleContinuation(); err != nil {
		o.logger.Warn(ctx, "failed to schedule continuation", "error", err)
	}
	endGrant()

	o.setStatus(ctx, scanning.ScanStatusIdle)
	span.AddEvent("scan_yielded_on_budget")
	o.logger.Info(ctx, "scan yielded on execution budget", "progress", o.Progress().Processed)

	o.reporter.ReportProgress(o.Progress())
	return nil
}

func (o *ScanOrchestrator) setStatus(ctx context.Context, target scanning.ScanStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.status.ValidateTransition(target); err != nil {
		o.logger.Error(ctx, "invalid scan status transition", "error", err)
		return
	}
	o.status = target
}
