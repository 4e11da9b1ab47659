package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ScanMetrics defines metrics operations needed by the scan orchestrator.
type ScanMetrics interface {
	// Item metrics
	IncItemsProcessed(ctx context.Context)
	IncItemsMatched(ctx context.Context)
	IncItemsSkipped(ctx context.Context)
	ObserveItemClassifyTime(ctx context.Context, duration time.Duration)

	// Checkpoint metrics
	IncCheckpointsWritten(ctx context.Context)

	// Run metrics
	IncRunsStarted(ctx context.Context)
	IncRunsResumed(ctx context.Context)
	IncRunsCompleted(ctx context.Context)
	IncBudgetExpirations(ctx context.Context)
}

// scanMetrics implements ScanMetrics.
type scanMetrics struct {
	itemsProcessed   metric.Int64Counter
	itemsMatched     metric.Int64Counter
	itemsSkipped     metric.Int64Counter
	itemClassifyTime metric.Float64Histogram

	checkpointsWritten metric.Int64Counter

	runsStarted       metric.Int64Counter
	runsResumed       metric.Int64Counter
	runsCompleted     metric.Int64Counter
	budgetExpirations metric.Int64Counter
}

const namespace = "photo_scanner"

// NewScanMetrics creates a new scan metrics instance.
func NewScanMetrics(mp metric.MeterProvider) (ScanMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	s := new(scanMetrics)
	var err error

	if s.itemsProcessed, err = meter.Int64Counter(
		"items_processed_total",
		metric.WithDescription("Total number of photos run through the pipeline"),
	); err != nil {
		return nil, err
	}

	if s.itemsMatched, err = meter.Int64Counter(
		"items_matched_total",
		metric.WithDescription("Total number of photos flagged as sensitive"),
	); err != nil {
		return nil, err
	}

	if s.itemsSkipped, err = meter.Int64Counter(
		"items_skipped_total",
		metric.WithDescription("Total number of photos skipped because content was unavailable"),
	); err != nil {
		return nil, err
	}

	if s.itemClassifyTime, err = meter.Float64Histogram(
		"item_classify_duration_seconds",
		metric.WithDescription("Time taken to classify each photo"),
	); err != nil {
		return nil, err
	}

	if s.checkpointsWritten, err = meter.Int64Counter(
		"checkpoints_written_total",
		metric.WithDescription("Total number of durable progress checkpoints"),
	); err != nil {
		return nil, err
	}

	if s.runsStarted, err = meter.Int64Counter(
		"runs_started_total",
		metric.WithDescription("Total number of fresh scan runs started"),
	); err != nil {
		return nil, err
	}

	if s.runsResumed, err = meter.Int64Counter(
		"runs_resumed_total",
		metric.WithDescription("Total number of runs resumed from a checkpoint"),
	); err != nil {
		return nil, err
	}

	if s.runsCompleted, err = meter.Int64Counter(
		"runs_completed_total",
		metric.WithDescription("Total number of runs that reached the end of the asset list"),
	); err != nil {
		return nil, err
	}

	if s.budgetExpirations, err = meter.Int64Counter(
		"budget_expirations_total",
		metric.WithDescription("Total number of execution-budget expiration warnings handled"),
	); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *scanMetrics) IncItemsProcessed(ctx context.Context) { s.itemsProcessed.Add(ctx, 1) }
func (s *scanMetrics) IncItemsMatched(ctx context.Context)   { s.itemsMatched.Add(ctx, 1) }
func (s *scanMetrics) IncItemsSkipped(ctx context.Context)   { s.itemsSkipped.Add(ctx, 1) }

func (s *scanMetrics) ObserveItemClassifyTime(ctx context.Context, d time.Duration) {
	s.itemClassifyTime.Record(ctx, d.Seconds())
}

func (s *scanMetrics) IncCheckpointsWritten(ctx context.Context) { s.checkpointsWritten.Add(ctx, 1) }

func (s *scanMetrics) IncRunsStarted(ctx context.Context)       { s.runsStarted.Add(ctx, 1) }
func (s *scanMetrics) IncRunsResumed(ctx context.Context)       { s.runsResumed.Add(ctx, 1) }
func (s *scanMetrics) IncRunsCompleted(ctx context.Context)     { s.runsCompleted.Add(ctx, 1) }
func (s *scanMetrics) IncBudgetExpirations(ctx context.Context) { s.budgetExpirations.Add(ctx, 1) }

// noopMetrics discards all observations. Used when telemetry is disabled.
type noopMetrics struct{}

// NewNoopMetrics returns a ScanMetrics that discards everything.
func NewNoopMetrics() ScanMetrics { return noopMetrics{} }

func (noopMetrics) IncItemsProcessed(context.Context)                      {}
func (noopMetrics) IncItemsMatched(context.Context)                        {}
func (noopMetrics) IncItemsSkipped(context.Context)                        {}
func (noopMetrics) ObserveItemClassifyTime(context.Context, time.Duration) {}
func (noopMetrics) IncCheckpointsWritten(context.Context)                  {}
func (noopMetrics) IncRunsStarted(context.Context)                         {}
func (noopMetrics) IncRunsResumed(context.Context)                         {}
func (noopMetrics) IncRunsCompleted(context.Context)                       {}
func (noopMetrics) IncBudgetExpirations(context.Context)                   {}
