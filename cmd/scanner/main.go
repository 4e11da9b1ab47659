package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"

	appscanning "github.com/photosentry/photosentry/internal/app/scanning"
	"github.com/photosentry/photosentry/internal/config"
	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/internal/infra/cloud"
	"github.com/photosentry/photosentry/internal/infra/extension"
	"github.com/photosentry/photosentry/internal/infra/mediastore"
	"github.com/photosentry/photosentry/internal/infra/notify"
	"github.com/photosentry/photosentry/internal/infra/pipeline"
	"github.com/photosentry/photosentry/internal/infra/storage/scanstate"
	"github.com/photosentry/photosentry/internal/infra/vision"
	"github.com/photosentry/photosentry/pkg/common/logger"
	"github.com/photosentry/photosentry/pkg/common/otel"
)

const serviceName = "photosentry-scanner"

func main() {
	_, _ = maxprocs.Set()

	configPath := flag.String("config", "", "path to YAML config file")
	reset := flag.Bool("reset", false, "discard saved scan progress and exit")
	flag.Parse()

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	log := logger.NewWithEvents(os.Stdout, logger.LevelInfo, serviceName, traceIDFn, logEvents)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	var tracer trace.Tracer
	metrics := appscanning.NewNoopMetrics()
	if cfg.Telemetry.Enabled {
		tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      serviceName,
			ExporterEndpoint: cfg.Telemetry.Host,
			Probability:      cfg.Telemetry.SampleRatio,
			ResourceAttributes: map[string]string{
				"library.language": "go",
			},
			InsecureExporter: true,
		})
		if err != nil {
			log.Error(ctx, "failed to initialize telemetry", "error", err)
			os.Exit(1)
		}
		defer telemetryTeardown(ctx)
		tracer = tp.Tracer(serviceName)

		if metrics, err = appscanning.NewScanMetrics(otelapi.GetMeterProvider()); err != nil {
			log.Error(ctx, "failed to create metrics", "error", err)
			os.Exit(1)
		}
	} else {
		tracer = noop.NewTracerProvider().Tracer(serviceName)
	}

	stateStore := scanstate.NewStore(cfg.Scan.StatePath, log, tracer)

	if *reset {
		if err := stateStore.Reset(ctx); err != nil {
			log.Error(ctx, "failed to reset scan state", "error", err)
			os.Exit(1)
		}
		log.Info(ctx, "scan state reset")
		return
	}

	mediaStore := mediastore.NewFSStore(cfg.Media.Root, log, tracer)
	detector := vision.NewEmulatedDetector()
	extractor := vision.NewEmulatedExtractor()

	pipeOpts := []pipeline.Option{}
	if cfg.Scan.MatchPolicy == config.MatchPolicyDetectorOnly {
		pipeOpts = append(pipeOpts, pipeline.WithMatchPolicy(pipeline.MatchPolicyDetectorOnly))
	}
	if cfg.Scan.LabelFile != "" {
		pipeOpts = append(pipeOpts, pipeline.WithLabelResolver(pipeline.NewLabelResolver(
			pipeline.BundledFileLabels(cfg.Scan.LabelFile),
			pipeline.SynthesizedLabels(3),
		)))
	}
	pipe := pipeline.New(detector, extractor, cfg.Scan.Threshold, log, tracer, pipeOpts...)

	// The continuation channel stands in for the host re-launching the scan
	// after a deferred continuation comes due.
	continuations := make(chan struct{}, 1)
	bridge := extension.NewBudgetBridge(log,
		extension.WithBudget(cfg.Extension.Budget, cfg.Extension.Warning),
		extension.WithContinuation(time.Second, func() {
			select {
			case continuations <- struct{}{}:
			default:
			}
		}),
	)

	notifier := notify.NewLogNotifier(log)

	orch := appscanning.NewScanOrchestrator(
		cfg.Scan.Threshold,
		mediaStore,
		stateStore,
		pipe,
		bridge,
		notifier,
		metrics,
		log,
		tracer,
		appscanning.WithBatchSize(cfg.Scan.BatchSize),
	)

	var classifier scanning.RiskClassifier
	if cfg.Cloud.Consented {
		classifier = cloud.NewClassifier(cloud.Config{
			Endpoint:  cfg.Cloud.Endpoint,
			APIKey:    cfg.Cloud.APIKey,
			Consented: true,
			Timeout:   cfg.Cloud.Timeout,
			RPS:       cfg.Cloud.RPS,
			Burst:     cfg.Cloud.Burst,
		}, log, tracer)
	}

	review := appscanning.NewReviewService(
		cfg.Scan.Threshold, orch, mediaStore, detector, extractor, classifier, log, tracer)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Info(ctx, "received shutdown signal", "signal", sig.String())
		orch.Cancel()
		cancel()
	}()

	log.Info(ctx, "starting scan",
		"media_root", cfg.Media.Root,
		"threshold", cfg.Scan.Threshold,
		"batch_size", cfg.Scan.BatchSize)

	// Each ResumeOrStart call is one host-granted run segment: it returns when
	// the scan completes, is cancelled, or yields on the execution budget. A
	// yielded scan waits for its continuation and picks up from the checkpoint.
	for {
		if err := orch.ResumeOrStart(ctx); err != nil {
			log.Error(ctx, "scan failed", "error", err)
			os.Exit(1)
		}

		status := orch.Status()
		if status == scanning.ScanStatusCompleted || status == scanning.ScanStatusCancelled {
			break
		}

		select {
		case <-continuations:
			log.Info(ctx, "continuation granted, resuming scan")
		case <-ctx.Done():
			log.Info(ctx, "shutdown before continuation, exiting")
			return
		}
	}

	if orch.Status() != scanning.ScanStatusCompleted {
		return
	}

	flagged, err := review.FlaggedItems(ctx)
	if err != nil {
		log.Error(ctx, "failed to load flagged items", "error", err)
		os.Exit(1)
	}

	log.Info(ctx, "scan finished", "flagged_count", len(flagged))
	for _, id := range flagged {
		if classifier == nil {
			log.Info(ctx, "flagged item", "asset_id", id)
			continue
		}

		analysis, err := review.Analyze(ctx, id)
		if err != nil {
			log.Error(ctx, "failed to analyze flagged item", "asset_id", id, "error", err)
			continue
		}
		log.Info(ctx, "flagged item",
			"asset_id", id,
			"risk_level", analysis.RiskLevel().String(),
			"explanation", analysis.Explanation())
	}
}
