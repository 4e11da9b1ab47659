// Package scanstate provides durable storage for the device's single scan
// progress record. The record is a convenience cache of scan progress, not
// the source of truth for which photos exist, so any unreadable or malformed
// record is silently replaced with a fresh empty state.
package scanstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

var _ scanning.StateRepository = (*Store)(nil)

// Store persists the ScanState record as a single JSON file in the app's
// private storage area. Every save rewrites the whole record through a
// temp-file rename so readers never observe a torn write.
type Store struct {
	path string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewStore creates a Store rooted at the given file path. Parent directories
// are created on first save.
func NewStore(path string, logger *logger.Logger, tracer trace.Tracer) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "scan_state_store"),
		tracer: tracer,
	}
}

// LoadOrCreate returns the persisted state when present and well-formed.
// A missing, corrupt, or threshold-mismatched record yields a fresh empty
// state stamped with the requested threshold. Changing the sensitivity
// threshold changes which items would have matched, so stale progress under
// a different threshold is unsound to keep.
func (s *Store) LoadOrCreate(ctx context.Context, threshold int) (*scanning.ScanState, error) {
	ctx, span := s.tracer.Start(ctx, "scan_state_store.load_or_create",
		trace.WithAttributes(
			attribute.String("path", s.path),
			attribute.Int("threshold", threshold),
		),
	)
	defer span.End()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn(ctx, "failed to read persisted scan state, starting fresh", "error", err)
			span.AddEvent("unreadable_state_replaced")
		}
		return scanning.NewScanState(threshold, nil), nil
	}

	var state scanning.ScanState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn(ctx, "corrupt scan state record, starting fresh", "error", err)
		span.AddEvent("corrupt_state_replaced")
		return scanning.NewScanState(threshold, nil), nil
	}

	if state.Threshold() != threshold {
		s.logger.Info(ctx, "threshold changed, discarding stored progress",
			"stored_threshold", state.Threshold(),
			"requested_threshold", threshold,
		)
		span.AddEvent("threshold_mismatch_invalidated")
		return scanning.NewScanState(threshold, nil), nil
	}

	span.SetAttributes(
		attribute.Int("cursor_index", state.CursorIndex()),
		attribute.Int("total", state.Total()),
		attribute.Bool("completed", state.Completed()),
	)
	span.SetStatus(codes.Ok, "state loaded")

	return &state, nil
}

// Save atomically replaces the persisted record with the given state.
func (s *Store) Save(ctx context.Context, state *scanning.ScanState) error {
	ctx, span := s.tracer.Start(ctx, "scan_state_store.save",
		trace.WithAttributes(
			attribute.Int("cursor_index", state.CursorIndex()),
			attribute.Int("selected_count", state.SelectedCount()),
			attribute.Bool("completed", state.Completed()),
		),
	)
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal scan state")
		return fmt.Errorf("failed to marshal scan state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create state directory")
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".scanstate-*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create temp state file")
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write state")
		return fmt.Errorf("failed to write scan state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to sync state")
		return fmt.Errorf("failed to sync scan state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to close temp state file")
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to replace state file")
		return fmt.Errorf("failed to replace scan state file: %w", err)
	}

	span.SetStatus(codes.Ok, "state saved")
	return nil
}

// Reset deletes the persisted record. It is idempotent: resetting when no
// record exists is not an error.
func (s *Store) Reset(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "scan_state_store.reset",
		trace.WithAttributes(attribute.String("path", s.path)),
	)
	defer span.End()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete state file")
		return fmt.Errorf("failed to delete scan state file: %w", err)
	}

	s.logger.Info(ctx, "scan state reset")
	span.SetStatus(codes.Ok, "state reset")
	return nil
}
