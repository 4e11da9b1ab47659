// Package mediastore provides MediaStore adapters: a filesystem-backed store
// that treats an image directory as the device photo library, and an
// in-memory store for tests and the demo path.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

var _ scanning.MediaStore = (*FSStore)(nil)

// imageExtensions are the file types the store recognizes as photos.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".heic": {},
	".webp": {},
}

// FSStore is a MediaStore over a directory tree of image files. Asset
// identifiers are paths relative to the root. Enumeration order is stable
// within a session: modification time ascending, path as tiebreak, so a
// resumed scan revisits the same positions.
type FSStore struct {
	root string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewFSStore creates a filesystem media store rooted at the given directory.
func NewFSStore(root string, log *logger.Logger, tracer trace.Tracer) *FSStore {
	return &FSStore{
		root:   root,
		logger: log.With("component", "fs_media_store"),
		tracer: tracer,
	}
}

// RequestAccess reports whether the image root is readable. An unreadable or
// missing root is a routine denial, not an error.
func (s *FSStore) RequestAccess(ctx context.Context) (bool, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			s.logger.Warn(ctx, "media root not accessible", "root", s.root, "error", err)
			return false, nil
		}
		return false, fmt.Errorf("checking media root %s: %w", s.root, err)
	}
	return info.IsDir(), nil
}

// ListAll walks the image root and returns every recognized image as a
// root-relative path, ordered by modification time then path.
func (s *FSStore) ListAll(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "fs_media_store.list_all",
		trace.WithAttributes(attribute.String("root", s.root)))
	defer span.End()

	type entry struct {
		id      string
		modTime time.Time
	}
	var entries []entry

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{id: rel, modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			span.AddEvent("media_root_missing")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to walk media root")
		return nil, fmt.Errorf("walking media root %s: %w", s.root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].modTime.Before(entries[j].modTime)
		}
		return entries[i].id < entries[j].id
	})

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}

	span.SetAttributes(attribute.Int("asset_count", len(ids)))
	s.logger.Debug(ctx, "enumerated media library", "count", len(ids))
	return ids, nil
}

// Fetch reads an asset's bytes. A missing file returns (nil, nil); callers
// treat it as an item deleted since enumeration.
func (s *FSStore) Fetch(ctx context.Context, id string) ([]byte, error) {
	path, err := s.resolve(id)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading asset %s: %w", id, err)
	}
	return content, nil
}

// Delete removes the given assets. Files already gone are ignored so a
// retried commit stays idempotent.
func (s *FSStore) Delete(ctx context.Context, ids []string) error {
	ctx, span := s.tracer.Start(ctx, "fs_media_store.delete",
		trace.WithAttributes(attribute.Int("count", len(ids))))
	defer span.End()

	for _, id := range ids {
		path, err := s.resolve(id)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to delete asset")
			return fmt.Errorf("deleting asset %s: %w", id, err)
		}
	}

	s.logger.Info(ctx, "deleted assets from library", "count", len(ids))
	return nil
}

// resolve maps an identifier back to a path under the root, rejecting
// identifiers that escape it.
func (s *FSStore) resolve(id string) (string, error) {
	path := filepath.Join(s.root, filepath.FromSlash(id))
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("asset identifier %q escapes media root", id)
	}
	return path, nil
}
