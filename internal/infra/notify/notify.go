// Package notify provides Notifier implementations. The CLI build has no
// system notification center, so notifications are logged.
package notify

import (
	"context"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

var _ scanning.Notifier = (*LogNotifier)(nil)

// LogNotifier satisfies the Notifier port by writing structured log entries.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.With("component", "notifier")}
}

// RequestPermission always grants; there is nothing to ask for on a log sink.
func (n *LogNotifier) RequestPermission(context.Context) (bool, error) { return true, nil }

// NotifyScanComplete logs the completion announcement.
func (n *LogNotifier) NotifyScanComplete(ctx context.Context, matchedCount int) error {
	n.logger.Info(ctx, "scan complete", "matched_count", matchedCount)
	return nil
}
