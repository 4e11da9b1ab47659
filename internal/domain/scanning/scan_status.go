package scanning

import (
	"errors"
	"fmt"
)

// ScanStatus represents the lifecycle state of the device's scan run. It
// enforces the single-scan state machine: a scan is started or resumed from
// idle, runs cooperatively, and ends either completed or cancelled.
type ScanStatus string

// ErrScanStatusUnknown is returned when a scan status is unknown.
var ErrScanStatusUnknown = errors.New("scan status unknown")

const (
	// ScanStatusIdle indicates no scan loop is executing.
	ScanStatusIdle ScanStatus = "IDLE"

	// ScanStatusRunning indicates the scan loop is actively processing items.
	ScanStatusRunning ScanStatus = "RUNNING"

	// ScanStatusCompleted indicates the cursor reached the end of the asset list.
	ScanStatusCompleted ScanStatus = "COMPLETED"

	// ScanStatusCancelled indicates the run was cooperatively cancelled before
	// exhaustion. Progress up to the cancellation point is checkpointed.
	ScanStatusCancelled ScanStatus = "CANCELLED"

	// ScanStatusUnspecified is used when a scan status is unknown.
	ScanStatusUnspecified ScanStatus = "UNSPECIFIED"
)

// String returns the string representation of the ScanStatus.
func (s ScanStatus) String() string { return string(s) }

// ParseScanStatus converts a string to a ScanStatus.
func ParseScanStatus(s string) ScanStatus {
	switch s {
	case "IDLE":
		return ScanStatusIdle
	case "RUNNING":
		return ScanStatusRunning
	case "COMPLETED":
		return ScanStatusCompleted
	case "CANCELLED":
		return ScanStatusCancelled
	default:
		return ScanStatusUnspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s ScanStatus) ValidateTransition(target ScanStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid scan status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. A completed run is terminal; a fresh start synthesizes a new run
// rather than mutating this one.
func (s ScanStatus) isValidTransition(target ScanStatus) bool {
	switch s {
	case ScanStatusIdle:
		return target == ScanStatusRunning
	case ScanStatusRunning:
		return target == ScanStatusCompleted || target == ScanStatusCancelled || target == ScanStatusIdle
	case ScanStatusCancelled:
		// A cancelled run may be resumed from its checkpoint.
		return target == ScanStatusRunning
	case ScanStatusCompleted:
		return false
	case ScanStatusUnspecified:
		return false
	default:
		return false
	}
}
