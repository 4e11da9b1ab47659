package scanning

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ErrCursorExhausted is returned when progress is recorded past the end of
// the asset list.
var ErrCursorExhausted = fmt.Errorf("scan cursor already at end of asset list")

// ScanState is the single durable record describing one scan run's progress.
// It owns the enumerated asset list, the cursor into it, and the set of
// identifiers flagged so far. The orchestrator is the only writer; everything
// else reads snapshots.
//
// Invariants: 0 <= cursorIndex <= len(assetIDs); every selected identifier
// lies in assetIDs[0:cursorIndex]; completed is true only once the cursor
// reached the end of the list.
type ScanState struct {
	// Identity.
	runID uuid.UUID

	// Progress.
	assetIDs    []string
	cursorIndex int
	selectedIDs map[string]struct{}

	// Configuration this run is bound to. Changing the threshold invalidates
	// all prior progress, so it is immutable for the lifetime of the run.
	threshold int

	completed bool

	createdAt time.Time
	updatedAt time.Time
}

// NewScanState creates a fresh state for a new run over the enumerated asset
// list. The cursor starts at zero with an empty selection.
func NewScanState(threshold int, assetIDs []string) *ScanState {
	now := time.Now()
	return &ScanState{
		runID:       uuid.New(),
		assetIDs:    assetIDs,
		cursorIndex: 0,
		selectedIDs: make(map[string]struct{}),
		threshold:   threshold,
		completed:   false,
		createdAt:   now,
		updatedAt:   now,
	}
}

// ReconstructScanState creates a ScanState from persisted data without
// enforcing creation-time invariants. This should only be used by the state
// store when reconstructing from storage.
func ReconstructScanState(
	runID uuid.UUID,
	assetIDs []string,
	cursorIndex int,
	selectedIDs []string,
	threshold int,
	completed bool,
	createdAt time.Time,
	updatedAt time.Time,
) *ScanState {
	selected := make(map[string]struct{}, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = struct{}{}
	}
	return &ScanState{
		runID:       runID,
		assetIDs:    assetIDs,
		cursorIndex: cursorIndex,
		selectedIDs: selected,
		threshold:   threshold,
		completed:   completed,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// RunID returns the unique identifier for this scan run.
func (s *ScanState) RunID() uuid.UUID { return s.runID }

// Threshold returns the confidence threshold (0-100) this run was configured
// with.
func (s *ScanState) Threshold() int { return s.threshold }

// Completed reports whether the cursor reached the end of the asset list.
func (s *ScanState) Completed() bool { return s.completed }

// Total returns the number of enumerated assets.
func (s *ScanState) Total() int { return len(s.assetIDs) }

// CursorIndex returns the index of the next unprocessed asset.
func (s *ScanState) CursorIndex() int { return s.cursorIndex }

// CreatedAt returns when this run was created.
func (s *ScanState) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns when this run last recorded progress.
func (s *ScanState) UpdatedAt() time.Time { return s.updatedAt }

// AssetIDs returns a copy of the enumerated asset list.
func (s *ScanState) AssetIDs() []string {
	out := make([]string, len(s.assetIDs))
	copy(out, s.assetIDs)
	return out
}

// CurrentAssetID returns the identifier under the cursor, or false when the
// list is exhausted.
func (s *ScanState) CurrentAssetID() (string, bool) {
	if s.cursorIndex >= len(s.assetIDs) {
		return "", false
	}
	return s.assetIDs[s.cursorIndex], true
}

// MarkMatched records the asset under the cursor as flagged. It must be
// called before Advance so the selection stays within the processed prefix.
func (s *ScanState) MarkMatched() error {
	id, ok := s.CurrentAssetID()
	if !ok {
		return ErrCursorExhausted
	}
	s.selectedIDs[id] = struct{}{}
	s.updatedAt = time.Now()
	return nil
}

// Advance moves the cursor past the current asset. The cursor is strictly
// monotonic; it never decreases except through a full reset.
func (s *ScanState) Advance() error {
	if s.cursorIndex >= len(s.assetIDs) {
		return ErrCursorExhausted
	}
	s.cursorIndex++
	s.updatedAt = time.Now()
	return nil
}

// Exhausted reports whether the cursor has passed the last asset.
func (s *ScanState) Exhausted() bool { return s.cursorIndex >= len(s.assetIDs) }

// Complete marks the run complete. It is idempotent and returns an error if
// unprocessed assets remain.
func (s *ScanState) Complete() error {
	if s.completed {
		return nil
	}
	if !s.Exhausted() {
		return fmt.Errorf("cannot complete scan: %d of %d assets unprocessed",
			len(s.assetIDs)-s.cursorIndex, len(s.assetIDs))
	}
	s.completed = true
	s.updatedAt = time.Now()
	return nil
}

// SelectedIDs returns the flagged identifiers in a stable sorted order.
func (s *ScanState) SelectedIDs() []string {
	out := make([]string, 0, len(s.selectedIDs))
	for id := range s.selectedIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsSelected reports whether the given identifier was flagged.
func (s *ScanState) IsSelected(id string) bool {
	_, ok := s.selectedIDs[id]
	return ok
}

// SelectedCount returns the number of flagged identifiers.
func (s *ScanState) SelectedCount() int { return len(s.selectedIDs) }

// scanStateDTO mirrors the persisted layout of a ScanState record.
type scanStateDTO struct {
	RunID       string    `json:"run_id"`
	AssetIDs    []string  `json:"asset_ids"`
	CursorIndex int       `json:"cursor_index"`
	SelectedIDs []string  `json:"selected_ids"`
	Threshold   int       `json:"threshold"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MarshalJSON serializes the ScanState object into a JSON byte array.
func (s *ScanState) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}

	dto := scanStateDTO{
		RunID:       s.runID.String(),
		AssetIDs:    s.assetIDs,
		CursorIndex: s.cursorIndex,
		SelectedIDs: s.SelectedIDs(),
		Threshold:   s.threshold,
		Completed:   s.completed,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}

	return json.Marshal(&dto)
}

// UnmarshalJSON deserializes JSON data into a ScanState object.
func (s *ScanState) UnmarshalJSON(data []byte) error {
	if s == nil {
		return fmt.Errorf("cannot unmarshal JSON into nil ScanState")
	}

	var dto scanStateDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return err
	}

	runID, err := uuid.Parse(dto.RunID)
	if err != nil {
		return fmt.Errorf("invalid run ID: %w", err)
	}

	if dto.CursorIndex < 0 || dto.CursorIndex > len(dto.AssetIDs) {
		return fmt.Errorf("cursor index %d out of range [0, %d]", dto.CursorIndex, len(dto.AssetIDs))
	}

	selected := make(map[string]struct{}, len(dto.SelectedIDs))
	for _, id := range dto.SelectedIDs {
		selected[id] = struct{}{}
	}

	s.runID = runID
	s.assetIDs = dto.AssetIDs
	s.cursorIndex = dto.CursorIndex
	s.selectedIDs = selected
	s.threshold = dto.Threshold
	s.completed = dto.Completed
	s.createdAt = dto.CreatedAt
	s.updatedAt = dto.UpdatedAt

	return nil
}
