package scanning

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanState(t *testing.T) {
	t.Parallel()

	assetIDs := []string{"a", "b", "c"}
	state := NewScanState(70, assetIDs)

	assert.NotEqual(t, uuid.Nil, state.RunID())
	assert.Equal(t, 70, state.Threshold())
	assert.Equal(t, 3, state.Total())
	assert.Equal(t, 0, state.CursorIndex())
	assert.Empty(t, state.SelectedIDs())
	assert.False(t, state.Completed())
	assert.False(t, state.Exhausted())
}

func TestScanState_MarkMatchedAndAdvance(t *testing.T) {
	t.Parallel()

	state := NewScanState(70, []string{"a", "b"})

	id, ok := state.CurrentAssetID()
	require.True(t, ok)
	assert.Equal(t, "a", id)

	require.NoError(t, state.MarkMatched())
	require.NoError(t, state.Advance())

	assert.Equal(t, 1, state.CursorIndex())
	assert.True(t, state.IsSelected("a"))
	assert.False(t, state.IsSelected("b"))

	require.NoError(t, state.Advance())
	assert.True(t, state.Exhausted())

	// Past the end both operations fail.
	assert.ErrorIs(t, state.Advance(), ErrCursorExhausted)
	assert.ErrorIs(t, state.MarkMatched(), ErrCursorExhausted)
}

func TestScanState_CursorMonotonic(t *testing.T) {
	t.Parallel()

	state := NewScanState(50, []string{"a", "b", "c", "d"})

	prev := state.CursorIndex()
	for !state.Exhausted() {
		require.NoError(t, state.Advance())
		assert.Greater(t, state.CursorIndex(), prev)
		prev = state.CursorIndex()
	}
	assert.Equal(t, 4, state.CursorIndex())
}

func TestScanState_Complete(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func() *ScanState
		wantErr bool
	}{
		{
			name: "complete after exhaustion",
			setup: func() *ScanState {
				s := NewScanState(70, []string{"a"})
				_ = s.Advance()
				return s
			},
		},
		{
			name: "complete with remaining assets fails",
			setup: func() *ScanState {
				return NewScanState(70, []string{"a", "b"})
			},
			wantErr: true,
		},
		{
			name: "complete empty list",
			setup: func() *ScanState {
				return NewScanState(70, nil)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			state := tt.setup()
			err := state.Complete()
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, state.Completed())
				return
			}
			require.NoError(t, err)
			assert.True(t, state.Completed())

			// Idempotent.
			require.NoError(t, state.Complete())
		})
	}
}

func TestScanState_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	state := NewScanState(85, []string{"x", "y", "z"})
	require.NoError(t, state.MarkMatched())
	require.NoError(t, state.Advance())

	data, err := json.Marshal(state)
	require.NoError(t, err)

	var got ScanState
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, state.RunID(), got.RunID())
	assert.Equal(t, state.AssetIDs(), got.AssetIDs())
	assert.Equal(t, 1, got.CursorIndex())
	assert.Equal(t, []string{"x"}, got.SelectedIDs())
	assert.Equal(t, 85, got.Threshold())
	assert.False(t, got.Completed())
}

func TestScanState_UnmarshalRejectsBadCursor(t *testing.T) {
	t.Parallel()

	raw := `{"run_id":"` + uuid.NewString() + `","asset_ids":["a"],"cursor_index":5,"selected_ids":[],"threshold":70,"completed":false}`

	var got ScanState
	require.Error(t, json.Unmarshal([]byte(raw), &got))
}

func TestReconstructScanState(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	now := time.Now()
	state := ReconstructScanState(runID, []string{"a", "b", "c"}, 2, []string{"b"}, 60, false, now, now)

	assert.Equal(t, runID, state.RunID())
	assert.Equal(t, 2, state.CursorIndex())
	assert.True(t, state.IsSelected("b"))
	assert.Equal(t, 1, state.SelectedCount())
	assert.Equal(t, 60, state.Threshold())
}
