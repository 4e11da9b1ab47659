package extension

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

func TestBudgetBridge_ExpiryFiresOnce(t *testing.T) {
	t.Parallel()

	bridge := NewBudgetBridge(logger.Noop(), WithBudget(30*time.Millisecond, 20*time.Millisecond))

	var fired atomic.Int32
	token, err := bridge.Begin(func() { fired.Add(1) })
	require.NoError(t, err)
	require.NotZero(t, token)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The callback never fires a second time.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestBudgetBridge_EndBeforeExpirySuppressesCallback(t *testing.T) {
	t.Parallel()

	bridge := NewBudgetBridge(logger.Noop(), WithBudget(200*time.Millisecond, 20*time.Millisecond))

	var fired atomic.Int32
	token, err := bridge.Begin(func() { fired.Add(1) })
	require.NoError(t, err)

	bridge.End(token)
	assert.Equal(t, 0, bridge.ActiveGrants())

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestBudgetBridge_EndIdempotent(t *testing.T) {
	t.Parallel()

	bridge := NewBudgetBridge(logger.Noop())

	token, err := bridge.Begin(func() {})
	require.NoError(t, err)

	bridge.End(token)
	bridge.End(token)
	bridge.End(scanning.ExtensionToken(999))
	assert.Equal(t, 0, bridge.ActiveGrants())
}

func TestBudgetBridge_BeginRequiresCallback(t *testing.T) {
	t.Parallel()

	bridge := NewBudgetBridge(logger.Noop())
	_, err := bridge.Begin(nil)
	assert.Error(t, err)
}

func TestBudgetBridge_ContinuationFiresWhenRegistered(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	bridge := NewBudgetBridge(logger.Noop(),
		WithContinuation(10*time.Millisecond, func() { fired.Add(1) }),
	)

	require.NoError(t, bridge.ScheduleContinuation())
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBudgetBridge_CancelContinuations(t *testing.T) {
	t.Parallel()

	var fired atomic.Int32
	bridge := NewBudgetBridge(logger.Noop(),
		WithContinuation(50*time.Millisecond, func() { fired.Add(1) }),
	)

	require.NoError(t, bridge.ScheduleContinuation())
	bridge.CancelContinuations()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestBudgetBridge_NoCallbackRegisteredIsAdvisory(t *testing.T) {
	t.Parallel()

	bridge := NewBudgetBridge(logger.Noop())
	assert.NoError(t, bridge.ScheduleContinuation())
}
