// Package extension provides an execution-extension bridge backed by a
// wall-clock budget. It stands in for the host scheduling primitive that
// grants background execution time: each grant lives for a fixed budget,
// the registered expiry callback fires once shortly before the deadline,
// and deferred continuations are advisory callbacks that may never run.
package extension

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/photosentry/photosentry/internal/domain/scanning"
	"github.com/photosentry/photosentry/pkg/common/logger"
)

var _ scanning.ExecutionExtender = (*BudgetBridge)(nil)

// DefaultBudget mirrors the short background window hosts typically grant.
const DefaultBudget = 25 * time.Second

// DefaultWarning is how long before the deadline the expiry callback fires.
const DefaultWarning = 3 * time.Second

// ContinuationFunc is invoked when a scheduled deferred continuation comes
// due. The host analog re-launches the scan via ResumeOrStart.
type ContinuationFunc func()

// BudgetBridge implements ExecutionExtender with per-grant timers. It tracks
// outstanding grants so End is idempotent per token and expiry callbacks
// fire at most once.
type BudgetBridge struct {
	budget  time.Duration
	warning time.Duration

	// continuationDelay is how long after ScheduleContinuation the
	// continuation fires, when the bridge honors it at all.
	continuationDelay time.Duration
	continuation      ContinuationFunc

	nextToken atomic.Uint64

	mu            sync.Mutex
	grants        map[scanning.ExtensionToken]*time.Timer
	continuations []*time.Timer

	logger *logger.Logger
}

// BridgeOption defines functional options for configuring a BudgetBridge.
type BridgeOption func(*BudgetBridge)

// WithBudget overrides the per-grant execution budget.
func WithBudget(budget, warning time.Duration) BridgeOption {
	return func(b *BudgetBridge) {
		b.budget = budget
		b.warning = warning
	}
}

// WithContinuation registers the callback invoked when a deferred
// continuation comes due, after the given delay.
func WithContinuation(delay time.Duration, fn ContinuationFunc) BridgeOption {
	return func(b *BudgetBridge) {
		b.continuationDelay = delay
		b.continuation = fn
	}
}

// NewBudgetBridge creates a bridge with the default budget and no
// continuation callback registered.
func NewBudgetBridge(log *logger.Logger, opts ...BridgeOption) *BudgetBridge {
	b := &BudgetBridge{
		budget:            DefaultBudget,
		warning:           DefaultWarning,
		continuationDelay: time.Second,
		grants:            make(map[scanning.ExtensionToken]*time.Timer),
		logger:            log.With("component", "extension_bridge"),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Begin starts a new grant. onExpiring fires once, shortly before the
// grant's deadline, unless End releases the grant first.
func (b *BudgetBridge) Begin(onExpiring func()) (scanning.ExtensionToken, error) {
	if onExpiring == nil {
		return 0, fmt.Errorf("onExpiring callback is required")
	}

	token := scanning.ExtensionToken(b.nextToken.Add(1))

	fireAfter := b.budget - b.warning
	if fireAfter < 0 {
		fireAfter = 0
	}

	var once sync.Once
	timer := time.AfterFunc(fireAfter, func() {
		once.Do(func() {
			b.logger.Warn(context.Background(), "execution grant about to expire", "token", uint64(token))
			onExpiring()
		})
	})

	b.mu.Lock()
	b.grants[token] = timer
	b.mu.Unlock()

	return token, nil
}

// End releases a grant. Releasing an unknown or already-released token is a
// no-op.
func (b *BudgetBridge) End(token scanning.ExtensionToken) {
	b.mu.Lock()
	timer, ok := b.grants[token]
	if ok {
		delete(b.grants, token)
	}
	b.mu.Unlock()

	if ok {
		timer.Stop()
	}
}

// ActiveGrants returns the number of grants that have not been released.
func (b *BudgetBridge) ActiveGrants() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.grants)
}

// ScheduleContinuation arms the registered continuation callback. Without a
// registered callback the request is accepted and dropped, matching hosts
// that silently decline under low-power conditions.
func (b *BudgetBridge) ScheduleContinuation() error {
	if b.continuation == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	timer := time.AfterFunc(b.continuationDelay, b.continuation)
	b.continuations = append(b.continuations, timer)
	return nil
}

// CancelContinuations withdraws all pending continuation requests.
func (b *BudgetBridge) CancelContinuations() {
	b.mu.Lock()
	timers := b.continuations
	b.continuations = nil
	b.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}
