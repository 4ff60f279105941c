// Package coalesce implements the multi-request context (component E):
// fan one underlying execution out to every caller requesting the same
// key while it is in flight, instead of issuing duplicate work.
package coalesce

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heremaps/olp-sdk-go/cancel"
)

// ExecuteFn starts the underlying work for a newly-seen key. It must
// invoke complete exactly once when the work finishes, and it returns the
// work's own cancellation context so the coalescer can cancel it early if
// every subscriber leaves before it completes.
type ExecuteFn[Response any] func(complete func(Response)) *cancel.Context

type requestContext[Response any] struct {
	workCtx   *cancel.Context
	callbacks map[string]func(Response)
}

// MultiRequestContext coalesces concurrent callers requesting the same key:
// the first caller triggers execute, subsequent callers for the same key
// (while it is still in flight) are folded into the same execution and all
// receive its result.
type MultiRequestContext[Response any] struct {
	mu        sync.Mutex
	active    map[string]*requestContext[Response]
	cancelled Response
	logger    *zap.Logger
}

// NewMultiRequestContext returns an empty coalescer. cancelledValue is the
// Response delivered to a subscriber's callback when it unsubscribes via
// its own cancellation instead of seeing the real result.
func NewMultiRequestContext[Response any](cancelledValue Response, logger *zap.Logger) *MultiRequestContext[Response] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiRequestContext[Response]{
		active:    make(map[string]*requestContext[Response]),
		cancelled: cancelledValue,
		logger:    logger,
	}
}

// ExecuteOrAssociate either starts a new execution for key (if none is in
// flight) or associates callback with the one already running. subscriber,
// if non-nil, is the caller's own cancellation context: cancelling it
// detaches only this subscriber's callback (invoked with the cancelled
// value) without affecting other subscribers of the same key; if it was
// the last subscriber, the underlying execution is cancelled too.
func (m *MultiRequestContext[Response]) ExecuteOrAssociate(subscriber *cancel.Context, key string, execute ExecuteFn[Response], callback func(Response)) {
	requestID := uuid.NewString()

	m.mu.Lock()
	rc, exists := m.active[key]
	if !exists {
		rc = &requestContext[Response]{callbacks: make(map[string]func(Response))}
		m.active[key] = rc
	}
	rc.callbacks[requestID] = callback
	m.mu.Unlock()

	if !exists {
		m.logger.Debug("coalesce: new execution", zap.String("key", key))
		rc.workCtx = execute(func(response Response) {
			m.onRequestCompleted(key, response)
		})
	} else {
		m.logger.Debug("coalesce: joined in-flight execution", zap.String("key", key))
	}

	if subscriber != nil {
		subscriber.RegisterCleanup(func() {
			m.onRequestCancelled(key, requestID)
		})
	}
}

func (m *MultiRequestContext[Response]) onRequestCompleted(key string, response Response) {
	m.mu.Lock()
	rc, ok := m.active[key]
	if ok {
		delete(m.active, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	for _, cb := range rc.callbacks {
		cb(response)
	}
}

func (m *MultiRequestContext[Response]) onRequestCancelled(key, requestID string) {
	m.mu.Lock()
	rc, ok := m.active[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	cb, ok := rc.callbacks[requestID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(rc.callbacks, requestID)
	last := len(rc.callbacks) == 0
	if last {
		delete(m.active, key)
	}
	m.mu.Unlock()

	if last && rc.workCtx != nil {
		rc.workCtx.Cancel()
	}
	cb(m.cancelled)
}

// InFlight reports whether key currently has an execution running — used
// by tests and diagnostics, not the coalescing logic itself.
func (m *MultiRequestContext[Response]) InFlight(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[key]
	return ok
}
