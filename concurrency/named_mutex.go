// Package concurrency implements the task orchestration core: a
// process-wide named-mutex registry (component C) and a priority task sink
// (component D) that together serialize duplicate in-flight work and run
// submitted tasks on a bounded worker pool.
package concurrency

import (
	"sync"

	"github.com/heremaps/olp-sdk-go/cancel"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
)

// mutexState holds one named mutex's lock, reference count, and sticky
// error, matching spec §4.C's "named mutex state".
type mutexState struct {
	mu        sync.Mutex
	refCount  int
	stickyErr error
}

// NamedMutexRegistry is a process-wide registry of named mutexes. Holders
// acquire by name, publish a sticky error while holding, and release to
// decrement the refcount; the entry is evicted once the last holder
// releases.
type NamedMutexRegistry struct {
	mu    sync.Mutex
	table map[string]*mutexState
}

// NewNamedMutexRegistry returns an empty registry.
func NewNamedMutexRegistry() *NamedMutexRegistry {
	return &NamedMutexRegistry{table: make(map[string]*mutexState)}
}

// Handle is a held named mutex; callers must call Release exactly once.
type Handle struct {
	registry *NamedMutexRegistry
	name     string
	state    *mutexState
}

// Acquire blocks until the caller owns the named mutex or ctx is
// cancelled. On cancellation it returns an error that pkg/errors'
// IsCancelled reports as cancelled, and does not hold the mutex.
func (r *NamedMutexRegistry) Acquire(name string, ctx *cancel.Context) (*Handle, error) {
	r.mu.Lock()
	state, ok := r.table[name]
	if !ok {
		state = &mutexState{}
		r.table[name] = state
	}
	state.refCount++
	r.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		state.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		// Acquisition by a not-yet-erroring holder clears the previous
		// sticky error; the new holder may immediately republish its own.
		r.mu.Lock()
		state.stickyErr = nil
		r.mu.Unlock()
		return &Handle{registry: r, name: name, state: state}, nil
	case <-waitCancelled(ctx):
		// The lock attempt may still succeed concurrently with this branch;
		// if it does, release it (and the refcount this Acquire reserved)
		// immediately, since the caller never got a Handle.
		go func() {
			<-acquired
			r.release(name, state)
		}()
		return nil, olperrors.NewCancelled("named mutex acquire cancelled")
	}
}

func waitCancelled(ctx *cancel.Context) <-chan struct{} {
	ch := make(chan struct{})
	if ctx == nil {
		return ch
	}
	if ctx.IsCancelled() {
		close(ch)
		return ch
	}
	ctx.RegisterCleanup(func() { close(ch) })
	return ch
}

// SetError publishes a sticky error visible to concurrent and subsequent
// acquirers via GetError, until a non-erroring holder clears it on
// acquisition.
func (h *Handle) SetError(err error) {
	h.registry.mu.Lock()
	h.state.stickyErr = err
	h.registry.mu.Unlock()
}

// GetError returns the currently published sticky error, or nil.
func (h *Handle) GetError() error {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	return h.state.stickyErr
}

// Release decrements the mutex's refcount and unlocks it; the registry
// entry is evicted once the refcount reaches zero. The sticky error this
// holder set stays visible (via GetErrorSnapshot) to callers that have not
// yet acquired; the next acquirer clears it when its Acquire succeeds.
func (h *Handle) Release() {
	h.registry.release(h.name, h.state)
}

func (r *NamedMutexRegistry) release(name string, state *mutexState) {
	state.mu.Unlock()

	r.mu.Lock()
	state.refCount--
	if state.refCount <= 0 {
		if current, ok := r.table[name]; ok && current == state {
			delete(r.table, name)
		}
	}
	r.mu.Unlock()
}

// GetErrorSnapshot returns the sticky error currently published for name,
// without acquiring the mutex — used by callers that want to fail fast on
// a known-bad in-flight request before even attempting to acquire.
func (r *NamedMutexRegistry) GetErrorSnapshot(name string) error {
	r.mu.Lock()
	state, ok := r.table[name]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return state.stickyErr
}
