// Package cancel implements the cooperative cancellation primitive used
// throughout the SDK (spec component A). It composes across the async
// boundaries of the task sink, named mutexes, and the multi-request
// coalescer: a parent Context cancelled at any point propagates to every
// child derived from it.
package cancel

import (
	"context"
	"sync"
)

// Context is a cancellation signal with a single registered cleanup slot.
// Unlike context.Context, Context is built around the "register exactly one
// cleanup, invoke it exactly once" contract spec §4.A requires: registration
// via ExecuteOrCancelled and cancellation via Cancel are mutually atomic, so
// a cancel racing a registration never loses the cleanup and never runs it
// twice.
type Context struct {
	mu        sync.Mutex
	cancelled bool
	cleanup   func()
}

// New creates a root Context with no parent.
func New() *Context {
	return &Context{}
}

// Child creates a Context that inherits cancellation from c: cancelling c
// cancels every child derived from it. The child can still be cancelled
// independently without affecting the parent or siblings.
func (c *Context) Child() *Context {
	child := &Context{}

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		child.Cancel()
		return child
	}
	// Register a cleanup on the parent that cancels the child. Since a
	// Context only holds one cleanup slot, chain through the existing one
	// (if any) so composing multiple children doesn't clobber each other.
	prev := c.cleanup
	c.cleanup = func() {
		if prev != nil {
			prev()
		}
		child.Cancel()
	}
	c.mu.Unlock()

	return child
}

// ExecuteOrCancelled runs op if the context is not yet cancelled, otherwise
// runs onCancel. op may register a cleanup (by calling RegisterCleanup on
// the Context it receives) before returning. If a cancellation
// arrives concurrently with the call, exactly one of op/onCancel's
// registered cleanup fires exactly once.
func (c *Context) ExecuteOrCancelled(op func(*Context), onCancel func()) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		if onCancel != nil {
			onCancel()
		}
		return
	}
	c.mu.Unlock()
	op(c)
}

// RegisterCleanup sets the cleanup to invoke on cancellation. It replaces
// any previously registered cleanup (the contract is "most recently
// registered wins", matching spec §4.A). If the context is already
// cancelled, the cleanup runs immediately and exactly once.
func (c *Context) RegisterCleanup(cleanup func()) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		if cleanup != nil {
			cleanup()
		}
		return
	}
	c.cleanup = cleanup
	c.mu.Unlock()
}

// Cancel is idempotent: only the first call invokes the registered cleanup.
// Subsequent calls, and any registration that arrives afterward, observe
// IsCancelled() == true.
func (c *Context) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	cleanup := c.cleanup
	c.cleanup = nil
	c.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
}

// NewStdContext derives a standard context.Context from parent, for
// handing to APIs (notably net/http) that only understand context.Context.
// Cancelling parent cancels the returned context; the returned cancel
// function must still be called once the caller is done, to release
// resources, matching context.WithCancel's own contract. If parent is
// nil, a non-cancellable background context is returned.
func NewStdContext(parent *Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		return context.Background(), func() {}
	}
	ctx, cancelFn := context.WithCancel(context.Background())
	parent.RegisterCleanup(cancelFn)
	return ctx, cancelFn
}

// IsCancelled reports whether Cancel has been called.
func (c *Context) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}
