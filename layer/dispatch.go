package layer

import (
	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/concurrency"
	olperrors "github.com/heremaps/olp-sdk-go/pkg/errors"
)

// runTask submits fn to sink and blocks until its callback fires, the Go
// analog of original_source's single-return client methods: those wrap the
// callback-taking overload in a std::promise and block on a
// CancellableFuture. Running every public operation through the task sink
// (rather than calling the repository inline) keeps spec §5's concurrency
// model intact — "callbacks are invoked on task-sink threads, never inline
// on the submitter's thread" — while still giving Go callers an ordinary
// blocking call.
//
// A job whose context is already cancelled before a worker picks it up
// never runs the op branch of its context's ExecuteOrCancelled, so TaskSink.execute hands
// the callback an untyped nil instead of a result (spec §8 scenario 6:
// cancelling in-flight work transitions its callback exactly once with
// Cancelled). The two-value assertion form catches that case explicitly
// rather than panicking on the bare `r.(result)`.
func runTask[T any](sink *concurrency.TaskSink, ctx *cancel.Context, fn func(*cancel.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	sink.Submit(func(taskCtx *cancel.Context) interface{} {
		v, err := fn(taskCtx)
		return result{val: v, err: err}
	}, func(r interface{}) {
		res, ok := r.(result)
		if !ok {
			var zero result
			zero.err = olperrors.NewCancelled("layer: request cancelled before it started")
			res = zero
		}
		done <- res
	}, ctx)

	res := <-done
	return res.val, res.err
}
