package concurrency_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/concurrency"
)

func TestTaskSink_SubmitRunsCallback(t *testing.T) {
	sink := concurrency.NewTaskSink(2, nil, nil)
	defer sink.Close()

	done := make(chan interface{}, 1)
	sink.Submit(func(ctx *cancel.Context) interface{} {
		return 42
	}, func(result interface{}) {
		done <- result
	}, nil)

	select {
	case result := <-done:
		assert.Equal(t, 42, result)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestTaskSink_SerialWithOneWorker(t *testing.T) {
	sink := concurrency.NewTaskSink(1, nil, nil)
	defer sink.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		i := i
		sink.SubmitWithPriority(func(ctx *cancel.Context) interface{} {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, func(interface{}) { wg.Done() }, concurrency.PriorityNormal, nil)
	}
	wg.Wait()

	assert.Len(t, order, 10)
	for i, v := range order {
		assert.Equal(t, i, v, "single worker must run FIFO within equal priority")
	}
}

func TestTaskSink_HigherPriorityRunsFirst(t *testing.T) {
	sink := concurrency.NewTaskSink(1, nil, nil)
	defer sink.Close()

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	// Block the single worker so both submissions queue up before either runs.
	wg.Add(1)
	sink.SubmitWithPriority(func(ctx *cancel.Context) interface{} {
		<-gate
		return nil
	}, func(interface{}) { wg.Done() }, concurrency.PriorityNormal, nil)

	time.Sleep(10 * time.Millisecond)

	wg.Add(2)
	sink.SubmitWithPriority(func(ctx *cancel.Context) interface{} {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
		return nil
	}, func(interface{}) { wg.Done() }, concurrency.PriorityLow, nil)

	sink.SubmitWithPriority(func(ctx *cancel.Context) interface{} {
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
		return nil
	}, func(interface{}) { wg.Done() }, concurrency.PriorityHigh, nil)

	close(gate)
	wg.Wait()

	require.Len(t, order, 2)
	assert.Equal(t, "high", order[0])
	assert.Equal(t, "low", order[1])
}

func TestTaskSink_CancelledParentSkipsTaskAndCallsBackOnce(t *testing.T) {
	sink := concurrency.NewTaskSink(1, nil, nil)
	defer sink.Close()

	root := cancel.New()
	calls := 0
	var mu sync.Mutex
	done := make(chan struct{})

	root.Cancel()
	sink.Submit(func(ctx *cancel.Context) interface{} {
		t.Fatal("task must not execute once its context is already cancelled")
		return nil
	}, func(result interface{}) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(done)
	}, root)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired for cancelled task")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestTaskSink_SubmitCleanupDoesNotBlockBehindUserWork(t *testing.T) {
	sink := concurrency.NewTaskSink(1, nil, nil)
	defer sink.Close()

	gate := make(chan struct{})
	sink.Submit(func(ctx *cancel.Context) interface{} {
		<-gate
		return nil
	}, nil, nil)

	cleanupDone := make(chan struct{})
	sink.SubmitCleanup(func(ctx *cancel.Context) interface{} {
		close(cleanupDone)
		return nil
	})

	select {
	case <-cleanupDone:
	case <-time.After(time.Second):
		t.Fatal("cleanup task blocked behind user-visible work")
	}
	close(gate)
}
