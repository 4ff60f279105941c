package coalesce_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/coalesce"
)

func TestMultiRequestContext_SecondCallerJoinsInFlightExecution(t *testing.T) {
	m := coalesce.NewMultiRequestContext[int](-1, nil)

	var executions int32
	release := make(chan struct{})
	execute := func(complete func(int)) *cancel.Context {
		atomic.AddInt32(&executions, 1)
		go func() {
			<-release
			complete(42)
		}()
		return cancel.New()
	}

	var results []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(2)
	m.ExecuteOrAssociate(nil, "key", execute, func(r int) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		wg.Done()
	})
	m.ExecuteOrAssociate(nil, "key", execute, func(r int) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
		wg.Done()
	})

	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, executions, "second caller must not trigger a new execution")
	assert.Equal(t, []int{42, 42}, results)
}

func TestMultiRequestContext_DistinctKeysExecuteIndependently(t *testing.T) {
	m := coalesce.NewMultiRequestContext[int](-1, nil)

	var executions int32
	execute := func(complete func(int)) *cancel.Context {
		atomic.AddInt32(&executions, 1)
		complete(1)
		return cancel.New()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	m.ExecuteOrAssociate(nil, "a", execute, func(int) { wg.Done() })
	m.ExecuteOrAssociate(nil, "b", execute, func(int) { wg.Done() })
	wg.Wait()

	assert.EqualValues(t, 2, executions)
}

func TestMultiRequestContext_SubscriberCancelDoesNotAffectOthers(t *testing.T) {
	m := coalesce.NewMultiRequestContext[int](-1, nil)

	release := make(chan struct{})
	execute := func(complete func(int)) *cancel.Context {
		go func() {
			<-release
			complete(42)
		}()
		return cancel.New()
	}

	subA := cancel.New()
	subB := cancel.New()

	var resA, resB int
	doneB := make(chan struct{})

	m.ExecuteOrAssociate(subA, "key", execute, func(r int) { resA = r })
	m.ExecuteOrAssociate(subB, "key", execute, func(r int) {
		resB = r
		close(doneB)
	})

	subA.Cancel()
	require.Equal(t, -1, resA, "a cancelled subscriber gets the cancelled value immediately")

	assert.True(t, m.InFlight("key"), "other subscriber keeps the execution alive")
	close(release)

	select {
	case <-doneB:
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber never got its result")
	}
	assert.Equal(t, 42, resB)
}

func TestMultiRequestContext_LastSubscriberCancelCancelsExecution(t *testing.T) {
	m := coalesce.NewMultiRequestContext[int](-1, nil)

	var workCancelled int32
	execute := func(complete func(int)) *cancel.Context {
		workCtx := cancel.New()
		workCtx.RegisterCleanup(func() { atomic.AddInt32(&workCancelled, 1) })
		return workCtx
	}

	sub := cancel.New()
	var result int
	m.ExecuteOrAssociate(sub, "key", execute, func(r int) { result = r })

	sub.Cancel()

	assert.Equal(t, -1, result)
	assert.EqualValues(t, 1, workCancelled, "last subscriber leaving cancels the underlying execution")
	assert.False(t, m.InFlight("key"))
}
