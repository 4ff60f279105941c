package concurrency

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heremaps/olp-sdk-go/cancel"
	"github.com/heremaps/olp-sdk-go/observability"
)

// Priority orders tasks within the sink's queue: higher numeric priority
// runs earlier; equal priority runs FIFO. Priority NORMAL is the default
// used by Submit's simple form.
type Priority uint32

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 10
	PriorityHigh   Priority = 20
)

// Task is a unit of work submitted to the sink. It receives the
// cancellation context created for this submission and returns a result
// (which may itself be an error) that is handed to Callback.
type Task func(ctx *cancel.Context) interface{}

// Callback receives a submitted task's result; it always runs on a sink
// worker goroutine, never inline on the submitter's goroutine.
type Callback func(result interface{})

type job struct {
	task     Task
	callback Callback
	ctx      *cancel.Context
	priority Priority
	seq      uint64
	logger   *zap.Logger
}

// priorityQueue is a container/heap.Interface ordering jobs by descending
// Priority, then ascending sequence number (FIFO within a priority tier).
type priorityQueue []*job

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) {
	*q = append(*q, x.(*job))
}
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// TaskSink is a bounded priority work queue (spec §4.D / component D). N
// workers (configurable, >= 1) pull from the priority queue; a single
// dedicated goroutine drains a separate cancellation queue so cleanup work
// never queues behind user-visible tasks.
type TaskSink struct {
	logger    *zap.Logger
	collector *observability.Collector

	mu       sync.Mutex
	cond     *sync.Cond
	queue    priorityQueue
	inFlight map[*job]struct{}
	nextSeq  uint64
	closed   bool

	cancelQueue chan *job

	wg sync.WaitGroup
}

// NewTaskSink starts a TaskSink with workers pool goroutines draining the
// priority queue, plus one dedicated goroutine draining the cancellation
// queue. workers <= 0 is treated as 1 (serial execution is a valid
// configuration per spec §4.D).
func NewTaskSink(workers int, logger *zap.Logger, collector *observability.Collector) *TaskSink {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &TaskSink{
		logger:      logger,
		collector:   collector,
		inFlight:    make(map[*job]struct{}),
		cancelQueue: make(chan *job, 64),
	}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.runWorker()
	}
	s.wg.Add(1)
	go s.runCancelWorker()

	return s
}

// Submit enqueues task at PriorityNormal, bound to a fresh child of parent
// (or a fresh root context if parent is nil). It returns the cancellation
// context the task observes; cancelling it cancels only this task.
func (s *TaskSink) Submit(task Task, callback Callback, parent *cancel.Context) *cancel.Context {
	return s.SubmitWithPriority(task, callback, PriorityNormal, parent)
}

// SubmitWithPriority is Submit with an explicit Priority.
func (s *TaskSink) SubmitWithPriority(task Task, callback Callback, priority Priority, parent *cancel.Context) *cancel.Context {
	var taskCtx *cancel.Context
	if parent != nil {
		taskCtx = parent.Child()
	} else {
		taskCtx = cancel.New()
	}

	logCtx := observability.NewLogContext()
	j := &job{
		task:     task,
		callback: callback,
		ctx:      taskCtx,
		priority: priority,
		logger:   logCtx.Capture(s.logger),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		taskCtx.Cancel()
		return taskCtx
	}
	j.seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.queue, j)
	if s.collector != nil {
		s.collector.TasksSubmitted.WithLabelValues(priorityLabel(priority)).Inc()
		s.collector.QueueDepth.Set(float64(len(s.queue)))
	}
	s.cond.Signal()
	s.mu.Unlock()

	return taskCtx
}

// SubmitCleanup enqueues a cleanup/cancellation task on the dedicated
// cancellation queue, which never blocks behind user-visible work.
func (s *TaskSink) SubmitCleanup(task Task) {
	j := &job{task: task, ctx: cancel.New(), logger: s.logger}
	s.cancelQueue <- j
}

func (s *TaskSink) runWorker() {
	defer s.wg.Done()
	for {
		j := s.nextJob()
		if j == nil {
			return
		}
		s.execute(j)
	}
}

func (s *TaskSink) nextJob() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return nil
	}
	j := heap.Pop(&s.queue).(*job)
	s.inFlight[j] = struct{}{}
	if s.collector != nil {
		s.collector.QueueDepth.Set(float64(len(s.queue)))
	}
	return j
}

func (s *TaskSink) runCancelWorker() {
	defer s.wg.Done()
	for j := range s.cancelQueue {
		s.execute(j)
	}
}

func (s *TaskSink) execute(j *job) {
	start := time.Now()
	var result interface{}
	cancelled := false

	observability.ScopedLogContext(j.logger, func(*zap.Logger) {
		j.ctx.ExecuteOrCancelled(func(ctx *cancel.Context) {
			result = j.task(ctx)
		}, func() {
			cancelled = true
		})
		if j.callback != nil {
			j.callback(result)
		}
	})

	s.mu.Lock()
	delete(s.inFlight, j)
	s.mu.Unlock()

	if s.collector != nil {
		outcome := "ok"
		if cancelled {
			outcome = "cancelled"
		}
		s.collector.TasksCompleted.WithLabelValues(outcome).Inc()
		s.collector.TaskDuration.WithLabelValues(priorityLabel(j.priority)).Observe(time.Since(start).Seconds())
	}
}

// CancelAll signals every outstanding task's context; workers observe the
// cancellation cooperatively and drain quickly. Already-running tasks are
// expected to return promptly once their context reports cancelled.
func (s *TaskSink) CancelAll() {
	s.mu.Lock()
	toCancel := make([]*job, 0, len(s.queue)+len(s.inFlight))
	toCancel = append(toCancel, s.queue...)
	for j := range s.inFlight {
		toCancel = append(toCancel, j)
	}
	s.mu.Unlock()

	for _, j := range toCancel {
		j.ctx.Cancel()
	}
}

// Close stops accepting new submissions and waits for in-flight workers to
// drain their current job before returning. Queued-but-not-started jobs
// are cancelled and dropped.
func (s *TaskSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.queue
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, j := range pending {
		j.ctx.Cancel()
	}
	close(s.cancelQueue)
	s.wg.Wait()
}

func priorityLabel(p Priority) string {
	switch {
	case p >= PriorityHigh:
		return "high"
	case p <= PriorityLow:
		return "low"
	default:
		return "normal"
	}
}
