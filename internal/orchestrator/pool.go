package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Task is one unit of dispatchable work: an ingest fetch, a batch pipeline
// run, or anything else the orchestrator fans out across workers.
type Task func(ctx context.Context) error

type taskItem struct {
	name string
	task Task
}

// LoggerFn receives structured pool events (task_start, task_ok,
// task_error), following the coordinator's injected-logger shape.
type LoggerFn func(level, msg string, fields map[string]any)

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Running   int32
	Queued    int32
	Completed uint64
	Failed    uint64
	Rejected  uint64
}

// Pool is a bounded worker pool: a fixed number of goroutines drain a
// bounded channel queue, tracking atomic counters for observability and
// supporting a drain-or-discard Stop.
type Pool struct {
	workers int
	qch     chan taskItem
	log     LoggerFn

	running   atomic.Int32
	queued    atomic.Int32
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewPool returns a Pool with `workers` goroutines and a queue capacity of
// `queueSize`. A nil logger is a no-op.
func NewPool(workers, queueSize int, log LoggerFn) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	if log == nil {
		log = func(string, string, map[string]any) {}
	}
	return &Pool{workers: workers, qch: make(chan taskItem, queueSize), log: log}
}

// Start launches the worker goroutines. Calling Start twice is an error.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("orchestrator: pool already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx, i)
	}
	return nil
}

// Submit enqueues a task, blocking until a queue slot is free or ctx is
// done first (in which case the submission is rejected, not silently
// dropped).
func (p *Pool) Submit(ctx context.Context, name string, t Task) error {
	if t == nil {
		return fmt.Errorf("orchestrator: nil task")
	}
	p.queued.Add(1)
	select {
	case p.qch <- taskItem{name: name, task: t}:
		return nil
	case <-ctx.Done():
		p.queued.Add(-1)
		p.rejected.Add(1)
		return ctx.Err()
	}
}

// Stop halts the pool. If drain is true, queued tasks are processed before
// workers exit; if false, the queue is discarded and workers exit once their
// in-flight task completes.
func (p *Pool) Stop(ctx context.Context, drain bool) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if drain {
		close(p.qch)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			p.cancel()
			return ctx.Err()
		}
	}

	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Running:   p.running.Load(),
		Queued:    p.queued.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for {
		select {
		case item, ok := <-p.qch:
			if !ok {
				return
			}
			p.queued.Add(-1)
			p.running.Add(1)
			p.log("info", "task_start", map[string]any{"worker_id": workerID, "task": item.name})
			err := item.task(ctx)
			p.running.Add(-1)
			if err != nil {
				p.failed.Add(1)
				p.log("error", "task_error", map[string]any{"worker_id": workerID, "task": item.name, "error": err.Error()})
			} else {
				p.completed.Add(1)
				p.log("info", "task_ok", map[string]any{"worker_id": workerID, "task": item.name})
			}
		case <-ctx.Done():
			return
		}
	}
}
