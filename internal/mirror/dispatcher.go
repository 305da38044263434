package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Executor performs a mirror task against the server.
type Executor interface {
	Execute(ctx context.Context, task Task) error
}

type ExecutorFunc func(ctx context.Context, task Task) error

func (f ExecutorFunc) Execute(ctx context.Context, task Task) error {
	return f(ctx, task)
}

type Logger interface {
	Printf(format string, args ...any)
}

type Recorder interface {
	ObserveMirror(action string, err error)
}

type DispatcherOptions struct {
	Queue          Queue
	Workers        int
	TaskTimeout    time.Duration
	Logger         Logger
	Metrics        Recorder
	DisableWorkers bool
}

// Dispatcher runs detached mirror tasks on background workers. Each task
// is attempted at most once; failures are logged and never retried.
type Dispatcher struct {
	executor    Executor
	queue       Queue
	taskTimeout time.Duration
	logger      Logger
	metrics     Recorder

	doneMu  sync.Mutex
	pending map[string]chan struct{}

	queueCtx    context.Context
	queueCancel context.CancelFunc
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

func NewDispatcher(executor Executor, opts DispatcherOptions) *Dispatcher {
	queue := opts.Queue
	if queue == nil {
		queue = NewInMemoryQueue(1024)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := opts.TaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	queueCtx, queueCancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		executor:    executor,
		queue:       queue,
		taskTimeout: timeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		pending:     map[string]chan struct{}{},
		queueCtx:    queueCtx,
		queueCancel: queueCancel,
	}
	if !opts.DisableWorkers {
		d.wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer d.wg.Done()
				d.worker()
			}()
		}
	}
	return d
}

// Detach queues task and returns immediately. It never blocks on a full
// queue: the task is handed to a goroutine that waits for room instead.
func (d *Dispatcher) Detach(task Task) Detached {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	done := make(chan struct{})
	d.doneMu.Lock()
	if d.queueCtx.Err() != nil {
		d.doneMu.Unlock()
		close(done)
		d.logf("mirror %s dropped: dispatcher closed", task.Action)
		return Detached{TaskID: task.ID, done: done}
	}
	d.pending[task.ID] = done
	d.doneMu.Unlock()

	if d.queue.TryEnqueue(task) {
		return Detached{TaskID: task.ID, Queued: true, done: done}
	}
	go func() {
		if !d.queue.Enqueue(d.queueCtx, task) {
			d.logf("mirror %s dropped: queue unavailable", task.Action)
			d.finish(task.ID)
		}
	}()
	return Detached{TaskID: task.ID, Queued: true, done: done}
}

func (d *Dispatcher) Depth() int {
	return d.queue.Depth()
}

// Close stops the workers. Tasks still queued stay in the queue.
func (d *Dispatcher) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.queueCancel()
		d.wg.Wait()
		err = d.queue.Close()
		d.doneMu.Lock()
		for id, done := range d.pending {
			close(done)
			delete(d.pending, id)
		}
		d.doneMu.Unlock()
	})
	return err
}

func (d *Dispatcher) worker() {
	for {
		task, ok := d.queue.Dequeue(d.queueCtx)
		if !ok {
			return
		}
		d.run(task)
	}
}

func (d *Dispatcher) run(task Task) {
	defer d.finish(task.ID)
	defer func() {
		if r := recover(); r != nil {
			d.logf("mirror %s panicked: %v", task.Action, r)
		}
	}()
	if d.executor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.taskTimeout)
	defer cancel()
	err := d.executor.Execute(ctx, task)
	if d.metrics != nil {
		d.metrics.ObserveMirror(task.Action, err)
	}
	if err != nil {
		d.logf("mirror %s for estimate %s failed: %v", task.Action, task.EstimateID, err)
	}
}

func (d *Dispatcher) finish(taskID string) {
	d.doneMu.Lock()
	done, ok := d.pending[taskID]
	delete(d.pending, taskID)
	d.doneMu.Unlock()
	if ok {
		close(done)
	}
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}
