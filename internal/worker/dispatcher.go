package worker

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

const defaultQueueSize = 64

type userQueue struct {
	jobs     []Job
	enqueued bool // waiting in the ready list
	running  bool // one job of this user is on a worker
}

// Dispatcher keeps a FIFO queue per user and hands jobs to the pool round-robin
// across users. At most one job per user runs at a time.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // intake for outer jobs
	logger   *slog.Logger

	mu        sync.Mutex
	queues    map[int64]*userQueue
	ready     *list.List // user IDs with a runnable job, oldest turn first
	positions map[int64]*list.Element

	pending  atomic.Int64
	capacity int64
	wake     chan struct{}
	quit     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	d := &Dispatcher{
		JobQueue:  make(chan Job, queueSize),
		logger:    logger,
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		capacity:  int64(queueSize),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	d.pool = newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, d.jobDone, logger)

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Run queues fn for userID and waits for it. fn receives ctx; if ctx ends before
// the job starts, fn is skipped. ErrDispatcherBusy is returned when the queue is full.
func (d *Dispatcher) Run(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	select {
	case <-d.quit:
		return errDispatcherStopped
	default:
	}
	if d.pending.Add(1) > d.capacity {
		d.pending.Add(-1)
		return ErrDispatcherBusy
	}
	job := Job{userID: userID, ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case d.JobQueue <- job:
	default:
		d.pending.Add(-1)
		return ErrDispatcherBusy
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-d.quit:
		return errDispatcherStopped
	}
}

// Stop ends dispatching and retires idle workers. Jobs already running finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.stop()
	})
}

func (d *Dispatcher) run() {
	for {
		if d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			default:
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.wake:
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.userID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.userID] = q
	}
	q.jobs = append(q.jobs, job)
	d.markReadyLocked(job.userID, q)
}

func (d *Dispatcher) markReadyLocked(userID int64, q *userQueue) {
	if q.enqueued || q.running || len(q.jobs) == 0 {
		return
	}
	q.enqueued = true
	d.positions[userID] = d.ready.PushBack(userID)
}

// dispatchOne hands the next job of the user at the front of the ready list to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(int64)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	d.ready.Remove(elem)
	delete(d.positions, userID)
	d.mu.Unlock()

	d.pending.Add(-1)
	workerChan := d.pool.acquire()
	d.logger.Debug("dispatch job", "user_id", userID)
	workerChan <- job
	return true
}

// jobDone is called by a worker once a user's job returned.
func (d *Dispatcher) jobDone(userID int64) {
	d.mu.Lock()
	if q := d.queues[userID]; q != nil {
		q.running = false
		if len(q.jobs) == 0 {
			delete(d.queues, userID)
		} else {
			d.markReadyLocked(userID, q)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}
