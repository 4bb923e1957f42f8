package worker

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

type Worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
	onDone     func(userID int64)
	logger     *slog.Logger
}

func NewWorker(pool *jobChannelPool, onDone func(userID int64), logger *slog.Logger) *Worker {
	return &Worker{
		pool:       pool,
		jobChannel: make(chan Job),
		onDone:     onDone,
		logger:     logger,
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			job.finish(w.execute(job))
			if w.onDone != nil {
				w.onDone(job.userID)
			}
			w.pool.Release(w.jobChannel)
		}
	}()
}

// execute runs the job unless its caller already gave up. Panics become errors.
func (w *Worker) execute(job Job) (err error) {
	if err := job.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker job panicked", "user_id", job.userID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.fn(job.ctx)
}
