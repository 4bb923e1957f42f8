package worker

import (
	"context"
	"errors"
)

// ErrDispatcherBusy is returned when the intake queue is full.
var ErrDispatcherBusy = errors.New("dispatcher queue full")

var errDispatcherStopped = errors.New("dispatcher stopped")

// Job is one unit of work for a user. A job with stop set retires the worker that receives it.
type Job struct {
	userID int64
	ctx    context.Context
	fn     func(ctx context.Context) error
	done   chan error
	stop   bool
}

func (j Job) finish(err error) {
	if j.done != nil {
		j.done <- err
	}
}
