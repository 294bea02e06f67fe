package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrDispatcherClosed is returned by Submit once Close has been called.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Job is one unit of work for a single user.
type Job func(ctx context.Context)

type mailbox struct {
	jobs []Job
}

// Dispatcher runs jobs in submission order per user while different users
// proceed in parallel. A user's goroutine starts with the first job and
// exits once the mailbox is empty, so idle users cost nothing.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	mu      sync.Mutex
	queues  map[string]*mailbox
	closed  bool
	running sync.WaitGroup
}

// NewDispatcher creates an open dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		queues: make(map[string]*mailbox),
	}
}

// Submit queues job behind every earlier job of userID.
func (d *Dispatcher) Submit(userID string, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if box, ok := d.queues[userID]; ok {
		box.jobs = append(box.jobs, job)
		return nil
	}

	box := &mailbox{jobs: []Job{job}}
	d.queues[userID] = box
	d.running.Add(1)
	go d.drain(userID, box)
	return nil
}

// Active reports how many users currently have queued or running work.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close stops accepting jobs and waits until queued jobs finish. If ctx ends
// first, running jobs are cancelled and Close still waits for them to return.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) drain(userID string, box *mailbox) {
	defer d.running.Done()
	for {
		d.mu.Lock()
		if len(box.jobs) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		job := box.jobs[0]
		box.jobs[0] = nil
		box.jobs = box.jobs[1:]
		d.mu.Unlock()

		if err := d.run(job); err != nil {
			d.logger.Error("job panicked", zap.String("user", userID), zap.Error(err))
		}
	}
}

func (d *Dispatcher) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	job(d.ctx)
	return nil
}
