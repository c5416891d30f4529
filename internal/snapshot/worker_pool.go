package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolStopped is returned for work submitted to a stopped pool
var ErrPoolStopped = errors.New("worker pool is shutting down")

// Job represents a unit of CPU-bound render work processed by a worker
type Job struct {
	Name   string
	Run    func() error
	Result chan error
}

// WorkerPool runs CPU-bound render stages on a fixed number of goroutines
// so request handling stays responsive while frames are processed.
type WorkerPool struct {
	workers  int
	jobQueue chan *Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	stopOnce sync.Once
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan *Job, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Start launches all worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info("Starting render worker pool",
		zap.Int("workers", wp.workers),
		zap.Int("queue_size", cap(wp.jobQueue)))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop gracefully shuts down the worker pool
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.logger.Info("Stopping render worker pool")
		wp.cancel()
		wp.wg.Wait()
		wp.logger.Info("Render worker pool stopped")
	})
}

// Submit queues fn and waits for it to finish. Cancelling ctx abandons the
// wait; a job already picked up still runs to completion.
func (wp *WorkerPool) Submit(ctx context.Context, name string, fn func() error) error {
	job := &Job{
		Name:   name,
		Run:    fn,
		Result: make(chan error, 1),
	}

	select {
	case wp.jobQueue <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		return ErrPoolStopped
	}

	select {
	case err := <-job.Result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		return ErrPoolStopped
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("Render worker started", zap.Int("worker_id", id))

	for {
		select {
		case job := <-wp.jobQueue:
			wp.processJob(id, job)
		case <-wp.ctx.Done():
			wp.logger.Debug("Render worker stopping (context cancelled)", zap.Int("worker_id", id))
			return
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job *Job) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s job: %v", job.Name, r)
			wp.logger.Error("Render job panicked",
				zap.Int("worker_id", workerID),
				zap.String("job", job.Name),
				zap.Any("panic", r))
		}
		job.Result <- err
	}()

	err = job.Run()

	if err != nil {
		wp.logger.Debug("Worker completed job with error",
			zap.Int("worker_id", workerID),
			zap.String("job", job.Name),
			zap.Error(err))
	}
}
