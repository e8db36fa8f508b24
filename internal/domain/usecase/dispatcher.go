package usecase

import (
	"context"
	"log"
	"sync"

	"franklin/internal/domain/entity"
)

type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// InProcessDispatcher runs each job on its own goroutine in this process.
// Jobs run on base, not on the submitting request's context.
type InProcessDispatcher struct {
	base   context.Context
	runner Runner
	logger *log.Logger
	wg     sync.WaitGroup
}

func NewInProcessDispatcher(base context.Context, runner Runner, logger *log.Logger) *InProcessDispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &InProcessDispatcher{base: base, runner: runner, logger: logger}
}

func (d *InProcessDispatcher) Dispatch(_ context.Context, job *entity.Job) error {
	d.wg.Add(1)
	go func(jobID string) {
		defer d.wg.Done()
		if err := d.runner.Run(d.base, jobID); err != nil {
			d.logger.Printf("[JOB %s] run finished with error: %v", jobID, err)
		}
	}(job.ID)
	return nil
}

func (d *InProcessDispatcher) Wait() {
	d.wg.Wait()
}
