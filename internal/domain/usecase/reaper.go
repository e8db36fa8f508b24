package usecase

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"franklin/internal/domain/entity"
)

// Reaper deletes terminal jobs once the retention window has passed. Schedule
// covers jobs finished by this process; Sweep catches everything else,
// including jobs whose timers were lost on restart.
type Reaper struct {
	store     JobStore
	retention time.Duration
	logger    *log.Logger
	now       func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewReaper(store JobStore, retention time.Duration, logger *log.Logger) *Reaper {
	if logger == nil {
		logger = log.Default()
	}
	return &Reaper{
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		timers:    make(map[string]*time.Timer),
	}
}

func (r *Reaper) Enabled() bool {
	return r != nil && r.retention > 0
}

func (r *Reaper) Schedule(jobID string) {
	if !r.Enabled() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[jobID]; ok {
		return
	}
	r.timers[jobID] = time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.timers, jobID)
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.store.Delete(ctx, jobID); err != nil && !errors.Is(err, entity.ErrJobNotFound) {
			r.logger.Printf("[JOB %s] cleanup failed: %v", jobID, err)
			return
		}
		r.logger.Printf("[JOB %s] removed after %s retention", jobID, r.retention)
	})
}

func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	if !r.Enabled() {
		return 0, nil
	}

	jobs, err := r.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := r.now()
	removed := 0
	for _, j := range jobs {
		if !j.Expired(r.retention, now) {
			continue
		}
		if err := r.store.Delete(ctx, j.ID); err != nil && !errors.Is(err, entity.ErrJobNotFound) {
			r.logger.Printf("[JOB %s] sweep delete failed: %v", j.ID, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if !r.Enabled() || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				r.logger.Printf("job sweep failed: %v", err)
				continue
			}
			if n > 0 {
				r.logger.Printf("job sweep removed %d expired jobs", n)
			}
		}
	}
}

func (r *Reaper) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
