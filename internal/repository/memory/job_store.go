package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"franklin/internal/domain/entity"
)

// JobStore keeps jobs in process memory. It is only safe to use when the
// submitting process also runs every job and serves every read.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*entity.Job
	now  func() time.Time
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]*entity.Job),
		now:  time.Now,
	}
}

func (s *JobStore) Get(_ context.Context, id string) (*entity.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return j.Clone(), nil
}

func (s *JobStore) Put(_ context.Context, job *entity.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *JobStore) Merge(_ context.Context, id string, patch entity.JobPatch) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	updated := j.Clone()
	if err := updated.Apply(patch, s.now()); err != nil {
		return nil, err
	}
	s.jobs[id] = updated
	return updated.Clone(), nil
}

func (s *JobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.jobs, id)
	return nil
}

// List returns every job, most recently updated first.
func (s *JobStore) List(_ context.Context) ([]*entity.Job, error) {
	s.mu.RLock()
	out := make([]*entity.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		return out[i].LastUpdated.After(out[k].LastUpdated)
	})
	return out, nil
}
