package memory

import (
	"context"
	"sync"

	"lifedash/internal/domain/syncjob"
)

type JobRepository struct {
	mu   sync.Mutex
	jobs map[string]*syncjob.Job
}

func NewJobRepository() *JobRepository {
	return &JobRepository{jobs: make(map[string]*syncjob.Job)}
}

func (r *JobRepository) Create(ctx context.Context, job *syncjob.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !job.Status.Terminal() {
		for _, other := range r.jobs {
			if other.UserID == job.UserID && other.Provider == job.Provider && !other.Status.Terminal() {
				return syncjob.ErrActiveJobExists
			}
		}
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, userID, id string) (*syncjob.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.UserID != userID {
		return nil, syncjob.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *JobRepository) FindActive(ctx context.Context, userID, provider string) (*syncjob.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var newest *syncjob.Job
	for _, job := range r.jobs {
		if job.UserID != userID || job.Provider != provider || job.Status.Terminal() {
			continue
		}
		if newest == nil || job.CreatedAt.After(newest.CreatedAt) {
			newest = job
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (r *JobRepository) Transition(ctx context.Context, userID, id string, t syncjob.Transition) (*syncjob.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok || job.UserID != userID {
		return nil, syncjob.ErrJobNotFound
	}

	next := *job
	if err := syncjob.Apply(&next, t); err != nil {
		return nil, err
	}
	r.jobs[id] = &next
	cp := next
	return &cp, nil
}
