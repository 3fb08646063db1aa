package cron

import "context"

// Job is one sweep the worker runs each cycle. Jobs must be safe to run
// repeatedly; the lock only prevents concurrent cycles, not re-runs.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the sweeps in execution order.
type Registry struct {
	jobs []Job
}

// NewRegistry builds a registry from the given jobs, skipping nils.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job; nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
