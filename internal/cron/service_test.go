package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubLock struct {
	locked   bool
	acquires int
	releases int
}

func (s *stubLock) Acquire(context.Context) (bool, error) {
	s.acquires++
	return !s.locked, nil
}

func (s *stubLock) Release(context.Context) error {
	s.releases++
	return nil
}

type stubJob struct {
	name string
	runs int
	err  error
}

func (s *stubJob) Name() string { return s.name }

func (s *stubJob) Run(context.Context) error {
	s.runs++
	return s.err
}

func TestServiceRunsRegisteredJobs(t *testing.T) {
	lock := &stubLock{}
	sweep := &stubJob{name: "payment-ttl"}
	failing := &stubJob{name: "webhook-retention", err: errors.New("boom")}
	service, err := NewService(ServiceParams{
		Logger:   cronTestLogger(),
		Registry: NewRegistry(sweep, failing),
		Lock:     lock,
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	require.Equal(t, 1, sweep.runs)
	require.Equal(t, 1, failing.runs, "one failing job must not stop the others")
	require.Equal(t, 1, lock.releases)
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	lock := &stubLock{locked: true}
	job := &stubJob{name: "payment-ttl"}
	service, err := NewService(ServiceParams{
		Logger:   cronTestLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	require.NoError(t, err)

	require.NoError(t, service.runCycle(context.Background()))
	require.Zero(t, job.runs)
	require.Zero(t, lock.releases)
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: cronTestLogger()})
	require.Error(t, err)
}
