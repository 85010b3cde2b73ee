package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(ctx context.Context) error {
	j.runs++
	_, j.deadline = ctx.Deadline()
	return j.err
}

type recordedOutcomes struct {
	success   []string
	failure   []string
	durations int
}

func (r *recordedOutcomes) ObserveRun(job string, _ time.Duration, err error) {
	r.durations++
	if err != nil {
		r.failure = append(r.failure, job)
		return
	}
	r.success = append(r.success, job)
}

func newTestService(t *testing.T, lock Lock, observer jobObserver, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  observer,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsEveryJobAndRecordsOutcomes(t *testing.T) {
	ok := &testJob{name: "outbox-retention"}
	failing := &testJob{name: "outbox-dlq-retention", err: errors.New("boom")}
	lock := &fakeLock{}
	observed := &recordedOutcomes{}
	service := newTestService(t, lock, observed, ok, failing)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
	if !ok.deadline {
		t.Fatalf("jobs should run with a deadline")
	}
	if len(observed.success) != 1 || observed.success[0] != "outbox-retention" {
		t.Fatalf("unexpected successes %v", observed.success)
	}
	if len(observed.failure) != 1 || observed.failure[0] != "outbox-dlq-retention" {
		t.Fatalf("unexpected failures %v", observed.failure)
	}
	if observed.durations != 2 {
		t.Fatalf("expected 2 duration samples, got %d", observed.durations)
	}
	if lock.held || lock.releases != 1 {
		t.Fatalf("lock should be released once")
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	lock := &fakeLock{held: true}
	service := newTestService(t, lock, nil, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run without the lock")
	}
	if lock.releases != 0 {
		t.Fatalf("lock owned elsewhere must not be released")
	}
}

func TestRunOnceLockError(t *testing.T) {
	service := newTestService(t, &fakeLock{err: errors.New("redis down")}, nil, &testJob{name: "x"})
	if err := service.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected lock error")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})}); err == nil {
		t.Fatalf("expected error without lock")
	}
}
