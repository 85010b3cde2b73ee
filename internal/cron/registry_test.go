package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryOrderAndNilJobs(t *testing.T) {
	outbox := &stubJob{name: "outbox-retention"}
	dlq := &stubJob{name: "dlq-retention"}
	r := NewRegistry(outbox, nil)
	if err := r.Register(dlq); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(nil); err != nil {
		t.Fatalf("nil job should be ignored: %v", err)
	}

	jobs := r.Jobs()
	if len(jobs) != 2 || jobs[0] != outbox || jobs[1] != dlq {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if r.Jobs()[0] == nil {
		t.Fatalf("Jobs must return a copy")
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	var r Registry
	if err := r.Register(&stubJob{name: "dlq-retention"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(&stubJob{name: "dlq-retention"}); err == nil {
		t.Fatalf("expected duplicate name error")
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("NewRegistry should panic on duplicates")
		}
	}()
	NewRegistry(&stubJob{name: "x"}, &stubJob{name: "x"})
}
