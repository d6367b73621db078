package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// tickJob is a scriptable Job for scheduler tests. The maintenance jobs
// themselves are covered in jobs_test.go; these tests drive the scheduling
// mechanics.
type tickJob struct {
	name     string
	schedule string
	runFunc  func(ctx context.Context) error
	calls    atomic.Int32
}

func (j *tickJob) Name() string     { return j.name }
func (j *tickJob) Schedule() string { return j.schedule }
func (j *tickJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func newTestScheduler() *Scheduler {
	return NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScheduler_RegisterMaintenanceJobs(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	pruner := &testPruner{}
	resetter := &testResetter{}

	if err := s.RegisterJob(&ConversationPruneJob{Pruner: pruner, Logger: slog.Default()}); err != nil {
		t.Fatalf("register prune job: %v", err)
	}
	if err := s.RegisterJob(&DedupResetJob{
		Channels: map[string]DedupResetter{"channel.lark": resetter},
		Logger:   slog.Default(),
	}); err != nil {
		t.Fatalf("register dedup job: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_DuplicateJobName(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	if err := s.RegisterJob(&tickJob{name: "prune", schedule: "* * * * *"}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := s.RegisterJob(&tickJob{name: "prune", schedule: "*/2 * * * *"}); err == nil {
		t.Fatal("duplicate name should be rejected")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		expr string
	}{
		{"word", "often"},
		{"six fields", "0 0 * * * *"},
		{"empty", ""},
		{"out of range", "61 * * * *"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestScheduler()
			_ = s.RegisterJob(&tickJob{name: "bad", schedule: tc.expr})
			if err := s.Start(); err == nil {
				t.Errorf("Start accepted schedule %q", tc.expr)
			}
		})
	}
}

func TestScheduler_OverlappingTickSkipped(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	job := &tickJob{
		name:     "slow",
		schedule: "* * * * *",
		runFunc: func(_ context.Context) error {
			<-release
			return nil
		},
	}

	s := newTestScheduler()
	if err := s.RegisterJob(job); err != nil {
		t.Fatalf("register: %v", err)
	}

	entry := s.jobs["slow"]
	ctx := context.Background()

	// First tick holds the job; concurrent ticks must not run it again.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runOnce(ctx, entry)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for job.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first tick did not start")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 5; i++ {
		s.runOnce(ctx, entry)
	}
	close(release)
	wg.Wait()

	if got := job.calls.Load(); got != 1 {
		t.Errorf("job ran %d times, want 1 (overlapping ticks skipped)", got)
	}
}

func TestScheduler_JobErrorDoesNotStopScheduler(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	_ = s.RegisterJob(&tickJob{
		name:     "failing",
		schedule: "* * * * *",
		runFunc: func(_ context.Context) error {
			return errors.New("prune failed")
		},
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestScheduler_NilLoggerDefaults(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil)
	if s.logger == nil {
		t.Fatal("logger should default to slog.Default()")
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := newTestScheduler()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
