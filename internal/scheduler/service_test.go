package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"nudge/internal/engine"
	"nudge/internal/gateway"
	"nudge/pkg/logx"
)

func hourPtr(h int) *int { return &h }

func testTable(t *testing.T) *engine.JobTable {
	t.Helper()
	table, err := engine.NewJobTable([]engine.JobDefinition{
		{
			Name:     "morning-digest",
			Level:    engine.LevelDevice,
			Schedule: engine.Schedule{TargetLocalHour: hourPtr(8)},
			Message:  gateway.Message{Title: "Good morning"},
			Rule:     engine.RuleAlwaysDue,
		},
		{
			Name:     "weekly-sweep",
			Level:    engine.LevelUser,
			Schedule: engine.Schedule{Cron: "0 9 * * 1"},
			Message:  gateway.Message{Title: "Weekly"},
			Rule:     engine.RuleAlwaysDue,
		},
	})
	if err != nil {
		t.Fatalf("NewJobTable: %v", err)
	}
	return table
}

func TestSpecForPrefersExplicitCron(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testTable(t), nil, logx.Nop())

	job, _ := s.table.Lookup("weekly-sweep")
	if got := s.specFor(job); got != "0 9 * * 1" {
		t.Fatalf("specFor = %q, want the job's own cron expression", got)
	}
}

func TestSpecForLocalHourJobsUsePollCadence(t *testing.T) {
	t.Parallel()
	job := engine.JobDefinition{Schedule: engine.Schedule{TargetLocalHour: hourPtr(8)}}

	s := New(Config{}, testTable(t), nil, logx.Nop())
	if got := s.specFor(job); got != "*/15 * * * *" {
		t.Fatalf("specFor = %q, want default poll cadence", got)
	}

	s = New(Config{PollSpec: "*/5 * * * *"}, testTable(t), nil, logx.Nop())
	if got := s.specFor(job); got != "*/5 * * * *" {
		t.Fatalf("specFor = %q, want configured poll cadence", got)
	}
}

func TestTriggerNowRequiresKnownJobAndRunningService(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testTable(t), nil, logx.Nop())

	if err := s.TriggerNow("nope"); err == nil {
		t.Fatal("expected error for unknown job")
	}
	if err := s.TriggerNow("morning-digest"); err == nil {
		t.Fatal("expected error while scheduler is stopped")
	}
}

// panicOnceRunner blows up on its first tick and signals on every
// later one.
type panicOnceRunner struct {
	calls int32
	ran   chan struct{}
}

func (r *panicOnceRunner) RunJob(context.Context, engine.JobDefinition) (engine.TickReport, error) {
	if atomic.AddInt32(&r.calls, 1) == 1 {
		panic("boom")
	}
	select {
	case r.ran <- struct{}{}:
	default:
	}
	return engine.TickReport{}, nil
}

func TestWorkerSurvivesPanickingTick(t *testing.T) {
	t.Parallel()
	r := &panicOnceRunner{ran: make(chan struct{}, 1)}
	s := New(Config{Workers: 1}, testTable(t), r, logx.Nop())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	// The sole worker handles both ticks; if recovery killed it, the
	// second tick would sit in the queue forever.
	if err := s.TriggerNow("morning-digest"); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if err := s.TriggerNow("morning-digest"); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	select {
	case <-r.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("tick after a panicking one never ran")
	}
}

func TestHistoryRingIsBounded(t *testing.T) {
	t.Parallel()
	s := New(Config{HistorySize: 3}, testTable(t), nil, logx.Nop())

	for i := 0; i < 10; i++ {
		s.record(RunRecord{Job: "morning-digest"})
	}
	if got := len(s.History()); got != 3 {
		t.Fatalf("history length = %d, want 3", got)
	}
	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot entries = %d, want one per job", len(snap))
	}
	if snap[0].Name != "morning-digest" || snap[0].LastRun == nil {
		t.Fatalf("snapshot[0] = %+v, want morning-digest with last run", snap[0])
	}
}
