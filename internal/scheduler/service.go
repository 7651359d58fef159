package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nudge/internal/engine"
	"nudge/pkg/logx"
)

type Config struct {
	Workers int

	// PollSpec is the cron cadence used for jobs scheduled by local
	// hour or window; those must tick often enough to catch every
	// timezone entering its window. Default "*/15 * * * *".
	PollSpec string

	// TickTimeout bounds one pipeline run. Zero means no engine-level
	// deadline (the gateway client's own timeouts still apply).
	TickTimeout time.Duration

	HistorySize int
}

// Runner executes one tick of a job's pipeline.
type Runner interface {
	RunJob(ctx context.Context, job engine.JobDefinition) (engine.TickReport, error)
}

type task struct {
	job    engine.JobDefinition
	manual bool
}

// Service drives the job table on cron triggers. Jobs are registered
// once, at Start; there is no dynamic add/remove.
type Service struct {
	mu sync.Mutex

	cfg    Config
	table  *engine.JobTable
	runner Runner
	log    logx.Logger

	// onFailure, when set, is invoked after a tick ends in error.
	onFailure func(job string, err error)

	parser cron.Parser
	c      *cron.Cron

	queue    chan task
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	hmu     sync.Mutex
	history []RunRecord
	lastRun map[string]RunRecord
}

// RunRecord is one completed tick, kept for the admin surface.
type RunRecord struct {
	Job      string            `json:"job"`
	Manual   bool              `json:"manual,omitempty"`
	Started  time.Time         `json:"started"`
	Duration time.Duration     `json:"duration"`
	Report   engine.TickReport `json:"report"`
	Error    string            `json:"error,omitempty"`
}

func New(cfg Config, table *engine.JobTable, runner Runner, log logx.Logger) *Service {
	return &Service{
		cfg:     cfg,
		table:   table,
		runner:  runner,
		log:     log,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		lastRun: map[string]RunRecord{},
	}
}

// SetFailureHook installs the tick-failure callback. Must be called
// before Start.
func (s *Service) SetFailureHook(fn func(job string, err error)) {
	s.onFailure = fn
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return nil
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.stopCh = make(chan struct{})
	s.queue = make(chan task, 64)

	// All cron math runs in UTC; per-recipient local time is the
	// engine's concern, not the trigger's.
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(time.UTC))
	for _, job := range s.table.Jobs() {
		job := job
		spec := s.specFor(job)
		if _, err := s.c.AddFunc(spec, func() { s.enqueue(task{job: job}) }); err != nil {
			s.c = nil
			close(s.stopCh)
			s.stopCh = nil
			return fmt.Errorf("scheduler: register %q (%s): %w", job.Name, spec, err)
		}
		s.log.Info("job registered", logx.String("job", job.Name), logx.String("spec", spec), logx.String("level", string(job.Level)))
	}

	stopCh := s.stopCh
	queue := s.queue
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer s.workerWG.Done()
			s.worker(ctx, stopCh, queue)
		}()
	}

	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.Int("jobs", s.table.Len()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	c := s.c
	s.stopCh = nil
	s.c = nil
	s.mu.Unlock()

	close(stopCh)
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		// stop continues in background
	}
}

// TriggerNow enqueues an immediate tick, bypassing the cron cadence.
// Window and watermark checks still apply inside the pipeline.
func (s *Service) TriggerNow(name string) error {
	job, ok := s.table.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	s.mu.Lock()
	running := s.stopCh != nil
	s.mu.Unlock()
	if !running {
		return errors.New("scheduler not started")
	}
	s.enqueue(task{job: job, manual: true})
	return nil
}

func (s *Service) specFor(job engine.JobDefinition) string {
	if job.Schedule.Cron != "" {
		return job.Schedule.Cron
	}
	if s.cfg.PollSpec != "" {
		return s.cfg.PollSpec
	}
	return "*/15 * * * *"
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full, dropping tick", logx.String("job", t.job.Name))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execTick(ctx, t)
		}
	}
}

func (s *Service) execTick(ctx context.Context, t task) {
	start := time.Now()
	runCtx := ctx
	if s.cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.TickTimeout)
		defer cancel()
	}

	report, err := s.safeRun(runCtx, t.job)

	rec := RunRecord{
		Job:      t.job.Name,
		Manual:   t.manual,
		Started:  start,
		Duration: time.Since(start),
		Report:   report,
	}
	if err != nil {
		rec.Error = err.Error()
		phase := "tick"
		var pe *engine.PhaseError
		if errors.As(err, &pe) {
			phase = pe.Phase
		}
		s.log.Warn("tick failed",
			logx.String("job", t.job.Name),
			logx.String("phase", phase),
			logx.Err(err))
		if s.onFailure != nil {
			s.onFailure(t.job.Name, err)
		}
	}
	s.record(rec)
}

// safeRun converts a panicking tick into a tick error. Recovery is per
// tick, not per worker: the worker loop keeps running and the job's
// next scheduled tick proceeds normally.
func (s *Service) safeRun(ctx context.Context, job engine.JobDefinition) (report engine.TickReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
			s.log.Error("panic in tick",
				logx.String("job", job.Name),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	return s.runner.RunJob(ctx, job)
}

func (s *Service) record(rec RunRecord) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.lastRun[rec.Job] = rec
	s.history = append(s.history, rec)
	max := s.cfg.HistorySize
	if max <= 0 {
		max = 200
	}
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}
