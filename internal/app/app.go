// Package app wires the engine together: config, logging, directory,
// gateway, dispatcher, scheduler, admin surface and ops alerts. It owns
// process lifecycle (start, config reload, shutdown).
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"nudge/internal/admin"
	"nudge/internal/config"
	"nudge/internal/directory"
	"nudge/internal/engine"
	"nudge/internal/gateway"
	"nudge/internal/opsalert"
	"nudge/internal/scheduler"
	"nudge/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	dir        directory.Directory
	dispatcher *engine.Dispatcher
	eng        *engine.Engine
	sched      *scheduler.Service
	adminSrv   *admin.Server
	alerts     *opsalert.Notifier

	jobsHash    uint64
	batchSize   int
	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

// New builds the full pipeline from the config file. dryRun swaps the
// push gateway for a local logger that accepts every token; note the
// pipeline still stamps watermarks, so point dry runs at a throwaway
// directory when previewing.
func New(ctx context.Context, cfgPath string, dryRun bool) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("info"))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	table, err := config.BuildJobTable(cfg.Jobs)
	if err != nil {
		return nil, fmt.Errorf("jobs: %w", err)
	}
	if table.Len() == 0 {
		log.Warn("no jobs configured; scheduler will idle")
	}

	busyTimeout, err := config.ParseDurationField("directory.busy_timeout", cfg.Directory.BusyTimeout)
	if err != nil {
		return nil, err
	}
	dir, err := directory.Open(ctx, directory.Config{
		Driver:      cfg.Directory.Driver,
		DSN:         cfg.Directory.DSN,
		Path:        cfg.Directory.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "directory")))
	if err != nil {
		return nil, err
	}

	var sender gateway.Sender
	if dryRun {
		sender = gateway.NewDryRun(log.With(logx.String("comp", "gateway")))
	} else {
		sender, err = gateway.NewFCM(ctx, gateway.FCMConfig{
			CredentialsFile: cfg.Gateway.CredentialsFile,
			ProjectID:       cfg.Gateway.ProjectID,
		}, log.With(logx.String("comp", "gateway")))
		if err != nil {
			_ = dir.Close()
			return nil, err
		}
	}

	dispatcher := engine.NewDispatcher(sender, engine.DispatcherConfig{
		BatchSize:  cfg.Dispatcher.BatchSize,
		RatePerSec: cfg.Dispatcher.RatePerSec,
	}, log.With(logx.String("comp", "dispatcher")))

	eng := engine.New(dir, dispatcher, log.With(logx.String("comp", "engine")))

	tickTimeout, err := config.ParseDurationField("scheduler.tick_timeout", cfg.Scheduler.TickTimeout)
	if err != nil {
		_ = dir.Close()
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{
		Workers:     cfg.Scheduler.Workers,
		PollSpec:    cfg.Scheduler.PollSpec,
		TickTimeout: tickTimeout,
		HistorySize: cfg.Scheduler.HistorySize,
	}, table, eng, log.With(logx.String("comp", "scheduler")))

	alerts, err := opsalert.New(opsalert.Config{
		Token:      cfg.Alerts.TelegramToken,
		ChatID:     cfg.Alerts.ChatID,
		RatePerMin: cfg.Alerts.RatePerMin,
	}, log.With(logx.String("comp", "opsalert")))
	if err != nil {
		// Alerting is auxiliary; never fail startup over it.
		log.Warn("ops alerting disabled", logx.Err(err))
		alerts = nil
	}
	if alerts != nil {
		sched.SetFailureHook(alerts.TickFailed)
	}

	a := &App{
		cfgm:       cfgm,
		logs:       logs,
		log:        log,
		dir:        dir,
		dispatcher: dispatcher,
		eng:        eng,
		sched:      sched,
		alerts:     alerts,
		jobsHash:   hashJobs(cfg.Jobs),
		batchSize:  cfg.Dispatcher.BatchSize,
	}
	if cfg.Admin.Enabled {
		a.adminSrv = admin.New(admin.Config{Addr: cfg.Admin.Addr}, sched,
			log.With(logx.String("comp", "admin")))
	}
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	if a.adminSrv != nil {
		a.adminSrv.Start()
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel

	sub := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(watchCtx); err != nil && watchCtx.Err() == nil {
			a.log.Warn("config watcher exited", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case cfg := <-sub:
				a.applyConfig(cfg)
			}
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.adminSrv != nil {
		shCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.adminSrv.Shutdown(shCtx)
		cancel()
	}
	a.sched.Stop(ctx)
	a.wg.Wait()
	err := a.dir.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

// TriggerJob runs one pipeline tick immediately, bypassing the
// scheduler. Used by the trigger subcommand.
func (a *App) TriggerJob(ctx context.Context, name string) (engine.TickReport, error) {
	cfg := a.cfgm.Get()
	table, err := config.BuildJobTable(cfg.Jobs)
	if err != nil {
		return engine.TickReport{}, err
	}
	job, ok := table.Lookup(name)
	if !ok {
		return engine.TickReport{}, fmt.Errorf("unknown job %q", name)
	}
	return a.eng.RunJob(ctx, job)
}

// applyConfig applies the hot-reloadable subset of a changed config.
// Job definitions are immutable for the process lifetime; a changed
// jobs section takes effect on the next restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.dispatcher.Apply(engine.DispatcherConfig{
		RatePerSec: cfg.Dispatcher.RatePerSec,
	})
	if cfg.Dispatcher.BatchSize != a.batchSize {
		a.log.Warn("dispatcher batch size changed on disk; batch size is fixed until restart")
	}
	if h := hashJobs(cfg.Jobs); h != a.jobsHash {
		a.log.Warn("jobs section changed on disk; job definitions are fixed until restart")
	}
	a.log.Info("config applied",
		logx.String("log_level", cfg.Logging.Level),
		logx.Int("dispatcher_rps", cfg.Dispatcher.RatePerSec))
}

func hashJobs(jobs []config.JobConfig) uint64 {
	b, err := json.Marshal(jobs)
	if err != nil {
		return 0
	}
	var h uint64 = 14695981039346656037
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}
