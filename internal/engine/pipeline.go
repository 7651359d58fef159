package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nudge/internal/directory"
	"nudge/pkg/logx"
)

// Tick phases, used in logs and failure alerts.
const (
	PhaseLoad     = "load"
	PhaseDispatch = "dispatch"
	PhaseApply    = "apply"
)

// PhaseError marks which pipeline phase a tick died in. Nothing above
// the scheduler retries it; the next scheduled tick starts from scratch.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string { return e.Phase + ": " + e.Err.Error() }
func (e *PhaseError) Unwrap() error { return e.Err }

// TickReport summarizes one pipeline run for logs and the admin API.
type TickReport struct {
	Candidates int // directory records with at least one token
	Eligible   int // (record, token) pairs past window+watermark+rule
	Unique     int // tokens after dedup
	Sent       int
	Pruned     int
	Transient  int
}

// Engine wires the pipeline stages together. One Engine serves all
// jobs; it keeps no per-job state besides the timezone cache.
type Engine struct {
	dir        directory.Directory
	dispatcher *Dispatcher
	log        logx.Logger

	// now is injectable so window and watermark decisions are
	// deterministic under test.
	now func() time.Time

	locMu sync.Mutex
	locs  map[string]*time.Location // nil entry = unloadable zone
}

type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(dir directory.Directory, dispatcher *Dispatcher, log logx.Logger, opts ...Option) *Engine {
	e := &Engine{
		dir:        dir,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
		locs:       map[string]*time.Location{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunJob executes one tick of the pipeline for a job. Errors terminate
// the tick; partial dispatch results collected before a gateway-level
// failure are still applied to the directory.
func (e *Engine) RunJob(ctx context.Context, job JobDefinition) (TickReport, error) {
	now := e.now().UTC()
	log := e.log.With(logx.String("job", job.Name))

	records, err := e.dir.FindRecipientsWithTokens(ctx)
	if err != nil {
		return TickReport{}, &PhaseError{Phase: PhaseLoad, Err: err}
	}

	var candidates []Recipient
	for _, rec := range records {
		switch job.Level {
		case LevelDevice:
			candidates = append(candidates, e.deviceCandidates(rec, job, now)...)
		case LevelUser:
			candidates = append(candidates, e.userCandidates(rec, job, now)...)
		}
	}

	unique := Dedupe(candidates)
	report := TickReport{
		Candidates: len(records),
		Eligible:   len(candidates),
		Unique:     len(unique),
	}
	if len(unique) == 0 {
		log.Debug("no eligible recipients", logx.Int("records", len(records)))
		return report, nil
	}

	tokens := make([]string, len(unique))
	for i, r := range unique {
		tokens[i] = r.Token
	}

	outcome, sendErr := e.dispatcher.Dispatch(ctx, tokens, job.Message)
	report.Sent = len(outcome.Success)
	report.Pruned = len(outcome.Failed)
	report.Transient = outcome.Transient

	// Apply whatever completed, even when a later batch died: the
	// watermark is what prevents a re-send on an overlapping run.
	if err := e.applyOutcome(ctx, job.Name, outcome, now); err != nil {
		return report, &PhaseError{Phase: PhaseApply, Err: err}
	}
	if sendErr != nil {
		return report, &PhaseError{Phase: PhaseDispatch, Err: sendErr}
	}

	log.Info("tick complete",
		logx.Int("eligible", report.Eligible),
		logx.Int("unique", report.Unique),
		logx.Int("sent", report.Sent),
		logx.Int("pruned", report.Pruned),
		logx.Int("transient", report.Transient))
	return report, nil
}

// deviceCandidates evaluates every token of a record independently.
// Tokens without a timezone cannot resolve a local clock and are
// skipped silently.
func (e *Engine) deviceCandidates(rec directory.Record, job JobDefinition, nowUTC time.Time) []Recipient {
	var out []Recipient
	for _, dt := range rec.Tokens {
		loc := e.location(dt.Timezone)
		if loc == nil {
			continue
		}
		localNow := nowUTC.In(loc)
		if !IsDue(nowUTC, loc, job.Schedule) {
			continue
		}
		if AlreadySentToday(dt.LastSent[job.Name], localNow) {
			continue
		}
		if !ruleHolds(job.Rule, dt.LastOpenedAppAt, localNow) {
			continue
		}
		out = append(out, Recipient{Token: dt.Token, OwnerUserID: rec.UserID, LastOpenedAppAt: dt.LastOpenedAppAt})
	}
	return out
}

// userCandidates evaluates a record once, using its most recently
// active token that carries a timezone as the user's reference clock.
// An eligible user contributes all of their tokens; success later
// stamps the watermark on each of them.
func (e *Engine) userCandidates(rec directory.Record, job JobDefinition, nowUTC time.Time) []Recipient {
	ref := -1
	var refLoc *time.Location
	for i, dt := range rec.Tokens {
		loc := e.location(dt.Timezone)
		if loc == nil {
			continue
		}
		if ref < 0 || laterOpened(dt.LastOpenedAppAt, rec.Tokens[ref].LastOpenedAppAt) {
			ref, refLoc = i, loc
		}
	}
	if ref < 0 {
		return nil
	}

	localNow := nowUTC.In(refLoc)
	if !IsDue(nowUTC, refLoc, job.Schedule) {
		return nil
	}
	// A user counts as notified today if any of their tokens carries a
	// same-day watermark; success stamps all of them together.
	for _, dt := range rec.Tokens {
		if AlreadySentToday(dt.LastSent[job.Name], localNow) {
			return nil
		}
	}
	if !ruleHolds(job.Rule, rec.Tokens[ref].LastOpenedAppAt, localNow) {
		return nil
	}

	out := make([]Recipient, 0, len(rec.Tokens))
	for _, dt := range rec.Tokens {
		out = append(out, Recipient{Token: dt.Token, OwnerUserID: rec.UserID, LastOpenedAppAt: dt.LastOpenedAppAt})
	}
	return out
}

func (e *Engine) applyOutcome(ctx context.Context, jobName string, out Outcome, now time.Time) error {
	if len(out.Success) > 0 {
		if err := e.dir.BulkSetLastSent(ctx, jobName, out.Success, now); err != nil {
			return fmt.Errorf("set watermarks: %w", err)
		}
	}
	if len(out.Failed) > 0 {
		if err := e.dir.BulkRemoveTokens(ctx, out.Failed); err != nil {
			return fmt.Errorf("prune tokens: %w", err)
		}
	}
	return nil
}

// location resolves an IANA zone, caching hits and misses. A nil return
// means "no usable zone" and the token is excluded from evaluation.
func (e *Engine) location(tz *string) *time.Location {
	if tz == nil || *tz == "" {
		return nil
	}
	e.locMu.Lock()
	defer e.locMu.Unlock()
	if loc, ok := e.locs[*tz]; ok {
		return loc
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		e.log.Debug("unloadable timezone, excluding token", logx.String("tz", *tz))
		loc = nil
	}
	e.locs[*tz] = loc
	return loc
}

func laterOpened(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
