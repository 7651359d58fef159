package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"nudge/internal/gateway"
	"nudge/pkg/logx"
)

type DispatcherConfig struct {
	// BatchSize caps tokens per multicast call. Clamped to the gateway
	// hard limit; zero means use the limit.
	BatchSize int

	// RatePerSec throttles multicast calls. Zero disables throttling.
	RatePerSec int
}

// Outcome accumulates per-token results across the batches of one tick.
// Tokens with transient errors appear in neither set; they become
// eligible again on the next due tick.
type Outcome struct {
	Success   []string
	Failed    []string // permanent errors only; input to pruning
	Transient int
}

// Dispatcher partitions a recipient set into capped batches and drives
// the push gateway, preserving token order within each batch so results
// correlate by index.
type Dispatcher struct {
	gw    gateway.Sender
	batch int
	log   logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

func NewDispatcher(gw gateway.Sender, cfg DispatcherConfig, log logx.Logger) *Dispatcher {
	batch := cfg.BatchSize
	if batch <= 0 || batch > gateway.MaxBatchTokens {
		batch = gateway.MaxBatchTokens
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return &Dispatcher{gw: gw, limiter: limiter, batch: batch, log: log}
}

// Apply swaps the pacing limiter at runtime. Batch size is fixed.
func (d *Dispatcher) Apply(cfg DispatcherConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cfg.RatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	} else {
		d.limiter = nil
	}
}

func (d *Dispatcher) pacer() *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limiter
}

// Dispatch sends msg to every token, in submission order, batch by
// batch. A gateway-level call failure aborts the remaining batches but
// the returned Outcome keeps everything already processed; the caller
// applies it as-is.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, msg gateway.Message) (Outcome, error) {
	var out Outcome
	for start := 0; start < len(tokens); start += d.batch {
		end := start + d.batch
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		if lim := d.pacer(); lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return out, fmt.Errorf("dispatch: rate wait: %w", err)
			}
		}

		results, err := d.gw.SendMulticast(ctx, batch, msg)
		if err != nil {
			return out, fmt.Errorf("dispatch: batch %d-%d: %w", start, end, err)
		}
		if len(results) != len(batch) {
			return out, fmt.Errorf("dispatch: gateway returned %d results for %d tokens", len(results), len(batch))
		}

		for i, r := range results {
			switch {
			case r.OK:
				out.Success = append(out.Success, batch[i])
			case isPermanent(r.ErrorClass):
				out.Failed = append(out.Failed, batch[i])
			default:
				out.Transient++
				d.log.Warn("transient send failure",
					logx.String("class", r.ErrorClass),
					logx.String("token", abbrevToken(batch[i])))
			}
		}
	}
	return out, nil
}

func isPermanent(class string) bool {
	return class == gateway.ErrClassInvalidToken || class == gateway.ErrClassUnregistered
}

// abbrevToken keeps full tokens out of logs.
func abbrevToken(t string) string {
	if len(t) <= 12 {
		return t
	}
	return t[:12] + "..."
}
