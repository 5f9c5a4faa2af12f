package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one unit of scheduled work.
type Job interface {
	Run(ctx context.Context)
}

// JobFunc is a function adapter for Job.
type JobFunc func(ctx context.Context)

func (f JobFunc) Run(ctx context.Context) {
	f(ctx)
}

// Config holds poller configuration.
type Config struct {
	Interval     time.Duration // Time between cycle starts (default: 5m)
	CycleTimeout time.Duration // Upper bound on one cycle, 0 for none
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		CycleTimeout: 2 * time.Minute,
	}
}

// ticker is the subset of *time.Ticker the loop needs.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{time.NewTicker(d)}
}

// Poller runs a Job on a fixed interval.
type Poller struct {
	cfg       Config
	job       Job
	logger    *slog.Logger
	newTicker func(time.Duration) ticker
	cycles    atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, job Job, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		cfg:       cfg,
		job:       job,
		logger:    logger,
		newTicker: newTimeTicker,
	}
}

// Cycles returns the number of cycles started so far.
func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

// Run runs cycles until ctx is canceled. The first cycle starts
// immediately. Cancellation is checked before every cycle and during the
// wait between cycles; a running cycle is not interrupted.
func (p *Poller) Run(ctx context.Context) {
	t := p.newTicker(p.cfg.Interval)
	defer t.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		p.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}
	}
}

// runCycle runs the job on a context that outlives ctx's cancellation,
// bounded by the cycle timeout.
func (p *Poller) runCycle(ctx context.Context) {
	n := p.cycles.Add(1)
	cycleCtx := context.WithoutCancel(ctx)
	if p.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(cycleCtx, p.cfg.CycleTimeout)
		defer cancel()
	}

	start := time.Now()
	p.logger.Debug("cycle starting", "cycle", n)
	p.job.Run(cycleCtx)
	p.logger.Debug("cycle finished", "cycle", n, "duration", time.Since(start))
}

// Start begins the polling loop in the background.
func (p *Poller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(ctx)
	}()

	p.logger.Info("poller started",
		"interval", p.cfg.Interval,
		"cycle_timeout", p.cfg.CycleTimeout,
	)

	return nil
}

// Stop cancels the loop and waits for the current cycle to finish or for
// ctx to expire.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller stopped", "cycles", p.cycles.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
