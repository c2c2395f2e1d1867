package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/model"
)

const (
	// DefaultInterval is the wait between two status queries
	DefaultInterval = 30 * time.Second
	// DefaultMaxWait is the polling budget before giving up
	DefaultMaxWait = 480 * time.Second
)

// TerminalStatus is the outcome of AwaitTerminal.
// When TimedOut is set, Job holds the last observed, non-terminal state.
type TerminalStatus struct {
	Job      model.Job
	Polls    int
	Elapsed  time.Duration
	TimedOut bool
}

// Status is a shortcut for Job.Status
func (t TerminalStatus) Status() model.JobStatus {
	return t.Job.Status
}

// Terminal reports whether the job reached a terminal state within the budget
func (t TerminalStatus) Terminal() bool {
	return !t.TimedOut && t.Job.Status.IsTerminal()
}

// Poller waits for jobs to leave the Starting and InProgress states
type Poller struct {
	describer Describer
	interval  time.Duration
	maxWait   time.Duration
	clock     clock.Clock
	log       zerolog.Logger
}

// PollerOption customizes a Poller
type PollerOption func(*Poller)

// WithInterval sets the wait between queries
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxWait sets the total polling budget
func WithMaxWait(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d >= 0 {
			p.maxWait = d
		}
	}
}

// WithClock injects the clock used for waits and elapsed time
func WithClock(clk clock.Clock) PollerOption {
	return func(p *Poller) {
		if clk != nil {
			p.clock = clk
		}
	}
}

// WithLogger sets the poller logger
func WithLogger(log zerolog.Logger) PollerOption {
	return func(p *Poller) {
		p.log = log.With().Str("component", "poller").Logger()
	}
}

// NewPoller creates a poller with the default interval and budget
func NewPoller(describer Describer, opts ...PollerOption) *Poller {
	p := &Poller{
		describer: describer,
		interval:  DefaultInterval,
		maxWait:   DefaultMaxWait,
		clock:     clock.New(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured wait between queries
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// MaxWait returns the configured polling budget
func (p *Poller) MaxWait() time.Duration {
	return p.maxWait
}

// AwaitTerminal queries the job until it is terminal or the budget is spent.
// Running out of budget is not an error: the last observed state is returned with TimedOut set.
// Query errors end polling immediately.
func (p *Poller) AwaitTerminal(ctx context.Context, kind model.JobKind, id string) (TerminalStatus, error) {
	start := p.clock.Now()
	result := TerminalStatus{}

	for {
		job, err := p.describer.Describe(ctx, kind, id)
		result.Polls++
		result.Elapsed = p.clock.Since(start)
		if err != nil {
			return result, fmt.Errorf("describe %s job %s: %w", kind, id, err)
		}
		if job.ID == "" {
			job.ID = id
		}
		if job.Kind == "" {
			job.Kind = kind
		}
		result.Job = job

		logEvent := p.log.Debug()
		if !job.Status.Known() {
			logEvent = p.log.Warn()
		}
		logEvent.Str("job", id).Str("status", string(job.Status)).Int("poll", result.Polls).Msg("job status")

		if job.Status.IsTerminal() {
			return result, nil
		}

		remaining := p.maxWait - result.Elapsed
		if remaining <= 0 {
			result.TimedOut = true
			p.log.Warn().Str("job", id).Str("status", string(job.Status)).Dur("elapsed", result.Elapsed).Msg("polling budget exhausted")
			return result, nil
		}

		wait := p.interval
		if remaining < wait {
			wait = remaining
		}
		timer := p.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}
}
