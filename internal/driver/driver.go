package driver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/moonhollow/werewolf-server/internal/game"
)

const (
	// DefaultDecideTimeout bounds a single decider call.
	DefaultDecideTimeout = 30 * time.Second
	// DefaultMaxFailures is how many consecutive failed turns pause the
	// game's automation. A paused game stays readable and manually
	// steppable.
	DefaultMaxFailures = 3
	// defaultPollInterval is how often the loop wakes up without bus
	// traffic, to fire phase deadlines.
	defaultPollInterval = time.Second
)

// Config carries the tunables for one game's automation loop.
type Config struct {
	DecideTimeout time.Duration
	MaxFailures   int
	PollInterval  time.Duration
	Clock         quartz.Clock
	Logger        *log.Logger
}

// Driver advances one game by collecting decisions from the AI seats'
// deciders and stepping elapsed phases. One driver goroutine serves one
// game; drivers for different games share nothing.
type Driver struct {
	session  *game.Session
	deciders map[int]game.Decider
	clock    quartz.Clock
	logger   *log.Logger

	decideTimeout time.Duration
	maxFailures   int
	pollInterval  time.Duration

	paused   atomic.Bool
	failures atomic.Int32
	notify   chan struct{}
}

// New creates a driver for the session. deciders maps AI seat ids to their
// decision makers; seats without an entry are left to humans and timeouts.
func New(session *game.Session, deciders map[int]game.Decider, cfg Config) *Driver {
	clock := cfg.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	d := &Driver{
		session:       session,
		deciders:      deciders,
		clock:         clock,
		logger:        logger.WithPrefix("driver").With("game", session.GameID()),
		decideTimeout: cfg.DecideTimeout,
		maxFailures:   cfg.MaxFailures,
		pollInterval:  cfg.PollInterval,
		notify:        make(chan struct{}, 1),
	}
	if d.decideTimeout == 0 {
		d.decideTimeout = DefaultDecideTimeout
	}
	if d.maxFailures == 0 {
		d.maxFailures = DefaultMaxFailures
	}
	if d.pollInterval == 0 {
		d.pollInterval = defaultPollInterval
	}
	session.Bus().Subscribe(d)
	return d
}

// OnEvent wakes the loop on any committed mutation.
func (d *Driver) OnEvent(e game.Event) {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Paused reports whether automation is halted after repeated failures.
func (d *Driver) Paused() bool {
	return d.paused.Load()
}

// Resume clears the failure counter and restarts automation.
func (d *Driver) Resume() {
	d.failures.Store(0)
	d.paused.Store(false)
	d.logger.Info("Automation resumed")
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Pause halts automation without touching the game state.
func (d *Driver) Pause() {
	d.paused.Store(true)
	d.logger.Info("Automation paused")
}

// Run drives the game until it finishes, errors, or ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	for {
		snap := d.session.Snapshot()
		if snap.Finished() {
			d.logger.Info("Game finished, driver exiting", "result", snap.Result)
			return nil
		}
		if snap.Errored {
			d.logger.Warn("Game errored, driver exiting", "error", snap.ErrorMsg)
			return nil
		}

		if !d.paused.Load() {
			d.pump(ctx)
			if _, err := d.session.Step(); err != nil {
				if rej, ok := err.(*game.Rejection); !ok || rej.Code != game.RejectGameFinished {
					d.logger.Warn("Step failed", "err", err)
				}
			}
		}

		timer := d.clock.NewTimer(d.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-d.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// pump asks every waiting AI seat for its decision and submits the result.
func (d *Driver) pump(ctx context.Context) {
	for _, seat := range d.session.PendingAIActors() {
		if ctx.Err() != nil {
			return
		}
		decider, ok := d.deciders[seat]
		if !ok {
			continue
		}
		if err := d.takeTurn(ctx, seat, decider); err != nil {
			d.recordFailure(seat, err)
			continue
		}
		d.failures.Store(0)
	}
}

type decideResult struct {
	decision game.Decision
	err      error
}

// takeTurn collects one decision with a bounded wait and submits it.
func (d *Driver) takeTurn(ctx context.Context, seat int, decider game.Decider) error {
	snapshot := d.session.SnapshotFor(seat)
	legal := d.session.LegalActions(seat)
	if len(legal) == 0 {
		return nil
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultc := make(chan decideResult, 1)
	go func() {
		decision, err := decider.Decide(dctx, snapshot, seat, legal)
		resultc <- decideResult{decision: decision, err: err}
	}()

	timer := d.clock.NewTimer(d.decideTimeout)
	defer timer.Stop()

	var res decideResult
	select {
	case res = <-resultc:
	case <-timer.C:
		cancel()
		return fmt.Errorf("seat %d decision timed out after %s", seat, d.decideTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("seat %d decider: %w", seat, res.err)
	}

	if _, err := d.session.SubmitAction(res.decision.ToAction(seat)); err != nil {
		rej, ok := err.(*game.Rejection)
		if ok && rej.Code == game.RejectAlreadySubmitted {
			// raced with a manual submission for the same seat
			return nil
		}
		return fmt.Errorf("seat %d submit %s: %w", seat, res.decision.Type, err)
	}
	return nil
}

// recordFailure counts consecutive failed turns and pauses the game's
// automation at the limit.
func (d *Driver) recordFailure(seat int, err error) {
	n := int(d.failures.Add(1))
	d.logger.Warn("AI turn failed", "seat", seat, "failures", n, "err", err)
	if n < d.maxFailures {
		return
	}
	d.paused.Store(true)
	reason := fmt.Sprintf("%d consecutive AI failures, last: %v", n, err)
	d.logger.Error("Automation paused", "reason", reason)
	d.session.Bus().Publish(game.NewAutomationPauseEvent(d.session.GameID(), reason, n))
}
