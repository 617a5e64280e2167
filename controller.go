package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Phase is the batch-level state of the controller.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResuming
	PhaseRunning
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResuming:
		return "resuming"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

var (
	ErrAlreadyRunning  = errors.New("already running")
	ErrNoNewCodes      = errors.New("no new codes to redeem")
	ErrNothingToResume = errors.New("no saved run found to resume")
	ErrCircuitOpen     = errors.New("stopped after too many consecutive errors")
)

// RunContext is the state owned by one batch. It is only touched by the run loop.
type RunContext struct {
	State             RunState
	ConsecutiveErrors int
}

type Controller struct {
	config   *Config
	redeemer Redeemer
	store    *StateStore
	ledger   *Ledger
	log      *StatusLog

	mu            sync.Mutex
	phase         Phase
	stopRequested bool
	input         []string
	pending       []string
	last          RunState
}

func NewController(config *Config, redeemer Redeemer, store *StateStore, ledger *Ledger, log *StatusLog) *Controller {
	return &Controller{
		config:   config,
		redeemer: redeemer,
		store:    store,
		ledger:   ledger,
		log:      log,
	}
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Pending returns the queue prepared by the last Enqueue.
func (c *Controller) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pending...)
}

// LastRun returns a copy of the most recent run state, finished or not.
func (c *Controller) LastRun() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.clone()
}

// AppendInput adds raw text (a paste, a file, mailbox codes) to the input.
func (c *Controller) AppendInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.TrimSpace(text) != "" {
		c.input = append(c.input, text)
	}
}

// InputCodes parses all input received so far.
func (c *Controller) InputCodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ParseCodes(strings.Join(c.input, "\n"))
}

// Enqueue parses the input, drops codes the ledger already holds and makes
// the rest the pending queue. It returns the queued and skipped counts.
func (c *Controller) Enqueue() (queued, skipped int) {
	all := c.InputCodes()
	fresh, dropped := FilterUnattempted(all, c.ledger)
	if len(dropped) > 0 {
		c.log.Warn(T("skipped_attempted", len(dropped)))
	}
	c.log.Info(T("parsed_codes", len(all), len(fresh)))

	c.mu.Lock()
	c.pending = fresh
	c.mu.Unlock()
	return len(fresh), len(dropped)
}

// Start runs a fresh batch over the input. It blocks until the batch ends.
func (c *Controller) Start(ctx context.Context, platform Platform) error {
	if err := c.enter(PhaseRunning); err != nil {
		return err
	}
	c.Enqueue()
	queue := c.Pending()
	if len(queue) == 0 {
		c.log.Warn(T("no_new_codes"))
		c.leave()
		return ErrNoNewCodes
	}

	rc := &RunContext{State: RunState{
		RunID:    uuid.NewString(),
		Queue:    queue,
		Platform: normalizePlatform(platform),
	}}
	return c.runLoop(ctx, rc)
}

// Resume continues the persisted batch. Codes that reached the ledger since
// the state was saved are filtered out of the pending tail.
func (c *Controller) Resume(ctx context.Context) error {
	if err := c.enter(PhaseResuming); err != nil {
		return err
	}
	saved, err := c.store.LoadRunState(ctx)
	if err != nil {
		c.log.Warn(T("state_load_failed", err))
	}
	if saved == nil || len(saved.Remaining()) == 0 {
		c.log.Warn(T("nothing_to_resume"))
		c.leave()
		return ErrNothingToResume
	}

	rc := &RunContext{State: ResumeState(*saved, c.ledger)}
	if rc.State.Platform == "" {
		rc.State.Platform = Platform(c.config.Platform)
	}
	rc.State.Platform = normalizePlatform(rc.State.Platform)
	c.log.OK(T("resuming_run", len(rc.State.Remaining())))
	return c.runLoop(ctx, rc)
}

// ResumeState rebuilds a saved batch so that Queue[CurrentIndex:] is the saved
// tail minus the ledger and CurrentIndex keeps its batch position.
func ResumeState(saved RunState, ledger *Ledger) RunState {
	state := saved.clone()
	i := saved.CurrentIndex
	if i < 0 {
		i = 0
	}
	if i > len(saved.Queue) {
		i = len(saved.Queue)
	}
	tail, _ := FilterUnattempted(saved.Queue[i:], ledger)
	state.Queue = append(append([]string(nil), saved.Queue[:i]...), tail...)
	state.CurrentIndex = min(i, len(state.Queue))
	return state
}

// Stop asks the running batch to end after the in-flight code. It only
// raises the flag; the run loop persists the stopped state itself.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.phase != PhaseRunning && c.phase != PhaseResuming {
		c.mu.Unlock()
		return
	}
	c.stopRequested = true
	c.phase = PhaseStopping
	c.mu.Unlock()

	c.log.Info(T("stopping_after_current"))
}

// ResetHistory clears the attempted ledger. Confirmation is the caller's job.
func (c *Controller) ResetHistory(ctx context.Context) error {
	if err := c.ledger.Reset(ctx); err != nil {
		c.log.Error(T("ledger_save_failed", err))
		return err
	}
	c.log.OK(T("history_cleared"))
	return nil
}

func (c *Controller) enter(next Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseIdle {
		c.log.Warn(T("already_running"))
		return ErrAlreadyRunning
	}
	c.phase = next
	c.stopRequested = false
	return nil
}

func (c *Controller) leave() {
	c.mu.Lock()
	c.phase = PhaseIdle
	c.stopRequested = false
	c.mu.Unlock()
}

// checkpoint publishes the run's state and reports whether a stop was asked for.
func (c *Controller) checkpoint(rc *RunContext) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = rc.State.clone()
	if c.phase == PhaseResuming {
		c.phase = PhaseRunning
	}
	return c.stopRequested
}

func (c *Controller) runLoop(ctx context.Context, rc *RunContext) error {
	defer c.leave()
	state := &rc.State
	state.Running = true
	platform := state.Platform
	maxErrors := c.config.MaxConsecutiveErrors

	var runErr error
	for state.CurrentIndex < len(state.Queue) {
		if c.checkpoint(rc) {
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		code := state.Queue[state.CurrentIndex]
		inFlight := state.clone()
		inFlight.CurrentIndex++
		c.persist(ctx, inFlight)

		c.log.Info(T("attempting_code", state.CurrentIndex+1, len(state.Queue), code, platform))
		outcome, err := c.redeemer.Redeem(ctx, code, platform)
		state.CurrentIndex++
		if err != nil && ctx.Err() != nil {
			// The in-flight code is not retried, same as after a crash.
			runErr = ctx.Err()
			break
		}

		if err != nil {
			state.Errors++
			rc.ConsecutiveErrors++
			state.Results = append(state.Results, Result{Code: code, Status: "error", Details: err.Error()})
			c.log.Error(T("error_on_code", code, err))
			c.refreshStats(state)
			if rc.ConsecutiveErrors >= maxErrors {
				c.log.Error(T("circuit_breaker_tripped"))
				state.Running = false
				c.persist(ctx, *state)
				c.checkpoint(rc)
				return ErrCircuitOpen
			}
			continue
		}

		state.Results = append(state.Results, Result{Code: code, Status: string(outcome.Kind), Details: outcome.Text})
		if err := c.ledger.MarkAttempted(ctx, code); err != nil {
			c.log.Warn(T("ledger_save_failed", err))
		}
		rc.ConsecutiveErrors = 0
		c.recordOutcome(state, code, outcome)
		c.refreshStats(state)
	}
	c.checkpoint(rc)

	if runErr != nil {
		// Aborted like a crash: leave running=true so the next start resumes.
		c.persist(context.WithoutCancel(ctx), *state)
		return runErr
	}
	if state.CurrentIndex < len(state.Queue) {
		state.Running = false
		c.persist(ctx, *state)
		c.checkpoint(rc)
		c.log.Info(T("stopped", len(state.Remaining())))
		return nil
	}

	state.Running = false
	c.checkpoint(rc)
	if err := c.store.ClearRunState(ctx); err != nil {
		c.log.Warn(T("state_save_failed", err))
	}
	if state.Success > 0 {
		c.log.OK(T("finished", state.Success, state.Errors))
	} else {
		c.log.Warn(T("finished", state.Success, state.Errors))
	}
	return nil
}

func (c *Controller) recordOutcome(state *RunState, code string, outcome Outcome) {
	switch outcome.Kind {
	case OutcomeSuccess:
		state.Success++
		c.log.OK(T("outcome_success", code))
	case OutcomeUnavailable:
		state.Errors++
		c.log.Error(T("outcome_unavailable", code))
		return
	case OutcomeInvalid:
		state.Errors++
		c.log.Error(T("outcome_invalid", code))
	case OutcomePlatformMismatch:
		state.Errors++
		c.log.Warn(T("outcome_platform", code))
	case OutcomeThrottled:
		state.Errors++
		c.log.Warn(T("outcome_throttled", code))
	default:
		c.log.Info(T("outcome_unknown", code))
	}
	if outcome.Text != "" {
		c.log.Info(T("outcome_details", truncate(outcome.Text, 180)))
	}
}

func (c *Controller) refreshStats(state *RunState) {
	c.log.Stats(len(state.Remaining()), state.Success, state.Errors, state.CurrentIndex, len(state.Queue))
}

// persist saves state; failures weaken resume but never stop the run.
func (c *Controller) persist(ctx context.Context, state RunState) {
	if err := c.store.SaveRunState(ctx, state); err != nil {
		c.log.Warn(T("state_save_failed", err))
	}
}

// normalizePlatform resolves aliases such as "playstation" to a canonical name.
// Unknown names are kept so the missing button is reported per code.
func normalizePlatform(p Platform) Platform {
	if canonical, err := ParsePlatform(string(p)); err == nil {
		return canonical
	}
	return p
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
