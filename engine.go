package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Step is a state of a single code's redemption.
type Step int

const (
	StepAwaitingForm Step = iota
	StepTyped
	StepChecked
	StepPlatformSelecting
	StepConfirming
	StepAwaitingStatus
	StepDone
)

var stepNames = [...]string{"awaiting form", "typed", "checked", "platform selecting", "confirming", "awaiting status", "done"}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

var (
	ErrFormNotReady          = errors.New("form did not become ready for the next code")
	ErrCheckButtonMissing    = errors.New(`could not find the "Check/Submit" button`)
	ErrPlatformButtonMissing = errors.New("could not find the platform redeem button")
)

// StepError is a per-code failure raised at a given step.
type StepError struct {
	Step Step
	Code string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Code, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Redeemer drives one code through the page and returns its classified outcome.
type Redeemer interface {
	Redeem(ctx context.Context, code string, platform Platform) (Outcome, error)
}

var (
	checkLabel   = regexp.MustCompile(`(?i)(^|\b)(check|verify|submit|continue|redeem)(\b|$)`)
	confirmLabel = regexp.MustCompile(`(?i)confirm|claim|accept|continue`)
	dismissLabel = regexp.MustCompile(`(?i)(^|\b)(close|ok|done|continue|got it|dismiss|x)(\b|$)|^×$`)
)

// Timings are the pauses and bounds of every step.
type Timings struct {
	TypePause        time.Duration
	ClearPause       time.Duration
	AfterCheckPause  time.Duration
	ValidationWait   time.Duration
	RedeemButtonWait time.Duration
	ButtonPoll       time.Duration
	ConfirmWait      time.Duration
	PostRedeemPause  time.Duration
	EarlyStatusWait  time.Duration
	DismissSettle    time.Duration
	BetweenCodes     time.Duration
	StatusTimeout    time.Duration
	StatusInterval   time.Duration
	FormReadyTimeout time.Duration
	FormReadyPoll    time.Duration
}

func TimingsFromConfig(t TimingConfig) Timings {
	return Timings{
		TypePause:        ms(t.TypePauseMs),
		ClearPause:       ms(t.ClearPauseMs),
		AfterCheckPause:  ms(t.AfterCheckPauseMs),
		ValidationWait:   ms(t.ValidationWaitMs),
		RedeemButtonWait: ms(t.RedeemButtonWaitMs),
		ButtonPoll:       ms(t.ButtonPollMs),
		ConfirmWait:      ms(t.ConfirmWaitMs),
		PostRedeemPause:  ms(t.PostRedeemPauseMs),
		EarlyStatusWait:  ms(t.EarlyStatusWaitMs),
		DismissSettle:    ms(t.DismissSettleMs),
		BetweenCodes:     ms(t.BetweenCodesMs),
		StatusTimeout:    ms(t.StatusTimeoutMs),
		StatusInterval:   ms(t.StatusIntervalMs),
		FormReadyTimeout: ms(t.FormReadyTimeoutMs),
		FormReadyPoll:    ms(t.FormReadyPollMs),
	}
}

// StepEngine runs the fixed redemption flow: enter code, check, redeem for
// platform, confirm, read status, dismiss overlays.
type StepEngine struct {
	surface       Surface
	locator       *Locator
	classifier    *StatusClassifier
	timings       Timings
	maxDismissals int
	debug         func(format string, args ...interface{})
}

func NewStepEngine(surface Surface, timings Timings, maxDismissals int) *StepEngine {
	return &StepEngine{
		surface:       surface,
		locator:       NewLocator(surface),
		classifier:    NewStatusClassifier(surface, timings.StatusInterval),
		timings:       timings,
		maxDismissals: maxDismissals,
		debug:         func(string, ...interface{}) {},
	}
}

// SetDebug routes step transitions to fn.
func (e *StepEngine) SetDebug(fn func(format string, args ...interface{})) {
	if fn != nil {
		e.debug = fn
	}
}

func (e *StepEngine) Redeem(ctx context.Context, code string, platform Platform) (Outcome, error) {
	fail := func(step Step, err error) (Outcome, error) {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		return Outcome{}, &StepError{Step: step, Code: code, Err: err}
	}

	e.debug("%s: %s", code, StepAwaitingForm)
	input, err := e.waitForFormReady(ctx)
	if err != nil {
		return fail(StepAwaitingForm, err)
	}

	e.debug("%s: %s", code, StepTyped)
	if err := e.typeCode(ctx, input, code); err != nil {
		return fail(StepTyped, err)
	}

	e.debug("%s: %s", code, StepChecked)
	if err := e.clickCheck(ctx); err != nil {
		return fail(StepChecked, err)
	}
	if err := pause(ctx, e.timings.ValidationWait); err != nil {
		return Outcome{}, err
	}

	e.debug("%s: %s", code, StepPlatformSelecting)
	found, err := e.pollAndClick(ctx, e.timings.RedeemButtonWait, func(label string, _ Element) bool {
		return strings.Contains(strings.ToLower(label), platform.RedeemLabel())
	})
	if err != nil {
		return fail(StepPlatformSelecting, err)
	}
	if !found {
		// Some outcomes (already redeemed, expired) show before any platform button would.
		early, err := e.classifier.WaitForStatus(ctx, e.timings.EarlyStatusWait)
		if err != nil {
			return Outcome{}, err
		}
		if early.Kind != OutcomeUnknown {
			e.debug("%s: early status %s", code, early.Kind)
			return e.finish(ctx, code, early)
		}
		return fail(StepPlatformSelecting, fmt.Errorf("%w: Redeem for %s", ErrPlatformButtonMissing, platform))
	}

	e.debug("%s: %s", code, StepConfirming)
	if _, err := e.pollAndClick(ctx, e.timings.ConfirmWait, func(label string, _ Element) bool {
		return confirmLabel.MatchString(label)
	}); err != nil && ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}
	if err := pause(ctx, e.timings.PostRedeemPause); err != nil {
		return Outcome{}, err
	}

	e.debug("%s: %s", code, StepAwaitingStatus)
	status, err := e.classifier.WaitForStatus(ctx, e.timings.StatusTimeout)
	if err != nil {
		return Outcome{}, err
	}

	return e.finish(ctx, code, status)
}

// finish clears any modal the status left behind and waits out the cooldown
// so the next code starts on a clean form.
func (e *StepEngine) finish(ctx context.Context, code string, status Outcome) (Outcome, error) {
	e.debug("%s: %s (%s)", code, StepDone, status.Kind)
	e.dismissOverlays(ctx)
	if err := pause(ctx, e.timings.BetweenCodes); err != nil {
		return Outcome{}, err
	}
	return status, nil
}

func (e *StepEngine) waitForFormReady(ctx context.Context) (Element, error) {
	deadline := time.Now().Add(e.timings.FormReadyTimeout)
	for time.Now().Before(deadline) {
		input, ok, err := e.locator.FindCodeInput(ctx)
		if err == nil && ok && !input.Disabled {
			return input, nil
		}
		if err := pause(ctx, e.timings.FormReadyPoll); err != nil {
			return Element{}, err
		}
	}
	return Element{}, ErrFormNotReady
}

func (e *StepEngine) typeCode(ctx context.Context, input Element, code string) error {
	if err := e.surface.SetValue(ctx, input, ""); err != nil {
		return fmt.Errorf("clear code input: %w", err)
	}
	if err := pause(ctx, e.timings.ClearPause); err != nil {
		return err
	}
	if err := e.surface.SetValue(ctx, input, code); err != nil {
		return fmt.Errorf("type code: %w", err)
	}
	return pause(ctx, e.timings.TypePause)
}

func (e *StepEngine) clickCheck(ctx context.Context) error {
	btn, ok, err := e.locator.FindClickable(ctx, func(label string, _ Element) bool {
		return checkLabel.MatchString(label)
	})
	if err != nil {
		return fmt.Errorf("find check button: %w", err)
	}
	if !ok {
		return ErrCheckButtonMissing
	}
	if err := e.surface.Click(ctx, btn); err != nil {
		return fmt.Errorf("click check button: %w", err)
	}
	return pause(ctx, e.timings.AfterCheckPause)
}

// pollAndClick retries until a matching control is clicked or bound passes.
// A click on a node that re-rendered away counts as not found yet.
func (e *StepEngine) pollAndClick(ctx context.Context, bound time.Duration, match LabelPredicate) (bool, error) {
	deadline := time.Now().Add(bound)
	for time.Now().Before(deadline) {
		btn, ok, err := e.locator.FindClickable(ctx, match)
		if err == nil && ok {
			if err := e.surface.Click(ctx, btn); err == nil {
				return true, nil
			}
		}
		if err := pause(ctx, e.timings.ButtonPoll); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (e *StepEngine) dismissOverlays(ctx context.Context) {
	for i := 0; i < e.maxDismissals; i++ {
		btn, ok, err := e.locator.FindClickable(ctx, func(label string, _ Element) bool {
			return dismissLabel.MatchString(strings.TrimSpace(label))
		})
		if err != nil || !ok {
			return
		}
		if err := e.surface.Click(ctx, btn); err != nil {
			return
		}
		if err := pause(ctx, e.timings.DismissSettle); err != nil {
			return
		}
	}
}
