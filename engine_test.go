package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rewardsPage models the happy path: check reveals the platform buttons,
// redeeming opens a confirm dialog, confirming shows the status and a close button.
func rewardsPage(status string) *fakePage {
	p := &fakePage{
		inputs:     []Element{codeInput()},
		clickables: []Element{button("Check")},
	}
	p.onClick = func(p *fakePage, label string) {
		switch label {
		case "Check":
			p.addButton("Redeem for Steam")
			p.addButton("Redeem for Xbox Live")
		case "Redeem for Steam":
			p.removeButton("Redeem for Steam")
			p.removeButton("Redeem for Xbox Live")
			p.addButton("Confirm")
		case "Confirm":
			p.removeButton("Confirm")
			p.setStatus(status)
			p.addButton("Close")
		case "Close":
			p.removeButton("Close")
		}
	}
	return p
}

func TestStepEngineRedeemsCode(t *testing.T) {
	page := rewardsPage("Your code was successfully redeemed")
	engine := NewStepEngine(page, fastTimings(), 5)

	outcome, err := engine.Redeem(context.Background(), "ABCD1-23456-EFGH7-89IJK-LMNOP", PlatformSteam)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, []string{"Check", "Redeem for Steam", "Confirm", "Close"}, page.Clicked())
	assert.Equal(t, []string{"", "ABCD1-23456-EFGH7-89IJK-LMNOP"}, page.values)
}

func TestStepEngineWithoutConfirmDialog(t *testing.T) {
	page := &fakePage{
		inputs:     []Element{codeInput()},
		clickables: []Element{button("Submit")},
	}
	page.onClick = func(p *fakePage, label string) {
		switch label {
		case "Submit":
			p.addButton("Redeem for Epic")
		case "Redeem for Epic":
			p.removeButton("Redeem for Epic")
			p.setStatus("Code accepted")
		}
	}
	engine := NewStepEngine(page, fastTimings(), 5)

	outcome, err := engine.Redeem(context.Background(), "ABCD-1234-EFGH-5678-IJKL", PlatformEpic)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, []string{"Submit", "Redeem for Epic"}, page.Clicked())
}

func TestStepEngineFormNotReady(t *testing.T) {
	tests := []struct {
		name   string
		inputs []Element
	}{
		{"no input", nil},
		{"disabled input", []Element{{Tag: "INPUT", Type: "text", Name: "code", Disabled: true}}},
		{"no text input", []Element{{Tag: "INPUT", Type: "email"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &fakePage{inputs: tt.inputs, clickables: []Element{button("Check")}}
			engine := NewStepEngine(page, fastTimings(), 5)

			_, err := engine.Redeem(context.Background(), "ABCD-1234-EFGH-5678-IJKL", PlatformSteam)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormNotReady)

			var stepErr *StepError
			require.True(t, errors.As(err, &stepErr))
			assert.Equal(t, StepAwaitingForm, stepErr.Step)
			assert.Empty(t, page.Clicked())
		})
	}
}

func TestStepEngineCheckButtonMissing(t *testing.T) {
	page := &fakePage{inputs: []Element{codeInput()}, clickables: []Element{button("Help")}}
	engine := NewStepEngine(page, fastTimings(), 5)

	_, err := engine.Redeem(context.Background(), "ABCD-1234-EFGH-5678-IJKL", PlatformSteam)
	assert.ErrorIs(t, err, ErrCheckButtonMissing)
}

func TestStepEngineEarlyStatus(t *testing.T) {
	page := &fakePage{inputs: []Element{codeInput()}, clickables: []Element{button("Check")}}
	page.onClick = func(p *fakePage, label string) {
		switch label {
		case "Check":
			p.setStatus("This SHiFT code has already been redeemed")
			p.addButton("Close")
		case "Close":
			p.removeButton("Close")
		}
	}
	engine := NewStepEngine(page, fastTimings(), 5)

	outcome, err := engine.Redeem(context.Background(), "ABCD-1234-EFGH-5678-IJKL", PlatformSteam)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, outcome.Kind)
	// The modal from the early status is dismissed before the next code.
	assert.Equal(t, []string{"Check", "Close"}, page.Clicked())
}

func TestStepEngineEarlyStatusWaitsBetweenCodes(t *testing.T) {
	page := &fakePage{inputs: []Element{codeInput()}, clickables: []Element{button("Check")}}
	page.onClick = func(p *fakePage, label string) {
		p.setStatus("This code has expired")
	}
	timings := fastTimings()
	timings.BetweenCodes = 150 * time.Millisecond
	engine := NewStepEngine(page, timings, 5)

	start := time.Now()
	outcome, err := engine.Redeem(context.Background(), "ABCD-1234-EFGH-5678-IJKL", PlatformSteam)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, outcome.Kind)
	assert.GreaterOrEqual(t, time.Since(start), timings.BetweenCodes)
}

func TestStepEnginePlatformButtonMissing(t *testing.T) {
	page := &fakePage{inputs: []Element{codeInput()}, clickables: []Element{button("Check")}}
	page.onClick = func(p *fakePage, label string) {
		if label == "Check" {
			p.addButton("Redeem for Xbox Live")
		}
	}
	engine := NewStepEngine(page, fastTimings(), 5)

	_, err := engine.Redeem(context.Background(), "ABCD-1234-EFGH-5678-IJKL", PlatformPSN)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlatformButtonMissing)
	assert.Contains(t, err.Error(), "Redeem for PSN")

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepPlatformSelecting, stepErr.Step)
	assert.Equal(t, "ABCD-1234-EFGH-5678-IJKL", stepErr.Code)
}

func TestStepEngineDismissalsAreBounded(t *testing.T) {
	page := rewardsPage("Success!")
	page.onClick = func(p *fakePage, label string) {
		switch label {
		case "Check":
			p.addButton("Redeem for Steam")
		case "Redeem for Steam":
			p.removeButton("Redeem for Steam")
			p.setStatus("Success!")
			// An overlay that never goes away.
			p.addButton("OK")
		}
	}
	engine := NewStepEngine(page, fastTimings(), 5)

	outcome, err := engine.Redeem(context.Background(), "ABCD-1234-EFGH-5678-IJKL", PlatformSteam)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome.Kind)

	oks := 0
	for _, label := range page.Clicked() {
		if label == "OK" {
			oks++
		}
	}
	assert.Equal(t, 5, oks)
}

func TestStepEngineCancelledContext(t *testing.T) {
	page := &fakePage{inputs: []Element{codeInput()}, clickables: []Element{button("Check")}}
	engine := NewStepEngine(page, fastTimings(), 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Redeem(ctx, "ABCD-1234-EFGH-5678-IJKL", PlatformSteam)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDismissLabel(t *testing.T) {
	tests := []struct {
		label   string
		dismiss bool
	}{
		{"Close", true},
		{"OK", true},
		{"Got it", true},
		{"×", true},
		{"X", true},
		{"Continue", true},
		{"Redeem for Xbox Live", false},
		{"Xbox", false},
		{"Check", false},
		{"Looking good", false},
	}
	for _, tt := range tests {
		if got := dismissLabel.MatchString(tt.label); got != tt.dismiss {
			t.Errorf("dismissLabel(%q) = %v, want %v", tt.label, got, tt.dismiss)
		}
	}
}

func TestCheckAndConfirmLabels(t *testing.T) {
	assert.True(t, checkLabel.MatchString("Check"))
	assert.True(t, checkLabel.MatchString("submit code"))
	assert.False(t, checkLabel.MatchString("Checkout"))
	assert.True(t, confirmLabel.MatchString("Yes, claim it"))
	assert.False(t, confirmLabel.MatchString("Redeem for Steam"))
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "platform selecting", StepPlatformSelecting.String())
	assert.Equal(t, "step(42)", Step(42).String())
}

func TestTimingsFromConfig(t *testing.T) {
	timings := TimingsFromConfig(DefaultConfig().Timings)
	assert.Equal(t, "7s", timings.RedeemButtonWait.String())
	assert.Equal(t, "6s", timings.StatusTimeout.String())
	assert.Equal(t, "12s", timings.FormReadyTimeout.String())
}
