package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePage is a scripted Surface. Clicking a control runs onClick, which can
// reshape the page the way the rewards form re-renders.
type fakePage struct {
	mu          sync.Mutex
	clickables  []Element
	inputs      []Element
	status      []string
	statusSeq   [][]string
	statusCalls int
	clicked     []string
	values      []string
	onClick     func(p *fakePage, label string)
}

func button(label string) Element {
	return Element{Tag: "BUTTON", Label: label}
}

func codeInput() Element {
	return Element{Tag: "INPUT", Type: "text", Placeholder: "Enter SHiFT code"}
}

func (p *fakePage) Clickables(ctx context.Context) ([]Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Element, len(p.clickables))
	for i, el := range p.clickables {
		el.Kind = "clickables"
		el.Handle = i
		out[i] = el
	}
	return out, nil
}

func (p *fakePage) Inputs(ctx context.Context) ([]Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Element, len(p.inputs))
	for i, el := range p.inputs {
		el.Kind = "inputs"
		el.Handle = i
		out[i] = el
	}
	return out, nil
}

func (p *fakePage) StatusTexts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	if len(p.statusSeq) > 0 {
		next := p.statusSeq[0]
		if len(p.statusSeq) > 1 {
			p.statusSeq = p.statusSeq[1:]
		}
		return append([]string(nil), next...), nil
	}
	return append([]string(nil), p.status...), nil
}

func (p *fakePage) Click(ctx context.Context, el Element) error {
	p.mu.Lock()
	if el.Handle >= len(p.clickables) || p.clickables[el.Handle].Label != el.Label {
		p.mu.Unlock()
		return errors.New("element is gone")
	}
	p.clicked = append(p.clicked, el.Label)
	hook := p.onClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, el.Label)
	}
	return nil
}

func (p *fakePage) SetValue(ctx context.Context, el Element, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, value)
	return nil
}

func (p *fakePage) addButton(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickables = append(p.clickables, button(label))
}

func (p *fakePage) removeButton(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.clickables[:0]
	for _, el := range p.clickables {
		if el.Label != label {
			kept = append(kept, el)
		}
	}
	p.clickables = kept
}

func (p *fakePage) setStatus(texts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = texts
}

func (p *fakePage) Clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicked...)
}

// fastTimings keeps every pause to a millisecond and every bound short.
func fastTimings() Timings {
	return Timings{
		TypePause:        time.Millisecond,
		ClearPause:       time.Millisecond,
		AfterCheckPause:  time.Millisecond,
		ValidationWait:   time.Millisecond,
		RedeemButtonWait: 30 * time.Millisecond,
		ButtonPoll:       time.Millisecond,
		ConfirmWait:      10 * time.Millisecond,
		PostRedeemPause:  time.Millisecond,
		EarlyStatusWait:  10 * time.Millisecond,
		DismissSettle:    time.Millisecond,
		BetweenCodes:     time.Millisecond,
		StatusTimeout:    40 * time.Millisecond,
		StatusInterval:   time.Millisecond,
		FormReadyTimeout: 20 * time.Millisecond,
		FormReadyPoll:    time.Millisecond,
	}
}

// memKV is an in-memory KV whose writes can be made to fail.
type memKV struct {
	mu       sync.Mutex
	data     map[string]string
	failPuts bool
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPuts {
		return errors.New("quota exceeded")
	}
	m.data[key] = value
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// scriptedRedeemer returns per-code results and records every call.
type scriptedRedeemer struct {
	mu       sync.Mutex
	calls    []string
	platform []Platform
	fn       func(ctx context.Context, code string) (Outcome, error)
}

func (r *scriptedRedeemer) Redeem(ctx context.Context, code string, platform Platform) (Outcome, error) {
	r.mu.Lock()
	r.calls = append(r.calls, code)
	r.platform = append(r.platform, platform)
	r.mu.Unlock()
	return r.fn(ctx, code)
}

func (r *scriptedRedeemer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func succeedAll(ctx context.Context, code string) (Outcome, error) {
	return Outcome{Kind: OutcomeSuccess, Text: "Code redeemed successfully. Enjoy!"}, nil
}

type controllerFixture struct {
	kv         *memKV
	store      *StateStore
	ledger     *Ledger
	log        *StatusLog
	redeemer   *scriptedRedeemer
	controller *Controller
}

func newControllerFixture(t *testing.T, fn func(ctx context.Context, code string) (Outcome, error)) *controllerFixture {
	t.Helper()
	kv := newMemKV()
	store := NewStateStore(kv)
	ledger := NewLedger(store)
	log := NewStatusLog(io.Discard)
	redeemer := &scriptedRedeemer{fn: fn}
	return &controllerFixture{
		kv:         kv,
		store:      store,
		ledger:     ledger,
		log:        log,
		redeemer:   redeemer,
		controller: NewController(DefaultConfig(), redeemer, store, ledger, log),
	}
}

func containsAny(list []string, substr string) bool {
	for _, s := range list {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
