package main

import (
	"context"
	"strings"
	"sync"
)

// Ledger is the persisted set of codes that have already been attempted.
// Codes only enter it through MarkAttempted, which flushes to the store.
type Ledger struct {
	mu    sync.RWMutex
	codes map[string]bool
	order []string
	store *StateStore
}

func NewLedger(store *StateStore) *Ledger {
	return &Ledger{codes: make(map[string]bool), store: store}
}

// LoadLedger reads the persisted ledger. A missing or unreadable record yields an empty ledger.
func LoadLedger(ctx context.Context, store *StateStore) (*Ledger, error) {
	l := NewLedger(store)
	codes, err := store.LoadAttempted(ctx)
	for _, c := range codes {
		l.add(strings.ToUpper(c))
	}
	return l, err
}

func (l *Ledger) Has(code string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.codes[strings.ToUpper(code)]
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

func (l *Ledger) Codes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// MarkAttempted records code and saves the ledger immediately. The in-memory
// set is updated even when the save fails.
func (l *Ledger) MarkAttempted(ctx context.Context, code string) error {
	code = strings.ToUpper(code)
	l.mu.Lock()
	if l.codes[code] {
		l.mu.Unlock()
		return nil
	}
	l.add(code)
	snapshot := append([]string(nil), l.order...)
	l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	return l.store.SaveAttempted(ctx, snapshot)
}

// Reset forgets every attempted code.
func (l *Ledger) Reset(ctx context.Context) error {
	l.mu.Lock()
	l.codes = make(map[string]bool)
	l.order = nil
	l.mu.Unlock()

	if l.store == nil {
		return nil
	}
	return l.store.ClearAttempted(ctx)
}

func (l *Ledger) add(code string) {
	if l.codes[code] {
		return
	}
	l.codes[code] = true
	l.order = append(l.order, code)
}
