package main

import (
	"context"
	"regexp"
	"strings"
	"time"
)

type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeUnavailable      OutcomeKind = "unavailable"
	OutcomeInvalid          OutcomeKind = "invalid"
	OutcomeThrottled        OutcomeKind = "throttled"
	OutcomePlatformMismatch OutcomeKind = "platform-mismatch"
	OutcomeUnknown          OutcomeKind = "unknown"
)

// Outcome is the classified result of one redemption plus the text it was read from.
type Outcome struct {
	Kind OutcomeKind
	Text string
}

type statusRule struct {
	kind     OutcomeKind
	patterns []*regexp.Regexp
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// statusRules is evaluated top to bottom and the first match wins. Negative
// outcomes come before success so "already redeemed" never reads as success.
var statusRules = []statusRule{
	{OutcomeUnavailable, patterns(`already\s+(?:been\s+)?redeemed`, `already used`, `previously redeemed`, `expired`, `no longer valid`, `out of date`)},
	{OutcomeInvalid, patterns(`invalid`, `not (?:a )?valid`, `not recognized`, `does not exist`)},
	{OutcomePlatformMismatch, patterns(`not available on your platform`, `wrong platform`)},
	{OutcomeThrottled, patterns(`too many`, `rate.?limit`, `try again later`, `slow down`)},
	{OutcomeSuccess, patterns(`redeemed`, `claimed`, `added to`, `success`, `enjoy`, `code accepted`)},
}

// RuleOrder lists outcome kinds in the order they are tried.
func RuleOrder() []OutcomeKind {
	order := make([]OutcomeKind, 0, len(statusRules)+1)
	for _, r := range statusRules {
		order = append(order, r.kind)
	}
	return append(order, OutcomeUnknown)
}

// Classify maps status texts to an outcome. It is a pure function of texts.
func Classify(texts []string) Outcome {
	combined := strings.Join(texts, " \n ")
	for _, rule := range statusRules {
		for _, re := range rule.patterns {
			if re.MatchString(combined) {
				return Outcome{Kind: rule.kind, Text: combined}
			}
		}
	}
	return Outcome{Kind: OutcomeUnknown, Text: combined}
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeStatusTexts collapses whitespace and drops empty and repeated texts.
func NormalizeStatusTexts(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(whitespaceRun.ReplaceAllString(t, " "))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// minMeaningfulUnknown is how long unclassified text must be before it is accepted.
const minMeaningfulUnknown = 20

type StatusClassifier struct {
	surface  Surface
	interval time.Duration
}

func NewStatusClassifier(surface Surface, interval time.Duration) *StatusClassifier {
	return &StatusClassifier{surface: surface, interval: interval}
}

func (c *StatusClassifier) Scan(ctx context.Context) ([]string, error) {
	raw, err := c.surface.StatusTexts(ctx)
	if err != nil {
		return nil, err
	}
	return NormalizeStatusTexts(raw), nil
}

// WaitForStatus polls status regions until the text changes into something
// classifiable, or the timeout passes and an empty unknown is returned.
// Scan errors are treated as an empty poll.
func (c *StatusClassifier) WaitForStatus(ctx context.Context, timeout time.Duration) (Outcome, error) {
	start := time.Now()
	lastSeen := ""
	for time.Since(start) < timeout {
		texts, err := c.Scan(ctx)
		if err != nil && ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		current := strings.Join(texts, "|")
		if current != "" && current != lastSeen {
			result := Classify(texts)
			if result.Kind != OutcomeUnknown || len(current) > minMeaningfulUnknown {
				return result, nil
			}
		}
		lastSeen = current
		if err := pause(ctx, c.interval); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{Kind: OutcomeUnknown}, nil
}

// pause sleeps for d unless ctx is cancelled first.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
