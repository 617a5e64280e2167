package main

import (
	"context"
	"strings"
)

// Element is a visible node captured by a page snapshot. Handle is only valid
// until the next snapshot of the same kind.
type Element struct {
	Kind        string `json:"kind"`
	Handle      int    `json:"handle"`
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Role        string `json:"role"`
	Label       string `json:"label"`
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
	AriaLabel   string `json:"ariaLabel"`
	Disabled    bool   `json:"disabled"`
}

// Surface is the live page as seen through deep, shadow-aware snapshots.
// Implementations only return visible elements.
type Surface interface {
	Clickables(ctx context.Context) ([]Element, error)
	Inputs(ctx context.Context) ([]Element, error)
	StatusTexts(ctx context.Context) ([]string, error)
	Click(ctx context.Context, el Element) error
	SetValue(ctx context.Context, el Element, value string) error
}

// LabelPredicate decides whether a visible control is the one being looked for.
type LabelPredicate func(label string, el Element) bool

// Locator finds controls on a Surface. Absence is reported as ok=false, never as an error.
type Locator struct {
	surface Surface
}

func NewLocator(surface Surface) *Locator {
	return &Locator{surface: surface}
}

// IsButtonLike reports whether el is a button tag, a submit/button input or has role=button.
func IsButtonLike(el Element) bool {
	tag := strings.ToUpper(el.Tag)
	typ := strings.ToLower(el.Type)
	return tag == "BUTTON" ||
		(tag == "INPUT" && (typ == "submit" || typ == "button")) ||
		strings.EqualFold(el.Role, "button")
}

func (l *Locator) FindClickable(ctx context.Context, match LabelPredicate) (Element, bool, error) {
	candidates, err := l.surface.Clickables(ctx)
	if err != nil {
		return Element{}, false, err
	}
	for _, el := range candidates {
		if !IsButtonLike(el) {
			continue
		}
		label := strings.TrimSpace(el.Label)
		if label != "" && match(label, el) {
			return el, true, nil
		}
	}
	return Element{}, false, nil
}

// FindCodeInput prefers an input whose name, placeholder or aria-label
// mentions "code", then falls back to the first single-line text input.
func (l *Locator) FindCodeInput(ctx context.Context) (Element, bool, error) {
	inputs, err := l.surface.Inputs(ctx)
	if err != nil {
		return Element{}, false, err
	}
	for _, el := range inputs {
		if mentionsCode(el.Name) || mentionsCode(el.Placeholder) || mentionsCode(el.AriaLabel) {
			return el, true, nil
		}
	}
	for _, el := range inputs {
		if strings.EqualFold(el.Type, "text") {
			return el, true, nil
		}
	}
	return Element{}, false, nil
}

func mentionsCode(s string) bool {
	return strings.Contains(strings.ToLower(s), "code")
}
