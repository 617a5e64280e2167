package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
)

// RodSurface reads and drives a live page. Snapshots walk the document and
// every shadow root depth-first; matched nodes are kept in a page-side
// registry so Go can address them by handle.
type RodSurface struct {
	page *rod.Page
}

func NewRodSurface(page *rod.Page) *RodSurface {
	return &RodSurface{page: page}
}

const deepWalkJS = `
	const deepNodes = function* (root) {
		const stack = [root];
		while (stack.length) {
			const node = stack.pop();
			if (!node) continue;
			yield node;
			if (node.shadowRoot) stack.push(node.shadowRoot);
			if (node.children) {
				for (let i = node.children.length - 1; i >= 0; i--) stack.push(node.children[i]);
			}
		}
	};
	const isVisible = (el) => {
		if (!el || !el.getBoundingClientRect) return false;
		const rect = el.getBoundingClientRect();
		const style = getComputedStyle(el);
		return rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none';
	};
	window.__shiftHelper = window.__shiftHelper || { clickables: [], inputs: [] };
`

const clickablesJS = `() => {` + deepWalkJS + `
	const found = [];
	const out = [];
	for (const node of deepNodes(document)) {
		if (!(node instanceof HTMLElement) || !isVisible(node)) continue;
		const tag = node.tagName;
		const type = (node.getAttribute('type') || '').toLowerCase();
		const role = node.getAttribute('role') || '';
		const isButton = tag === 'BUTTON' || (tag === 'INPUT' && (type === 'submit' || type === 'button')) || role === 'button';
		if (!isButton) continue;
		const label = (node.innerText || node.textContent || node.getAttribute('value') || node.getAttribute('aria-label') || '').trim();
		out.push({ kind: 'clickables', handle: found.length, tag, type, role, label, disabled: !!node.disabled });
		found.push(node);
	}
	window.__shiftHelper.clickables = found;
	return JSON.stringify(out);
}`

const inputsJS = `() => {` + deepWalkJS + `
	const found = [];
	const out = [];
	for (const node of deepNodes(document)) {
		if (!(node instanceof HTMLInputElement) || !isVisible(node)) continue;
		out.push({
			kind: 'inputs',
			handle: found.length,
			tag: node.tagName,
			type: (node.type || '').toLowerCase(),
			name: node.name || '',
			placeholder: node.placeholder || '',
			ariaLabel: node.getAttribute('aria-label') || '',
			disabled: !!node.disabled,
		});
		found.push(node);
	}
	window.__shiftHelper.inputs = found;
	return JSON.stringify(out);
}`

const statusTextsJS = `() => {` + deepWalkJS + `
	const texts = [];
	for (const node of deepNodes(document)) {
		if (!(node instanceof HTMLElement) || !isVisible(node)) continue;
		const byRole = node.matches && node.matches('[role="alert"], [aria-live], [role="dialog"]');
		const cls = typeof node.className === 'string' ? node.className : '';
		if (!byRole && !/alert|toast|snackbar|notification|message|error|success/i.test(cls)) continue;
		const text = (node.innerText || node.textContent || '').trim();
		if (text) texts.push(text);
	}
	return JSON.stringify(texts);
}`

const clickJS = `(kind, handle) => {
	const reg = window.__shiftHelper && window.__shiftHelper[kind];
	const node = reg && reg[handle];
	if (!node || !node.isConnected) return false;
	node.click();
	return true;
}`

// The native setter is used so framework-controlled inputs see the change.
const setValueJS = `(handle, value) => {
	const reg = window.__shiftHelper && window.__shiftHelper.inputs;
	const node = reg && reg[handle];
	if (!node || !node.isConnected) return false;
	node.focus();
	const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value').set;
	setter.call(node, value);
	node.dispatchEvent(new Event('input', { bubbles: true }));
	node.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
}`

func (s *RodSurface) evalJSON(ctx context.Context, js string, out interface{}) error {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(res.Value.Str()), out)
}

func (s *RodSurface) Clickables(ctx context.Context) ([]Element, error) {
	var els []Element
	if err := s.evalJSON(ctx, clickablesJS, &els); err != nil {
		return nil, fmt.Errorf("snapshot clickables: %w", err)
	}
	return els, nil
}

func (s *RodSurface) Inputs(ctx context.Context) ([]Element, error) {
	var els []Element
	if err := s.evalJSON(ctx, inputsJS, &els); err != nil {
		return nil, fmt.Errorf("snapshot inputs: %w", err)
	}
	return els, nil
}

func (s *RodSurface) StatusTexts(ctx context.Context) ([]string, error) {
	var texts []string
	if err := s.evalJSON(ctx, statusTextsJS, &texts); err != nil {
		return nil, fmt.Errorf("snapshot status regions: %w", err)
	}
	return texts, nil
}

func (s *RodSurface) Click(ctx context.Context, el Element) error {
	kind := el.Kind
	if kind == "" {
		kind = "clickables"
	}
	res, err := s.page.Context(ctx).Eval(clickJS, kind, el.Handle)
	if err != nil {
		return fmt.Errorf("click %q: %w", el.Label, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("click %q: element is gone", el.Label)
	}
	return nil
}

func (s *RodSurface) SetValue(ctx context.Context, el Element, value string) error {
	res, err := s.page.Context(ctx).Eval(setValueJS, el.Handle, value)
	if err != nil {
		return fmt.Errorf("set input value: %w", err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("set input value: input is gone")
	}
	return nil
}
