// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/recreserve/internal/browser"
	"github.com/example/recreserve/internal/internaltypes"
)

type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionFill       ActionKind = "fill"
	ActionScreenshot ActionKind = "screenshot"
)

// Action is one recorded interaction.
type Action struct {
	Kind     ActionKind
	Selector browser.Selector
	Value    string
}

type Element struct {
	Attrs  map[string]string
	Hidden bool
}

// Page is a fake page holding a flat set of elements keyed by selector.
// Lookups of unknown selectors fail with internaltypes.ErrElementNotFound.
type Page struct {
	mu       sync.Mutex
	elements map[browser.Selector]*Element
	onClick  map[browser.Selector]func(*Page)
	actions  []Action

	ScreenshotPNG []byte
	NavigateErr   error
}

func New() *Page {
	return &Page{
		elements:      make(map[browser.Selector]*Element),
		onClick:       make(map[browser.Selector]func(*Page)),
		ScreenshotPNG: []byte("\x89PNG fake"),
	}
}

// Add places an element on the page, replacing any previous one.
func (p *Page) Add(sel browser.Selector, attrs map[string]string) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	if attrs == nil {
		attrs = map[string]string{}
	}
	e := &Element{Attrs: attrs}
	p.elements[sel] = e
	return e
}

func (p *Page) Remove(sel browser.Selector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, sel)
}

// SetHidden toggles visibility of an existing element.
func (p *Page) SetHidden(sel browser.Selector, hidden bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.elements[sel]; ok {
		e.Hidden = hidden
	}
}

// OnClick registers fn to run after every click on sel. fn may call Add,
// Remove or SetHidden.
func (p *Page) OnClick(sel browser.Selector, fn func(*Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[sel] = fn
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.record(Action{Kind: ActionNavigate, Value: url})
	return p.NavigateErr
}

func (p *Page) Click(ctx context.Context, sel browser.Selector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	_, ok := p.elements[sel]
	hook := p.onClick[sel]
	p.mu.Unlock()
	if !ok {
		return notFound(sel)
	}
	p.record(Action{Kind: ActionClick, Selector: sel})
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, sel browser.Selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	e, ok := p.elements[sel]
	if ok {
		e.Attrs["value"] = value
	}
	p.mu.Unlock()
	if !ok {
		return notFound(sel)
	}
	p.record(Action{Kind: ActionFill, Selector: sel, Value: value})
	return nil
}

func (p *Page) Attribute(ctx context.Context, sel browser.Selector, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[sel]
	if !ok {
		return "", false, notFound(sel)
	}
	v, present := e.Attrs[name]
	return v, present, nil
}

func (p *Page) Visible(ctx context.Context, sel browser.Selector) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[sel]
	return ok && !e.Hidden, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.record(Action{Kind: ActionScreenshot})
	return p.ScreenshotPNG, nil
}

// Actions returns a copy of everything recorded so far.
func (p *Page) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Action, len(p.actions))
	copy(out, p.actions)
	return out
}

// Count returns how many actions of kind touched sel. For navigate and
// screenshot actions pass the zero Selector.
func (p *Page) Count(kind ActionKind, sel browser.Selector) int {
	n := 0
	for _, a := range p.Actions() {
		if a.Kind == kind && a.Selector == sel {
			n++
		}
	}
	return n
}

// Fills returns the values typed into sel, in order.
func (p *Page) Fills(sel browser.Selector) []string {
	var out []string
	for _, a := range p.Actions() {
		if a.Kind == ActionFill && a.Selector == sel {
			out = append(out, a.Value)
		}
	}
	return out
}

func (p *Page) record(a Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, a)
}

func notFound(sel browser.Selector) error {
	return fmt.Errorf("%w: %s", internaltypes.ErrElementNotFound, sel)
}

var _ browser.Page = (*Page)(nil)
