package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages keeps the navigation stack on top of tview.Pages. A page is on the
// stack at most once.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
	}
}

// SetOnChange sets the callback run after every stack change.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Open shows name. A page already on the stack is returned to by popping
// the pages above it; any other page is pushed. Reports whether the stack
// changed.
func (p *Pages) Open(name string) bool {
	i := slices.Index(p.stack, name)
	switch {
	case i == len(p.stack)-1 && i >= 0:
		return false
	case i >= 0:
		for _, n := range p.stack[i+1:] {
			p.HidePage(n)
		}
		p.stack = p.stack[:i+1]
	default:
		if len(p.stack) > 0 {
			p.HidePage(p.stack[len(p.stack)-1])
		}
		p.stack = append(p.stack, name)
	}
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
	return true
}

// Pop removes the top page and shows the one below. The root page is never
// popped; Pop returns the removed name or "".
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	current := p.stack[len(p.stack)-1]
	p.ShowPage(current)
	p.SendToFront(current)
	p.notify()
	return top
}

// Current returns the top page name.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Contains reports whether name is anywhere on the stack.
func (p *Pages) Contains(name string) bool {
	return slices.Contains(p.stack, name)
}

// Stack returns a copy of the stack, root first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset makes name the only page on the stack.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.ShowPage(name)
	p.SendToFront(name)
	p.notify()
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
