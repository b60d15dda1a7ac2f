package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/leadchat/internal/tui/ui"
)

// Action is one key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool // listed in the header menu
}

// Matches reports whether ev triggers a.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Label is the key as shown in menus.
func (a *Action) Label() string {
	if a.Key == tcell.KeyRune {
		return string(a.Rune)
	}
	if name, ok := tcell.KeyNames[a.Key]; ok {
		return name
	}
	return "?"
}

type binding struct {
	name   string
	action *Action
}

// Registry holds global bindings and bindings scoped to a page (ui.Page*).
// Bindings keep registration order; page bindings win over global ones.
type Registry struct {
	global []binding
	pages  map[string][]binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pages: make(map[string][]binding),
	}
}

// AddGlobal registers a binding active on every page. Re-adding a name
// replaces it in place.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = upsert(r.global, name, action)
}

// AddView registers a binding active only while page is on top.
func (r *Registry) AddView(page, name string, action *Action) {
	r.pages[page] = upsert(r.pages[page], name, action)
}

func upsert(list []binding, name string, action *Action) []binding {
	for i := range list {
		if list[i].name == name {
			list[i].action = action
			return list
		}
	}
	return append(list, binding{name: name, action: action})
}

// Hints returns the visible bindings for page, page bindings first.
func (r *Registry) Hints(page string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, list := range [][]binding{r.pages[page], r.global} {
		for _, b := range list {
			if b.action.Visible {
				hints = append(hints, ui.MenuHint{Key: b.action.Label(), Description: b.action.Description})
			}
		}
	}
	return hints
}

// HandleEvent runs the first binding matching ev on page, then globally.
// It reports whether one ran.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	for _, list := range [][]binding{r.pages[page], r.global} {
		for _, b := range list {
			if b.action.Matches(ev) {
				b.action.Handler()
				return true
			}
		}
	}
	return false
}

// MergeHints appends extra to base, skipping keys base already lists.
func MergeHints(base, extra []ui.MenuHint) []ui.MenuHint {
	seen := make(map[string]bool, len(base))
	out := make([]ui.MenuHint, 0, len(base)+len(extra))
	for _, h := range base {
		seen[h.Key] = true
		out = append(out, h)
	}
	for _, h := range extra {
		if !seen[h.Key] {
			seen[h.Key] = true
			out = append(out, h)
		}
	}
	return out
}
