package keys

import (
	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/tutu/internal/tui/ui"
)

// Action represents a keybinding action.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Label   string
	Help    string
	Handler func()
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings by scope in registration order.
type Registry struct {
	global []*Action
	views  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]*Action)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(a *Action) {
	r.global = append(r.global, a)
}

// AddView registers a binding active on one page.
func (r *Registry) AddView(view string, a *Action) {
	r.views[view] = append(r.views[view], a)
}

// Hints lists the bindings of a page followed by the global ones.
// Bindings without help text are not listed.
func (r *Registry) Hints(view string) []ui.MenuHint {
	var hints []ui.MenuHint
	for _, scope := range [][]*Action{r.views[view], r.global} {
		for _, a := range scope {
			if a.Help == "" {
				continue
			}
			label := a.Label
			if label == "" {
				label = string(a.Rune)
			}
			hints = append(hints, ui.MenuHint{Key: label, Description: a.Help})
		}
	}
	return hints
}

// HandleEvent runs the first binding matching ev, page bindings first.
// It reports whether one matched.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, scope := range [][]*Action{r.views[view], r.global} {
		for _, a := range scope {
			if a.Matches(ev) {
				a.Handler()
				return true
			}
		}
	}
	return false
}
