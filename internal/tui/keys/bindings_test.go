package keys

import (
	"slices"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/leadchat/internal/tui/ui"
)

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestHandleEventPageBeforeGlobal(t *testing.T) {
	var fired []string
	record := func(name string) func() { return func() { fired = append(fired, name) } }

	r := NewRegistry()
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: record("global quit")})
	r.AddGlobal("back", &Action{Key: tcell.KeyEscape, Handler: record("back")})
	r.AddView(ui.PageThread, "close", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: record("close thread")})
	r.AddView(ui.PageBroadcast, "all", &Action{Key: tcell.KeyRune, Rune: 'A', Handler: record("select all")})

	tests := []struct {
		page    string
		ev      *tcell.EventKey
		handled bool
		want    string
	}{
		{ui.PageThread, runeKey('q'), true, "close thread"},
		{ui.PageConversations, runeKey('q'), true, "global quit"},
		{ui.PageBroadcast, runeKey('A'), true, "select all"},
		{ui.PageThread, runeKey('A'), false, ""},
		{ui.PageSearch, tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), true, "back"},
	}
	for _, tt := range tests {
		fired = nil
		if got := r.HandleEvent(tt.page, tt.ev); got != tt.handled {
			t.Errorf("HandleEvent(%s) = %v, want %v", tt.page, got, tt.handled)
		}
		if tt.handled && (len(fired) != 1 || fired[0] != tt.want) {
			t.Errorf("HandleEvent(%s) fired %v, want %q", tt.page, fired, tt.want)
		}
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("help", &Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true})
	r.AddGlobal("back", &Action{Key: tcell.KeyEscape, Description: "Back"})
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true})
	r.AddView(ui.PageConversations, "refresh", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "Refresh", Visible: true})
	r.AddView(ui.PageConversations, "broadcast", &Action{Key: tcell.KeyRune, Rune: 'b', Description: "Broadcast", Visible: true})
	r.AddView(ui.PageConversations, "refresh", &Action{Key: tcell.KeyRune, Rune: 'R', Description: "Resync", Visible: true})

	keysOf := func(hints []ui.MenuHint) []string {
		var out []string
		for _, h := range hints {
			out = append(out, h.Key+" "+h.Description)
		}
		return out
	}

	want := []string{"R Resync", "b Broadcast", "? Help", "q Quit"}
	if got := keysOf(r.Hints(ui.PageConversations)); !slices.Equal(got, want) {
		t.Errorf("Hints(conversations) = %q, want %q", got, want)
	}
	want = []string{"? Help", "q Quit"}
	if got := keysOf(r.Hints(ui.PageAuth)); !slices.Equal(got, want) {
		t.Errorf("Hints(auth) = %q, want %q", got, want)
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		a    Action
		want string
	}{
		{Action{Key: tcell.KeyRune, Rune: ':'}, ":"},
		{Action{Key: tcell.KeyEscape}, "Esc"},
		{Action{Key: tcell.KeyEnter}, "Enter"},
	}
	for _, tt := range tests {
		if got := tt.a.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestMergeHints(t *testing.T) {
	base := []ui.MenuHint{{Key: "Enter", Description: "Open"}, {Key: "?", Description: "Help"}}
	extra := []ui.MenuHint{{Key: "?", Description: "Help"}, {Key: "q", Description: "Quit"}}

	got := MergeHints(base, extra)
	if len(got) != 3 || got[2].Key != "q" {
		t.Errorf("MergeHints() = %v", got)
	}
}
