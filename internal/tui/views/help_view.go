package views

import (
	"fmt"

	"github.com/matheus3301/leadchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := fmt.Sprintf("#%06x", hv.theme.MenuKeyColor.Hex())
	k := func(key string) string { return "[" + kc + "]" + key + "[-:-:-]" }

	help := `
  [::b]Global Keys[-:-:-]

  ` + k(":") + `      Command mode        ` + k("Esc") + `     Cancel / Go back
  ` + k("/") + `      Filter mode         ` + k("?") + `       Help
  ` + k("q") + `      Quit / Back         ` + k("Ctrl-C") + `  Quit immediately

  [::b]Conversation List[-:-:-]

  ` + k("Enter") + `  Open conversation   ` + k("0") + `       Clear filter
  ` + k("1-9") + `    Jump to Nth chat    ` + k("a") + `       Toggle archived view
  ` + k("x") + `      Archive / restore   ` + k("r") + `       Refresh from provider
  ` + k("b") + `      Broadcast to all    ` + k("j/k") + `     Move down / up

  [::b]Message Thread[-:-:-]

  ` + k("i") + `      Focus composer      ` + k("d") + `       Conversation details
  ` + k("k/g") + `    At the top, load older messages
  ` + k("Esc") + `    Exit composer       ` + k("Enter") + `   Send (in composer)

  [::b]Broadcast[-:-:-]

  ` + k("Enter") + `  Toggle recipient    ` + k("A") + `       Select all / none
  ` + k("i") + `      Compose message; {{name}} {{fullName}} {{firstName}} are substituted

  [::b]Commands (: mode)[-:-:-]

  ` + k(":search <query>") + `               Search messages
  ` + k(":chat <name>") + `                  Open chat by name
  ` + k(":archive") + `                      Archive / restore selected chat
  ` + k(":broadcast [args]") + `             group=<id>|all status=a,b service=x from=YYYY-MM-DD to=YYYY-MM-DD
  ` + k(":refresh") + `                      Refresh conversations
  ` + k(":logout") + `                       Logout current session
  ` + k(":help") + ` / ` + k(":h") + `                   Show this help
  ` + k(":quit") + ` / ` + k(":q") + `                   Quit application
`
	_, _ = fmt.Fprint(hv, help)
}
