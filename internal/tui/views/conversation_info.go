package views

import (
	"fmt"

	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Init implements Component.
func (ci *ConversationInfo) Init() {}

// Start implements Component.
func (ci *ConversationInfo) Start() {}

// Stop implements Component.
func (ci *ConversationInfo) Stop() {}

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders conversation details.
func (ci *ConversationInfo) Update(c provider.Conversation) {
	ci.Clear()

	fg := hexColor(ci.theme.FgColor.Hex())
	ct := hexColor(ci.theme.CounterColor.Hex())

	kind := "Direct Message"
	if c.IsGroup {
		kind = "Group"
	}
	lastActive := formatTimestamp(c.LastTimestamp())
	if lastActive == "" {
		lastActive = "-"
	}
	preview := "-"
	if c.LastMessage != nil {
		preview = oneLine(c.LastMessage.Body)
	}

	rows := []struct{ label, value string }{
		{"Name", c.DisplayName()},
		{"Channel", c.ChannelID},
		{"Type", kind},
		{"Unread", fmt.Sprint(c.UnreadCount)},
		{"Archived", fmt.Sprint(c.Archived)},
		{"Last Active", lastActive},
		{"Last Message", preview},
	}
	_, _ = fmt.Fprintln(ci)
	for _, r := range rows {
		_, _ = fmt.Fprintf(ci, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r.label+":", ct, tview.Escape(sanitizeForTerminal(r.value)))
	}
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(sanitizeForTerminal(c.DisplayName()))))
}

func hexColor(hex int32) string {
	return fmt.Sprintf("#%06x", hex)
}
