package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the main conversation table.
type ConversationList struct {
	*tview.Table
	theme    *ui.Theme
	convs    []provider.Conversation
	visible  []provider.Conversation
	filter   string
	archived bool
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Init implements Component.
func (cl *ConversationList) Init() {}

// Start implements Component.
func (cl *ConversationList) Start() {}

// Stop implements Component.
func (cl *ConversationList) Stop() {}

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "a", Description: "Archived"},
		{Key: "x", Description: "Archive"},
		{Key: "b", Description: "Broadcast"},
		{Key: "r", Description: "Refresh"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update replaces the list, keeping the cursor on the same conversation.
func (cl *ConversationList) Update(convs []provider.Conversation, showingArchived bool) {
	selected := cl.SelectedChannel()
	cl.convs = convs
	cl.archived = showingArchived
	cl.render()
	if selected != "" {
		for i, c := range cl.visible {
			if c.ChannelID == selected {
				cl.Select(i+1, 0)
				break
			}
		}
	}
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = strings.ToLower(strings.TrimSpace(filter))
	cl.render()
}

// ClearFilter clears the active filter.
func (cl *ConversationList) ClearFilter() {
	cl.SetFilter("")
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" TYPE", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	cl.visible = cl.visible[:0]
	for _, c := range cl.convs {
		if !matchesFilter(c, cl.filter) {
			continue
		}
		cl.visible = append(cl.visible, c)
		row := len(cl.visible)

		name := c.DisplayName()
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", c.UnreadCount, name)
		}
		preview := ""
		if c.LastMessage != nil {
			preview = c.LastMessage.Body
			if c.LastMessage.FromMe {
				preview = "you: " + preview
			}
		}
		kind := "DM"
		if c.IsGroup {
			kind = "GROUP"
		}
		if c.Archived {
			kind += "*"
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(oneLine(preview)))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(formatTimestamp(c.LastTimestamp())).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(kind).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	title := "Conversations"
	if cl.archived {
		title = "All conversations"
	}
	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" %s (%d/%d) filter: %s ", title, len(cl.visible), len(cl.convs), cl.filter))
	} else {
		cl.SetTitle(fmt.Sprintf(" %s (%d) ", title, len(cl.convs)))
	}
}

// SelectedChannel returns the channel id under the cursor.
func (cl *ConversationList) SelectedChannel() string {
	row, _ := cl.GetSelection()
	return cl.ChannelByIndex(row)
}

// Selected returns the conversation under the cursor.
func (cl *ConversationList) Selected() (provider.Conversation, bool) {
	row, _ := cl.GetSelection()
	if row < 1 || row > len(cl.visible) {
		return provider.Conversation{}, false
	}
	return cl.visible[row-1], true
}

// ChannelByIndex returns the channel id of the Nth visible conversation (1-based).
func (cl *ConversationList) ChannelByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ChannelID
}

func matchesFilter(c provider.Conversation, filter string) bool {
	if filter == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.DisplayName()), filter) || strings.Contains(c.ChannelID, filter) {
		return true
	}
	return c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Body), filter)
}

// formatTimestamp renders a Unix-seconds timestamp compactly: the time for
// today, the date otherwise.
func formatTimestamp(sec int64) string {
	if sec == 0 {
		return ""
	}
	t := time.Unix(sec, 0)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
