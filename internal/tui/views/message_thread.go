package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/history"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// nearBottomRows is how close to the end, in rows, the view must be for new
// messages to scroll it.
const nearBottomRows = 4

// MessageThread displays messages and a composer for a single chat.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	chatName string
	onSend   func(text string)
	onTop    func()

	channelID string
	firstID   string
	lastID    string
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			text := composer.GetText()
			if strings.TrimSpace(text) != "" {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	// Scrolling past the top asks for older messages.
	messages.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		up := ev.Key() == tcell.KeyUp || ev.Key() == tcell.KeyPgUp || ev.Key() == tcell.KeyHome ||
			(ev.Key() == tcell.KeyRune && (ev.Rune() == 'k' || ev.Rune() == 'g'))
		if up && mt.onTop != nil {
			if row, _ := messages.GetScrollOffset(); row == 0 {
				mt.onTop()
			}
		}
		return ev
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.chatName != "" {
		return mt.chatName
	}
	return "Messages"
}

// Init implements Component.
func (mt *MessageThread) Init() {}

// Start implements Component.
func (mt *MessageThread) Start() {}

// Stop implements Component.
func (mt *MessageThread) Stop() {}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "k/Up", Description: "Older at top"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetChatName updates the chat name and title.
func (mt *MessageThread) SetChatName(name string) {
	mt.chatName = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
}

// ChannelID returns the conversation shown.
func (mt *MessageThread) ChannelID() string {
	return mt.channelID
}

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnTop sets the callback fired when the user scrolls up at the top.
func (mt *MessageThread) SetOnTop(fn func()) {
	mt.onTop = fn
}

// Update renders the history. Prepending older messages keeps the visible
// lines in place; new messages scroll only a view that sat near the bottom.
func (mt *MessageThread) Update(h *api.HistoryResponse) {
	if h == nil {
		return
	}
	_, _, _, visible := mt.messages.GetInnerRect()
	prevHeight := mt.messages.GetWrappedLineCount()
	prevOffset, _ := mt.messages.GetScrollOffset()
	before := history.Viewport{ContentHeight: prevHeight, Offset: prevOffset, Visible: visible}

	sameChannel := h.ChannelID == mt.channelID
	firstID, lastID := "", ""
	if n := len(h.Messages); n > 0 {
		firstID, lastID = h.Messages[0].ID, h.Messages[n-1].ID
	}
	prepended := sameChannel && firstID != mt.firstID && mt.firstID != ""
	appended := sameChannel && lastID != mt.lastID

	mt.channelID, mt.firstID, mt.lastID = h.ChannelID, firstID, lastID
	mt.messages.Clear()
	if !h.ReachedStart {
		_, _ = fmt.Fprint(mt.messages, "[::d]  ...older messages above (k to load)[-:-:-]\n\n")
	}
	for _, m := range h.Messages {
		_, _ = fmt.Fprint(mt.messages, formatMessage(m))
	}
	if h.Error != "" {
		_, _ = fmt.Fprintf(mt.messages, "[red]%s[-]\n", tview.Escape(h.Error))
	}

	switch {
	case !sameChannel:
		mt.messages.ScrollToEnd()
	case prepended:
		offset := history.ComputeScrollOffset(prevHeight, mt.messages.GetWrappedLineCount(), prevOffset)
		mt.messages.ScrollTo(offset, 0)
	case appended && history.NearBottom(before, nearBottomRows):
		mt.messages.ScrollToEnd()
	default:
		mt.messages.ScrollTo(prevOffset, 0)
	}
}

func formatMessage(m provider.Message) string {
	sender := m.Author
	if m.FromMe {
		sender = "You"
	}
	if sender == "" {
		sender = "Them"
	}
	body := m.Body
	if m.HasMedia || (m.Type != "" && m.Type != provider.KindText) {
		label := string(m.Type)
		if m.Filename != "" {
			label += " " + m.Filename
		}
		body = strings.TrimSpace(fmt.Sprintf("[%s] %s", label, body))
	}
	state := ""
	if m.IsPending() {
		state = " [::d](sending)[-:-:-]"
	}
	return fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
		tview.Escape(sanitizeForTerminal(sender)), m.Time().Format("01/02 15:04"), state,
		tview.Escape(sanitizeForTerminal(body)))
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
