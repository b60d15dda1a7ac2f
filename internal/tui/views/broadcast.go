package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// BroadcastView lists resolved recipients with a selection column and a
// composer that dispatches to the selection.
type BroadcastView struct {
	*tview.Flex
	theme      *ui.Theme
	summary    *tview.TextView
	table      *tview.Table
	composer   *tview.InputField
	data       []api.Recipient
	selected   map[string]bool
	onDispatch func(text string, channelIDs []string)
}

// NewBroadcastView creates a new broadcast view.
func NewBroadcastView(theme *ui.Theme) *BroadcastView {
	summary := tview.NewTextView().SetDynamicColors(true)
	summary.SetBackgroundColor(theme.BgColor)
	summary.SetTextColor(theme.FgColor)

	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitle(" Recipients ")
	table.SetTitleColor(theme.TitleColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Broadcast message (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(summary, 2, 0, false).
		AddItem(table, 0, 1, true).
		AddItem(composer, 3, 0, false)

	bv := &BroadcastView{
		Flex:     flex,
		theme:    theme,
		summary:  summary,
		table:    table,
		composer: composer,
		selected: make(map[string]bool),
	}

	table.SetSelectedFunc(func(row, _ int) {
		if row >= 1 && row <= len(bv.data) {
			bv.Toggle(bv.data[row-1].ChannelID)
		}
	})
	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || bv.onDispatch == nil {
			return
		}
		text := composer.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		bv.onDispatch(text, bv.Selected())
	})
	return bv
}

// Name implements Component.
func (bv *BroadcastView) Name() string { return "Broadcast" }

// Init implements Component.
func (bv *BroadcastView) Init() {}

// Start implements Component.
func (bv *BroadcastView) Start() {}

// Stop implements Component.
func (bv *BroadcastView) Stop() {}

// Hints implements Component.
func (bv *BroadcastView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Toggle"},
		{Key: "A", Description: "All/none"},
		{Key: "i", Description: "Compose"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
	}
}

// SetOnDispatch sets the callback for a submitted broadcast. channelIDs is
// empty when every recipient is targeted.
func (bv *BroadcastView) SetOnDispatch(fn func(text string, channelIDs []string)) {
	bv.onDispatch = fn
}

// ClearComposer empties the composer after a dispatch.
func (bv *BroadcastView) ClearComposer() {
	bv.composer.SetText("")
}

// Update shows a resolved recipient list. Every recipient starts selected.
func (bv *BroadcastView) Update(resp *api.ResolveResponse, criteria string) {
	bv.data = resp.Recipients
	clear(bv.selected)
	for _, r := range resp.Recipients {
		bv.selected[r.ChannelID] = true
	}

	bv.summary.Clear()
	_, _ = fmt.Fprintf(bv.summary, " [::b]%d of %d[-:-:-] match %s\n [::d]statuses: %s | services: %s[-:-:-]",
		len(resp.Recipients), resp.Total, tview.Escape(criteria),
		tview.Escape(strings.Join(resp.Statuses, ", ")), tview.Escape(strings.Join(resp.Services, ", ")))
	bv.render()
}

// Toggle flips one recipient's selection.
func (bv *BroadcastView) Toggle(channelID string) {
	bv.selected[channelID] = !bv.selected[channelID]
	bv.render()
}

// ToggleAll selects every recipient, or none when all are selected.
func (bv *BroadcastView) ToggleAll() {
	all := len(bv.Selected()) == len(bv.data)
	for _, r := range bv.data {
		bv.selected[r.ChannelID] = !all
	}
	bv.render()
}

// Selected returns the selected channel ids in list order.
func (bv *BroadcastView) Selected() []string {
	var ids []string
	for _, r := range bv.data {
		if bv.selected[r.ChannelID] {
			ids = append(ids, r.ChannelID)
		}
	}
	return ids
}

func (bv *BroadcastView) render() {
	row, _ := bv.table.GetSelection()
	bv.table.Clear()
	for col, h := range []string{"   ", " CHANNEL", " NAME", " STATUS", " SERVICE", " DATE"} {
		bv.table.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(bv.theme.TableHeaderFg).
			SetBackgroundColor(bv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}
	for i, r := range bv.data {
		mark := " [ ]"
		if bv.selected[r.ChannelID] {
			mark = " [x]"
		}
		cells := []string{mark, r.ChannelID, "", "", "", ""}
		if r.Record != nil {
			cells[2], cells[3], cells[4], cells[5] = r.Record.Name, r.Record.Status, r.Record.Service, r.Record.Date
		}
		for col, text := range cells {
			cell := tview.NewTableCell(" " + tview.Escape(sanitizeForTerminal(text))).SetTextColor(bv.theme.FgColor)
			if col == 2 {
				cell.SetExpansion(1)
			}
			bv.table.SetCell(i+1, col, cell)
		}
	}
	bv.table.SetTitle(fmt.Sprintf(" Recipients (%d selected) ", len(bv.Selected())))
	if row >= 1 {
		bv.table.Select(min(row, max(1, len(bv.data))), 0)
	}
}

// Table returns the recipient table (for focus management).
func (bv *BroadcastView) Table() *tview.Table {
	return bv.table
}

// Composer returns the composer input field (for focus management).
func (bv *BroadcastView) Composer() *tview.InputField {
	return bv.composer
}
