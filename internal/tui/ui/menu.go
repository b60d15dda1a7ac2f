package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows matches the header height minus its padding.
const menuRows = 6

// Menu lists the shortcuts of the current page in header columns.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates the header menu.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints column by column, menuRows per column. Jump keys
// always go last so the conversation shortcuts read top to bottom.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()

	cols := menuColumns(hints, menuRows)
	width := make([]int, len(cols))
	for i, col := range cols {
		for _, h := range col {
			width[i] = max(width[i], len(h.Key)+len(h.Description)+3)
		}
	}

	keyColor := colorName(m.theme.MenuKeyColor)
	numColor := colorName(m.theme.NumericKeyColor)
	for row := 0; row < menuRows; row++ {
		var line strings.Builder
		for i, col := range cols {
			if row >= len(col) {
				continue
			}
			h := col[row]
			kc := keyColor
			if h.Numeric {
				kc = numColor
			}
			pad := width[i] - len(h.Key) - len(h.Description) - 3
			_, _ = fmt.Fprintf(&line, "[%s::b]<%s>[-:-:-] %s%s  ", kc, h.Key, tview.Escape(h.Description), strings.Repeat(" ", pad))
		}
		_, _ = fmt.Fprintln(m, strings.TrimRight(line.String(), " "))
	}
}

// menuColumns splits hints into columns of at most rows entries, numeric
// hints after the rest.
func menuColumns(hints []MenuHint, rows int) [][]MenuHint {
	if rows <= 0 {
		return nil
	}
	ordered := make([]MenuHint, 0, len(hints))
	for _, h := range hints {
		if !h.Numeric {
			ordered = append(ordered, h)
		}
	}
	for _, h := range hints {
		if h.Numeric {
			ordered = append(ordered, h)
		}
	}

	var cols [][]MenuHint
	for len(ordered) > 0 {
		n := min(rows, len(ordered))
		cols = append(cols, ordered[:n])
		ordered = ordered[n:]
	}
	return cols
}
