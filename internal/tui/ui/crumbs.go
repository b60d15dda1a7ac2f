package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Crumb is one step of the navigation trail. Badge carries a page counter
// (unread conversations, selected recipients) or the open contact.
type Crumb struct {
	Name  string
	Badge string
}

// Crumbs shows the page stack as a breadcrumb trail.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates the breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the trail; the last crumb is the active page.
func (c *Crumbs) Update(trail []Crumb) {
	c.Clear()
	if len(trail) == 0 {
		return
	}

	badge := colorName(c.theme.CrumbBadgeColor)
	parts := make([]string, 0, len(trail))
	for i, cr := range trail {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(trail)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		part := fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", colorName(fg), colorName(bg), attr, tview.Escape(cr.Name))
		if cr.Badge != "" {
			part += fmt.Sprintf("[%s]%s[-]", badge, tview.Escape(cr.Badge))
		}
		parts = append(parts, part)
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " > "))
}
