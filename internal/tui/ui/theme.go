package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds the inbox colors.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	CrumbBadgeColor   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashOKColor      tcell.Color
	FlashProgColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
}

// DefaultTheme returns the dark green leadchat palette.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorLightGray,
		BorderColor:       tcell.ColorSeaGreen,
		BorderFocusColor:  tcell.ColorLightGreen,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorMediumSeaGreen,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorLimeGreen,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorDarkSeaGreen,
		CrumbBadgeColor:   tcell.ColorGold,
		MenuKeyColor:      tcell.ColorMediumSeaGreen,
		NumericKeyColor:   tcell.ColorGold,
		TitleColor:        tcell.ColorLimeGreen,
		CounterColor:      tcell.ColorKhaki,
		FlashInfoColor:    tcell.ColorLightGray,
		FlashOKColor:      tcell.ColorLimeGreen,
		FlashProgColor:    tcell.ColorSkyblue,
		FlashWarnColor:    tcell.ColorGold,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorSeaGreen,
	}
}

// colorName renders c as a tview color tag value.
func colorName(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
