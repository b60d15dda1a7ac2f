package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what a submitted prompt does.
type PromptMode int

const (
	PromptCommand PromptMode = iota // :chat, :search, :broadcast ...
	PromptFilter                    // narrows the conversation list as you type
)

const historySize = 32

// Prompt is the command/filter input bar. Commands keep a recall history
// browsed with Up and Down.
type Prompt struct {
	*tview.InputField
	theme    *Theme
	mode     PromptMode
	history  []string
	recall   int
	muted    bool
	onSubmit func(mode PromptMode, text string)
	onChange func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates the prompt bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{
		InputField: input,
		theme:      theme,
	}

	input.SetChangedFunc(func(text string) {
		if p.onChange != nil && !p.muted {
			p.onChange(p.mode, text)
		}
	})
	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand {
			return ev
		}
		switch ev.Key() {
		case tcell.KeyUp:
			p.SetText(p.Recall(-1))
			return nil
		case tcell.KeyDown:
			p.SetText(p.Recall(1))
			return nil
		}
		return ev
	})
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := p.GetText()
			if text != "" && p.mode == PromptCommand {
				p.Remember(text)
			}
			if p.onSubmit != nil && text != "" {
				p.onSubmit(p.mode, text)
			}
			p.reset()
		case tcell.KeyEscape:
			p.reset()
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})

	return p
}

// SetOnSubmit sets the callback for Enter.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnChange sets the callback for every edit.
func (p *Prompt) SetOnChange(fn func(mode PromptMode, text string)) {
	p.onChange = fn
}

// SetOnCancel sets the callback for Esc.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate clears the bar and switches it to mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.recall = len(p.history)
	p.reset()
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter conversations ")
	}
}

// reset empties the field without reporting a change.
func (p *Prompt) reset() {
	p.muted = true
	p.SetText("")
	p.muted = false
}

// Mode returns the active mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}

// Remember appends a submitted command to the history, skipping an
// immediate repeat.
func (p *Prompt) Remember(cmd string) {
	if n := len(p.history); n == 0 || p.history[n-1] != cmd {
		p.history = append(p.history, cmd)
		if len(p.history) > historySize {
			p.history = p.history[len(p.history)-historySize:]
		}
	}
	p.recall = len(p.history)
}

// Recall moves through the history by delta (-1 older, 1 newer) and returns
// the entry. Moving past the newest entry yields "".
func (p *Prompt) Recall(delta int) string {
	p.recall = min(max(p.recall+delta, 0), len(p.history))
	if p.recall == len(p.history) {
		return ""
	}
	return p.history[p.recall]
}
