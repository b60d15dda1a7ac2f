package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/leadchat/internal/status"
	"github.com/matheus3301/leadchat/internal/store"
	"github.com/rivo/tview"
)

// FlashLevel selects the color of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashOK
	FlashProgress
	FlashWarn
	FlashErr
)

// FlashMessage is one notification shown under the pages.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// FlashModel holds the latest notification and feeds the flash bar.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	watchCh chan FlashMessage
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		watchCh: make(chan FlashMessage, 8),
	}
}

// Info shows a neutral message.
func (f *FlashModel) Info(msg string) {
	f.set(msg, FlashInfo, 5*time.Second)
}

// OK shows a completed action.
func (f *FlashModel) OK(msg string) {
	f.set(msg, FlashOK, 5*time.Second)
}

// Warn shows a recoverable problem.
func (f *FlashModel) Warn(msg string) {
	f.set(msg, FlashWarn, 8*time.Second)
}

// Err shows a failed operation.
func (f *FlashModel) Err(err error) {
	f.set(err.Error(), FlashErr, 10*time.Second)
}

// Progress reports a broadcast batch. A running batch stays on screen until
// the next update; a finished one fades like any other message.
func (f *FlashModel) Progress(jobID, state string, sent, failed, total int) {
	text := fmt.Sprintf("Batch %s: %d/%d sent", shortJob(jobID), sent, total)
	if failed > 0 {
		text += fmt.Sprintf(", %d failed", failed)
	}
	switch state {
	case store.BatchDone:
		f.set(text+" (done)", FlashOK, 8*time.Second)
	case store.BatchFailed:
		f.set(text+" (failed)", FlashErr, 10*time.Second)
	default:
		f.set(text+" ("+state+")", FlashProgress, time.Minute)
	}
}

// Connection reports a push-connection state change. It returns false for
// states that need no notice.
func (f *FlashModel) Connection(state status.State) bool {
	text, level, ok := connectionFlash(state)
	if ok {
		f.set(text, level, 6*time.Second)
	}
	return ok
}

func connectionFlash(state status.State) (string, FlashLevel, bool) {
	switch state {
	case status.Ready:
		return "Connected", FlashOK, true
	case status.Connecting, status.Syncing:
		return "Connecting to WhatsApp...", FlashProgress, true
	case status.Reconnecting:
		return "Connection lost, reconnecting...", FlashWarn, true
	case status.Degraded:
		return "Connection degraded", FlashWarn, true
	case status.AuthRequired:
		return "Device not paired, scan the QR code", FlashWarn, true
	case status.Stopped:
		return "Disconnected", FlashInfo, true
	case status.Error:
		return "Connection failed", FlashErr, true
	default:
		return "", FlashInfo, false
	}
}

func shortJob(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// GetMessage returns the current message, or nil once it expired.
func (f *FlashModel) GetMessage() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch returns the channel of new messages.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

func (f *FlashModel) set(msg string, level FlashLevel, d time.Duration) {
	fm := FlashMessage{
		Text:    msg,
		Level:   level,
		Expires: time.Now().Add(d),
	}
	f.mu.Lock()
	f.current = fm
	f.mu.Unlock()
	select {
	case f.watchCh <- fm:
	default:
	}
}

// FlashBar draws the current flash message.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates the flash bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg, or clears the bar when msg is nil.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", colorName(fb.levelColor(msg.Level)), tview.Escape(msg.Text))
}

func (fb *FlashBar) levelColor(l FlashLevel) tcell.Color {
	switch l {
	case FlashOK:
		return fb.theme.FlashOKColor
	case FlashProgress:
		return fb.theme.FlashProgColor
	case FlashWarn:
		return fb.theme.FlashWarnColor
	case FlashErr:
		return fb.theme.FlashErrColor
	default:
		return fb.theme.FlashInfoColor
	}
}
