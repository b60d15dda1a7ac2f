package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/status"
	"github.com/matheus3301/leadchat/internal/store"
	"github.com/matheus3301/leadchat/internal/tui/keys"
	"github.com/matheus3301/leadchat/internal/tui/model"
	"github.com/matheus3301/leadchat/internal/tui/ui"
	"github.com/matheus3301/leadchat/internal/tui/views"
	"github.com/matheus3301/leadchat/internal/wa"
	"github.com/rivo/tview"
)

const watchRetry = 2 * time.Second

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	client   *api.Client
	vm       *model.ViewModel
	registry *keys.Registry
	theme    *ui.Theme
	session  string

	root     *tview.Flex
	pages    *ui.Pages
	crumbs   *ui.Crumbs
	menu     *ui.Menu
	info     *ui.SessionInfo
	logo     *ui.Logo
	prompt   *ui.Prompt
	flash    *ui.FlashModel
	flashBar *ui.FlashBar

	convList  *views.ConversationList
	thread    *views.MessageThread
	details   *views.ConversationInfo
	searchV   *views.SearchView
	broadcast *views.BroadcastView
	help      *views.HelpView
	authView  *views.AuthView

	components map[string]ui.Component
	authing    bool
	statusAt   time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *api.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		client:    c,
		vm:        model.NewViewModel(c),
		registry:  keys.NewRegistry(),
		theme:     theme,
		session:   sessionName,
		pages:     ui.NewPages(),
		crumbs:    ui.NewCrumbs(theme),
		menu:      ui.NewMenu(theme),
		info:      ui.NewSessionInfo(theme),
		logo:      ui.NewLogo(theme),
		prompt:    ui.NewPrompt(theme),
		flash:     ui.NewFlashModel(),
		flashBar:  ui.NewFlashBar(theme),
		convList:  views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		details:   views.NewConversationInfo(theme),
		searchV:   views.NewSearchView(theme),
		broadcast: views.NewBroadcastView(theme),
		help:      views.NewHelpView(theme),
		authView:  views.NewAuthView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.components = map[string]ui.Component{
		ui.PageConversations: a.convList,
		ui.PageThread:        a.thread,
		ui.PageDetails:       a.details,
		ui.PageSearch:        a.searchV,
		ui.PageBroadcast:     a.broadcast,
		ui.PageHelp:          a.help,
		ui.PageAuth:          a.authView,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "Help", Visible: true,
		Handler: func() { a.push(ui.PageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("back", &keys.Action{
		Key:         tcell.KeyEscape,
		Description: "Back",
		Handler:     a.back,
	})
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "Quit", Visible: true,
		Handler: func() {
			if a.pages.Depth() > 1 {
				a.back()
				return
			}
			a.Stop()
		},
	})

	a.registry.AddView(ui.PageConversations, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(ui.PageConversations, "clear", &keys.Action{
		Rune: '0', Key: tcell.KeyRune,
		Handler: func() { a.convList.ClearFilter() },
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(ui.PageConversations, fmt.Sprintf("jump%d", n), &keys.Action{
			Rune: rune('0' + n), Key: tcell.KeyRune,
			Handler: func() {
				if id := a.convList.ChannelByIndex(n); id != "" {
					a.openChat(id)
				}
			},
		})
	}
	a.registry.AddView(ui.PageConversations, "archived", &keys.Action{
		Rune: 'a', Key: tcell.KeyRune,
		Handler: func() {
			shown := a.vm.ToggleArchived()
			if shown {
				a.flash.Info("Showing archived conversations")
			} else {
				a.flash.Info("Showing active conversations")
			}
			go a.reloadConversations(false)
		},
	})
	a.registry.AddView(ui.PageConversations, "archive", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Handler: a.toggleArchiveSelected,
	})
	a.registry.AddView(ui.PageConversations, "refresh", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Handler: func() { go a.reloadConversations(true) },
	})
	a.registry.AddView(ui.PageConversations, "broadcast", &keys.Action{
		Rune: 'b', Key: tcell.KeyRune,
		Handler: func() { a.openBroadcast("") },
	})

	a.registry.AddView(ui.PageThread, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(ui.PageThread, "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune,
		Handler: func() {
			if c, ok := a.vm.Conversation(a.thread.ChannelID()); ok {
				a.details.Update(c)
				a.push(ui.PageDetails)
			}
		},
	})

	a.registry.AddView(ui.PageBroadcast, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Handler: func() { a.app.SetFocus(a.broadcast.Composer()) },
	})
	a.registry.AddView(ui.PageBroadcast, "all", &keys.Action{
		Rune: 'A', Key: tcell.KeyRune,
		Handler: func() { a.broadcast.ToggleAll() },
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, _ int) {
		if id := a.convList.ChannelByIndex(row); id != "" {
			a.openChat(id)
		}
	})

	a.thread.SetOnSend(func(text string) {
		go func() {
			if err := a.vm.SendText(a.ctx, text); err != nil {
				a.flash.Err(fmt.Errorf("send failed: %w", err))
			}
		}()
	})
	a.thread.SetOnTop(func() {
		go func() {
			more, err := a.vm.LoadOlder(a.ctx)
			if err != nil {
				a.flash.Err(err)
				return
			}
			if more {
				a.app.QueueUpdateDraw(func() { a.thread.Update(a.vm.GetHistory()) })
			}
		}()
	})

	a.searchV.SetOnQuery(func(query string) { go a.search(query) })
	a.searchV.Results().SetSelectedFunc(func(_, _ int) {
		if channelID, _ := a.searchV.SelectedResult(); channelID != "" {
			a.openChat(channelID)
		}
	})

	a.broadcast.SetOnDispatch(func(text string, channelIDs []string) {
		if len(channelIDs) == 0 {
			a.flash.Warn("No recipients selected")
			return
		}
		go func() {
			ack, err := a.vm.Dispatch(a.ctx, text, channelIDs)
			if err != nil {
				a.flash.Err(fmt.Errorf("broadcast failed: %w", err))
				return
			}
			a.flash.OK(fmt.Sprintf("Batch %s queued for %d recipients", ack.JobID, ack.Recipients))
			a.app.QueueUpdateDraw(a.broadcast.ClearComposer)
		}()
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.convList.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.convList.SetFilter(text)
		}
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.convList.ClearFilter()
		}
		a.hidePrompt()
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(ui.PageConversations, a.convList, true, false)
	a.pages.AddPage(ui.PageThread, a.thread, true, false)
	a.pages.AddPage(ui.PageDetails, a.details, true, false)
	a.pages.AddPage(ui.PageSearch, a.searchV, true, false)
	a.pages.AddPage(ui.PageBroadcast, a.broadcast, true, false)
	a.pages.AddPage(ui.PageHelp, a.help, true, false)
	a.pages.AddPage(ui.PageAuth, a.authView, true, false)

	a.pages.SetOnChange(func(stack []string) {
		a.updateCrumbs(stack)
		cur := a.pages.Current()
		a.menu.Update(keys.MergeHints(a.components[cur].Hints(), a.registry.Hints(cur)))
	})

	header := tview.NewFlex().
		AddItem(a.info, 44, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 18, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.pages.Reset(ui.PageConversations)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Text inputs keep their keys; Esc leaves a composer.
		if input, ok := a.app.GetFocus().(*tview.InputField); ok {
			if event.Key() == tcell.KeyEscape {
				switch input {
				case a.thread.Composer():
					a.app.SetFocus(a.thread.Messages())
					return nil
				case a.broadcast.Composer():
					a.app.SetFocus(a.broadcast.Table())
					return nil
				case a.searchV.Input():
					a.back()
					return nil
				}
			}
			return event
		}
		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

func (a *App) push(page string) {
	if a.pages.Open(page) {
		a.focusPage(page)
	}
}

// updateCrumbs must run on the UI goroutine.
func (a *App) updateCrumbs(stack []string) {
	trail := make([]ui.Crumb, 0, len(stack))
	for _, p := range stack {
		cr := ui.Crumb{Name: a.components[p].Name()}
		switch p {
		case ui.PageConversations:
			if n := a.vm.UnreadCount(); n > 0 {
				cr.Badge = fmt.Sprintf("(%d unread)", n)
			}
		case ui.PageThread, ui.PageDetails:
			if c, ok := a.vm.Conversation(a.thread.ChannelID()); ok {
				cr.Badge = c.DisplayName()
			}
		}
		trail = append(trail, cr)
	}
	a.crumbs.Update(trail)
}

func (a *App) back() {
	if a.pages.Depth() <= 1 {
		return
	}
	a.pages.Pop()
	a.focusPage(a.pages.Current())
}

func (a *App) focusPage(page string) {
	switch page {
	case ui.PageThread:
		a.app.SetFocus(a.thread.Messages())
	case ui.PageSearch:
		a.app.SetFocus(a.searchV.Input())
	case ui.PageBroadcast:
		a.app.SetFocus(a.broadcast.Table())
	default:
		if p, ok := a.components[page].(tview.Primitive); ok {
			a.app.SetFocus(p)
		}
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusPage(a.pages.Current())
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.push(ui.PageHelp)
	case "search":
		a.push(ui.PageSearch)
		if cmd.Args != "" {
			a.searchV.SetQuery(cmd.Args)
			go a.search(cmd.Args)
		}
	case "chat":
		a.openChatByName(cmd.Args)
	case "archive":
		a.toggleArchiveSelected()
	case "broadcast", "bc":
		a.openBroadcast(cmd.Args)
	case "refresh":
		go a.reloadConversations(true)
	case "logout":
		go func() {
			if err := a.vm.Logout(a.ctx); err != nil {
				a.flash.Err(fmt.Errorf("logout failed: %w", err))
				return
			}
			a.flash.OK("Logged out")
		}()
	default:
		a.flash.Warn("Unknown command: " + cmd.Name)
	}
}

func (a *App) openChat(channelID string) {
	go func() {
		if err := a.vm.Open(a.ctx, channelID); err != nil {
			a.flash.Err(fmt.Errorf("open failed: %w", err))
			return
		}
		name := channelID
		if c, ok := a.vm.Conversation(channelID); ok {
			name = c.DisplayName()
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetChatName(name)
			a.thread.Update(a.vm.GetHistory())
			if a.pages.Current() != ui.PageThread {
				a.pages.Reset(ui.PageConversations)
				a.push(ui.PageThread)
			}
		})
	}()
}

func (a *App) search(query string) {
	results, err := a.vm.Search(a.ctx, query)
	if err != nil {
		a.flash.Err(fmt.Errorf("search failed: %w", err))
		return
	}
	a.app.QueueUpdateDraw(func() {
		a.searchV.Update(results)
		a.app.SetFocus(a.searchV.Results())
	})
}

func (a *App) openChatByName(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		a.flash.Warn("Usage: :chat <name>")
		return
	}
	for _, c := range a.vm.GetConversations() {
		if strings.Contains(strings.ToLower(c.DisplayName()), name) || c.ChannelID == name {
			a.openChat(c.ChannelID)
			return
		}
	}
	a.flash.Warn("No conversation matches " + name)
}

func (a *App) toggleArchiveSelected() {
	c, ok := a.convList.Selected()
	if !ok {
		return
	}
	go func() {
		if err := a.vm.Archive(a.ctx, c.ChannelID, !c.Archived); err != nil {
			a.flash.Err(fmt.Errorf("archive failed: %w", err))
			return
		}
		if c.Archived {
			a.flash.OK("Restored " + c.DisplayName())
		} else {
			a.flash.OK("Archived " + c.DisplayName())
		}
	}()
}

func (a *App) openBroadcast(args string) {
	req, err := ParseBroadcastArgs(args)
	if err != nil {
		a.flash.Err(err)
		return
	}
	criteria := args
	if criteria == "" {
		criteria = "all linked records"
	}
	go func() {
		resp, err := a.vm.Resolve(a.ctx, req)
		if err != nil {
			a.flash.Err(fmt.Errorf("resolve failed: %w", err))
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.broadcast.Update(resp, criteria)
			a.push(ui.PageBroadcast)
		})
	}()
}

func (a *App) reloadConversations(refresh bool) {
	if err := a.vm.LoadConversations(a.ctx, refresh); err != nil {
		a.flash.Warn("Conversations: " + err.Error())
	}
	a.app.QueueUpdateDraw(func() {
		a.convList.Update(a.vm.GetConversations(), a.vm.ShowingArchived())
		a.updateInfo()
		a.updateCrumbs(a.pages.Stack())
	})
}

func (a *App) reloadStatus() {
	if err := a.vm.LoadStatus(a.ctx); err != nil {
		a.flash.Err(err)
		return
	}
	st := a.vm.GetStatus()
	a.app.QueueUpdateDraw(func() {
		a.statusAt = time.Now()
		a.updateInfo()
		switch {
		case st.State == string(status.AuthRequired) && !a.authing:
			a.authing = true
			a.pages.Reset(ui.PageAuth)
			a.authView.ShowMessage("Starting authentication...")
			go a.runAuthFlow()
		case st.State != string(status.AuthRequired) && a.pages.Current() == ui.PageAuth:
			a.authing = false
			a.pages.Reset(ui.PageConversations)
			a.focusPage(ui.PageConversations)
		}
	})
}

func (a *App) reloadHistory(channelID string) {
	active := a.vm.ActiveChannel()
	if active == "" || (channelID != "" && channelID != active) {
		return
	}
	if err := a.vm.ReloadHistory(a.ctx); err != nil {
		a.flash.Err(err)
		return
	}
	a.app.QueueUpdateDraw(func() { a.thread.Update(a.vm.GetHistory()) })
}

// updateInfo must run on the UI goroutine.
func (a *App) updateInfo() {
	st := a.vm.GetStatus()
	if st == nil {
		a.info.Update(&ui.SessionData{Session: a.session, Status: "CONNECTING"})
		return
	}
	data := &ui.SessionData{
		Session:       st.Session,
		Provider:      st.Provider,
		Owner:         st.Owner,
		Phone:         st.PhoneNumber,
		Status:        st.State,
		Conversations: len(a.vm.GetConversations()),
		Unread:        a.vm.UnreadCount(),
		Uptime:        time.Duration(st.UptimeMs)*time.Millisecond + time.Since(a.statusAt),
	}
	a.info.Update(data)
}

func (a *App) handleEvent(evt api.Event) {
	var ref struct {
		ChannelID string `json:"channelId"`
	}
	_ = json.Unmarshal(evt.Payload, &ref)

	r := model.ReloadFor(evt.Kind)
	if r.Status {
		a.reloadStatus()
	}
	if r.Conversations {
		a.reloadConversations(false)
	}
	if r.History {
		a.reloadHistory(ref.ChannelID)
	}

	switch evt.Kind {
	case bus.KindBatchProgress:
		var p store.BatchProgress
		if json.Unmarshal(evt.Payload, &p) == nil && p.JobID != "" {
			a.flash.Progress(p.JobID, p.Status, p.Sent, p.Failed, p.Total)
		}
	case bus.KindStatusChanged:
		var c status.Change
		if json.Unmarshal(evt.Payload, &c) == nil {
			a.flash.Connection(c.To)
		}
	}
}

func (a *App) watchLoop() {
	for {
		err := model.Watch(a.ctx, a.client, a.handleEvent)
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.flash.Warn("Event stream lost, retrying: " + err.Error())
		}
		select {
		case <-time.After(watchRetry):
		case <-a.ctx.Done():
			return
		}
		// Catch up on anything missed while disconnected.
		a.reloadStatus()
		a.reloadConversations(false)
		a.reloadHistory("")
	}
}

func (a *App) flashLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case msg := <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(&msg) })
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.flashBar.Update(a.flash.GetMessage())
				a.updateInfo()
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		a.reloadStatus()
		a.reloadConversations(false)
		go a.watchLoop()
		go a.flashLoop()
	}()
	return a.app.Run()
}

// runAuthFlow streams pairing codes from the daemon into the auth view.
func (a *App) runAuthFlow() {
	defer func() {
		a.app.QueueUpdateDraw(func() { a.authing = false })
	}()

	stream, err := a.client.StartAuth(a.ctx)
	if err != nil {
		a.app.QueueUpdateDraw(func() { a.authView.ShowMessage("Auth error: " + err.Error()) })
		return
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) || a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.app.QueueUpdateDraw(func() { a.authView.ShowMessage("Auth stream error: " + err.Error()) })
			return
		}

		switch step, text := authStepFor(evt); step {
		case authShowQR:
			a.app.QueueUpdateDraw(func() { a.authView.ShowQR(text) })
		case authDone:
			a.app.QueueUpdateDraw(func() { a.authView.ShowMessage(text) })
			a.reloadStatus()
			a.reloadConversations(false)
			return
		case authFailed:
			a.app.QueueUpdateDraw(func() { a.authView.ShowMessage(text) })
			return
		}
	}
}

type authStep int

const (
	authIgnore authStep = iota
	authShowQR
	authDone
	authFailed
)

// authStepFor maps a pairing event to what the auth page shows next.
func authStepFor(evt *api.AuthEvent) (authStep, string) {
	switch wa.AuthEventType(evt.Type) {
	case wa.AuthEventQRCode:
		return authShowQR, evt.QRCode
	case wa.AuthEventAuthenticated:
		return authDone, "Authenticated! Loading conversations..."
	case wa.AuthEventAuthFailed, wa.AuthEventTimeout:
		msg := evt.Message
		if msg == "" {
			msg = "Authentication failed"
		}
		return authFailed, msg + " (:q to quit)"
	default:
		return authIgnore, ""
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
