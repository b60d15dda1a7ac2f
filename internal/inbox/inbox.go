// Package inbox wires the registry, pager, resolver, dispatcher and push
// bridge together for one owner session.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/dispatch"
	"github.com/matheus3301/leadchat/internal/history"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/push"
	"github.com/matheus3301/leadchat/internal/recipients"
	"github.com/matheus3301/leadchat/internal/registry"
	"github.com/matheus3301/leadchat/internal/status"
)

var (
	// ErrNoSession is returned by operations that need an open session.
	ErrNoSession = errors.New("inbox: no open session")
	// ErrEmptyText is returned when sending blank text.
	ErrEmptyText = errors.New("inbox: message text is empty")
)

// Options tunes an Inbox.
type Options struct {
	PageSize      int
	Location      *time.Location
	DefaultTiming dispatch.Timing
}

// Compose is the message being prepared for a broadcast.
type Compose struct {
	Items  []provider.Item
	Timing dispatch.Timing
}

// Inbox is the engine for one owner session.
type Inbox struct {
	provider provider.Provider
	bus      *bus.Bus
	logger   *zap.Logger

	registry   *registry.Registry
	pager      *history.Pager
	resolver   *recipients.Resolver
	dispatcher *dispatch.Dispatcher
	bridge     *push.Bridge

	mu        sync.Mutex
	session   *provider.Session
	compose   Compose
	picker    *recipients.Picker
	stopWatch func()
}

// New builds an inbox over a provider and its push source.
func New(p provider.Provider, src provider.PushSource, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics, opts Options) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := registry.New(p, b, logger.Named("registry"), m)
	pager := history.NewPager(p, opts.PageSize, b, logger.Named("history"), m)
	in := &Inbox{
		provider:   p,
		bus:        b,
		logger:     logger,
		registry:   reg,
		pager:      pager,
		resolver:   recipients.NewResolver(p, opts.Location, logger.Named("recipients")),
		dispatcher: dispatch.New(p, logger.Named("dispatch"), m),
		bridge:     push.NewBridge(src, logger.Named("push"), m, reg, pager),
		compose:    Compose{Timing: opts.DefaultTiming},
	}
	in.picker = recipients.NewPicker(nil, in.resolver.Location())
	return in
}

// Registry returns the conversation registry.
func (in *Inbox) Registry() *registry.Registry { return in.registry }

// Pager returns the history pager.
func (in *Inbox) Pager() *history.Pager { return in.pager }

// Picker returns the recipient picker.
func (in *Inbox) Picker() *recipients.Picker { return in.picker }

// Open starts a session: the push subscription is activated and the
// conversation list loaded. Opening a different owner resets the active
// conversation.
func (in *Inbox) Open(ctx context.Context, s provider.Session) error {
	if !s.Valid() {
		return ErrNoSession
	}
	in.mu.Lock()
	switched := in.session != nil && in.session.OwnerID != s.OwnerID
	in.session = &s
	in.mu.Unlock()

	if switched {
		in.registry.Deselect()
		in.pager.Reset()
	}
	if err := in.bridge.Activate(ctx, s); err != nil {
		return err
	}
	in.watchStatus()
	return in.registry.Refresh(ctx, s)
}

// Close tears the push subscription down.
func (in *Inbox) Close() {
	in.mu.Lock()
	stop := in.stopWatch
	in.stopWatch = nil
	in.mu.Unlock()
	if stop != nil {
		stop()
	}
	in.bridge.Deactivate()
}

// watchStatus refreshes the list and the active history whenever the
// provider becomes ready again, since the bridge does not backfill.
func (in *Inbox) watchStatus() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.stopWatch != nil || in.bus == nil {
		return
	}
	ch, unsub := in.bus.Subscribe(bus.KindStatusChanged, 8)
	in.stopWatch = unsub
	go func() {
		for evt := range ch {
			change, ok := evt.Payload.(status.Change)
			if !ok || change.To != status.Ready {
				continue
			}
			in.resync()
		}
	}()
}

func (in *Inbox) resync() {
	s, err := in.Session()
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := in.registry.Refresh(ctx, s); err != nil {
		return
	}
	if active := in.pager.Active(); active != "" {
		if _, err := in.pager.LoadInitial(ctx, s, active); err != nil && !errors.Is(err, history.ErrStale) {
			in.logger.Warn("history resync failed", zap.String("channel", active), zap.Error(err))
		}
	}
}

// Session returns the open session.
func (in *Inbox) Session() (provider.Session, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.session == nil {
		return provider.Session{}, ErrNoSession
	}
	return *in.session, nil
}

// Refresh reloads the conversation list.
func (in *Inbox) Refresh(ctx context.Context) error {
	s, err := in.Session()
	if err != nil {
		return err
	}
	return in.registry.Refresh(ctx, s)
}

// Conversations lists the registry through a view.
func (in *Inbox) Conversations(v registry.View) []provider.Conversation {
	return in.registry.List(v)
}

// Select makes a conversation active, resets its unread counter and loads its
// most recent history.
func (in *Inbox) Select(ctx context.Context, channelID string) (history.Snapshot, error) {
	s, err := in.Session()
	if err != nil {
		return history.Snapshot{}, err
	}
	if err := in.registry.Select(channelID); err != nil {
		return history.Snapshot{}, err
	}
	if marker, ok := in.provider.(provider.ReadMarker); ok {
		if err := marker.MarkRead(ctx, s, channelID); err != nil {
			in.logger.Warn("mark read failed", zap.String("channel", channelID), zap.Error(err))
		}
	}
	return in.pager.LoadInitial(ctx, s, channelID)
}

// LoadMore pages further back in the active conversation.
func (in *Inbox) LoadMore(ctx context.Context, channelID string, expandedLimit int) (history.Snapshot, error) {
	s, err := in.Session()
	if err != nil {
		return history.Snapshot{}, err
	}
	return in.pager.LoadMore(ctx, s, channelID, expandedLimit)
}

// SetArchived archives or unarchives a conversation.
func (in *Inbox) SetArchived(ctx context.Context, channelID string, archived bool) error {
	s, err := in.Session()
	if err != nil {
		return err
	}
	if _, ok := in.registry.Get(channelID); !ok {
		return fmt.Errorf("%w: %s", registry.ErrUnknownConversation, channelID)
	}
	if a, ok := in.provider.(provider.Archiver); ok {
		if err := a.SetArchived(ctx, s, channelID, archived); err != nil {
			return fmt.Errorf("set archived on %s: %w", channelID, err)
		}
	}
	return in.registry.SetArchived(channelID, archived)
}

// SendText sends text through the pending lifecycle: an optimistic copy is
// buffered first and replaced by the confirmed message.
func (in *Inbox) SendText(ctx context.Context, channelID, text string) (provider.Message, error) {
	s, err := in.Session()
	if err != nil {
		return provider.Message{}, err
	}
	if isBlank(text) {
		return provider.Message{}, ErrEmptyText
	}
	pending := in.pager.AddPending(channelID, text)
	msg, err := in.provider.SendText(ctx, s, channelID, text)
	if err != nil {
		in.pager.Fail(pending.ID)
		return provider.Message{}, fmt.Errorf("send text to %s: %w", channelID, err)
	}
	if msg.ChannelID == "" {
		msg.ChannelID = channelID
	}
	if !in.pager.Confirm(pending.ID, msg) {
		in.pager.Apply(push.NewMessage{ChannelID: channelID, Message: msg})
	}
	return msg, nil
}

// SendMedia sends a media message.
func (in *Inbox) SendMedia(ctx context.Context, channelID string, media provider.Media) (provider.Message, error) {
	s, err := in.Session()
	if err != nil {
		return provider.Message{}, err
	}
	if len(media.Data) == 0 {
		return provider.Message{}, dispatch.ErrEmptyMessage
	}
	msg, err := in.provider.SendMedia(ctx, s, channelID, media)
	if err != nil {
		return provider.Message{}, fmt.Errorf("send media to %s: %w", channelID, err)
	}
	in.appendSent(channelID, msg)
	return msg, nil
}

// Reply sends text quoting another message.
func (in *Inbox) Reply(ctx context.Context, channelID, quotedID, text string) (provider.Message, error) {
	s, err := in.Session()
	if err != nil {
		return provider.Message{}, err
	}
	if isBlank(text) {
		return provider.Message{}, ErrEmptyText
	}
	msg, err := in.provider.Reply(ctx, s, channelID, quotedID, text)
	if err != nil {
		return provider.Message{}, fmt.Errorf("reply in %s: %w", channelID, err)
	}
	in.appendSent(channelID, msg)
	return msg, nil
}

// Edit changes the body of a sent message.
func (in *Inbox) Edit(ctx context.Context, channelID, messageID, body string) (provider.EditResult, error) {
	s, err := in.Session()
	if err != nil {
		return provider.EditResult{}, err
	}
	if isBlank(body) {
		return provider.EditResult{}, ErrEmptyText
	}
	res, err := in.provider.Edit(ctx, s, channelID, messageID, body)
	if err != nil {
		return provider.EditResult{}, fmt.Errorf("edit %s: %w", messageID, err)
	}
	if res.OK {
		if res.Body == "" {
			res.Body = body
		}
		evt := push.MessageEdited{ChannelID: channelID, MessageID: messageID, Body: res.Body}
		in.pager.Apply(evt)
		in.registry.Apply(evt)
	}
	return res, nil
}

// Delete removes a message locally or for everyone.
func (in *Inbox) Delete(ctx context.Context, channelID, messageID string, forEveryone bool) (bool, error) {
	s, err := in.Session()
	if err != nil {
		return false, err
	}
	ok, err := in.provider.Delete(ctx, s, channelID, messageID, forEveryone)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", messageID, err)
	}
	if ok {
		in.pager.Apply(push.MessageDeleted{ChannelID: channelID, MessageID: messageID})
	}
	return ok, nil
}

// Forward forwards a message to another conversation.
func (in *Inbox) Forward(ctx context.Context, channelID, messageID, toChannelID string) (provider.Message, error) {
	s, err := in.Session()
	if err != nil {
		return provider.Message{}, err
	}
	msg, err := in.provider.Forward(ctx, s, channelID, messageID, toChannelID)
	if err != nil {
		return provider.Message{}, fmt.Errorf("forward %s to %s: %w", messageID, toChannelID, err)
	}
	in.appendSent(toChannelID, msg)
	return msg, nil
}

func (in *Inbox) appendSent(channelID string, msg provider.Message) {
	if msg.ID == "" {
		return
	}
	msg.ChannelID = channelID
	in.pager.Apply(push.NewMessage{ChannelID: channelID, Message: msg})
}

// Groups lists the owner's recipient groups.
func (in *Inbox) Groups(ctx context.Context) ([]provider.Group, error) {
	s, err := in.Session()
	if err != nil {
		return nil, err
	}
	return in.provider.Groups(ctx, s)
}

// LoadRecipients resolves a source into the picker. Criteria reset to
// permissive; surviving selections are kept.
func (in *Inbox) LoadRecipients(ctx context.Context, src recipients.Source) ([]recipients.Entry, error) {
	s, err := in.Session()
	if err != nil {
		return nil, err
	}
	entries, err := in.resolver.Resolve(ctx, s, src)
	if err != nil {
		return nil, err
	}
	in.picker.SetEntries(entries)
	return entries, nil
}

// SetCompose replaces the compose state.
func (in *Inbox) SetCompose(c Compose) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.compose = c
}

// Compose returns the compose state.
func (in *Inbox) Compose() Compose {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.compose
}

// Broadcast dispatches the compose state to the picker's selection. The
// compose items are cleared only when the dispatch succeeds.
func (in *Inbox) Broadcast(ctx context.Context) (provider.BatchAck, error) {
	s, err := in.Session()
	if err != nil {
		return provider.BatchAck{}, err
	}
	compose := in.Compose()
	selected := in.picker.Selected()
	ack, err := in.dispatcher.Send(ctx, s, dispatch.Request{
		Items:         compose.Items,
		Recipients:    recipients.ChannelIDs(selected),
		Timing:        compose.Timing,
		Substitutions: recipients.Substitutions(selected),
	})
	if err != nil {
		return provider.BatchAck{}, err
	}

	in.mu.Lock()
	in.compose.Items = nil
	in.mu.Unlock()
	return ack, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
