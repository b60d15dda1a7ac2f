// Package registry holds the ordered, deduplicated list of conversations for
// one owner and merges push events into it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/push"
)

// ErrUnknownConversation is returned for channel ids the registry has never loaded.
var ErrUnknownConversation = errors.New("unknown conversation")

// Lister fetches the authoritative conversation list.
type Lister interface {
	Conversations(ctx context.Context, s provider.Session) ([]provider.Conversation, error)
}

// View selects which conversations List returns.
type View struct {
	Filter       string
	ShowArchived bool
}

// Snapshot is a copy of the registry state.
type Snapshot struct {
	Conversations []provider.Conversation
	Active        string
	LoadedAt      time.Time
	Err           error
}

// Change is the payload of registry.changed events.
type Change struct {
	ChannelID string `json:"channelId"`
	Reason    string `json:"reason"`
}

// Registry is the single mutable source of conversation order and unread
// counters. Order is most-recent-first.
type Registry struct {
	source  Lister
	bus     *bus.Bus
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	order    []string
	byID     map[string]*provider.Conversation
	active   string
	loadedAt time.Time
	err      error
}

// New creates an empty registry.
func New(source Lister, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		source:  source,
		bus:     b,
		logger:  logger,
		metrics: m,
		byID:    make(map[string]*provider.Conversation),
	}
}

// Load replaces the state with an authoritative list. Duplicate channel ids
// collapse to their first occurrence.
func (r *Registry) Load(list []provider.Conversation) {
	convs := make([]provider.Conversation, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, c := range list {
		if c.ChannelID == "" || seen[c.ChannelID] {
			continue
		}
		seen[c.ChannelID] = true
		if c.UnreadCount < 0 {
			c.UnreadCount = 0
		}
		if c.LastMessage != nil {
			last := *c.LastMessage
			c.LastMessage = &last
		}
		convs = append(convs, c)
	}
	slices.SortStableFunc(convs, func(a, b provider.Conversation) int {
		switch ta, tb := a.LastTimestamp(), b.LastTimestamp(); {
		case ta > tb:
			return -1
		case ta < tb:
			return 1
		}
		return 0
	})

	r.mu.Lock()
	r.order = make([]string, len(convs))
	r.byID = make(map[string]*provider.Conversation, len(convs))
	for i := range convs {
		c := convs[i]
		if c.ChannelID == r.active {
			c.UnreadCount = 0
		}
		r.order[i] = c.ChannelID
		r.byID[c.ChannelID] = &c
	}
	r.loadedAt = time.Now()
	r.err = nil
	r.mu.Unlock()

	r.changed("", "load")
}

// Refresh fetches the list from the provider and loads it. On failure the
// previous state is kept and the error is recorded in the snapshot.
func (r *Registry) Refresh(ctx context.Context, s provider.Session) error {
	list, err := r.source.Conversations(ctx, s)
	if err != nil {
		err = fmt.Errorf("load conversations for %s: %w", s.OwnerID, err)
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		r.logger.Warn("conversation refresh failed", zap.Error(err))
		r.changed("", "error")
		return err
	}
	r.Load(list)
	return nil
}

// Apply merges one push event. It returns false when the event did not change
// the registry, including every event for an unknown channel.
func (r *Registry) Apply(evt push.Event) bool {
	switch e := evt.(type) {
	case push.NewMessage:
		return r.applyMessage(e)
	case push.MessageEdited:
		return r.applyEdit(e)
	case push.ArchiveChanged:
		return r.SetArchived(e.ChannelID, e.Archived) == nil
	default:
		return false
	}
}

func (r *Registry) applyMessage(e push.NewMessage) bool {
	r.mu.Lock()
	c, ok := r.byID[e.ChannelID]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("push for unknown conversation dropped", zap.String("channel", e.ChannelID))
		return false
	}
	c.LastMessage = &provider.LastMessage{
		ID:        e.Message.ID,
		Body:      e.Message.Body,
		Timestamp: e.Message.Timestamp,
		FromMe:    e.Message.FromMe,
	}
	if e.ChannelID != r.active {
		c.UnreadCount++
	}
	r.moveToHeadLocked(e.ChannelID)
	r.mu.Unlock()

	r.changed(e.ChannelID, "message")
	return true
}

func (r *Registry) applyEdit(e push.MessageEdited) bool {
	r.mu.Lock()
	c, ok := r.byID[e.ChannelID]
	if !ok || c.LastMessage == nil || c.LastMessage.ID == "" || c.LastMessage.ID != e.MessageID {
		r.mu.Unlock()
		return false
	}
	c.LastMessage.Body = e.Body
	r.mu.Unlock()

	r.changed(e.ChannelID, "edit")
	return true
}

func (r *Registry) moveToHeadLocked(channelID string) {
	i := slices.Index(r.order, channelID)
	if i <= 0 {
		return
	}
	copy(r.order[1:i+1], r.order[:i])
	r.order[0] = channelID
}

// Select makes the conversation active and resets its unread counter. The
// order is not changed.
func (r *Registry) Select(channelID string) error {
	r.mu.Lock()
	c, ok := r.byID[channelID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConversation, channelID)
	}
	r.active = channelID
	c.UnreadCount = 0
	r.mu.Unlock()

	r.changed(channelID, "select")
	return nil
}

// Deselect clears the active conversation.
func (r *Registry) Deselect() {
	r.mu.Lock()
	r.active = ""
	r.mu.Unlock()
	r.changed("", "deselect")
}

// Active returns the active channel id, or "".
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetArchived moves a conversation in or out of the archived partition.
func (r *Registry) SetArchived(channelID string, archived bool) error {
	r.mu.Lock()
	c, ok := r.byID[channelID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConversation, channelID)
	}
	if c.Archived == archived {
		r.mu.Unlock()
		return nil
	}
	c.Archived = archived
	r.mu.Unlock()

	r.changed(channelID, "archive")
	return nil
}

// Get returns a copy of one conversation.
func (r *Registry) Get(channelID string) (provider.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[channelID]
	if !ok {
		return provider.Conversation{}, false
	}
	return clone(c), true
}

// List returns conversations in order. Archived entries appear only when
// ShowArchived is set or when a non-empty filter matches them.
func (r *Registry) List(v View) []provider.Conversation {
	filter := strings.ToLower(strings.TrimSpace(v.Filter))

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.Conversation, 0, len(r.order))
	for _, id := range r.order {
		c := r.byID[id]
		if filter != "" && !matches(c, filter) {
			continue
		}
		if c.Archived && !v.ShowArchived && filter == "" {
			continue
		}
		out = append(out, clone(c))
	}
	return out
}

// Archived returns only the archived partition, in order.
func (r *Registry) Archived() []provider.Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []provider.Conversation
	for _, id := range r.order {
		if c := r.byID[id]; c.Archived {
			out = append(out, clone(c))
		}
	}
	return out
}

// Snapshot returns the full ordered state, archived entries included.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	convs := make([]provider.Conversation, len(r.order))
	for i, id := range r.order {
		convs[i] = clone(r.byID[id])
	}
	return Snapshot{
		Conversations: convs,
		Active:        r.active,
		LoadedAt:      r.loadedAt,
		Err:           r.err,
	}
}

// Unread returns the sum of unread counters.
func (r *Registry) Unread() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, c := range r.byID {
		total += c.UnreadCount
	}
	return total
}

func (r *Registry) changed(channelID, reason string) {
	r.mu.RLock()
	count := len(r.order)
	r.mu.RUnlock()
	r.metrics.SetConversations(count, r.Unread())
	r.bus.Emit(bus.KindRegistryChanged, Change{ChannelID: channelID, Reason: reason})
}

func matches(c *provider.Conversation, filter string) bool {
	return strings.Contains(strings.ToLower(c.Name), filter) ||
		strings.Contains(strings.ToLower(c.ChannelID), filter)
}

func clone(c *provider.Conversation) provider.Conversation {
	out := *c
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	return out
}
