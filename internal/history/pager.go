// Package history pages conversation history backwards for the active
// conversation and keeps the buffer consistent with push events and
// optimistic sends.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/push"
)

// DefaultPageSize is the number of messages fetched by LoadInitial.
const DefaultPageSize = 50

// ReconcileWindow is the maximum timestamp distance, in seconds, between a
// pending message and the provider echo that confirms it.
const ReconcileWindow = 120

var (
	// ErrInFlight is returned when a fetch for the channel is already outstanding.
	ErrInFlight = errors.New("history fetch already in flight")
	// ErrStale is returned when the active channel changed while fetching.
	ErrStale = errors.New("history result is stale")
	// ErrNotActive is returned by LoadMore for a channel that is not active.
	ErrNotActive = errors.New("channel is not the active conversation")
)

// Fetcher returns the most recent messages of a channel, ascending.
type Fetcher interface {
	Messages(ctx context.Context, s provider.Session, channelID string, limit int) ([]provider.Message, error)
}

// Snapshot is a copy of the pager state.
type Snapshot struct {
	ChannelID    string
	Messages     []provider.Message
	ReachedStart bool
	Loading      bool
	Limit        int
	Err          error
}

// Change is the payload of history.changed events.
type Change struct {
	ChannelID string `json:"channelId"`
	Reason    string `json:"reason"`
}

// Pager holds the message buffer of the active conversation.
type Pager struct {
	source   Fetcher
	pageSize int
	bus      *bus.Bus
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu           sync.Mutex
	gen          uint64
	active       string
	msgs         []provider.Message
	limit        int
	reachedStart bool
	err          error
	inFlight     map[string]uint64
	nextToken    uint64
}

// NewPager creates a pager. pageSize <= 0 selects DefaultPageSize.
func NewPager(source Fetcher, pageSize int, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{
		source:   source,
		pageSize: pageSize,
		bus:      b,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
		inFlight: make(map[string]uint64),
	}
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int {
	return p.pageSize
}

// LoadInitial activates channelID and fetches its most recent page.
func (p *Pager) LoadInitial(ctx context.Context, s provider.Session, channelID string) (Snapshot, error) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if p.active != channelID {
		p.msgs = nil
	}
	p.active = channelID
	p.limit = p.pageSize
	p.reachedStart = false
	p.err = nil
	token := p.beginLocked(channelID)
	limit := p.limit
	p.mu.Unlock()
	p.changed(channelID, "loading")

	return p.fetch(ctx, s, "initial", channelID, limit, gen, token)
}

// LoadMore re-fetches the active channel with a larger limit and replaces the
// buffer. expandedLimit at or below the current limit grows it by one page.
// A second call while one is outstanding returns ErrInFlight without fetching.
func (p *Pager) LoadMore(ctx context.Context, s provider.Session, channelID string, expandedLimit int) (Snapshot, error) {
	p.mu.Lock()
	if channelID != p.active {
		p.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotActive, channelID)
	}
	if _, busy := p.inFlight[channelID]; busy {
		p.mu.Unlock()
		p.metrics.HistoryRequest("more", "in_flight")
		return p.Snapshot(), ErrInFlight
	}
	if p.reachedStart {
		p.mu.Unlock()
		return p.Snapshot(), nil
	}
	limit := expandedLimit
	if limit <= p.limit {
		limit = p.limit + p.pageSize
	}
	gen := p.gen
	token := p.beginLocked(channelID)
	p.mu.Unlock()
	p.changed(channelID, "loading")

	return p.fetch(ctx, s, "more", channelID, limit, gen, token)
}

func (p *Pager) beginLocked(channelID string) uint64 {
	p.nextToken++
	p.inFlight[channelID] = p.nextToken
	return p.nextToken
}

func (p *Pager) endLocked(channelID string, token uint64) {
	if p.inFlight[channelID] == token {
		delete(p.inFlight, channelID)
	}
}

func (p *Pager) fetch(ctx context.Context, s provider.Session, op, channelID string, limit int, gen, token uint64) (Snapshot, error) {
	fetched, err := p.source.Messages(ctx, s, channelID, limit)

	p.mu.Lock()
	p.endLocked(channelID, token)
	if gen != p.gen || channelID != p.active {
		p.mu.Unlock()
		p.metrics.HistoryRequest(op, "stale")
		p.logger.Debug("discarding stale history result", zap.String("channel", channelID))
		return Snapshot{}, ErrStale
	}
	if err != nil {
		err = fmt.Errorf("load messages for %s: %w", channelID, err)
		p.err = err
		snap := p.snapshotLocked()
		p.mu.Unlock()
		p.metrics.HistoryRequest(op, "error")
		p.logger.Warn("history fetch failed", zap.String("channel", channelID), zap.Error(err))
		p.changed(channelID, "error")
		return snap, err
	}
	p.limit = limit
	p.reachedStart = len(fetched) < limit
	p.err = nil
	p.msgs = merge(fetched, p.msgs, channelID)
	snap := p.snapshotLocked()
	p.mu.Unlock()

	p.metrics.HistoryRequest(op, "ok")
	p.changed(channelID, op)
	return snap, nil
}

// merge combines a fetched window with the current buffer. Messages newer
// than the window that it does not contain, and pending messages that no
// fetched message confirms, survive the replace.
func merge(fetched, current []provider.Message, channelID string) []provider.Message {
	out := make([]provider.Message, 0, len(fetched)+len(current))
	ids := make(map[string]bool, len(fetched))
	for _, m := range fetched {
		if m.ID != "" && ids[m.ID] {
			continue
		}
		if m.ID != "" {
			ids[m.ID] = true
		}
		if m.ChannelID == "" {
			m.ChannelID = channelID
		}
		out = append(out, m)
	}

	var newest int64
	if len(fetched) > 0 {
		newest = fetched[len(fetched)-1].Timestamp
	}
	claimed := make(map[int]bool)
	for _, m := range current {
		if m.IsPending() {
			if i := findEcho(out, m, claimed); i >= 0 {
				claimed[i] = true
				continue
			}
			out = append(out, m)
			continue
		}
		if m.ID != "" && ids[m.ID] {
			continue
		}
		if len(fetched) == 0 || m.Timestamp >= newest {
			if m.ID != "" {
				ids[m.ID] = true
			}
			out = append(out, m)
		}
	}

	slices.SortStableFunc(out, func(a, b provider.Message) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	return out
}

// findEcho returns the index of a confirmed message that matches the pending
// one by content and timestamp, skipping indexes already claimed.
func findEcho(msgs []provider.Message, pending provider.Message, claimed map[int]bool) int {
	for i, m := range msgs {
		if claimed[i] || m.IsPending() {
			continue
		}
		if isEcho(m, pending) {
			return i
		}
	}
	return -1
}

func isEcho(confirmed, pending provider.Message) bool {
	if !confirmed.FromMe || confirmed.Body != pending.Body {
		return false
	}
	d := confirmed.Timestamp - pending.Timestamp
	return d <= ReconcileWindow && d >= -ReconcileWindow
}

// Apply merges a push event for the active channel. Events for other
// channels are ignored.
func (p *Pager) Apply(evt push.Event) bool {
	p.mu.Lock()
	if evt.Channel() != p.active || p.active == "" {
		p.mu.Unlock()
		return false
	}

	var applied bool
	var reason string
	switch e := evt.(type) {
	case push.NewMessage:
		applied, reason = p.appendLocked(e.Message), "append"
	case push.MessageEdited:
		if i := p.indexLocked(e.MessageID); i >= 0 {
			p.msgs[i].Body = e.Body
			applied, reason = true, "edit"
		}
	case push.MessageDeleted:
		if i := p.indexLocked(e.MessageID); i >= 0 {
			p.msgs = slices.Delete(p.msgs, i, i+1)
			applied, reason = true, "delete"
		}
	}
	channelID := p.active
	p.mu.Unlock()

	if applied {
		p.changed(channelID, reason)
	}
	return applied
}

func (p *Pager) appendLocked(m provider.Message) bool {
	if m.ID != "" && p.indexLocked(m.ID) >= 0 {
		return false
	}
	if m.ID == "" {
		for _, existing := range p.msgs {
			if existing.Timestamp == m.Timestamp && existing.Body == m.Body && existing.FromMe == m.FromMe {
				return false
			}
		}
	}
	if m.FromMe {
		for i, existing := range p.msgs {
			if existing.IsPending() && isEcho(m, existing) {
				p.msgs[i] = m
				return true
			}
		}
	}
	p.insertLocked(m)
	return true
}

// insertLocked places m after every message with a timestamp <= its own.
func (p *Pager) insertLocked(m provider.Message) {
	i := len(p.msgs)
	for i > 0 && p.msgs[i-1].Timestamp > m.Timestamp {
		i--
	}
	p.msgs = slices.Insert(p.msgs, i, m)
}

func (p *Pager) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(p.msgs, func(m provider.Message) bool { return m.ID == id })
}

// AddPending appends an optimistic copy of an outgoing text message and
// returns it. The copy is only buffered when channelID is active.
func (p *Pager) AddPending(channelID, body string) provider.Message {
	m := provider.Message{
		ID:        provider.PendingPrefix + uuid.NewString(),
		ChannelID: channelID,
		Body:      body,
		FromMe:    true,
		Timestamp: p.now().Unix(),
		Type:      provider.KindText,
		Pending:   true,
	}
	p.mu.Lock()
	buffered := channelID == p.active
	if buffered {
		p.insertLocked(m)
	}
	p.mu.Unlock()
	if buffered {
		p.changed(channelID, "pending")
	}
	return m
}

// Confirm replaces a pending message with its confirmed version. When the
// confirmed id is already buffered the pending copy is dropped instead.
func (p *Pager) Confirm(pendingID string, confirmed provider.Message) bool {
	p.mu.Lock()
	i := p.indexLocked(pendingID)
	if i < 0 {
		p.mu.Unlock()
		return false
	}
	confirmed.Pending = false
	if confirmed.ChannelID == "" {
		confirmed.ChannelID = p.msgs[i].ChannelID
	}
	if p.indexLocked(confirmed.ID) >= 0 {
		p.msgs = slices.Delete(p.msgs, i, i+1)
	} else {
		p.msgs[i] = confirmed
	}
	channelID := p.active
	p.mu.Unlock()
	p.changed(channelID, "confirm")
	return true
}

// Fail removes a pending message whose send failed.
func (p *Pager) Fail(pendingID string) bool {
	p.mu.Lock()
	i := p.indexLocked(pendingID)
	if i < 0 {
		p.mu.Unlock()
		return false
	}
	p.msgs = slices.Delete(p.msgs, i, i+1)
	channelID := p.active
	p.mu.Unlock()
	p.changed(channelID, "fail")
	return true
}

// Reset deactivates the pager. Outstanding fetches become stale.
func (p *Pager) Reset() {
	p.mu.Lock()
	p.gen++
	p.active = ""
	p.msgs = nil
	p.limit = 0
	p.reachedStart = false
	p.err = nil
	p.mu.Unlock()
	p.changed("", "reset")
}

// Active returns the active channel id.
func (p *Pager) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Snapshot returns a copy of the buffer and its flags.
func (p *Pager) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pager) snapshotLocked() Snapshot {
	_, loading := p.inFlight[p.active]
	return Snapshot{
		ChannelID:    p.active,
		Messages:     slices.Clone(p.msgs),
		ReachedStart: p.reachedStart,
		Loading:      loading,
		Limit:        p.limit,
		Err:          p.err,
	}
}

func (p *Pager) changed(channelID, reason string) {
	p.bus.Emit(bus.KindHistoryChanged, Change{ChannelID: channelID, Reason: reason})
}
