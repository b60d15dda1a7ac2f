package push

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
)

// Sink consumes validated events. Apply reports whether the event changed
// the sink's state.
type Sink interface {
	Apply(Event) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) bool

// Apply calls f.
func (f SinkFunc) Apply(e Event) bool { return f(e) }

// ErrNoSession is returned when activating without an owner id.
var ErrNoSession = errors.New("push: session has no owner id")

// Bridge keeps at most one push subscription alive and fans its events out
// to the sinks, in order, from a single goroutine.
type Bridge struct {
	source  provider.PushSource
	sinks   []Sink
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	owner  string
	cancel func()
	done   chan struct{}
}

// NewBridge creates a bridge. Sinks are called in the order given.
func NewBridge(source provider.PushSource, logger *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		source:  source,
		sinks:   sinks,
		logger:  logger,
		metrics: m,
	}
}

// Activate subscribes for the session's owner. Activating the owner that is
// already subscribed is a no-op; a different owner replaces the subscription.
func (b *Bridge) Activate(ctx context.Context, s provider.Session) error {
	if !s.Valid() {
		return ErrNoSession
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.owner == s.OwnerID && b.runningLocked() {
		return nil
	}
	b.teardownLocked()

	subCtx, cancelCtx := context.WithCancel(context.WithoutCancel(ctx))
	events, unsubscribe, err := b.source.Subscribe(subCtx, s)
	if err != nil {
		cancelCtx()
		return fmt.Errorf("subscribe push channel for %s: %w", s.OwnerID, err)
	}

	done := make(chan struct{})
	b.owner = s.OwnerID
	b.cancel = func() {
		unsubscribe()
		cancelCtx()
	}
	b.done = done

	go b.run(s.OwnerID, events, done)
	b.logger.Info("push bridge activated", zap.String("owner", s.OwnerID))
	return nil
}

// Deactivate tears the subscription down and waits for the delivery goroutine.
func (b *Bridge) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

// Owner returns the owner id of the live subscription, or "".
func (b *Bridge) Owner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.runningLocked() {
		return ""
	}
	return b.owner
}

func (b *Bridge) runningLocked() bool {
	if b.done == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

func (b *Bridge) teardownLocked() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.done != nil {
		<-b.done
		b.logger.Info("push bridge deactivated", zap.String("owner", b.owner))
	}
	b.owner = ""
	b.cancel = nil
	b.done = nil
}

func (b *Bridge) run(owner string, events <-chan provider.RawEvent, done chan struct{}) {
	defer close(done)
	for raw := range events {
		b.deliver(owner, raw)
	}
}

func (b *Bridge) deliver(owner string, raw provider.RawEvent) {
	evt, err := Decode(raw)
	if err != nil {
		b.metrics.PushEvent(raw.Kind, "invalid")
		b.logger.Warn("dropping push frame", zap.String("owner", owner), zap.Error(err))
		return
	}

	applied := false
	for _, sink := range b.sinks {
		if sink.Apply(evt) {
			applied = true
		}
	}
	outcome := "ignored"
	if applied {
		outcome = "applied"
	}
	b.metrics.PushEvent(evt.Kind(), outcome)
}
