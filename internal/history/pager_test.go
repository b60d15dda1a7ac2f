package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/push"
)

var u1 = provider.Session{OwnerID: "U1"}

type fakeFetcher struct {
	mu      sync.Mutex
	history map[string][]provider.Message
	calls   []string
	err     error
	gate    chan struct{}
	started chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{history: make(map[string][]provider.Message)}
}

func (f *fakeFetcher) Messages(_ context.Context, _ provider.Session, channelID string, limit int) ([]provider.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%d", channelID, limit))
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	all := f.history[channelID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]provider.Message(nil), all...), nil
}

func (f *fakeFetcher) block() (gate, started chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.started = make(chan struct{}, 4)
	return f.gate, f.started
}

func (f *fakeFetcher) unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = nil
	f.started = nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func seed(channelID string, n int) []provider.Message {
	out := make([]provider.Message, n)
	for i := range out {
		out[i] = provider.Message{ID: fmt.Sprintf("%s-%03d", channelID, i), ChannelID: channelID, Body: fmt.Sprintf("m%d", i), Timestamp: int64(1000 + i*10)}
	}
	return out
}

func countID(msgs []provider.Message, id string) int {
	n := 0
	for _, m := range msgs {
		if m.ID == id {
			n++
		}
	}
	return n
}

func TestLoadInitialReachedStart(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 80)
	f.history["c3"] = seed("c3", 12)
	p := NewPager(f, 0, nil, nil, nil)

	snap, err := p.LoadInitial(context.Background(), u1, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Messages) != 50 || snap.ReachedStart {
		t.Errorf("c1: len = %d, reachedStart = %v; want 50, false", len(snap.Messages), snap.ReachedStart)
	}
	if snap.Messages[0].ID != "c1-030" || snap.Messages[49].ID != "c1-079" {
		t.Errorf("c1 window = %s..%s", snap.Messages[0].ID, snap.Messages[49].ID)
	}

	snap, err = p.LoadInitial(context.Background(), u1, "c3")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Messages) != 12 || !snap.ReachedStart {
		t.Errorf("c3: len = %d, reachedStart = %v; want 12, true", len(snap.Messages), snap.ReachedStart)
	}
}

func TestLoadMoreExpandsLimit(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 120)
	p := NewPager(f, 50, nil, nil, nil)
	ctx := context.Background()

	if _, err := p.LoadInitial(ctx, u1, "c1"); err != nil {
		t.Fatal(err)
	}
	snap, err := p.LoadMore(ctx, u1, "c1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Limit != 100 || len(snap.Messages) != 100 || snap.ReachedStart {
		t.Errorf("limit/len/reachedStart = %d/%d/%v", snap.Limit, len(snap.Messages), snap.ReachedStart)
	}

	snap, err = p.LoadMore(ctx, u1, "c1", 200)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Messages) != 120 || !snap.ReachedStart {
		t.Errorf("len/reachedStart = %d/%v, want 120/true", len(snap.Messages), snap.ReachedStart)
	}

	calls := f.callCount()
	if _, err := p.LoadMore(ctx, u1, "c1", 0); err != nil {
		t.Fatal(err)
	}
	if f.callCount() != calls {
		t.Error("LoadMore fetched after reaching the start")
	}

	if _, err := p.LoadMore(ctx, u1, "other", 0); !errors.Is(err, ErrNotActive) {
		t.Errorf("LoadMore(inactive) error = %v", err)
	}
}

func TestLoadMoreSingleOutstandingRequest(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 200)
	p := NewPager(f, 50, nil, nil, nil)
	ctx := context.Background()
	if _, err := p.LoadInitial(ctx, u1, "c1"); err != nil {
		t.Fatal(err)
	}

	gate, started := f.block()
	before := f.callCount()

	done := make(chan error, 1)
	go func() {
		_, err := p.LoadMore(ctx, u1, "c1", 0)
		done <- err
	}()
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first LoadMore never fetched")
	}

	if !p.Snapshot().Loading {
		t.Error("Snapshot().Loading = false while fetching")
	}
	if _, err := p.LoadMore(ctx, u1, "c1", 0); !errors.Is(err, ErrInFlight) {
		t.Errorf("second LoadMore error = %v, want ErrInFlight", err)
	}

	close(gate)
	f.unblock()
	if err := <-done; err != nil {
		t.Fatalf("first LoadMore error = %v", err)
	}
	if got := f.callCount() - before; got != 1 {
		t.Errorf("requests issued = %d, want 1", got)
	}
	if p.Snapshot().Loading {
		t.Error("still loading after completion")
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 200)
	f.history["c2"] = seed("c2", 5)
	p := NewPager(f, 50, nil, nil, nil)
	ctx := context.Background()
	if _, err := p.LoadInitial(ctx, u1, "c1"); err != nil {
		t.Fatal(err)
	}

	gate, started := f.block()
	done := make(chan error, 1)
	go func() {
		_, err := p.LoadMore(ctx, u1, "c1", 0)
		done <- err
	}()
	<-started
	f.unblock()

	if _, err := p.LoadInitial(ctx, u1, "c2"); err != nil {
		t.Fatal(err)
	}
	close(gate)

	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("late LoadMore error = %v, want ErrStale", err)
	}
	snap := p.Snapshot()
	if snap.ChannelID != "c2" || len(snap.Messages) != 5 || snap.Err != nil {
		t.Errorf("snapshot = %s/%d/%v, want c2/5/nil", snap.ChannelID, len(snap.Messages), snap.Err)
	}
}

func TestFetchErrorRetainsBuffer(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 100)
	p := NewPager(f, 50, nil, nil, nil)
	ctx := context.Background()
	if _, err := p.LoadInitial(ctx, u1, "c1"); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("timeout")
	f.err = boom
	snap, err := p.LoadMore(ctx, u1, "c1", 0)
	if !errors.Is(err, boom) {
		t.Fatalf("LoadMore error = %v", err)
	}
	if len(snap.Messages) != 50 || snap.Limit != 50 || !errors.Is(snap.Err, boom) {
		t.Errorf("snapshot after failure = len %d limit %d err %v", len(snap.Messages), snap.Limit, snap.Err)
	}

	f.err = nil
	snap, err = p.LoadMore(ctx, u1, "c1", 0)
	if err != nil || snap.Err != nil || len(snap.Messages) != 100 {
		t.Errorf("retry = len %d err %v / %v", len(snap.Messages), err, snap.Err)
	}
}

func TestApplyPushEvents(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 3)
	p := NewPager(f, 50, nil, nil, nil)
	if _, err := p.LoadInitial(context.Background(), u1, "c1"); err != nil {
		t.Fatal(err)
	}

	incoming := provider.Message{ID: "new", ChannelID: "c1", Body: "hello", Timestamp: 5000}
	if !p.Apply(push.NewMessage{ChannelID: "c1", Message: incoming}) {
		t.Fatal("append not applied")
	}
	if p.Apply(push.NewMessage{ChannelID: "c1", Message: incoming}) {
		t.Error("duplicate append applied")
	}
	if p.Apply(push.NewMessage{ChannelID: "c9", Message: provider.Message{ID: "x"}}) {
		t.Error("event for inactive channel applied")
	}

	if !p.Apply(push.MessageEdited{ChannelID: "c1", MessageID: "c1-001", Body: "edited"}) {
		t.Error("edit not applied")
	}
	if !p.Apply(push.MessageDeleted{ChannelID: "c1", MessageID: "c1-000"}) {
		t.Error("delete not applied")
	}
	if p.Apply(push.MessageDeleted{ChannelID: "c1", MessageID: "missing"}) {
		t.Error("delete of missing id applied")
	}

	msgs := p.Snapshot().Messages
	want := []string{"c1-001", "c1-002", "new"}
	if len(msgs) != len(want) {
		t.Fatalf("buffer = %v", msgs)
	}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Errorf("msgs[%d] = %s, want %s", i, msgs[i].ID, id)
		}
	}
	if msgs[0].Body != "edited" {
		t.Errorf("edited body = %q", msgs[0].Body)
	}
}

func TestSentThenFetchedAppearsOnce(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 3)
	p := NewPager(f, 50, nil, nil, nil)
	p.now = func() time.Time { return time.Unix(2000, 0) }
	ctx := context.Background()
	if _, err := p.LoadInitial(ctx, u1, "c1"); err != nil {
		t.Fatal(err)
	}

	pending := p.AddPending("c1", "quote attached")
	if !pending.Pending || countID(p.Snapshot().Messages, pending.ID) != 1 {
		t.Fatal("pending message not buffered")
	}
	confirmed := provider.Message{ID: "srv-1", ChannelID: "c1", Body: "quote attached", FromMe: true, Timestamp: 2001}
	if !p.Confirm(pending.ID, confirmed) {
		t.Fatal("Confirm() = false")
	}

	p.Apply(push.NewMessage{ChannelID: "c1", Message: confirmed})
	f.history["c1"] = append(f.history["c1"], confirmed)
	snap, err := p.LoadInitial(ctx, u1, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if n := countID(snap.Messages, "srv-1"); n != 1 {
		t.Errorf("confirmed message appears %d times", n)
	}
	if n := countID(snap.Messages, pending.ID); n != 0 {
		t.Errorf("pending twin still buffered")
	}
}

func TestPendingReconciledByEcho(t *testing.T) {
	f := newFakeFetcher()
	p := NewPager(f, 50, nil, nil, nil)
	p.now = func() time.Time { return time.Unix(3000, 0) }
	ctx := context.Background()
	if _, err := p.LoadInitial(ctx, u1, "c1"); err != nil {
		t.Fatal(err)
	}

	first := p.AddPending("c1", "hi")
	echo := provider.Message{ID: "srv-9", Body: "hi", FromMe: true, Timestamp: 3002}
	if !p.Apply(push.NewMessage{ChannelID: "c1", Message: echo}) {
		t.Fatal("echo not applied")
	}
	msgs := p.Snapshot().Messages
	if len(msgs) != 1 || msgs[0].ID != "srv-9" {
		t.Fatalf("buffer after echo = %+v", msgs)
	}
	if p.Confirm(first.ID, echo) {
		t.Error("Confirm after echo should find no pending copy")
	}

	second := p.AddPending("c1", "again")
	f.history["c1"] = []provider.Message{{ID: "srv-10", Body: "again", FromMe: true, Timestamp: 3001}, echo}
	snap, err := p.LoadInitial(ctx, u1, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if countID(snap.Messages, second.ID) != 0 || countID(snap.Messages, "srv-10") != 1 || len(snap.Messages) != 2 {
		t.Errorf("fetch did not reconcile pending: %+v", snap.Messages)
	}

	far := provider.Message{ID: "srv-11", Body: "late", FromMe: true, Timestamp: 3000 + ReconcileWindow + 1}
	lonely := p.AddPending("c1", "late")
	p.Apply(push.NewMessage{ChannelID: "c1", Message: far})
	if countID(p.Snapshot().Messages, lonely.ID) != 1 {
		t.Error("echo outside the window reconciled a pending message")
	}
	if !p.Fail(lonely.ID) || countID(p.Snapshot().Messages, lonely.ID) != 0 {
		t.Error("Fail did not remove the pending message")
	}
}

func TestLoadMoreKeepsNewerPushMessages(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 60)
	p := NewPager(f, 50, nil, nil, nil)
	ctx := context.Background()
	if _, err := p.LoadInitial(ctx, u1, "c1"); err != nil {
		t.Fatal(err)
	}

	late := provider.Message{ID: "push-1", Body: "fresh", Timestamp: 99999}
	p.Apply(push.NewMessage{ChannelID: "c1", Message: late})

	snap, err := p.LoadMore(ctx, u1, "c1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if countID(snap.Messages, "push-1") != 1 {
		t.Error("push-delivered message lost on replace")
	}
	if last := snap.Messages[len(snap.Messages)-1]; last.ID != "push-1" {
		t.Errorf("last message = %s, want push-1", last.ID)
	}
	if len(snap.Messages) != 61 {
		t.Errorf("len = %d, want 61", len(snap.Messages))
	}
}

func TestResetMakesFetchStale(t *testing.T) {
	f := newFakeFetcher()
	f.history["c1"] = seed("c1", 10)
	p := NewPager(f, 50, nil, nil, nil)

	gate, started := f.block()
	done := make(chan error, 1)
	go func() {
		_, err := p.LoadInitial(context.Background(), u1, "c1")
		done <- err
	}()
	<-started
	p.Reset()
	close(gate)
	if err := <-done; !errors.Is(err, ErrStale) {
		t.Errorf("error = %v, want ErrStale", err)
	}
	if p.Active() != "" || len(p.Snapshot().Messages) != 0 {
		t.Error("reset pager holds state")
	}
}
