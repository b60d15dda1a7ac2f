package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/leadchat/internal/provider"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     provider.RawEvent
		want    Event
		wantErr bool
	}{
		{
			name: "kindless frame is a new message",
			raw:  provider.RawEvent{ChannelID: "c1", Message: json.RawMessage(`{"body":"hi"}`)},
			want: NewMessage{ChannelID: "c1", Message: provider.Message{ChannelID: "c1", Body: "hi", Type: provider.KindText}},
		},
		{
			name: "explicit new message with type",
			raw:  provider.RawEvent{Kind: "newMessage", ChannelID: "c1", Message: json.RawMessage(`{"id":"m1","body":"","type":"ptt","hasMedia":true}`)},
			want: NewMessage{ChannelID: "c1", Message: provider.Message{ID: "m1", ChannelID: "c1", Type: provider.KindAudio, HasMedia: true}},
		},
		{
			name: "edited",
			raw:  provider.RawEvent{Kind: "messageEdited", ChannelID: "c1", Message: json.RawMessage(`{"id":"m1","body":"fixed"}`)},
			want: MessageEdited{ChannelID: "c1", MessageID: "m1", Body: "fixed"},
		},
		{
			name: "deleted",
			raw:  provider.RawEvent{Kind: "messageDeleted", ChannelID: "c1", Message: json.RawMessage(`{"id":"m1"}`)},
			want: MessageDeleted{ChannelID: "c1", MessageID: "m1"},
		},
		{
			name: "archived",
			raw:  provider.RawEvent{Kind: "archived", ChannelID: "c1", Message: json.RawMessage(`{"archived":true}`)},
			want: ArchiveChanged{ChannelID: "c1", Archived: true},
		},
		{name: "missing channel", raw: provider.RawEvent{Message: json.RawMessage(`{"body":"hi"}`)}, wantErr: true},
		{name: "no kind no message", raw: provider.RawEvent{ChannelID: "c1"}, wantErr: true},
		{name: "null message", raw: provider.RawEvent{ChannelID: "c1", Message: json.RawMessage(`null`)}, wantErr: true},
		{name: "unknown kind", raw: provider.RawEvent{Kind: "typing", ChannelID: "c1"}, wantErr: true},
		{name: "bad json", raw: provider.RawEvent{ChannelID: "c1", Message: json.RawMessage(`{"body":`)}, wantErr: true},
		{name: "edit without id", raw: provider.RawEvent{Kind: "messageEdited", ChannelID: "c1", Message: json.RawMessage(`{"body":"x"}`)}, wantErr: true},
		{name: "archived without flag", raw: provider.RawEvent{Kind: "archived", ChannelID: "c1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidEvent) {
					t.Fatalf("Decode() error = %v, want ErrInvalidEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

type fakeSource struct {
	mu      sync.Mutex
	subs    map[string]chan provider.RawEvent
	opened  int
	closed  int
	failErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[string]chan provider.RawEvent)}
}

func (f *fakeSource) Subscribe(_ context.Context, s provider.Session) (<-chan provider.RawEvent, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, nil, f.failErr
	}
	ch := make(chan provider.RawEvent, 16)
	f.subs[s.OwnerID] = ch
	f.opened++
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.closed++
			delete(f.subs, s.OwnerID)
			close(ch)
		})
	}, nil
}

func (f *fakeSource) send(owner string, raw provider.RawEvent) {
	f.mu.Lock()
	ch := f.subs[owner]
	f.mu.Unlock()
	ch <- raw
}

func (f *fakeSource) counts() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.closed
}

type recorder struct {
	name  string
	mu    *sync.Mutex
	trace *[]string
}

func (r recorder) Apply(e Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.trace = append(*r.trace, r.name+":"+e.Channel())
	return true
}

func TestBridgeDeliversToSinksInOrder(t *testing.T) {
	src := newFakeSource()
	var mu sync.Mutex
	var trace []string
	got := make(chan struct{}, 4)
	b := NewBridge(src, nil, nil,
		recorder{name: "registry", mu: &mu, trace: &trace},
		recorder{name: "pager", mu: &mu, trace: &trace},
		SinkFunc(func(Event) bool { got <- struct{}{}; return false }),
	)

	if err := b.Activate(context.Background(), provider.Session{OwnerID: "U1"}); err != nil {
		t.Fatal(err)
	}
	defer b.Deactivate()

	src.send("U1", provider.RawEvent{ChannelID: "c1", Message: json.RawMessage(`{"body":"a"}`)})
	src.send("U1", provider.RawEvent{ChannelID: ""})
	src.send("U1", provider.RawEvent{ChannelID: "c2", Message: json.RawMessage(`{"body":"b"}`)})

	for range 2 {
		select {
		case <-got:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"registry:c1", "pager:c1", "registry:c2", "pager:c2"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, trace[i], want[i])
		}
	}
}

func TestBridgeSingleSubscriptionPerOwner(t *testing.T) {
	src := newFakeSource()
	b := NewBridge(src, nil, nil)

	ctx := context.Background()
	if err := b.Activate(ctx, provider.Session{OwnerID: "U1"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Activate(ctx, provider.Session{OwnerID: "U1"}); err != nil {
		t.Fatal(err)
	}
	if opened, _ := src.counts(); opened != 1 {
		t.Errorf("opened = %d, want 1 after re-activating same owner", opened)
	}

	if err := b.Activate(ctx, provider.Session{OwnerID: "U2"}); err != nil {
		t.Fatal(err)
	}
	opened, closed := src.counts()
	if opened != 2 || closed != 1 {
		t.Errorf("opened/closed = %d/%d, want 2/1 after switching owner", opened, closed)
	}
	if b.Owner() != "U2" {
		t.Errorf("Owner() = %q, want U2", b.Owner())
	}

	b.Deactivate()
	if _, closed := src.counts(); closed != 2 {
		t.Errorf("closed = %d, want 2 after Deactivate", closed)
	}
	if b.Owner() != "" {
		t.Errorf("Owner() = %q after Deactivate", b.Owner())
	}
	b.Deactivate()
}

func TestBridgeActivateErrors(t *testing.T) {
	src := newFakeSource()
	b := NewBridge(src, nil, nil)
	if err := b.Activate(context.Background(), provider.Session{}); !errors.Is(err, ErrNoSession) {
		t.Errorf("Activate(empty) error = %v, want ErrNoSession", err)
	}

	boom := errors.New("boom")
	src.failErr = boom
	if err := b.Activate(context.Background(), provider.Session{OwnerID: "U1"}); !errors.Is(err, boom) {
		t.Errorf("Activate() error = %v, want wrapped boom", err)
	}
	if b.Owner() != "" {
		t.Errorf("Owner() = %q after failed activation", b.Owner())
	}
}
