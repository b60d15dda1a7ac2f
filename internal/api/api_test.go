package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/dispatch"
	"github.com/matheus3301/leadchat/internal/history"
	"github.com/matheus3301/leadchat/internal/inbox"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/provider/remote"
	"github.com/matheus3301/leadchat/internal/registry"
	"github.com/matheus3301/leadchat/internal/status"
	"github.com/matheus3301/leadchat/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type stubProvider struct {
	mu      sync.Mutex
	convs   []provider.Conversation
	history map[string][]provider.Message
	linked  []provider.Member
	batches []provider.BatchRequest
	next    int
}

func (p *stubProvider) Conversations(context.Context, provider.Session) ([]provider.Conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.convs), nil
}

func (p *stubProvider) Messages(_ context.Context, _ provider.Session, channelID string, limit int) ([]provider.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := p.history[channelID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return slices.Clone(all), nil
}

func (p *stubProvider) sent(channelID, body string) (provider.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	m := provider.Message{ID: fmt.Sprintf("srv-%d", p.next), ChannelID: channelID, Body: body, FromMe: true, Timestamp: time.Now().Unix()}
	p.history[channelID] = append(p.history[channelID], m)
	return m, nil
}

func (p *stubProvider) SendText(_ context.Context, _ provider.Session, ch, text string) (provider.Message, error) {
	return p.sent(ch, text)
}

func (p *stubProvider) SendMedia(_ context.Context, _ provider.Session, ch string, m provider.Media) (provider.Message, error) {
	return p.sent(ch, m.Caption)
}

func (p *stubProvider) Reply(_ context.Context, _ provider.Session, ch, _, text string) (provider.Message, error) {
	return p.sent(ch, text)
}

func (p *stubProvider) Edit(_ context.Context, _ provider.Session, _, _, body string) (provider.EditResult, error) {
	return provider.EditResult{OK: true, Body: body}, nil
}

func (p *stubProvider) Delete(context.Context, provider.Session, string, string, bool) (bool, error) {
	return true, nil
}

func (p *stubProvider) Forward(_ context.Context, _ provider.Session, _, _, to string) (provider.Message, error) {
	return p.sent(to, "fwd")
}

func (p *stubProvider) Batch(_ context.Context, _ provider.Session, req provider.BatchRequest) (provider.BatchAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, req)
	return provider.BatchAck{JobID: "job-1", Accepted: true, Recipients: len(req.ChatIDs)}, nil
}

func (p *stubProvider) Groups(context.Context, provider.Session) ([]provider.Group, error) {
	return []provider.Group{{ID: "g1", Name: "Hot", Members: p.linked[:1]}}, nil
}

func (p *stubProvider) AllLinked(context.Context, provider.Session) ([]provider.Member, error) {
	return p.linked, nil
}

func (p *stubProvider) Subscribe(ctx context.Context, _ provider.Session) (<-chan provider.RawEvent, func(), error) {
	out := make(chan provider.RawEvent)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, cancel, nil
}

type harness struct {
	client *Client
	stub   *stubProvider
	db     *store.DB
	bus    *bus.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Short path keeps the socket under the 104-char limit on macOS.
	dir, err := os.MkdirTemp("/tmp", "leadchat-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, err := store.Open(filepath.Join(dir, "leadchat.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stub := &stubProvider{
		convs: []provider.Conversation{
			{ChannelID: "c1", Name: "Ana", LastMessage: &provider.LastMessage{Body: "hi", Timestamp: 20}},
			{ChannelID: "c2", Name: "Bruno", UnreadCount: 2, LastMessage: &provider.LastMessage{Body: "yo", Timestamp: 10}},
		},
		history: map[string][]provider.Message{
			"c1": {{ID: "m1", ChannelID: "c1", Body: "hi", Timestamp: 20}},
		},
		linked: []provider.Member{
			{ChannelID: "c1", LinkedRecord: &provider.LinkedRecord{ID: "L1", FirstName: "Ana", Status: "open", Service: "gym"}},
			{ChannelID: "c2", LinkedRecord: &provider.LinkedRecord{ID: "L2", FirstName: "Bruno", Status: "won", Service: "gym"}},
		},
	}

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	in := inbox.New(stub, stub, b, logger, nil, inbox.Options{PageSize: 50})
	if err := in.Open(context.Background(), provider.Session{OwnerID: "U1"}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(in.Close)

	srv := grpc.NewServer()
	RegisterSessionService(srv, NewSessionService("test", "stub", machine, nil, in, db))
	RegisterConversationService(srv, NewConversationService(in, b, logger))
	RegisterMessageService(srv, NewMessageService(in, db))
	RegisterBroadcastService(srv, NewBroadcastService(in, db))

	socket := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(socket)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return &harness{client: c, stub: stub, db: db, bus: b}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func wantCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if got := grpcstatus.Code(err); got != code {
		t.Errorf("code = %s, want %s (err = %v)", got, code, err)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	resp, err := h.client.Status(testCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Session != "test" || resp.Owner != "U1" || resp.State != string(status.Booting) {
		t.Errorf("Status() = %+v", resp)
	}
	if resp.Unread != 2 {
		t.Errorf("Unread = %d, want 2", resp.Unread)
	}
	if resp.Counts == nil {
		t.Error("Counts missing with a local store")
	}

	_, err = h.client.Logout(testCtx(t))
	wantCode(t, err, codes.Unimplemented)
}

func TestConversationsAndSelect(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)

	list, err := h.client.Conversations(ctx, &ListRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Conversations) != 2 || list.Conversations[0].ChannelID != "c1" {
		t.Fatalf("Conversations() = %+v", list.Conversations)
	}

	hist, err := h.client.Select(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if hist.ChannelID != "c1" || len(hist.Messages) != 1 || !hist.ReachedStart {
		t.Errorf("Select() = %+v", hist)
	}

	buffered, err := h.client.History(ctx, "c1")
	if err != nil || len(buffered.Messages) != 1 {
		t.Errorf("History() = %+v, %v", buffered, err)
	}
	_, err = h.client.History(ctx, "c2")
	wantCode(t, err, codes.FailedPrecondition)

	_, err = h.client.Select(ctx, "nope")
	wantCode(t, err, codes.NotFound)

	if _, err := h.client.SetArchived(ctx, "c2", true); err != nil {
		t.Fatal(err)
	}
	list, _ = h.client.Conversations(ctx, &ListRequest{})
	if len(list.Conversations) != 1 {
		t.Errorf("active view = %d conversations, want 1", len(list.Conversations))
	}
	list, _ = h.client.Conversations(ctx, &ListRequest{ShowArchived: true})
	if len(list.Conversations) != 2 || !list.Conversations[1].Archived {
		t.Errorf("archived view = %+v", list.Conversations)
	}
}

func TestSendAndEdit(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)
	if _, err := h.client.Select(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	sent, err := h.client.SendText(ctx, "c1", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if sent.Message.Body != "hello" || sent.Message.IsPending() {
		t.Errorf("SendText() = %+v", sent.Message)
	}

	_, err = h.client.SendText(ctx, "c1", "   ")
	wantCode(t, err, codes.InvalidArgument)

	edit, err := h.client.Edit(ctx, &EditRequest{ChannelID: "c1", MessageID: sent.Message.ID, Body: "hello!"})
	if err != nil || !edit.OK || edit.Body != "hello!" {
		t.Errorf("Edit() = %+v, %v", edit, err)
	}
}

func TestResolveAndDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)

	res, err := h.client.Resolve(ctx, &ResolveRequest{AllLinked: true, Statuses: []string{"open"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || len(res.Recipients) != 1 || res.Recipients[0].ChannelID != "c1" {
		t.Fatalf("Resolve() = %+v", res)
	}
	if !slices.Equal(res.Statuses, []string{"open", "won"}) {
		t.Errorf("Statuses = %v", res.Statuses)
	}

	_, err = h.client.Dispatch(ctx, &DispatchRequest{})
	wantCode(t, err, codes.InvalidArgument)

	ack, err := h.client.Dispatch(ctx, &DispatchRequest{
		Items:    []provider.Item{{Text: "Hi {{firstName}}"}},
		Interval: "1.2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !ack.Ack.Accepted || ack.Ack.Recipients != 1 {
		t.Errorf("Dispatch() = %+v", ack.Ack)
	}
	req := h.stub.batches[len(h.stub.batches)-1]
	if req.IntervalMs != 1200 || !slices.Equal(req.ChatIDs, []string{"c1"}) {
		t.Errorf("batch = %+v", req)
	}

	_, err = h.client.Resolve(ctx, &ResolveRequest{GroupID: "missing"})
	wantCode(t, err, codes.NotFound)
	_, err = h.client.Resolve(ctx, &ResolveRequest{})
	wantCode(t, err, codes.InvalidArgument)
}

func TestImportAndSearch(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)

	resp, err := h.client.ImportRecords(ctx, &ImportRequest{
		Records: []provider.Member{{ChannelID: "a@s.whatsapp.net", LinkedRecord: &provider.LinkedRecord{Name: "Ana"}}},
		Groups: []provider.Group{{ID: "g1", Name: "VIP", Members: []provider.Member{
			{ChannelID: "b@s.whatsapp.net", LinkedRecord: &provider.LinkedRecord{ID: "L2", Name: "Bia"}},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Records != 2 || resp.Groups != 1 {
		t.Errorf("ImportRecords() = %+v", resp)
	}
	rec, err := h.db.RecordFor("a@s.whatsapp.net")
	if err != nil || rec == nil || rec.ID != "a@s.whatsapp.net" {
		t.Errorf("RecordFor() = %+v, %v", rec, err)
	}

	if err := h.db.UpsertMessage(&store.Message{ChatJID: "a@s.whatsapp.net", MsgID: "x1", Body: "promo de academia", Timestamp: 5}); err != nil {
		t.Fatal(err)
	}
	found, err := h.client.Search(ctx, &SearchRequest{Query: "academia"})
	if err != nil {
		t.Fatal(err)
	}
	if len(found.Results) != 1 || found.Results[0].Message.ID != "x1" {
		t.Errorf("Search() = %+v", found.Results)
	}
	_, err = h.client.Search(ctx, &SearchRequest{Query: " "})
	wantCode(t, err, codes.InvalidArgument)
}

func TestWatchStreamsRegistryChanges(t *testing.T) {
	h := newHarness(t)
	ctx := testCtx(t)

	before := h.bus.Subscribers()
	stream, err := h.client.Watch(ctx, "registry.")
	if err != nil {
		t.Fatal(err)
	}
	// The stream is live once the server has subscribed.
	deadline := time.Now().Add(2 * time.Second)
	for h.bus.Subscribers() <= before {
		if time.Now().After(deadline) {
			t.Fatal("watch never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.bus.Emit(bus.KindHistoryChanged, history.Change{ChannelID: "c1"})
	h.bus.Emit(bus.KindRegistryChanged, registry.Change{ChannelID: "c1", Reason: "test"})

	evt, err := stream.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != bus.KindRegistryChanged || string(evt.Payload) != `{"channelId":"c1","reason":"test"}` {
		t.Errorf("event = %s %s", evt.Kind, evt.Payload)
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("wrap: %w", dispatch.ErrNoRecipients), codes.InvalidArgument},
		{fmt.Errorf("%w: c9", registry.ErrUnknownConversation), codes.NotFound},
		{inbox.ErrNoSession, codes.FailedPrecondition},
		{history.ErrInFlight, codes.Aborted},
		{history.ErrStale, codes.Canceled},
		{&remote.StatusError{Code: 401}, codes.Unauthenticated},
		{fmt.Errorf("load: %w", &remote.StatusError{Code: 502}), codes.Internal},
		{errors.New("boom"), codes.Internal},
		{grpcstatus.Error(codes.Unavailable, "x"), codes.Unavailable},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}
