package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func nextRaw(t *testing.T, ch <-chan bus.Event) provider.RawEvent {
	t.Helper()
	select {
	case evt := <-ch:
		raw, ok := evt.Payload.(provider.RawEvent)
		if !ok {
			t.Fatalf("payload = %T, want provider.RawEvent", evt.Payload)
		}
		return raw
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for provider event")
	}
	return provider.RawEvent{}
}

func TestEngineIngestMessage(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	upserts, unsub := b.Subscribe("message.", 10)
	defer unsub()
	pushes, unsubPush := b.Subscribe("provider.", 10)
	defer unsubPush()

	msg := &store.Message{
		ChatJID: "chat@s.whatsapp.net", MsgID: "m1", Body: "hello",
		MessageType: "text", Timestamp: 1000,
	}
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}

	chat, err := db.GetChat("chat@s.whatsapp.net")
	if err != nil {
		t.Fatal(err)
	}
	if chat == nil || chat.UnreadCount != 1 || chat.LastMessagePreview != "hello" {
		t.Fatalf("chat = %+v, want unread 1 preview hello", chat)
	}

	msgs, err := db.LatestMessages("chat@s.whatsapp.net", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "hello" {
		t.Errorf("got %d messages, want 1 with body=hello", len(msgs))
	}

	select {
	case evt := <-upserts:
		if evt.Kind != bus.KindMessageUpserted {
			t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindMessageUpserted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message.upserted event")
	}

	raw := nextRaw(t, pushes)
	if raw.Kind != provider.EventNewMessage || raw.ChannelID != "chat@s.whatsapp.net" {
		t.Errorf("raw = %+v", raw)
	}
	var pm provider.Message
	if err := json.Unmarshal(raw.Message, &pm); err != nil {
		t.Fatal(err)
	}
	if pm.ID != "m1" || pm.Body != "hello" || pm.Timestamp != 1000 {
		t.Errorf("pushed message = %+v", pm)
	}
}

func TestEngineIngestMessageIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	msg := &store.Message{
		ChatJID: "chat@s", MsgID: "m1", Body: "v1",
		MessageType: "text", Timestamp: 1000,
	}
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Body = "v2"
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.LatestMessages("chat@s", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Body != "v2" {
		t.Errorf("body = %q, want v2 (updated)", msgs[0].Body)
	}
}

func TestEngineIngestHistoryBatch(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()
	pushes, unsubPush := b.Subscribe("provider.", 10)
	defer unsubPush()

	msgs := []*store.Message{
		{ChatJID: "a@s", MsgID: "m1", Body: "one", MessageType: "text", Timestamp: 1000, Status: "received"},
		{ChatJID: "a@s", MsgID: "m2", Body: "two", MessageType: "text", Timestamp: 2000, Status: "received"},
		{ChatJID: "b@g.us", MsgID: "m3", Body: "three", MessageType: "text", Timestamp: 3000, Status: "received"},
	}

	if err := e.IngestHistoryBatch(msgs); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}
	if chats[0].JID != "b@g.us" || !chats[0].IsGroup {
		t.Errorf("first chat = %+v, want group b@g.us", chats[0])
	}
	if chats[1].LastMessageID != "m2" {
		t.Errorf("a@s last message = %q, want m2", chats[1].LastMessageID)
	}

	msgsA, _ := db.LatestMessages("a@s", 10)
	msgsB, _ := db.LatestMessages("b@g.us", 10)
	if len(msgsA) != 2 || len(msgsB) != 1 {
		t.Errorf("got %d+%d messages, want 2+1", len(msgsA), len(msgsB))
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindHistorySynced {
			t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindHistorySynced)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for sync.history_batch event")
	}

	select {
	case evt := <-pushes:
		t.Errorf("history must not be pushed, got %+v", evt)
	default:
	}
}

func TestEngineHistoryBatchIdempotent(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	msgs := []*store.Message{
		{ChatJID: "a@s", MsgID: "m1", Body: "hello", MessageType: "text", Timestamp: 1000, Status: "received"},
	}
	if err := e.IngestHistoryBatch(msgs); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestHistoryBatch(msgs); err != nil {
		t.Fatal(err)
	}

	stored, _ := db.LatestMessages("a@s", 10)
	if len(stored) != 1 {
		t.Errorf("got %d messages, want 1 (idempotent batch)", len(stored))
	}
}

func TestEngineEditRevokeArchive(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	if err := e.IngestMessage(&store.Message{ChatJID: "c@s", MsgID: "m1", Body: "typo", Timestamp: 10}); err != nil {
		t.Fatal(err)
	}

	pushes, unsub := b.Subscribe("provider.", 10)
	defer unsub()

	if err := e.ApplyEdit("c@s", "m1", "fixed"); err != nil {
		t.Fatal(err)
	}
	raw := nextRaw(t, pushes)
	if raw.Kind != provider.EventMessageEdited {
		t.Errorf("kind = %q, want %s", raw.Kind, provider.EventMessageEdited)
	}
	chat, _ := db.GetChat("c@s")
	if chat.LastMessagePreview != "fixed" {
		t.Errorf("preview = %q, want fixed", chat.LastMessagePreview)
	}

	if err := e.ApplyRevoke("c@s", "m1"); err != nil {
		t.Fatal(err)
	}
	if raw := nextRaw(t, pushes); raw.Kind != provider.EventMessageDeleted {
		t.Errorf("kind = %q, want %s", raw.Kind, provider.EventMessageDeleted)
	}
	if m, _ := db.GetMessage("c@s", "m1"); m != nil {
		t.Error("revoked message still stored")
	}

	if err := e.ApplyArchive("c@s", true); err != nil {
		t.Fatal(err)
	}
	raw = nextRaw(t, pushes)
	if raw.Kind != provider.EventArchived || string(raw.Message) != `{"archived":true}` {
		t.Errorf("raw = %+v", raw)
	}
	chat, _ = db.GetChat("c@s")
	if !chat.Archived {
		t.Error("chat not archived")
	}
}

// TestEngineBusSubscription verifies the engine processes events from the bus.
func TestEngineBusSubscription(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	logger, _ := zap.NewDevelopment()
	e := NewEngine(db, b, logger)

	e.Start(context.Background())
	defer e.Stop()

	b.Emit(bus.KindWAMessage, &store.Message{
		ChatJID: "bus-test@s", MsgID: "bm1", Body: "from bus",
		MessageType: "text", Timestamp: 5000, Status: "received",
	})
	b.Emit(bus.KindWAHistory, []*store.Message{
		{ChatJID: "batch@s", MsgID: "hm1", Body: "history", MessageType: "text", Timestamp: 6000, Status: "received"},
		{ChatJID: "batch@s", MsgID: "hm2", Body: "history2", MessageType: "text", Timestamp: 7000, Status: "received"},
	})
	b.Emit(bus.KindWAContactBatch, []*store.Contact{{JID: "bus-test@s", PushName: "Bus"}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		live, _ := db.LatestMessages("bus-test@s", 10)
		hist, _ := db.LatestMessages("batch@s", 10)
		c, _ := db.GetContact("bus-test@s")
		if len(live) == 1 && len(hist) == 2 && c != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("engine did not ingest bus events")
}

func TestProviderMessageAuthor(t *testing.T) {
	m := ProviderMessage(store.Message{ChatJID: "g@g.us", MsgID: "x", SenderJID: "1@s", MessageType: "image", HasMedia: true, Timestamp: 5})
	if m.Author != "1@s" || m.Type != provider.KindImage || !m.HasMedia {
		t.Errorf("got %+v", m)
	}
	m = ProviderMessage(store.Message{ChatJID: "1@s.whatsapp.net", SenderName: "Ana"})
	if m.Author != "" {
		t.Errorf("direct chat author = %q, want empty", m.Author)
	}
}

func TestReconciler(t *testing.T) {
	db := testDB(t)
	r := NewReconciler(db, nil)

	if err := db.TouchChat("9@lid", false, &store.Message{MsgID: "a", Body: "x", Timestamp: 3}); err != nil {
		t.Fatal(err)
	}
	n, err := r.Reconcile([]store.LIDMapping{{LID: "9", PN: "55"}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("merged = %d, want 1", n)
	}
	if c, _ := db.GetChat("55@s.whatsapp.net"); c == nil {
		t.Error("PN chat missing after reconcile")
	}
	v, err := r.GetCheckpoint(CheckpointLIDReconciled)
	if err != nil || v == "" {
		t.Errorf("checkpoint = %q, %v", v, err)
	}
}
