package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
	"go.uber.org/zap"
)

// Edit is the payload of a wa.edit event.
type Edit struct {
	ChatJID string
	MsgID   string
	Body    string
}

// Revoke is the payload of a wa.revoke event.
type Revoke struct {
	ChatJID string
	MsgID   string
}

// Archive is the payload of a wa.archive event.
type Archive struct {
	ChatJID  string
	Archived bool
}

// Engine handles idempotent ingestion of WhatsApp events into the store and
// republishes each live change as a provider push event.
// It subscribes to "wa.*" events on the bus and processes them.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logging.OrNop(logger),
	}
}

// Start subscribes to inbound WhatsApp events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wa.", 256)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	var err error
	switch p := evt.Payload.(type) {
	case *store.Message:
		err = e.IngestMessage(p)
	case []*store.Message:
		if err = e.IngestHistoryBatch(p); err == nil {
			e.logger.Info("history batch ingested", zap.Int("messages", len(p)))
		}
	case Edit:
		err = e.ApplyEdit(p.ChatJID, p.MsgID, p.Body)
	case Revoke:
		err = e.ApplyRevoke(p.ChatJID, p.MsgID)
	case Archive:
		err = e.ApplyArchive(p.ChatJID, p.Archived)
	case *store.Contact:
		err = e.db.UpsertContact(p)
	case []*store.Contact:
		contacts := make([]store.Contact, len(p))
		for i, c := range p {
			contacts[i] = *c
		}
		err = e.db.BulkUpsertContacts(contacts)
	default:
		return
	}
	if err != nil {
		e.logger.Error("failed to ingest event", zap.String("kind", evt.Kind), zap.Error(err))
	}
}

// IngestMessage processes a single live message into the store (idempotent)
// and republishes it as a new-message push event.
func (e *Engine) IngestMessage(msg *store.Message) error {
	isGroup := IsGroupJID(msg.ChatJID)
	if err := e.db.TouchChat(msg.ChatJID, isGroup, &store.Message{
		MsgID:     msg.MsgID,
		Body:      truncate(msg.Body, 100),
		FromMe:    msg.FromMe,
		Timestamp: msg.Timestamp,
	}); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}

	if err := e.db.UpsertMessage(msg); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	e.bus.Emit(bus.KindMessageUpserted, map[string]string{
		"chat_jid": msg.ChatJID,
		"msg_id":   msg.MsgID,
	})
	e.publish(provider.EventNewMessage, msg.ChatJID, ProviderMessage(*msg))
	return nil
}

// IngestHistoryBatch processes a batch of history messages in a transaction.
// History is not republished as push events.
func (e *Engine) IngestHistoryBatch(msgs []*store.Message) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chats := make(map[string]struct{})
	now := time.Now().UnixMilli()

	for _, sm := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO chats (jid, is_group, last_message_id, last_message_at, last_message_preview, last_message_from_me, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(jid) DO UPDATE SET
				last_message_id = CASE WHEN excluded.last_message_at > chats.last_message_at THEN excluded.last_message_id ELSE chats.last_message_id END,
				last_message_preview = CASE WHEN excluded.last_message_at > chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
				last_message_from_me = CASE WHEN excluded.last_message_at > chats.last_message_at THEN excluded.last_message_from_me ELSE chats.last_message_from_me END,
				last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
				updated_at = excluded.updated_at`,
			sm.ChatJID, IsGroupJID(sm.ChatJID), sm.MsgID, sm.Timestamp, truncate(sm.Body, 100), sm.FromMe, now); err != nil {
			return fmt.Errorf("upsert chat in batch: %w", err)
		}
		chats[sm.ChatJID] = struct{}{}

		if _, err := tx.Exec(`
			INSERT INTO messages (chat_jid, msg_id, sender_jid, sender_name, body, message_type,
				has_media, mime_type, filename, from_me, status, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_jid, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				body = excluded.body,
				status = excluded.status`,
			sm.ChatJID, sm.MsgID, sm.SenderJID, sm.SenderName, sm.Body, sm.MessageType,
			sm.HasMedia, sm.MimeType, sm.Filename, sm.FromMe, sm.Status, sm.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.bus.Emit(bus.KindHistorySynced, map[string]int{
		"messages_count": len(msgs),
		"chats_count":    len(chats),
	})
	return nil
}

// ApplyEdit replaces a stored message body and republishes the edit.
func (e *Engine) ApplyEdit(chatJID, msgID, body string) error {
	if _, err := e.db.UpdateMessageBody(chatJID, msgID, body); err != nil {
		return fmt.Errorf("update body: %w", err)
	}
	if err := e.db.SetChatPreview(chatJID, msgID, truncate(body, 100)); err != nil {
		return fmt.Errorf("update preview: %w", err)
	}
	e.publish(provider.EventMessageEdited, chatJID, map[string]string{"id": msgID, "body": body})
	return nil
}

// ApplyRevoke removes a message from the mirror and republishes the deletion.
func (e *Engine) ApplyRevoke(chatJID, msgID string) error {
	if _, err := e.db.DeleteMessage(chatJID, msgID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	e.publish(provider.EventMessageDeleted, chatJID, map[string]string{"id": msgID})
	return nil
}

// ApplyArchive stores an archive toggle and republishes it.
func (e *Engine) ApplyArchive(chatJID string, archived bool) error {
	if err := e.db.SetChatArchived(chatJID, archived); err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	e.publish(provider.EventArchived, chatJID, map[string]bool{"archived": archived})
	return nil
}

func (e *Engine) publish(kind, chatJID string, msg any) {
	raw, err := provider.NewRawEvent(kind, chatJID, msg)
	if err != nil {
		e.logger.Error("failed to encode push event", zap.String("kind", kind), zap.Error(err))
		return
	}
	e.bus.Emit(bus.KindProviderEvent, raw)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
