package wa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
	intsync "github.com/matheus3301/leadchat/internal/sync"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ErrNoQueue is returned by Batch before a batch queue is attached.
var ErrNoQueue = errors.New("batch queue not configured")

// ErrMessageNotFound is returned when an operation targets a message the
// local mirror does not hold.
var ErrMessageNotFound = errors.New("message not found")

// Queue accepts batch requests for asynchronous delivery.
type Queue interface {
	Enqueue(ownerID string, req provider.BatchRequest) (provider.BatchAck, error)
}

// Provider is the local messaging provider: WhatsApp Web for delivery and
// the SQLite mirror for conversations, history, groups and linked records.
type Provider struct {
	db     *store.DB
	wa     Messenger
	engine *intsync.Engine
	bus    *bus.Bus
	logger *zap.Logger

	mu    sync.RWMutex
	queue Queue
}

var (
	_ provider.Provider   = (*Provider)(nil)
	_ provider.PushSource = (*Provider)(nil)
	_ provider.ReadMarker = (*Provider)(nil)
	_ provider.Archiver   = (*Provider)(nil)
)

// NewProvider creates the local provider.
func NewProvider(db *store.DB, wa Messenger, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *Provider {
	return &Provider{
		db:     db,
		wa:     wa,
		engine: engine,
		bus:    b,
		logger: logging.OrNop(logger),
	}
}

// SetQueue attaches the batch queue used by Batch.
func (p *Provider) SetQueue(q Queue) {
	p.mu.Lock()
	p.queue = q
	p.mu.Unlock()
}

// Conversations lists mirrored chats, most recent first.
func (p *Provider) Conversations(_ context.Context, _ provider.Session) ([]provider.Conversation, error) {
	chats, err := p.db.ListChats(0, 0)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	out := make([]provider.Conversation, len(chats))
	for i, c := range chats {
		out[i] = intsync.ProviderConversation(c)
	}
	return out, nil
}

// Messages returns up to limit of the latest mirrored messages, ascending.
func (p *Provider) Messages(_ context.Context, _ provider.Session, channelID string, limit int) ([]provider.Message, error) {
	msgs, err := p.db.LatestMessages(channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		out[i] = intsync.ProviderMessage(m)
	}
	return out, nil
}

// SendText sends a plain text message.
func (p *Provider) SendText(ctx context.Context, _ provider.Session, channelID, text string) (provider.Message, error) {
	return p.sendAndIngest(ctx, channelID, &waE2E.Message{Conversation: proto.String(text)}, &store.Message{
		Body:        text,
		MessageType: string(provider.KindText),
	})
}

// SendMedia uploads and sends a media message.
func (p *Provider) SendMedia(ctx context.Context, _ provider.Session, channelID string, media provider.Media) (provider.Message, error) {
	msg, err := p.buildMedia(ctx, media)
	if err != nil {
		return provider.Message{}, err
	}
	return p.sendAndIngest(ctx, channelID, msg, &store.Message{
		Body:        media.Caption,
		MessageType: string(media.Kind()),
		HasMedia:    true,
		MimeType:    media.MimeType,
		Filename:    media.Filename,
	})
}

// Reply sends text quoting an earlier message.
func (p *Provider) Reply(ctx context.Context, _ provider.Session, channelID, quotedID, text string) (provider.Message, error) {
	quoted, err := p.db.GetMessage(channelID, quotedID)
	if err != nil {
		return provider.Message{}, fmt.Errorf("load quoted message: %w", err)
	}
	if quoted == nil {
		return provider.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, quotedID)
	}
	ctxInfo := &waE2E.ContextInfo{
		StanzaID:      proto.String(quotedID),
		QuotedMessage: &waE2E.Message{Conversation: proto.String(quoted.Body)},
	}
	if !quoted.FromMe && quoted.SenderJID != "" {
		ctxInfo.Participant = proto.String(quoted.SenderJID)
	}
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String(text),
		ContextInfo: ctxInfo,
	}}
	return p.sendAndIngest(ctx, channelID, msg, &store.Message{Body: text, MessageType: string(provider.KindText)})
}

// Edit replaces the body of one of our own text messages.
func (p *Provider) Edit(ctx context.Context, _ provider.Session, channelID, messageID, body string) (provider.EditResult, error) {
	edit, err := p.wa.BuildEdit(channelID, messageID, &waE2E.Message{Conversation: proto.String(body)})
	if err != nil {
		return provider.EditResult{}, err
	}
	if _, err := p.wa.Send(ctx, channelID, edit); err != nil {
		return provider.EditResult{}, err
	}
	if err := p.engine.ApplyEdit(channelID, messageID, body); err != nil {
		p.logger.Warn("failed to mirror edit", zap.String("msg_id", messageID), zap.Error(err))
	}
	return provider.EditResult{OK: true, Body: body}, nil
}

// Delete removes a message. forEveryone revokes it on WhatsApp; otherwise it
// is removed from the local mirror only.
func (p *Provider) Delete(ctx context.Context, _ provider.Session, channelID, messageID string, forEveryone bool) (bool, error) {
	if forEveryone {
		revoke, err := p.wa.BuildRevoke(channelID, messageID)
		if err != nil {
			return false, err
		}
		if _, err := p.wa.Send(ctx, channelID, revoke); err != nil {
			return false, err
		}
	} else if m, err := p.db.GetMessage(channelID, messageID); err != nil {
		return false, fmt.Errorf("load message: %w", err)
	} else if m == nil {
		return false, nil
	}
	if err := p.engine.ApplyRevoke(channelID, messageID); err != nil {
		return false, err
	}
	return true, nil
}

// Forward re-sends a mirrored text message to another chat, marked as forwarded.
func (p *Provider) Forward(ctx context.Context, _ provider.Session, channelID, messageID, toChannelID string) (provider.Message, error) {
	orig, err := p.db.GetMessage(channelID, messageID)
	if err != nil {
		return provider.Message{}, fmt.Errorf("load message: %w", err)
	}
	if orig == nil {
		return provider.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	if orig.HasMedia {
		return provider.Message{}, fmt.Errorf("forward %s: media content is not held locally", messageID)
	}
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text: proto.String(orig.Body),
		ContextInfo: &waE2E.ContextInfo{
			IsForwarded:     proto.Bool(true),
			ForwardingScore: proto.Uint32(1),
		},
	}}
	return p.sendAndIngest(ctx, toChannelID, msg, &store.Message{Body: orig.Body, MessageType: orig.MessageType})
}

// Batch queues a batch job for the runner.
func (p *Provider) Batch(_ context.Context, s provider.Session, req provider.BatchRequest) (provider.BatchAck, error) {
	p.mu.RLock()
	q := p.queue
	p.mu.RUnlock()
	if q == nil {
		return provider.BatchAck{}, ErrNoQueue
	}
	return q.Enqueue(s.OwnerID, req)
}

// Groups lists recipient groups with each member's linked record.
func (p *Provider) Groups(_ context.Context, _ provider.Session) ([]provider.Group, error) {
	groups, err := p.db.ListGroups()
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	records, err := p.recordsByChannel()
	if err != nil {
		return nil, err
	}
	out := make([]provider.Group, len(groups))
	for i, g := range groups {
		members := make([]provider.Member, len(g.Members))
		for j, ch := range g.Members {
			members[j] = provider.Member{ChannelID: ch, LinkedRecord: records[ch]}
		}
		out[i] = provider.Group{ID: g.ID, Name: g.Name, Members: members}
	}
	return out, nil
}

// AllLinked lists every channel with a linked record.
func (p *Provider) AllLinked(_ context.Context, _ provider.Session) ([]provider.Member, error) {
	linked, err := p.db.ListLinked()
	if err != nil {
		return nil, fmt.Errorf("list linked: %w", err)
	}
	out := make([]provider.Member, len(linked))
	for i, r := range linked {
		out[i] = provider.Member{ChannelID: r.ChannelID, LinkedRecord: linkedRecord(r)}
	}
	return out, nil
}

func (p *Provider) recordsByChannel() (map[string]*provider.LinkedRecord, error) {
	linked, err := p.db.ListLinked()
	if err != nil {
		return nil, fmt.Errorf("list linked: %w", err)
	}
	out := make(map[string]*provider.LinkedRecord, len(linked))
	for _, r := range linked {
		if _, ok := out[r.ChannelID]; !ok {
			out[r.ChannelID] = linkedRecord(r)
		}
	}
	return out, nil
}

func linkedRecord(r store.LinkedRecord) *provider.LinkedRecord {
	return &provider.LinkedRecord{
		ID:        r.ID,
		Name:      r.Name,
		FirstName: r.FirstName,
		Status:    r.Status,
		Service:   r.Service,
		Date:      r.RecordDate,
	}
}

// Subscribe forwards push events republished by the sync engine. The local
// provider serves a single owner, so s only gates on validity.
func (p *Provider) Subscribe(ctx context.Context, s provider.Session) (<-chan provider.RawEvent, func(), error) {
	if !s.Valid() {
		return nil, nil, fmt.Errorf("subscribe: missing owner id")
	}
	in, unsub := p.bus.Subscribe(bus.KindProviderEvent, 256)
	out := make(chan provider.RawEvent, 64)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer unsub()
		for {
			select {
			case evt, ok := <-in:
				if !ok {
					return
				}
				raw, ok := evt.Payload.(provider.RawEvent)
				if !ok {
					continue
				}
				select {
				case out <- raw:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

// MarkRead resets the unread counter and sends read receipts for the
// latest inbound messages.
func (p *Provider) MarkRead(ctx context.Context, _ provider.Session, channelID string) error {
	chat, err := p.db.GetChat(channelID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	if chat == nil || chat.UnreadCount == 0 {
		return nil
	}
	msgs, err := p.db.LatestMessages(channelID, chat.UnreadCount)
	if err != nil {
		return fmt.Errorf("load unread: %w", err)
	}
	if err := p.db.ResetUnread(channelID); err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}

	// Receipts are grouped by sender; in direct chats that is a single batch.
	bySender := make(map[string][]string)
	var order []string
	for _, m := range msgs {
		if m.FromMe {
			continue
		}
		sender := ""
		if chat.IsGroup {
			sender = m.SenderJID
		}
		if _, ok := bySender[sender]; !ok {
			order = append(order, sender)
		}
		bySender[sender] = append(bySender[sender], m.MsgID)
	}
	for _, sender := range order {
		if err := p.wa.MarkRead(ctx, channelID, sender, bySender[sender]); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
	}
	return nil
}

// SetArchived archives or unarchives a chat on WhatsApp and in the mirror.
func (p *Provider) SetArchived(ctx context.Context, _ provider.Session, channelID string, archived bool) error {
	var last time.Time
	if chat, err := p.db.GetChat(channelID); err == nil && chat != nil {
		last = time.Unix(chat.LastMessageAt, 0)
	}
	if err := p.wa.SetArchived(ctx, channelID, archived, last); err != nil {
		return fmt.Errorf("set archived: %w", err)
	}
	return p.engine.ApplyArchive(channelID, archived)
}

// SendItem delivers one batch item. Text alongside media becomes the caption.
func (p *Provider) SendItem(ctx context.Context, jid string, item provider.Item) (string, error) {
	var (
		msg provider.Message
		err error
	)
	if item.Media != nil && len(item.Media.Data) > 0 {
		media := *item.Media
		if media.Caption == "" {
			media.Caption = item.Text
		}
		msg, err = p.SendMedia(ctx, provider.Session{}, jid, media)
	} else {
		msg, err = p.SendText(ctx, provider.Session{}, jid, item.Text)
	}
	return msg.ID, err
}

func (p *Provider) buildMedia(ctx context.Context, media provider.Media) (*waE2E.Message, error) {
	if len(media.Data) == 0 {
		return nil, fmt.Errorf("media payload is empty")
	}
	kind := media.Kind()
	up, err := p.wa.Upload(ctx, media.Data, kind)
	if err != nil {
		return nil, err
	}
	length := uint64(len(media.Data))
	caption := optional(media.Caption)
	mime := proto.String(media.MimeType)

	switch kind {
	case provider.KindImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption: caption, Mimetype: mime,
			URL: proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: &length,
		}}, nil
	case provider.KindSticker:
		return &waE2E.Message{StickerMessage: &waE2E.StickerMessage{
			Mimetype: mime,
			URL:      proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: &length,
		}}, nil
	case provider.KindVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption: caption, Mimetype: mime,
			URL: proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: &length,
		}}, nil
	case provider.KindAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype: mime,
			URL:      proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: &length,
		}}, nil
	default:
		name := media.Filename
		if name == "" {
			name = "file"
		}
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption: caption, Mimetype: mime,
			FileName: proto.String(name), Title: proto.String(name),
			URL: proto.String(up.URL), DirectPath: proto.String(up.DirectPath),
			MediaKey: up.MediaKey, FileEncSHA256: up.FileEncSHA256, FileSHA256: up.FileSHA256,
			FileLength: &length,
		}}, nil
	}
}

// sendAndIngest sends msg and mirrors the sent copy immediately, so the
// timeline does not wait for the server echo.
func (p *Provider) sendAndIngest(ctx context.Context, channelID string, msg *waE2E.Message, local *store.Message) (provider.Message, error) {
	sent, err := p.wa.Send(ctx, channelID, msg)
	if err != nil {
		return provider.Message{}, err
	}
	ts := sent.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	local.ChatJID = channelID
	local.MsgID = sent.ID
	local.FromMe = true
	local.Status = "sent"
	local.Timestamp = ts.Unix()
	if err := p.engine.IngestMessage(local); err != nil {
		p.logger.Warn("failed to mirror sent message", zap.String("msg_id", sent.ID), zap.Error(err))
	}
	return intsync.ProviderMessage(*local), nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return proto.String(s)
}
