package wa

import (
	"context"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/status"
	"github.com/matheus3301/leadchat/internal/store"
	intsync "github.com/matheus3301/leadchat/internal/sync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// Bus kinds published by the handler besides the wa.* ingestion kinds.
const (
	KindConnected    = "sync.connected"
	KindDisconnected = "sync.disconnected"
	KindLoggedOut    = "session.logged_out"
)

// EventHandler processes whatsmeow events, drives the state machine,
// and publishes parsed domain events on the bus. It does NOT call the
// sync engine directly; the engine subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	adapter *Adapter
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler. adapter may be nil, in which
// case LID JIDs are left unresolved.
func NewEventHandler(b *bus.Bus, machine *status.Machine, adapter *Adapter, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		adapter: adapter,
		logger:  logging.OrNop(logger),
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		current := h.machine.Current()
		if current == status.AuthRequired || current == status.Reconnecting || current == status.Booting {
			_ = h.machine.Transition(status.Connecting)
		}
		_ = h.machine.Transition(status.Syncing)
		h.bus.Emit(KindConnected, nil)
	case *events.OfflineSyncCompleted:
		h.markReady()
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
		h.bus.Emit(KindDisconnected, nil)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.PushName:
		h.bus.Emit(bus.KindWAContact, &store.Contact{
			JID:      h.resolveJID(evt.JID.String()),
			PushName: evt.NewPushName,
		})
	case *events.Archive:
		if evt.Action == nil {
			return
		}
		h.bus.Emit(bus.KindWAArchive, intsync.Archive{
			ChatJID:  h.resolveJID(evt.JID.String()),
			Archived: evt.Action.GetArchived(),
		})
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.bus.Emit(KindLoggedOut, evt.Reason.String())
	}
}

func (h *EventHandler) markReady() {
	if h.machine.Current() == status.Syncing {
		_ = h.machine.Transition(status.Ready)
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	h.markReady()

	chatJID := h.resolveJID(evt.Info.Chat.String())
	switch change := ParseProtocol(evt.Message); change.Kind {
	case ProtocolEdit:
		h.bus.Emit(bus.KindWAEdit, intsync.Edit{ChatJID: chatJID, MsgID: change.TargetID, Body: change.Body})
		return
	case ProtocolRevoke:
		h.bus.Emit(bus.KindWARevoke, intsync.Revoke{ChatJID: chatJID, MsgID: change.TargetID})
		return
	}
	if evt.Message.GetReactionMessage() != nil || evt.Message.GetProtocolMessage() != nil {
		return
	}

	parsed := ParseLiveMessage(evt)
	parsed.ChatJID = chatJID
	parsed.SenderJID = h.resolveJID(parsed.SenderJID)
	h.bus.Emit(bus.KindWAMessage, parsed.ToStoreMessage())
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var msgs []*store.Message
	var contacts []*store.Contact
	for _, conv := range data.GetConversations() {
		chatJID := h.resolveJID(conv.GetID())
		if name := conv.GetName(); name != "" {
			contacts = append(contacts, &store.Contact{JID: chatJID, Name: name})
		}
		if conv.GetArchived() {
			h.bus.Emit(bus.KindWAArchive, intsync.Archive{ChatJID: chatJID, Archived: true})
		}
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			info := wmsg.GetMessage()
			if ParseProtocol(info).Kind != ProtocolNone {
				continue
			}
			key := wmsg.GetKey()
			sender := key.GetParticipant()
			if sender == "" && !key.GetFromMe() {
				sender = key.GetRemoteJID()
			}
			parsed := &ParsedMessage{
				ChatJID:     chatJID,
				MsgID:       key.GetID(),
				SenderJID:   h.resolveJID(sender),
				SenderName:  wmsg.GetPushName(),
				Body:        extractTextBody(info),
				MessageType: detectMessageType(info),
				FromMe:      key.GetFromMe(),
				Timestamp:   int64(wmsg.GetMessageTimestamp()),
			}
			parsed.HasMedia, parsed.MimeType, parsed.Filename = extractMedia(info)
			msgs = append(msgs, parsed.ToStoreMessage())

			if pn := wmsg.GetPushName(); pn != "" && parsed.SenderJID != "" && !parsed.FromMe {
				contacts = append(contacts, &store.Contact{JID: parsed.SenderJID, PushName: pn})
			}
		}
	}

	if len(msgs) > 0 {
		h.bus.Emit(bus.KindWAHistory, msgs)
	}
	if len(contacts) > 0 {
		h.bus.Emit(bus.KindWAContactBatch, contacts)
	}
}

// resolveJID normalizes a JID string and, when an adapter is available,
// maps LID JIDs to their phone-number JIDs.
func (h *EventHandler) resolveJID(s string) string {
	normalized := NormalizeJID(s)
	if h.adapter == nil || normalized == "" {
		return normalized
	}
	jid, err := types.ParseJID(normalized)
	if err != nil {
		return normalized
	}
	return h.adapter.ResolveLID(context.Background(), jid).String()
}
