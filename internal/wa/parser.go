package wa

import (
	"github.com/matheus3301/leadchat/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// ParsedMessage is a normalized message ready for ingestion.
// Timestamp is Unix seconds.
type ParsedMessage struct {
	ChatJID     string
	MsgID       string
	SenderJID   string
	SenderName  string
	Body        string
	MessageType string
	HasMedia    bool
	MimeType    string
	Filename    string
	FromMe      bool
	Timestamp   int64
}

// ProtocolKind classifies protocol messages that modify an earlier message.
type ProtocolKind int

const (
	ProtocolNone ProtocolKind = iota
	ProtocolEdit
	ProtocolRevoke
)

// ProtocolChange is an edit or revoke targeting an earlier message.
type ProtocolChange struct {
	Kind     ProtocolKind
	TargetID string
	Body     string
}

// NormalizeJID strips device and agent suffixes from a JID string.
// Unparsable input is returned unchanged.
func NormalizeJID(s string) string {
	if s == "" {
		return ""
	}
	jid, err := types.ParseJID(s)
	if err != nil {
		return s
	}
	return jid.ToNonAD().String()
}

// ParseLiveMessage normalizes a live whatsmeow message event.
func ParseLiveMessage(evt *events.Message) *ParsedMessage {
	return ParseHistoryMessage(evt.Message, evt.Info)
}

// ParseHistoryMessage normalizes a message with its info.
func ParseHistoryMessage(msg *waE2E.Message, info types.MessageInfo) *ParsedMessage {
	p := &ParsedMessage{
		ChatJID:     info.Chat.ToNonAD().String(),
		MsgID:       info.ID,
		SenderJID:   info.Sender.ToNonAD().String(),
		SenderName:  info.PushName,
		Body:        extractTextBody(msg),
		MessageType: detectMessageType(msg),
		FromMe:      info.IsFromMe,
		Timestamp:   info.Timestamp.Unix(),
	}
	p.HasMedia, p.MimeType, p.Filename = extractMedia(msg)
	return p
}

// ParseProtocol reports whether msg edits or revokes an earlier message.
func ParseProtocol(msg *waE2E.Message) ProtocolChange {
	pm := msg.GetProtocolMessage()
	if pm == nil {
		return ProtocolChange{}
	}
	target := pm.GetKey().GetID()
	switch pm.GetType() {
	case waE2E.ProtocolMessage_REVOKE:
		return ProtocolChange{Kind: ProtocolRevoke, TargetID: target}
	case waE2E.ProtocolMessage_MESSAGE_EDIT:
		return ProtocolChange{Kind: ProtocolEdit, TargetID: target, Body: extractTextBody(pm.GetEditedMessage())}
	}
	return ProtocolChange{}
}

// ToStoreMessage converts a ParsedMessage to a store.Message.
func (p *ParsedMessage) ToStoreMessage() *store.Message {
	return &store.Message{
		ChatJID:     p.ChatJID,
		MsgID:       p.MsgID,
		SenderJID:   p.SenderJID,
		SenderName:  p.SenderName,
		Body:        p.Body,
		MessageType: p.MessageType,
		HasMedia:    p.HasMedia,
		MimeType:    p.MimeType,
		Filename:    p.Filename,
		FromMe:      p.FromMe,
		Status:      "received",
		Timestamp:   p.Timestamp,
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

func extractMedia(msg *waE2E.Message) (hasMedia bool, mime, filename string) {
	switch {
	case msg.GetImageMessage() != nil:
		return true, msg.GetImageMessage().GetMimetype(), ""
	case msg.GetVideoMessage() != nil:
		return true, msg.GetVideoMessage().GetMimetype(), ""
	case msg.GetAudioMessage() != nil:
		return true, msg.GetAudioMessage().GetMimetype(), ""
	case msg.GetDocumentMessage() != nil:
		d := msg.GetDocumentMessage()
		return true, d.GetMimetype(), d.GetFileName()
	case msg.GetStickerMessage() != nil:
		return true, msg.GetStickerMessage().GetMimetype(), ""
	}
	return false, "", ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	default:
		return "unknown"
	}
}
