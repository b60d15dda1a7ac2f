package sync

import (
	"strings"

	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
)

// IsGroupJID reports whether a chat JID addresses a WhatsApp group.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

// ProviderMessage converts a mirrored message into the provider shape.
func ProviderMessage(m store.Message) provider.Message {
	out := provider.Message{
		ID:        m.MsgID,
		ChannelID: m.ChatJID,
		Body:      m.Body,
		FromMe:    m.FromMe,
		Timestamp: m.Timestamp,
		Type:      provider.ParseKind(m.MessageType),
		HasMedia:  m.HasMedia,
		MimeType:  m.MimeType,
		Filename:  m.Filename,
	}
	if IsGroupJID(m.ChatJID) && !m.FromMe {
		out.Author = m.SenderName
		if out.Author == "" {
			out.Author = m.SenderJID
		}
	}
	return out
}

// ProviderConversation converts a mirrored chat into the provider shape.
func ProviderConversation(c store.Chat) provider.Conversation {
	conv := provider.Conversation{
		ChannelID:   c.JID,
		Name:        c.Name,
		IsGroup:     c.IsGroup,
		UnreadCount: c.UnreadCount,
		Archived:    c.Archived,
	}
	if c.LastMessageAt > 0 {
		conv.LastMessage = &provider.LastMessage{
			ID:        c.LastMessageID,
			Body:      c.LastMessagePreview,
			Timestamp: c.LastMessageAt,
			FromMe:    c.LastMessageFromMe,
		}
	}
	return conv
}
