package provider

import (
	"context"
	"encoding/json"
)

// Provider is the request/response side of a messaging provider.
type Provider interface {
	Conversations(ctx context.Context, s Session) ([]Conversation, error)
	// Messages returns up to limit of the most recent messages, ascending by
	// timestamp. Fewer than limit results means the start of history.
	Messages(ctx context.Context, s Session, channelID string, limit int) ([]Message, error)

	SendText(ctx context.Context, s Session, channelID, text string) (Message, error)
	SendMedia(ctx context.Context, s Session, channelID string, media Media) (Message, error)
	Reply(ctx context.Context, s Session, channelID, quotedID, text string) (Message, error)
	Edit(ctx context.Context, s Session, channelID, messageID, body string) (EditResult, error)
	Delete(ctx context.Context, s Session, channelID, messageID string, forEveryone bool) (bool, error)
	Forward(ctx context.Context, s Session, channelID, messageID, toChannelID string) (Message, error)

	Batch(ctx context.Context, s Session, req BatchRequest) (BatchAck, error)

	Groups(ctx context.Context, s Session) ([]Group, error)
	AllLinked(ctx context.Context, s Session) ([]Member, error)
}

// PushSource delivers push events for one owner.
// The returned channel is closed after cancel is called or ctx is done.
type PushSource interface {
	Subscribe(ctx context.Context, s Session) (<-chan RawEvent, func(), error)
}

// ReadMarker is implemented by providers that track read state.
type ReadMarker interface {
	MarkRead(ctx context.Context, s Session, channelID string) error
}

// Archiver is implemented by providers that can archive conversations.
type Archiver interface {
	SetArchived(ctx context.Context, s Session, channelID string, archived bool) error
}

// Raw push event kinds.
const (
	EventNewMessage     = "newMessage"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventArchived       = "archived"
)

// RawEvent is a push frame as delivered by the transport, before validation.
type RawEvent struct {
	Kind      string          `json:"kind,omitempty"`
	ChannelID string          `json:"channelId"`
	Message   json.RawMessage `json:"message,omitempty"`
}

// NewRawEvent builds a RawEvent carrying msg encoded as JSON.
func NewRawEvent(kind, channelID string, msg any) (RawEvent, error) {
	raw := RawEvent{Kind: kind, ChannelID: channelID}
	if msg == nil {
		return raw, nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return RawEvent{}, err
	}
	raw.Message = data
	return raw, nil
}
