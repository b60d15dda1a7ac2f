// Package push validates provider push frames into a closed set of events and
// routes them, in delivery order, to the conversation registry and history pager.
package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/leadchat/internal/provider"
)

// Event is one validated push event. The set of implementations is closed.
type Event interface {
	Channel() string
	Kind() string
	sealed()
}

// NewMessage reports a message delivered to a conversation.
type NewMessage struct {
	ChannelID string
	Message   provider.Message
}

// MessageEdited reports a new body for an existing message.
type MessageEdited struct {
	ChannelID string
	MessageID string
	Body      string
}

// MessageDeleted reports a message removed from a conversation.
type MessageDeleted struct {
	ChannelID string
	MessageID string
}

// ArchiveChanged reports a conversation moving in or out of the archive.
type ArchiveChanged struct {
	ChannelID string
	Archived  bool
}

func (e NewMessage) Channel() string     { return e.ChannelID }
func (e MessageEdited) Channel() string  { return e.ChannelID }
func (e MessageDeleted) Channel() string { return e.ChannelID }
func (e ArchiveChanged) Channel() string { return e.ChannelID }

func (NewMessage) Kind() string     { return provider.EventNewMessage }
func (MessageEdited) Kind() string  { return provider.EventMessageEdited }
func (MessageDeleted) Kind() string { return provider.EventMessageDeleted }
func (ArchiveChanged) Kind() string { return provider.EventArchived }

func (NewMessage) sealed()     {}
func (MessageEdited) sealed()  {}
func (MessageDeleted) sealed() {}
func (ArchiveChanged) sealed() {}

// ErrInvalidEvent is wrapped by every Decode failure.
var ErrInvalidEvent = errors.New("invalid push event")

type messageRef struct {
	ID       string `json:"id"`
	Body     string `json:"body"`
	Archived *bool  `json:"archived"`
}

// Decode validates a raw frame. A frame without a kind but with a message is
// treated as a new message.
func Decode(raw provider.RawEvent) (Event, error) {
	channelID := strings.TrimSpace(raw.ChannelID)
	if channelID == "" {
		return nil, fmt.Errorf("%w: missing channel id", ErrInvalidEvent)
	}
	hasMessage := len(raw.Message) > 0 && string(raw.Message) != "null"

	kind := raw.Kind
	if kind == "" && hasMessage {
		kind = provider.EventNewMessage
	}

	switch kind {
	case provider.EventNewMessage:
		if !hasMessage {
			return nil, fmt.Errorf("%w: %s without message", ErrInvalidEvent, kind)
		}
		var msg provider.Message
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			return nil, fmt.Errorf("%w: decode message: %v", ErrInvalidEvent, err)
		}
		msg.ChannelID = channelID
		msg.Pending = false
		if msg.Type == "" {
			msg.Type = provider.KindText
		} else {
			msg.Type = provider.ParseKind(string(msg.Type))
		}
		return NewMessage{ChannelID: channelID, Message: msg}, nil

	case provider.EventMessageEdited, provider.EventMessageDeleted, provider.EventArchived:
		var ref messageRef
		if hasMessage {
			if err := json.Unmarshal(raw.Message, &ref); err != nil {
				return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidEvent, kind, err)
			}
		}
		switch kind {
		case provider.EventArchived:
			if ref.Archived == nil {
				return nil, fmt.Errorf("%w: archived without flag", ErrInvalidEvent)
			}
			return ArchiveChanged{ChannelID: channelID, Archived: *ref.Archived}, nil
		case provider.EventMessageEdited:
			if ref.ID == "" {
				return nil, fmt.Errorf("%w: %s without message id", ErrInvalidEvent, kind)
			}
			return MessageEdited{ChannelID: channelID, MessageID: ref.ID, Body: ref.Body}, nil
		default:
			if ref.ID == "" {
				return nil, fmt.Errorf("%w: %s without message id", ErrInvalidEvent, kind)
			}
			return MessageDeleted{ChannelID: channelID, MessageID: ref.ID}, nil
		}

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, raw.Kind)
	}
}
