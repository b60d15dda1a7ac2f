// Package provider defines the contract the conversation engine expects from
// a messaging provider and the domain types exchanged across it.
package provider

import (
	"strings"
	"time"
)

// Session identifies the staff user whose messaging session is being used.
// It is passed explicitly into every provider call.
type Session struct {
	OwnerID string
	Token   string
}

// Valid reports whether the session carries an owner id.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.OwnerID) != ""
}

// ContentKind is the kind of a message's payload.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindImage    ContentKind = "image"
	KindVideo    ContentKind = "video"
	KindAudio    ContentKind = "audio"
	KindDocument ContentKind = "document"
	KindSticker  ContentKind = "sticker"
	KindUnknown  ContentKind = "unknown"
)

// ParseKind maps a provider type string onto a ContentKind.
func ParseKind(s string) ContentKind {
	switch ContentKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindText, "chat", "":
		return KindText
	case KindImage:
		return KindImage
	case KindVideo:
		return KindVideo
	case KindAudio, "ptt", "voice":
		return KindAudio
	case KindDocument:
		return KindDocument
	case KindSticker:
		return KindSticker
	default:
		return KindUnknown
	}
}

// PendingPrefix marks locally generated ids of messages awaiting confirmation.
const PendingPrefix = "local-"

// Message is one message in a conversation. Timestamp is in seconds.
type Message struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channelId,omitempty"`
	Body      string      `json:"body"`
	FromMe    bool        `json:"fromMe"`
	Timestamp int64       `json:"timestamp"`
	Type      ContentKind `json:"type,omitempty"`
	HasMedia  bool        `json:"hasMedia,omitempty"`
	MediaURL  string      `json:"mediaUrl,omitempty"`
	MimeType  string      `json:"mimetype,omitempty"`
	Filename  string      `json:"filename,omitempty"`
	Author    string      `json:"author,omitempty"`
	Pending   bool        `json:"pending,omitempty"`
}

// IsPending reports whether the message is a local optimistic copy.
func (m Message) IsPending() bool {
	return m.Pending || strings.HasPrefix(m.ID, PendingPrefix)
}

// Time returns the message timestamp as a time.Time.
func (m Message) Time() time.Time {
	return time.Unix(m.Timestamp, 0)
}

// LastMessage summarizes the most recent message of a conversation.
type LastMessage struct {
	ID        string `json:"id,omitempty"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe,omitempty"`
}

// Conversation is one entry of the authoritative conversation list.
type Conversation struct {
	ChannelID   string       `json:"channelId"`
	Name        string       `json:"name"`
	IsGroup     bool         `json:"isGroup"`
	UnreadCount int          `json:"unreadCount"`
	LastMessage *LastMessage `json:"lastMessage,omitempty"`
	Archived    bool         `json:"archived,omitempty"`
}

// LastTimestamp returns the last message timestamp, or 0 when there is none.
func (c Conversation) LastTimestamp() int64 {
	if c.LastMessage == nil {
		return 0
	}
	return c.LastMessage.Timestamp
}

// DisplayName returns Name, falling back to the channel id.
func (c Conversation) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ChannelID
}

// LinkedRecord is the business record associated with a channel id.
// Empty Status or Service means the attribute is not resolvable.
type LinkedRecord struct {
	ID        string `json:"id,omitempty" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name"`
	FirstName string `json:"firstName,omitempty" yaml:"first_name"`
	Status    string `json:"status,omitempty" yaml:"status"`
	Service   string `json:"service,omitempty" yaml:"service"`
	Date      string `json:"date,omitempty" yaml:"date"`
}

// Member is one addressable channel together with its linked record.
type Member struct {
	ChannelID    string        `json:"channelId" yaml:"channel_id"`
	LinkedRecord *LinkedRecord `json:"linkedRecord,omitempty" yaml:"record"`
}

// Group is a named static list of members.
type Group struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Members []Member `json:"members" yaml:"members"`
}

// Media is a binary payload sent as a message.
type Media struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Kind derives the content kind from the MIME type.
func (m Media) Kind() ContentKind {
	major, _, _ := strings.Cut(m.MimeType, "/")
	switch major {
	case "image":
		if m.MimeType == "image/webp" {
			return KindSticker
		}
		return KindImage
	case "video":
		return KindVideo
	case "audio":
		return KindAudio
	default:
		return KindDocument
	}
}

// Item is one element of a batch: text, media, or media with caption text.
type Item struct {
	Text  string `json:"text,omitempty"`
	Media *Media `json:"media,omitempty"`
}

// Empty reports whether the item has blank text and no media.
func (i Item) Empty() bool {
	return strings.TrimSpace(i.Text) == "" && (i.Media == nil || len(i.Media.Data) == 0)
}

// BatchRequest is the provider-facing batch send. Zero timing fields are
// omitted from the wire so the provider applies its defaults.
type BatchRequest struct {
	ChatIDs                  []string                     `json:"chatIds"`
	Items                    []Item                       `json:"items"`
	ParamsByChatID           map[string]map[string]string `json:"paramsByChatId,omitempty"`
	IntervalMs               int64                        `json:"intervalMs,omitempty"`
	BigIntervalMs            int64                        `json:"bigIntervalMs,omitempty"`
	MessagesUntilBigInterval int                          `json:"messagesUntilBigInterval,omitempty"`
}

// BatchAck acknowledges a batch request.
type BatchAck struct {
	JobID      string `json:"jobId,omitempty"`
	Accepted   bool   `json:"accepted"`
	Recipients int    `json:"recipients"`
}

// EditResult is the outcome of an edit.
type EditResult struct {
	OK   bool   `json:"success"`
	Body string `json:"body"`
}
