package api

import (
	"encoding/json"

	"github.com/matheus3301/leadchat/internal/history"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
)

// Empty is the request of parameterless calls.
type Empty struct{}

// Ack acknowledges a command.
type Ack struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// StatusResponse describes the daemon session.
type StatusResponse struct {
	Session     string        `json:"session"`
	Owner       string        `json:"owner"`
	Provider    string        `json:"provider"`
	State       string        `json:"state"`
	SinceUnixMs int64         `json:"sinceUnixMs"`
	UptimeMs    int64         `json:"uptimeMs"`
	PhoneNumber string        `json:"phoneNumber,omitempty"`
	Unread      int           `json:"unread"`
	Counts      *store.Counts `json:"counts,omitempty"`
}

// AuthEvent is one step of the pairing flow.
type AuthEvent struct {
	Type    string `json:"type"`
	QRCode  string `json:"qrCode,omitempty"`
	Message string `json:"message,omitempty"`
}

// ListRequest selects a view of the conversation list.
type ListRequest struct {
	Filter       string `json:"filter,omitempty"`
	ShowArchived bool   `json:"showArchived,omitempty"`
}

// ConversationList is a view of the registry.
type ConversationList struct {
	Conversations []provider.Conversation `json:"conversations"`
	Active        string                  `json:"active,omitempty"`
	Unread        int                     `json:"unread"`
	Error         string                  `json:"error,omitempty"`
}

// ChannelRequest names one conversation.
type ChannelRequest struct {
	ChannelID string `json:"channelId"`
}

// ArchiveRequest toggles a conversation's archived flag.
type ArchiveRequest struct {
	ChannelID string `json:"channelId"`
	Archived  bool   `json:"archived"`
}

// WatchRequest filters the event stream by kind prefix. Empty means the
// default set.
type WatchRequest struct {
	Kinds []string `json:"kinds,omitempty"`
}

// Event is a bus event as streamed to clients.
type Event struct {
	ID               string          `json:"id"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurredAtUnixMs"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// HistoryResponse is a copy of the pager buffer.
type HistoryResponse struct {
	ChannelID    string             `json:"channelId"`
	Messages     []provider.Message `json:"messages"`
	ReachedStart bool               `json:"reachedStart"`
	Loading      bool               `json:"loading,omitempty"`
	Limit        int                `json:"limit"`
	Error        string             `json:"error,omitempty"`
}

func historyResponse(s history.Snapshot) *HistoryResponse {
	resp := &HistoryResponse{
		ChannelID:    s.ChannelID,
		Messages:     s.Messages,
		ReachedStart: s.ReachedStart,
		Loading:      s.Loading,
		Limit:        s.Limit,
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

// LoadMoreRequest pages further back in the active conversation.
type LoadMoreRequest struct {
	ChannelID     string `json:"channelId"`
	ExpandedLimit int    `json:"expandedLimit,omitempty"`
}

// SendTextRequest sends text to a conversation.
type SendTextRequest struct {
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
}

// SendMediaRequest sends media to a conversation.
type SendMediaRequest struct {
	ChannelID string         `json:"channelId"`
	Media     provider.Media `json:"media"`
}

// ReplyRequest sends text quoting a message.
type ReplyRequest struct {
	ChannelID string `json:"channelId"`
	QuotedID  string `json:"quotedId"`
	Text      string `json:"text"`
}

// EditRequest replaces a message body.
type EditRequest struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	Body      string `json:"body"`
}

// DeleteRequest deletes a message.
type DeleteRequest struct {
	ChannelID   string `json:"channelId"`
	MessageID   string `json:"messageId"`
	ForEveryone bool   `json:"forEveryone,omitempty"`
}

// ForwardRequest copies a message into another conversation.
type ForwardRequest struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

// MessageResponse carries one message.
type MessageResponse struct {
	Message provider.Message `json:"message"`
}

// EditResponse is the outcome of an edit.
type EditResponse struct {
	OK   bool   `json:"ok"`
	Body string `json:"body"`
}

// SearchRequest queries the local message index.
type SearchRequest struct {
	Query     string `json:"query"`
	ChannelID string `json:"channelId,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// SearchHit is one search result.
type SearchHit struct {
	Message provider.Message `json:"message"`
	Snippet string           `json:"snippet"`
}

// SearchResponse lists search hits, newest first.
type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

// GroupList lists recipient groups.
type GroupList struct {
	Groups []provider.Group `json:"groups"`
}

// ResolveRequest loads recipients from a source and applies filters.
type ResolveRequest struct {
	GroupID   string   `json:"groupId,omitempty"`
	AllLinked bool     `json:"allLinked,omitempty"`
	Statuses  []string `json:"statuses,omitempty"`
	Services  []string `json:"services,omitempty"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
}

// Recipient is one resolved recipient.
type Recipient struct {
	ChannelID string                 `json:"channelId"`
	Record    *provider.LinkedRecord `json:"record,omitempty"`
}

// ResolveResponse is the filtered recipient list plus the filter options the
// unfiltered list offers.
type ResolveResponse struct {
	Recipients []Recipient `json:"recipients"`
	Total      int         `json:"total"`
	Statuses   []string    `json:"statuses"`
	Services   []string    `json:"services"`
}

// DispatchRequest broadcasts items to the resolved recipients. Empty
// ChannelIDs selects every filtered recipient.
type DispatchRequest struct {
	Items                    []provider.Item `json:"items"`
	ChannelIDs               []string        `json:"channelIds,omitempty"`
	Interval                 string          `json:"interval,omitempty"`
	BigInterval              string          `json:"bigInterval,omitempty"`
	MessagesUntilBigInterval int             `json:"messagesUntilBigInterval,omitempty"`
}

// DispatchResponse acknowledges a broadcast.
type DispatchResponse struct {
	Ack provider.BatchAck `json:"ack"`
}

// ImportRequest loads linked records and groups into the local store.
type ImportRequest struct {
	Records []provider.Member `json:"records,omitempty" yaml:"records"`
	Groups  []provider.Group  `json:"groups,omitempty" yaml:"groups"`
}

// ImportResponse counts imported rows.
type ImportResponse struct {
	Records int `json:"records"`
	Groups  int `json:"groups"`
}
