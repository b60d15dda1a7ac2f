// Package remote implements the provider contract against the CRM's messaging
// API: REST for requests and a WebSocket for push events.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/status"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Code, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	// PushURL defaults to BaseURL with a ws/wss scheme.
	PushURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Machine    *status.Machine
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Client talks to the remote provider.
type Client struct {
	base    *url.URL
	push    *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	machine *status.Machine
	metrics *metrics.Metrics
	logger  *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

var (
	_ provider.Provider   = (*Client)(nil)
	_ provider.PushSource = (*Client)(nil)
	_ provider.ReadMarker = (*Client)(nil)
	_ provider.Archiver   = (*Client)(nil)
)

// New validates opts and creates a client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid provider base url %q", opts.BaseURL)
	}

	pushRaw := opts.PushURL
	if pushRaw == "" {
		pushRaw = strings.Replace(base.String(), "http", "ws", 1)
	}
	push, err := url.Parse(strings.TrimRight(pushRaw, "/"))
	if err != nil || (push.Scheme != "ws" && push.Scheme != "wss") {
		return nil, fmt.Errorf("invalid provider push url %q", pushRaw)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}

	return &Client{
		base:       base,
		push:       push,
		http:       hc,
		dialer:     &websocket.Dialer{HandshakeTimeout: opts.Timeout, Proxy: http.ProxyFromEnvironment},
		machine:    opts.Machine,
		metrics:    opts.Metrics,
		logger:     logging.OrNop(opts.Logger),
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
	}, nil
}

// Conversations fetches the authoritative conversation list.
func (c *Client) Conversations(ctx context.Context, s provider.Session) ([]provider.Conversation, error) {
	var out []provider.Conversation
	err := c.do(ctx, s, http.MethodGet, c.ownerPath(s, "conversations"), nil, nil, &out)
	return out, err
}

// Messages fetches the latest limit messages of a channel.
func (c *Client) Messages(ctx context.Context, s provider.Session, channelID string, limit int) ([]provider.Message, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var out []provider.Message
	err := c.do(ctx, s, http.MethodGet, c.channelPath(s, channelID, "messages"), q, nil, &out)
	return out, err
}

type sendBody struct {
	Text     string          `json:"text,omitempty"`
	QuotedID string          `json:"quotedId,omitempty"`
	Media    *provider.Media `json:"media,omitempty"`
}

// SendText sends a text message.
func (c *Client) SendText(ctx context.Context, s provider.Session, channelID, text string) (provider.Message, error) {
	return c.send(ctx, s, channelID, sendBody{Text: text})
}

// SendMedia sends a media message.
func (c *Client) SendMedia(ctx context.Context, s provider.Session, channelID string, media provider.Media) (provider.Message, error) {
	return c.send(ctx, s, channelID, sendBody{Media: &media})
}

// Reply sends text quoting quotedID.
func (c *Client) Reply(ctx context.Context, s provider.Session, channelID, quotedID, text string) (provider.Message, error) {
	return c.send(ctx, s, channelID, sendBody{Text: text, QuotedID: quotedID})
}

func (c *Client) send(ctx context.Context, s provider.Session, channelID string, body sendBody) (provider.Message, error) {
	var out provider.Message
	err := c.do(ctx, s, http.MethodPost, c.channelPath(s, channelID, "messages"), nil, body, &out)
	if err == nil && out.ChannelID == "" {
		out.ChannelID = channelID
	}
	return out, err
}

// Edit replaces a message body.
func (c *Client) Edit(ctx context.Context, s provider.Session, channelID, messageID, body string) (provider.EditResult, error) {
	var out provider.EditResult
	err := c.do(ctx, s, http.MethodPatch, c.messagePath(s, channelID, messageID), nil,
		map[string]string{"body": body}, &out)
	return out, err
}

// Delete removes a message, optionally for everyone.
func (c *Client) Delete(ctx context.Context, s provider.Session, channelID, messageID string, forEveryone bool) (bool, error) {
	q := url.Values{"forEveryone": {strconv.FormatBool(forEveryone)}}
	var out struct {
		Success bool `json:"success"`
	}
	err := c.do(ctx, s, http.MethodDelete, c.messagePath(s, channelID, messageID), q, nil, &out)
	return out.Success, err
}

// Forward copies a message into another channel.
func (c *Client) Forward(ctx context.Context, s provider.Session, channelID, messageID, toChannelID string) (provider.Message, error) {
	var out provider.Message
	err := c.do(ctx, s, http.MethodPost, c.messagePath(s, channelID, messageID)+"/forward", nil,
		map[string]string{"to": toChannelID}, &out)
	return out, err
}

// Batch submits a batch dispatch.
func (c *Client) Batch(ctx context.Context, s provider.Session, req provider.BatchRequest) (provider.BatchAck, error) {
	var out provider.BatchAck
	err := c.do(ctx, s, http.MethodPost, c.ownerPath(s, "batch"), nil, req, &out)
	if err == nil && out.Recipients == 0 {
		out.Recipients = len(req.ChatIDs)
	}
	return out, err
}

// Groups lists recipient groups.
func (c *Client) Groups(ctx context.Context, s provider.Session) ([]provider.Group, error) {
	var out []provider.Group
	err := c.do(ctx, s, http.MethodGet, c.ownerPath(s, "groups"), nil, nil, &out)
	return out, err
}

// AllLinked lists every channel with a linked record.
func (c *Client) AllLinked(ctx context.Context, s provider.Session) ([]provider.Member, error) {
	var out []provider.Member
	err := c.do(ctx, s, http.MethodGet, c.ownerPath(s, "linked"), nil, nil, &out)
	return out, err
}

// MarkRead marks a channel read.
func (c *Client) MarkRead(ctx context.Context, s provider.Session, channelID string) error {
	return c.do(ctx, s, http.MethodPost, c.channelPath(s, channelID, "read"), nil, nil, nil)
}

// SetArchived archives or unarchives a channel.
func (c *Client) SetArchived(ctx context.Context, s provider.Session, channelID string, archived bool) error {
	return c.do(ctx, s, http.MethodPost, c.channelPath(s, channelID, "archive"), nil,
		map[string]bool{"archived": archived}, nil)
}

func (c *Client) ownerPath(s provider.Session, rest string) string {
	return "/owners/" + url.PathEscape(s.OwnerID) + "/" + rest
}

func (c *Client) channelPath(s provider.Session, channelID, rest string) string {
	return c.ownerPath(s, "conversations/"+url.PathEscape(channelID)+"/"+rest)
}

func (c *Client) messagePath(s provider.Session, channelID, messageID string) string {
	return c.channelPath(s, channelID, "messages/"+url.PathEscape(messageID))
}

// do performs one request. A nil out discards the response body.
func (c *Client) do(ctx context.Context, s provider.Session, method, path string, query url.Values, body, out any) error {
	if !s.Valid() {
		return fmt.Errorf("%s %s: missing owner id", method, path)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
