package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed client for the daemon services.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection. The connection must use the JSON
// content subtype.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Res any](ctx context.Context, c *Client, service, method string, req any) (*Res, error) {
	out := new(Res)
	if err := c.conn.Invoke(ctx, fullMethod(service, method), req, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func openStream[Req any, Res any](ctx context.Context, c *Client, desc *grpc.ServiceDesc, index int, req *Req) (grpc.ServerStreamingClient[Res], error) {
	sd := &desc.Streams[index]
	stream, err := c.conn.NewStream(ctx, sd, "/"+desc.ServiceName+"/"+sd.StreamName, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Res]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// Status returns the session status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "SessionService", "GetStatus", &Empty{})
}

// StartAuth streams pairing events.
func (c *Client) StartAuth(ctx context.Context) (grpc.ServerStreamingClient[AuthEvent], error) {
	return openStream[Empty, AuthEvent](ctx, c, &sessionServiceDesc, 0, &Empty{})
}

// Connect asks the daemon to connect the provider.
func (c *Client) Connect(ctx context.Context) (*Ack, error) {
	return invoke[Ack](ctx, c, "SessionService", "Connect", &Empty{})
}

// Disconnect asks the daemon to disconnect the provider.
func (c *Client) Disconnect(ctx context.Context) (*Ack, error) {
	return invoke[Ack](ctx, c, "SessionService", "Disconnect", &Empty{})
}

// Logout removes the paired device.
func (c *Client) Logout(ctx context.Context) (*Ack, error) {
	return invoke[Ack](ctx, c, "SessionService", "Logout", &Empty{})
}

// Conversations lists the registry through a view.
func (c *Client) Conversations(ctx context.Context, req *ListRequest) (*ConversationList, error) {
	return invoke[ConversationList](ctx, c, "ConversationService", "List", req)
}

// Refresh reloads the conversation list from the provider.
func (c *Client) Refresh(ctx context.Context, req *ListRequest) (*ConversationList, error) {
	return invoke[ConversationList](ctx, c, "ConversationService", "Refresh", req)
}

// Select makes a conversation active and returns its history.
func (c *Client) Select(ctx context.Context, channelID string) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c, "ConversationService", "Select", &ChannelRequest{ChannelID: channelID})
}

// SetArchived archives or unarchives a conversation.
func (c *Client) SetArchived(ctx context.Context, channelID string, archived bool) (*Ack, error) {
	return invoke[Ack](ctx, c, "ConversationService", "SetArchived", &ArchiveRequest{ChannelID: channelID, Archived: archived})
}

// Watch streams daemon events.
func (c *Client) Watch(ctx context.Context, kinds ...string) (grpc.ServerStreamingClient[Event], error) {
	return openStream[WatchRequest, Event](ctx, c, &conversationServiceDesc, 0, &WatchRequest{Kinds: kinds})
}

// History returns the buffered history of the active conversation.
func (c *Client) History(ctx context.Context, channelID string) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c, "MessageService", "LoadHistory", &ChannelRequest{ChannelID: channelID})
}

// LoadMore pages further back in the active conversation.
func (c *Client) LoadMore(ctx context.Context, channelID string, expandedLimit int) (*HistoryResponse, error) {
	return invoke[HistoryResponse](ctx, c, "MessageService", "LoadMore", &LoadMoreRequest{ChannelID: channelID, ExpandedLimit: expandedLimit})
}

// SendText sends text to a conversation.
func (c *Client) SendText(ctx context.Context, channelID, text string) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c, "MessageService", "SendText", &SendTextRequest{ChannelID: channelID, Text: text})
}

// SendMedia sends media to a conversation.
func (c *Client) SendMedia(ctx context.Context, req *SendMediaRequest) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c, "MessageService", "SendMedia", req)
}

// Reply sends text quoting a message.
func (c *Client) Reply(ctx context.Context, req *ReplyRequest) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c, "MessageService", "Reply", req)
}

// Edit replaces a message body.
func (c *Client) Edit(ctx context.Context, req *EditRequest) (*EditResponse, error) {
	return invoke[EditResponse](ctx, c, "MessageService", "Edit", req)
}

// Delete deletes a message.
func (c *Client) Delete(ctx context.Context, req *DeleteRequest) (*Ack, error) {
	return invoke[Ack](ctx, c, "MessageService", "Delete", req)
}

// Forward copies a message into another conversation.
func (c *Client) Forward(ctx context.Context, req *ForwardRequest) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c, "MessageService", "Forward", req)
}

// Search queries the local message index.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	return invoke[SearchResponse](ctx, c, "MessageService", "Search", req)
}

// Groups lists recipient groups.
func (c *Client) Groups(ctx context.Context) (*GroupList, error) {
	return invoke[GroupList](ctx, c, "BroadcastService", "ListGroups", &Empty{})
}

// Resolve loads and filters recipients.
func (c *Client) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	return invoke[ResolveResponse](ctx, c, "BroadcastService", "Resolve", req)
}

// Dispatch broadcasts to the resolved recipients.
func (c *Client) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	return invoke[DispatchResponse](ctx, c, "BroadcastService", "Dispatch", req)
}

// ImportRecords loads linked records and groups into the local store.
func (c *Client) ImportRecords(ctx context.Context, req *ImportRequest) (*ImportResponse, error) {
	return invoke[ImportResponse](ctx, c, "BroadcastService", "ImportRecords", req)
}
