package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/leadchat/internal/history"
	"github.com/matheus3301/leadchat/internal/inbox"
	"github.com/matheus3301/leadchat/internal/store"
	intsync "github.com/matheus3301/leadchat/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// MessageService implements the MessageService gRPC service.
type MessageService struct {
	inbox *inbox.Inbox
	db    *store.DB
}

var _ MessageServer = (*MessageService)(nil)

// NewMessageService creates a message service. db backs Search and may be
// nil when the provider keeps no local mirror.
func NewMessageService(in *inbox.Inbox, db *store.DB) *MessageService {
	return &MessageService{inbox: in, db: db}
}

// LoadHistory returns the buffered history of the active conversation
// without fetching.
func (s *MessageService) LoadHistory(_ context.Context, req *ChannelRequest) (*HistoryResponse, error) {
	pager := s.inbox.Pager()
	if active := pager.Active(); req.ChannelID != "" && active != req.ChannelID {
		return nil, toStatus(fmt.Errorf("%w: %s", history.ErrNotActive, req.ChannelID))
	}
	return historyResponse(pager.Snapshot()), nil
}

func (s *MessageService) LoadMore(ctx context.Context, req *LoadMoreRequest) (*HistoryResponse, error) {
	snap, err := s.inbox.LoadMore(ctx, req.ChannelID, req.ExpandedLimit)
	if err != nil {
		return nil, toStatus(err)
	}
	return historyResponse(snap), nil
}

func (s *MessageService) SendText(ctx context.Context, req *SendTextRequest) (*MessageResponse, error) {
	msg, err := s.inbox.SendText(ctx, req.ChannelID, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageResponse{Message: msg}, nil
}

func (s *MessageService) SendMedia(ctx context.Context, req *SendMediaRequest) (*MessageResponse, error) {
	msg, err := s.inbox.SendMedia(ctx, req.ChannelID, req.Media)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageResponse{Message: msg}, nil
}

func (s *MessageService) Reply(ctx context.Context, req *ReplyRequest) (*MessageResponse, error) {
	msg, err := s.inbox.Reply(ctx, req.ChannelID, req.QuotedID, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageResponse{Message: msg}, nil
}

func (s *MessageService) Edit(ctx context.Context, req *EditRequest) (*EditResponse, error) {
	res, err := s.inbox.Edit(ctx, req.ChannelID, req.MessageID, req.Body)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EditResponse{OK: res.OK, Body: res.Body}, nil
}

func (s *MessageService) Delete(ctx context.Context, req *DeleteRequest) (*Ack, error) {
	ok, err := s.inbox.Delete(ctx, req.ChannelID, req.MessageID, req.ForEveryone)
	if err != nil {
		return nil, toStatus(err)
	}
	return &Ack{OK: ok}, nil
}

func (s *MessageService) Forward(ctx context.Context, req *ForwardRequest) (*MessageResponse, error) {
	msg, err := s.inbox.Forward(ctx, req.ChannelID, req.MessageID, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MessageResponse{Message: msg}, nil
}

func (s *MessageService) Search(_ context.Context, req *SearchRequest) (*SearchResponse, error) {
	if s.db == nil {
		return nil, grpcstatus.Error(codes.Unimplemented, "search needs the local message store")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "search query is empty")
	}
	results, err := s.db.SearchMessages(req.Query, req.ChannelID, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "search messages: %v", err)
	}
	resp := &SearchResponse{Results: make([]SearchHit, 0, len(results))}
	for _, r := range results {
		resp.Results = append(resp.Results, SearchHit{
			Message: intsync.ProviderMessage(r.Message),
			Snippet: r.Snippet,
		})
	}
	return resp, nil
}
