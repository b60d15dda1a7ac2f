package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/inbox"
	"github.com/matheus3301/leadchat/internal/registry"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// DefaultWatchKinds are the event prefixes streamed when a watcher names none.
var DefaultWatchKinds = []string{
	bus.KindRegistryChanged,
	bus.KindHistoryChanged,
	bus.KindStatusChanged,
	bus.KindBatchProgress,
	bus.KindAuthQR,
}

// ConversationService implements the ConversationService gRPC service.
type ConversationService struct {
	inbox  *inbox.Inbox
	bus    *bus.Bus
	logger *zap.Logger
}

var _ ConversationServer = (*ConversationService)(nil)

// NewConversationService creates a conversation service over the inbox.
func NewConversationService(in *inbox.Inbox, b *bus.Bus, logger *zap.Logger) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{inbox: in, bus: b, logger: logger}
}

func (s *ConversationService) List(_ context.Context, req *ListRequest) (*ConversationList, error) {
	return s.list(req), nil
}

func (s *ConversationService) Refresh(ctx context.Context, req *ListRequest) (*ConversationList, error) {
	if err := s.inbox.Refresh(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.list(req), nil
}

func (s *ConversationService) list(req *ListRequest) *ConversationList {
	reg := s.inbox.Registry()
	snap := reg.Snapshot()
	resp := &ConversationList{
		Conversations: s.inbox.Conversations(registry.View{Filter: req.Filter, ShowArchived: req.ShowArchived}),
		Active:        snap.Active,
		Unread:        reg.Unread(),
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	return resp
}

func (s *ConversationService) Select(ctx context.Context, req *ChannelRequest) (*HistoryResponse, error) {
	snap, err := s.inbox.Select(ctx, req.ChannelID)
	if err != nil {
		return nil, toStatus(err)
	}
	return historyResponse(snap), nil
}

func (s *ConversationService) SetArchived(ctx context.Context, req *ArchiveRequest) (*Ack, error) {
	if err := s.inbox.SetArchived(ctx, req.ChannelID, req.Archived); err != nil {
		return nil, toStatus(err)
	}
	return &Ack{OK: true}, nil
}

// Watch streams bus events whose kind starts with one of the requested
// prefixes until the client goes away.
func (s *ConversationService) Watch(req *WatchRequest, stream grpc.ServerStreamingServer[Event]) error {
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = DefaultWatchKinds
	}
	ch, unsub := s.bus.Subscribe("", 128)
	defer unsub()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			if !hasAnyPrefix(evt.Kind, kinds) {
				continue
			}
			out := &Event{
				ID:               uuid.New().String(),
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
			}
			if evt.Payload != nil {
				payload, err := json.Marshal(evt.Payload)
				if err != nil {
					s.logger.Warn("dropping unencodable event payload", zap.String("kind", evt.Kind), zap.Error(err))
				} else {
					out.Payload = payload
				}
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
