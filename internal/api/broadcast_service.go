package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/leadchat/internal/dispatch"
	"github.com/matheus3301/leadchat/internal/inbox"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/recipients"
	"github.com/matheus3301/leadchat/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// BroadcastService implements the BroadcastService gRPC service.
type BroadcastService struct {
	inbox *inbox.Inbox
	db    *store.DB
}

var _ BroadcastServer = (*BroadcastService)(nil)

// NewBroadcastService creates a broadcast service. db backs ImportRecords and
// may be nil when records live with the remote provider.
func NewBroadcastService(in *inbox.Inbox, db *store.DB) *BroadcastService {
	return &BroadcastService{inbox: in, db: db}
}

func (s *BroadcastService) ListGroups(ctx context.Context, _ *Empty) (*GroupList, error) {
	groups, err := s.inbox.Groups(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GroupList{Groups: groups}, nil
}

// Resolve loads the source into the picker and applies the filters. Omitted
// status or service lists enable every value present.
func (s *BroadcastService) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	entries, err := s.inbox.LoadRecipients(ctx, recipients.Source{GroupID: req.GroupID, AllLinked: req.AllLinked})
	if err != nil {
		return nil, toStatus(err)
	}

	criteria := recipients.Permissive(entries)
	if len(req.Statuses) > 0 {
		criteria.Statuses = req.Statuses
	}
	if len(req.Services) > 0 {
		criteria.Services = req.Services
	}
	criteria.From, criteria.To = req.From, req.To
	filtered := s.inbox.Picker().SetCriteria(criteria)

	resp := &ResolveResponse{
		Recipients: make([]Recipient, len(filtered)),
		Total:      len(entries),
		Statuses:   recipients.Statuses(entries),
		Services:   recipients.Services(entries),
	}
	for i, e := range filtered {
		resp.Recipients[i] = Recipient{ChannelID: e.ChannelID, Record: e.Record}
	}
	return resp, nil
}

// Dispatch broadcasts to the picker's filtered recipients, narrowed to
// ChannelIDs when given.
func (s *BroadcastService) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResponse, error) {
	picker := s.inbox.Picker()
	picker.Clear()
	if len(req.ChannelIDs) == 0 {
		picker.SelectAll()
	} else {
		picker.Select(req.ChannelIDs...)
	}

	s.inbox.SetCompose(inbox.Compose{
		Items: req.Items,
		Timing: dispatch.Timing{
			Interval:                 req.Interval,
			BigInterval:              req.BigInterval,
			MessagesUntilBigInterval: req.MessagesUntilBigInterval,
		},
	})
	ack, err := s.inbox.Broadcast(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DispatchResponse{Ack: ack}, nil
}

// ImportRecords writes linked records and groups into the local store.
// Records carried inside group members are imported too.
func (s *BroadcastService) ImportRecords(_ context.Context, req *ImportRequest) (*ImportResponse, error) {
	if s.db == nil {
		return nil, grpcstatus.Error(codes.Unimplemented, "records are managed by the remote provider")
	}

	var records []store.LinkedRecord
	addRecord := func(m provider.Member) {
		if m.LinkedRecord == nil || m.ChannelID == "" {
			return
		}
		r := m.LinkedRecord
		id := r.ID
		if id == "" {
			id = m.ChannelID
		}
		records = append(records, store.LinkedRecord{
			ID:         id,
			ChannelID:  m.ChannelID,
			Name:       r.Name,
			FirstName:  r.FirstName,
			Status:     r.Status,
			Service:    r.Service,
			RecordDate: r.Date,
		})
	}
	for _, m := range req.Records {
		addRecord(m)
	}
	for _, g := range req.Groups {
		for _, m := range g.Members {
			addRecord(m)
		}
	}
	if len(records) > 0 {
		if err := s.db.ImportRecords(records); err != nil {
			return nil, grpcstatus.Errorf(codes.InvalidArgument, "import records: %v", err)
		}
	}

	for _, g := range req.Groups {
		if g.ID == "" {
			return nil, grpcstatus.Error(codes.InvalidArgument, fmt.Sprintf("group %q has no id", g.Name))
		}
		members := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			if m.ChannelID != "" {
				members = append(members, m.ChannelID)
			}
		}
		if err := s.db.UpsertGroup(&store.Group{ID: g.ID, Name: g.Name, Members: members}); err != nil {
			return nil, grpcstatus.Errorf(codes.Internal, "import group %s: %v", g.ID, err)
		}
	}
	return &ImportResponse{Records: len(records), Groups: len(req.Groups)}, nil
}
