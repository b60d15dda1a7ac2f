package api

import (
	"context"
	"time"

	"github.com/matheus3301/leadchat/internal/inbox"
	"github.com/matheus3301/leadchat/internal/status"
	"github.com/matheus3301/leadchat/internal/store"
	"github.com/matheus3301/leadchat/internal/wa"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Pairing is the connection side of a provider that pairs a device.
type Pairing interface {
	StartQRAuth(ctx context.Context) (<-chan wa.AuthEvent, error)
	Connect() error
	Disconnect()
	Logout(ctx context.Context) error
	PhoneNumber() string
}

// SessionService implements the SessionService gRPC service.
type SessionService struct {
	sessionName  string
	providerKind string
	startedAt    time.Time
	machine      *status.Machine
	pairing      Pairing
	inbox        *inbox.Inbox
	db           *store.DB
}

var _ SessionServer = (*SessionService)(nil)

// NewSessionService creates a new session service. pairing and db are nil
// for providers that are not paired locally.
func NewSessionService(sessionName, providerKind string, machine *status.Machine, pairing Pairing, in *inbox.Inbox, db *store.DB) *SessionService {
	return &SessionService{
		sessionName:  sessionName,
		providerKind: providerKind,
		startedAt:    time.Now(),
		machine:      machine,
		pairing:      pairing,
		inbox:        in,
		db:           db,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *Empty) (*StatusResponse, error) {
	snap := s.machine.Snapshot()
	resp := &StatusResponse{
		Session:     s.sessionName,
		Provider:    s.providerKind,
		State:       string(snap.State),
		SinceUnixMs: snap.Since.UnixMilli(),
		UptimeMs:    time.Since(s.startedAt).Milliseconds(),
	}
	if s.inbox != nil {
		if sess, err := s.inbox.Session(); err == nil {
			resp.Owner = sess.OwnerID
		}
		resp.Unread = s.inbox.Registry().Unread()
	}
	if s.pairing != nil {
		resp.PhoneNumber = s.pairing.PhoneNumber()
	}
	if s.db != nil {
		if counts, err := s.db.Counts(); err == nil {
			resp.Counts = &counts
		}
	}
	return resp, nil
}

func (s *SessionService) StartAuth(_ *Empty, stream grpc.ServerStreamingServer[AuthEvent]) error {
	if s.pairing == nil {
		return grpcstatus.Errorf(codes.Unimplemented, "provider %q does not pair locally", s.providerKind)
	}
	authCh, err := s.pairing.StartQRAuth(stream.Context())
	if err != nil {
		return grpcstatus.Errorf(codes.Internal, "start auth: %v", err)
	}
	for evt := range authCh {
		if err := stream.Send(&AuthEvent{
			Type:    string(evt.Type),
			QRCode:  evt.QRCode,
			Message: evt.Message,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionService) Connect(_ context.Context, _ *Empty) (*Ack, error) {
	if s.pairing == nil {
		return nil, grpcstatus.Errorf(codes.Unimplemented, "provider %q connects on its own", s.providerKind)
	}
	switch s.machine.Current() {
	case status.Syncing, status.Ready:
		return &Ack{OK: true, Message: "already connected"}, nil
	}
	if err := s.pairing.Connect(); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "connect: %v", err)
	}
	return &Ack{OK: true, Message: "connecting"}, nil
}

func (s *SessionService) Disconnect(_ context.Context, _ *Empty) (*Ack, error) {
	if s.pairing == nil {
		return nil, grpcstatus.Errorf(codes.Unimplemented, "provider %q connects on its own", s.providerKind)
	}
	s.pairing.Disconnect()
	return &Ack{OK: true, Message: "disconnected"}, nil
}

func (s *SessionService) Logout(ctx context.Context, _ *Empty) (*Ack, error) {
	if s.pairing == nil {
		return nil, grpcstatus.Errorf(codes.Unimplemented, "provider %q does not pair locally", s.providerKind)
	}
	if err := s.pairing.Logout(ctx); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "logout: %v", err)
	}
	return &Ack{OK: true, Message: "logged out"}, nil
}
