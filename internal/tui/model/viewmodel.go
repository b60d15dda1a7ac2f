package model

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/matheus3301/leadchat/internal/api"
	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/provider"
)

// Daemon is the subset of the daemon client the view model drives.
type Daemon interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Conversations(ctx context.Context, req *api.ListRequest) (*api.ConversationList, error)
	Refresh(ctx context.Context, req *api.ListRequest) (*api.ConversationList, error)
	Select(ctx context.Context, channelID string) (*api.HistoryResponse, error)
	SetArchived(ctx context.Context, channelID string, archived bool) (*api.Ack, error)
	History(ctx context.Context, channelID string) (*api.HistoryResponse, error)
	LoadMore(ctx context.Context, channelID string, expandedLimit int) (*api.HistoryResponse, error)
	SendText(ctx context.Context, channelID, text string) (*api.MessageResponse, error)
	Search(ctx context.Context, req *api.SearchRequest) (*api.SearchResponse, error)
	Resolve(ctx context.Context, req *api.ResolveRequest) (*api.ResolveResponse, error)
	Dispatch(ctx context.Context, req *api.DispatchRequest) (*api.DispatchResponse, error)
	Logout(ctx context.Context) (*api.Ack, error)
}

var _ Daemon = (*api.Client)(nil)

// ViewModel caches daemon state for the views. Event kinds received from the
// watch stream tell the app which parts to reload.
type ViewModel struct {
	mu sync.RWMutex

	daemon        Daemon
	Status        *api.StatusResponse
	Conversations []provider.Conversation
	Unread        int
	ShowArchived  bool
	History       *api.HistoryResponse
	Recipients    *api.ResolveResponse
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{daemon: d}
}

// LoadStatus fetches current session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.daemon.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Status = resp
	vm.mu.Unlock()
	return nil
}

// LoadConversations fetches the registry view. refresh reloads it from the
// provider first.
func (vm *ViewModel) LoadConversations(ctx context.Context, refresh bool) error {
	vm.mu.RLock()
	req := &api.ListRequest{ShowArchived: vm.ShowArchived}
	vm.mu.RUnlock()

	call := vm.daemon.Conversations
	if refresh {
		call = vm.daemon.Refresh
	}
	resp, err := call(ctx, req)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Conversations = resp.Conversations
	vm.Unread = resp.Unread
	vm.mu.Unlock()
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

// ToggleArchived flips between the active and the full conversation list.
func (vm *ViewModel) ToggleArchived() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.ShowArchived = !vm.ShowArchived
	return vm.ShowArchived
}

// ShowingArchived reports whether archived conversations are listed.
func (vm *ViewModel) ShowingArchived() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.ShowArchived
}

// UnreadCount returns the total unread count of the last listing.
func (vm *ViewModel) UnreadCount() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Unread
}

// Open selects a conversation and caches its history.
func (vm *ViewModel) Open(ctx context.Context, channelID string) error {
	resp, err := vm.daemon.Select(ctx, channelID)
	if err != nil {
		return err
	}
	vm.setHistory(resp)
	return nil
}

// ReloadHistory re-reads the daemon's buffer for the open conversation.
func (vm *ViewModel) ReloadHistory(ctx context.Context) error {
	channelID := vm.ActiveChannel()
	if channelID == "" {
		return nil
	}
	resp, err := vm.daemon.History(ctx, channelID)
	if err != nil {
		return err
	}
	vm.setHistory(resp)
	return nil
}

// LoadOlder pages further back. It reports false when the start was already
// reached.
func (vm *ViewModel) LoadOlder(ctx context.Context) (bool, error) {
	vm.mu.RLock()
	h := vm.History
	vm.mu.RUnlock()
	if h == nil || h.ReachedStart || h.Loading {
		return false, nil
	}
	resp, err := vm.daemon.LoadMore(ctx, h.ChannelID, 0)
	if err != nil {
		return false, err
	}
	vm.setHistory(resp)
	return true, nil
}

func (vm *ViewModel) setHistory(h *api.HistoryResponse) {
	vm.mu.Lock()
	vm.History = h
	vm.mu.Unlock()
}

// ActiveChannel returns the open conversation, or "".
func (vm *ViewModel) ActiveChannel() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.History == nil {
		return ""
	}
	return vm.History.ChannelID
}

// SendText sends text to the open conversation.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	channelID := vm.ActiveChannel()
	if channelID == "" {
		return errors.New("no conversation open")
	}
	_, err := vm.daemon.SendText(ctx, channelID, text)
	return err
}

// Archive archives or unarchives a conversation.
func (vm *ViewModel) Archive(ctx context.Context, channelID string, archived bool) error {
	_, err := vm.daemon.SetArchived(ctx, channelID, archived)
	return err
}

// Search queries the local message index.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]api.SearchHit, error) {
	resp, err := vm.daemon.Search(ctx, &api.SearchRequest{Query: query, Limit: 50})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Resolve loads and filters broadcast recipients.
func (vm *ViewModel) Resolve(ctx context.Context, req *api.ResolveRequest) (*api.ResolveResponse, error) {
	resp, err := vm.daemon.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.Recipients = resp
	vm.mu.Unlock()
	return resp, nil
}

// Dispatch broadcasts text to the resolved recipients, or to channelIDs
// among them when given.
func (vm *ViewModel) Dispatch(ctx context.Context, text string, channelIDs []string) (provider.BatchAck, error) {
	resp, err := vm.daemon.Dispatch(ctx, &api.DispatchRequest{
		Items:      []provider.Item{{Text: text}},
		ChannelIDs: channelIDs,
	})
	if err != nil {
		return provider.BatchAck{}, err
	}
	return resp.Ack, nil
}

// Logout unpairs the session.
func (vm *ViewModel) Logout(ctx context.Context) error {
	_, err := vm.daemon.Logout(ctx)
	return err
}

// GetConversations returns a snapshot of the current list.
func (vm *ViewModel) GetConversations() []provider.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Conversations
}

// GetHistory returns the cached history, or nil.
func (vm *ViewModel) GetHistory() *api.HistoryResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.History
}

// GetStatus returns a snapshot of session status.
func (vm *ViewModel) GetStatus() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status
}

// Conversation returns the cached entry for channelID.
func (vm *ViewModel) Conversation(channelID string) (provider.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.Conversations {
		if c.ChannelID == channelID {
			return c, true
		}
	}
	return provider.Conversation{}, false
}

// Reload names the parts of the model an event invalidates.
type Reload struct {
	Status        bool
	Conversations bool
	History       bool
}

// ReloadFor maps an event kind to the parts it invalidates.
func ReloadFor(kind string) Reload {
	switch kind {
	case bus.KindStatusChanged:
		return Reload{Status: true}
	case bus.KindRegistryChanged:
		return Reload{Conversations: true}
	case bus.KindHistoryChanged:
		return Reload{History: true}
	case bus.KindBatchProgress:
		return Reload{Status: true}
	default:
		return Reload{}
	}
}

// Watch streams daemon events and calls fn for each until ctx ends or the
// stream breaks.
func Watch(ctx context.Context, c *api.Client, fn func(api.Event)) error {
	stream, err := c.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		fn(*evt)
	}
}
