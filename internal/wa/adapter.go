package wa

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/appstate"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// Sent is the server acknowledgement of an outgoing message.
type Sent struct {
	ID        string
	Timestamp time.Time
}

// Messenger is the subset of the WhatsApp client the local provider uses.
type Messenger interface {
	Send(ctx context.Context, jid string, msg *waE2E.Message) (Sent, error)
	Upload(ctx context.Context, data []byte, kind provider.ContentKind) (whatsmeow.UploadResponse, error)
	BuildEdit(jid, msgID string, content *waE2E.Message) (*waE2E.Message, error)
	BuildRevoke(jid, msgID string) (*waE2E.Message, error)
	MarkRead(ctx context.Context, jid, sender string, msgIDs []string) error
	SetArchived(ctx context.Context, jid string, archived bool, last time.Time) error
}

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	logger    *zap.Logger
}

var _ Messenger = (*Adapter)(nil)

// NewAdapter creates a new WhatsApp adapter backed by the device store at dbPath.
func NewAdapter(ctx context.Context, dbPath string, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Set device name shown on the phone's linked devices list.
	wastore.SetOSInfo("leadchat", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	return &Adapter{
		client:    client,
		container: container,
		bus:       b,
		logger:    logging.OrNop(logger),
	}, nil
}

// Client returns the underlying whatsmeow client.
func (a *Adapter) Client() *whatsmeow.Client {
	return a.client
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Connect initiates the WhatsApp connection.
func (a *Adapter) Connect() error {
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// Send delivers a message to the given JID.
func (a *Adapter) Send(ctx context.Context, jid string, msg *waE2E.Message) (Sent, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return Sent{}, fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, msg)
	if err != nil {
		return Sent{}, fmt.Errorf("send message: %w", err)
	}
	return Sent{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

// Upload encrypts and uploads media for the given content kind.
func (a *Adapter) Upload(ctx context.Context, data []byte, kind provider.ContentKind) (whatsmeow.UploadResponse, error) {
	mediaType := whatsmeow.MediaDocument
	switch kind {
	case provider.KindImage, provider.KindSticker:
		mediaType = whatsmeow.MediaImage
	case provider.KindVideo:
		mediaType = whatsmeow.MediaVideo
	case provider.KindAudio:
		mediaType = whatsmeow.MediaAudio
	}
	up, err := a.client.Upload(ctx, data, mediaType)
	if err != nil {
		return up, fmt.Errorf("upload %s: %w", kind, err)
	}
	return up, nil
}

// BuildEdit wraps new content as an edit of msgID.
func (a *Adapter) BuildEdit(jid, msgID string, content *waE2E.Message) (*waE2E.Message, error) {
	chat, err := types.ParseJID(jid)
	if err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}
	return a.client.BuildEdit(chat, types.MessageID(msgID), content), nil
}

// BuildRevoke builds a delete-for-everyone of one of our own messages.
func (a *Adapter) BuildRevoke(jid, msgID string) (*waE2E.Message, error) {
	chat, err := types.ParseJID(jid)
	if err != nil {
		return nil, fmt.Errorf("parse JID: %w", err)
	}
	return a.client.BuildRevoke(chat, types.EmptyJID, types.MessageID(msgID)), nil
}

// MarkRead sends read receipts for msgIDs. sender is only needed in groups.
func (a *Adapter) MarkRead(ctx context.Context, jid, sender string, msgIDs []string) error {
	chat, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("parse JID: %w", err)
	}
	var from types.JID
	if sender != "" {
		if from, err = types.ParseJID(sender); err != nil {
			return fmt.Errorf("parse sender: %w", err)
		}
	}
	ids := make([]types.MessageID, len(msgIDs))
	for i, id := range msgIDs {
		ids[i] = types.MessageID(id)
	}
	return a.client.MarkRead(ctx, ids, time.Now(), chat, from)
}

// SetArchived archives or unarchives a chat through app state.
func (a *Adapter) SetArchived(ctx context.Context, jid string, archived bool, last time.Time) error {
	chat, err := types.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("parse JID: %w", err)
	}
	return a.client.SendAppState(ctx, appstate.BuildArchive(chat, archived, last, nil))
}

// GetQRChannel returns the QR channel for pairing. Must be called before Connect.
func (a *Adapter) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	if a.IsLoggedIn() {
		return nil, fmt.Errorf("already logged in")
	}
	ch, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	return ch, nil
}

// GetContacts returns all contacts from the whatsmeow device store.
func (a *Adapter) GetContacts(ctx context.Context) []store.Contact {
	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		a.logger.Warn("failed to get contacts from device store", zap.Error(err))
		return nil
	}
	var contacts []store.Contact
	for jid, info := range allContacts {
		contacts = append(contacts, store.Contact{
			JID:      jid.ToNonAD().String(),
			Name:     info.FullName,
			PushName: info.PushName,
		})
	}
	return contacts
}

// PhoneNumber returns the phone number from the device store, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// GetLIDMappings returns all LID-to-PN mappings from the whatsmeow device store.
func (a *Adapter) GetLIDMappings(ctx context.Context) []store.LIDMapping {
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return nil
	}

	// There is no bulk "get all LID mappings" API, so resolve one LID per
	// phone-number contact.
	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil
	}

	var mappings []store.LIDMapping
	for jid := range allContacts {
		normalized := jid.ToNonAD()
		if normalized.Server == types.DefaultUserServer {
			lid, err := a.client.Store.LIDs.GetLIDForPN(ctx, normalized)
			if err == nil && !lid.IsEmpty() {
				mappings = append(mappings, store.LIDMapping{
					LID: lid.User,
					PN:  normalized.User,
				})
			}
		}
	}
	return mappings
}

// ResolveLID resolves a LID JID to its phone number JID using the device store mapping.
// Returns the original JID if it's not a LID or if resolution fails.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}
