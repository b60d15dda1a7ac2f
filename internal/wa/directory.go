package wa

import (
	"context"

	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/store"
	intsync "github.com/matheus3301/leadchat/internal/sync"
	"go.uber.org/zap"
)

// Directory exposes the device store's address book.
type Directory interface {
	GetContacts(ctx context.Context) []store.Contact
	GetLIDMappings(ctx context.Context) []store.LIDMapping
}

// DirectorySync refreshes mirrored contacts and folds LID chats into their
// phone-number chats whenever the connection comes up or a history batch lands.
type DirectorySync struct {
	db         *store.DB
	dir        Directory
	reconciler *intsync.Reconciler
	bus        *bus.Bus
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewDirectorySync creates a directory syncer.
func NewDirectorySync(db *store.DB, dir Directory, r *intsync.Reconciler, b *bus.Bus, logger *zap.Logger) *DirectorySync {
	return &DirectorySync{db: db, dir: dir, reconciler: r, bus: b, logger: logging.OrNop(logger)}
}

// Start subscribes to the sync namespace.
func (d *DirectorySync) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	ch, unsub := d.bus.Subscribe("sync.", 16)

	go func() {
		defer close(d.done)
		defer unsub()
		for {
			select {
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if evt.Kind == KindConnected || evt.Kind == bus.KindHistorySynced {
					d.Refresh(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the syncer and waits for it to exit.
func (d *DirectorySync) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

// Refresh imports contacts and reconciles LID chats once.
func (d *DirectorySync) Refresh(ctx context.Context) {
	if contacts := d.dir.GetContacts(ctx); len(contacts) > 0 {
		if err := d.db.BulkUpsertContacts(contacts); err != nil {
			d.logger.Warn("failed to import contacts", zap.Error(err))
		}
	}
	if _, err := d.reconciler.Reconcile(d.dir.GetLIDMappings(ctx)); err != nil {
		d.logger.Warn("failed to reconcile LID chats", zap.Error(err))
	}
}
