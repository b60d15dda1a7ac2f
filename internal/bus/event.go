package bus

import "time"

// Event kinds published across the daemon.
const (
	KindStatusChanged   = "session.status_changed"
	KindRegistryChanged = "registry.changed"
	KindHistoryChanged  = "history.changed"
	KindMessageUpserted = "message.upserted"
	KindBatchProgress   = "batch.progress"
	KindAuthQR          = "auth.qr"

	// Raw WhatsApp events published by the whatsmeow handler and consumed
	// by the sync engine.
	KindWAMessage      = "wa.message"
	KindWAHistory      = "wa.history_batch"
	KindWAEdit         = "wa.edit"
	KindWARevoke       = "wa.revoke"
	KindWAArchive      = "wa.archive"
	KindWAContact      = "wa.contact"
	KindWAContactBatch = "wa.contact_batch"

	// KindProviderEvent carries a provider.RawEvent republished by the sync
	// engine after ingestion.
	KindProviderEvent = "provider.event"
	KindHistorySynced = "sync.history_batch"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
