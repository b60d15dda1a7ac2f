package sync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/store"
	"go.uber.org/zap"
)

// CheckpointLIDReconciled records when LID chats were last folded into
// their phone-number chats.
const CheckpointLIDReconciled = "lid_reconciled_at"

// Reconciler manages sync checkpoints and LID reconciliation.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logging.OrNop(logger)}
}

// Reconcile replaces the LID map and merges mapped LID chats into their
// phone-number chats. It returns the number of merged chats.
func (r *Reconciler) Reconcile(mappings []store.LIDMapping) (int64, error) {
	if err := r.db.SyncLIDMap(mappings); err != nil {
		return 0, fmt.Errorf("sync lid map: %w", err)
	}
	merged, err := r.db.ReconcileLIDs()
	if err != nil {
		return 0, fmt.Errorf("reconcile lids: %w", err)
	}
	if err := r.UpdateCheckpoint(CheckpointLIDReconciled, strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return merged, err
	}
	if merged > 0 {
		r.logger.Info("merged LID chats", zap.Int64("count", merged), zap.Int("mappings", len(mappings)))
	}
	return merged, nil
}

// UpdateCheckpoint updates a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(key, value string) error {
	return r.db.SetSyncState(key, value)
}

// GetCheckpoint retrieves a sync checkpoint value, "" when unset.
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	return r.db.GetSyncState(key)
}
