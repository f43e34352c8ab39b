package audit

import (
	"context"
	"encoding/json"

	"finance/internal/store"

	"go.uber.org/zap"
)

// Change is one before/after record produced by an engine operation. Before
// is nil for creations.
type Change struct {
	Event      string
	EntityType string
	EntityID   string
	Before     any
	After      any
}

type Store interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

// Recorder persists change-sets after the mutation that produced them has
// committed. A failed write is logged and dropped; it never fails the
// operation it describes.
type Recorder struct {
	store  Store
	db     store.Execer
	logger *zap.Logger
}

func NewRecorder(auditStore Store, db store.Execer, logger *zap.Logger) *Recorder {
	return &Recorder{store: auditStore, db: db, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, actorID string, changes []Change) {
	for _, change := range changes {
		data, err := json.Marshal(map[string]any{
			"before": change.Before,
			"after":  change.After,
		})
		if err != nil {
			r.logger.Error("encode audit change", zap.String("event", change.Event), zap.Error(err))
			continue
		}
		if err := r.store.Log(ctx, r.db, actorID, change.Event, change.EntityType, change.EntityID, string(data)); err != nil {
			r.logger.Error("write audit change",
				zap.String("event", change.Event),
				zap.String("entity_id", change.EntityID),
				zap.Error(err),
			)
		}
	}
}
