package store

import "context"

type AuditStore struct {
	db DB
}

type AuditEntry struct {
	ID          string  `db:"id" json:"id"`
	ActorUserID *string `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string  `db:"action" json:"action"`
	EntityType  string  `db:"entity_type" json:"entity_type"`
	EntityID    string  `db:"entity_id" json:"entity_id"`
	Data        string  `db:"data" json:"data"`
	CreatedAt   any     `db:"created_at" json:"created_at"`
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID, data string) error {
	var actor *string
	if actorID != "" {
		actor = &actorID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, data)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5)
	`, actor, action, entityType, entityID, data)
	return err
}

// ListByEntity returns the change history of one entity, newest first.
func (s *AuditStore) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]AuditEntry, error) {
	var rows []AuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_user_id, action, entity_type, entity_id, data, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
