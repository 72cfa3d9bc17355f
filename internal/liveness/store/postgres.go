package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"keepsake/internal/liveness/models"
	id "keepsake/pkg/domain"
	"keepsake/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e models.Event) error {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	query := `
		INSERT INTO liveness_events (id, vault_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(e.ID), uuid.UUID(e.VaultID), string(e.Type()), data, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert liveness event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByVault(ctx context.Context, vaultID id.VaultID) ([]models.Event, error) {
	query := `
		SELECT id, event_type, event_data, created_at
		FROM liveness_events
		WHERE vault_id = $1
		ORDER BY created_at, id
	`
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, uuid.UUID(vaultID))
	if err != nil {
		return nil, fmt.Errorf("list liveness events: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			eventID   uuid.UUID
			eventType string
			data      []byte
			e         = models.Event{VaultID: vaultID}
		)
		if err := rows.Scan(&eventID, &eventType, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan liveness event: %w", err)
		}
		p, err := models.DecodePayload(models.EventType(eventType), data)
		if err != nil {
			return nil, fmt.Errorf("decode liveness event %s: %w", eventID, err)
		}
		e.ID = id.EventID(eventID)
		e.Payload = p
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list liveness events: %w", err)
	}
	return out, nil
}
