package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "keepsake/pkg/domain"
	audit "keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/tx"
)

// Store persists audit events in the audit_events table. Appends join the
// caller's transaction when the context carries one.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	var vaultID *uuid.UUID
	if !event.VaultID.IsNil() {
		v := uuid.UUID(event.VaultID)
		vaultID = &v
	}
	query := `
		INSERT INTO audit_events (id, category, occurred_at, vault_id, subject, action, reason, actor_id, ip, request_id, severity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		vaultID,
		event.Subject,
		event.Action,
		event.Reason,
		event.ActorID,
		event.IP,
		event.RequestID,
		string(event.Severity),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByVault(ctx context.Context, vaultID id.VaultID) ([]audit.Event, error) {
	query := `
		SELECT category, occurred_at, vault_id, subject, action, reason, actor_id, ip, request_id, severity
		FROM audit_events
		WHERE vault_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(vaultID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			severity string
			vault    uuid.NullUUID
		)
		if err := rows.Scan(&category, &e.Timestamp, &vault, &e.Subject, &e.Action, &e.Reason, &e.ActorID, &e.IP, &e.RequestID, &severity); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.Severity = audit.Severity(severity)
		if vault.Valid {
			e.VaultID = id.VaultID(vault.UUID)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
