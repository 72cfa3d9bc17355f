package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"keepsake/internal/plan"
	"keepsake/internal/vault/models"
	id "keepsake/pkg/domain"
	"keepsake/pkg/platform/sentinel"
	"keepsake/pkg/platform/tx"
)

// PostgresStore persists vaults in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const vaultColumns = `
	id, owner_id, plan,
	payload_ciphertext, payload_auth_tag, payload_salt, payload_iv, hint,
	recovery_ciphertext, recovery_auth_tag, recovery_salt, recovery_iv,
	heartbeat_frequency_days, grace_period_days, dead_man_switch_enabled,
	status, last_seen_at, warned_at, dead_man_switch_activated_at, version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, v *models.Vault) error {
	query := `INSERT INTO vaults (` + vaultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(v.ID), uuid.UUID(v.OwnerID), string(v.Plan),
		v.Payload.Ciphertext, v.Payload.AuthTag, v.Payload.Salt, v.Payload.IV, v.Hint,
		nullBytes(v.RecoveryBackup.Ciphertext), nullBytes(v.RecoveryBackup.AuthTag),
		nullBytes(v.RecoveryBackup.Salt), nullBytes(v.RecoveryBackup.IV),
		v.HeartbeatFrequencyDays, v.GracePeriodDays, v.DeadManSwitchEnabled,
		string(v.Status), v.LastSeenAt, v.WarnedAt, v.DeadManSwitchActivatedAt, v.Version, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert vault: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, vaultID id.VaultID) (*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE id = $1`
	v, err := scanVault(tx.Conn(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(vaultID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find vault: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner id.OwnerID) ([]*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults WHERE owner_id = $1 ORDER BY created_at`
	return s.list(ctx, "list vaults by owner", query, uuid.UUID(owner))
}

// ListSweepable mirrors InMemory.ListSweepable: TRIGGERED rows ignore the
// switch.
func (s *PostgresStore) ListSweepable(ctx context.Context, statuses ...models.Status) ([]*models.Vault, error) {
	query := `SELECT ` + vaultColumns + ` FROM vaults
		WHERE status = ANY($1)
			AND (dead_man_switch_enabled OR status = 'TRIGGERED')
		ORDER BY created_at`
	return s.list(ctx, "list sweepable vaults", query, pq.Array(statusStrings(statuses)))
}

func (s *PostgresStore) list(ctx context.Context, op, query string, args ...any) ([]*models.Vault, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Transition is a compare-and-set on (version, status). A miss is
// ErrNotFound when the row is gone and ErrConflict otherwise.
func (s *PostgresStore) Transition(ctx context.Context, v *models.Vault, from ...models.Status) error {
	query := `
		UPDATE vaults SET
			status = $1,
			last_seen_at = $2,
			warned_at = $3,
			dead_man_switch_enabled = $4,
			dead_man_switch_activated_at = $5,
			heartbeat_frequency_days = $6,
			grace_period_days = $7,
			updated_at = $8,
			version = version + 1
		WHERE id = $9 AND version = $10 AND status = ANY($11)
	`
	q := tx.Conn(ctx, s.db)
	res, err := q.ExecContext(ctx, query,
		string(v.Status), v.LastSeenAt, v.WarnedAt, v.DeadManSwitchEnabled, v.DeadManSwitchActivatedAt,
		v.HeartbeatFrequencyDays, v.GracePeriodDays, v.UpdatedAt,
		uuid.UUID(v.ID), v.Version, pq.Array(statusStrings(from)),
	)
	if err != nil {
		return fmt.Errorf("transition vault: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition vault rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vaults WHERE id = $1)`, uuid.UUID(v.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("check vault exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	v.Version++
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVault(row rowScanner) (*models.Vault, error) {
	var (
		v          models.Vault
		vaultID    uuid.UUID
		ownerID    uuid.UUID
		tier       string
		status     string
		warned     sql.NullTime
		activated  sql.NullTime
		lastSeenAt time.Time
	)
	err := row.Scan(
		&vaultID, &ownerID, &tier,
		&v.Payload.Ciphertext, &v.Payload.AuthTag, &v.Payload.Salt, &v.Payload.IV, &v.Hint,
		&v.RecoveryBackup.Ciphertext, &v.RecoveryBackup.AuthTag, &v.RecoveryBackup.Salt, &v.RecoveryBackup.IV,
		&v.HeartbeatFrequencyDays, &v.GracePeriodDays, &v.DeadManSwitchEnabled,
		&status, &lastSeenAt, &warned, &activated, &v.Version, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.ID = id.VaultID(vaultID)
	v.OwnerID = id.OwnerID(ownerID)
	v.Plan = plan.Tier(tier)
	v.Status = models.Status(status)
	v.LastSeenAt = lastSeenAt
	if warned.Valid {
		t := warned.Time
		v.WarnedAt = &t
	}
	if activated.Valid {
		t := activated.Time
		v.DeadManSwitchActivatedAt = &t
	}
	return &v, nil
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
