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

	"keepsake/internal/release/models"
	id "keepsake/pkg/domain"
	"keepsake/pkg/platform/sentinel"
	"keepsake/pkg/platform/tx"
)

// PostgresStore persists beneficiaries and decryption history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const beneficiaryColumns = `
	id, vault_id, name, email,
	address_line1, address_line2, address_city, address_postal_code, address_country,
	status, release_token_hash, token_expires_at,
	decryption_count, decryption_limit, bonus_decryptions,
	unlock_requested_at, unlock_delay_until, unlock_notification_sent,
	version, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, b *models.Beneficiary) error {
	query := `INSERT INTO beneficiaries (` + beneficiaryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(b.ID), uuid.UUID(b.VaultID), b.Name, b.Email,
		b.Address.Line1, b.Address.Line2, b.Address.City, b.Address.PostalCode, b.Address.Country,
		string(b.Status), nullString(b.TokenHash), b.TokenExpiresAt,
		b.DecryptionCount, b.DecryptionLimit, b.BonusDecryptions,
		b.UnlockRequestedAt, b.UnlockDelayUntil, b.UnlockNotificationSent,
		b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert beneficiary: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE id = $1`
	return s.findOne(ctx, "find beneficiary", query, uuid.UUID(beneficiaryID))
}

func (s *PostgresStore) FindByTokenHash(ctx context.Context, hash string) (*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE release_token_hash = $1`
	return s.findOne(ctx, "find beneficiary by token", query, hash)
}

func (s *PostgresStore) findOne(ctx context.Context, op, query string, args ...any) (*models.Beneficiary, error) {
	b, err := scanBeneficiary(tx.Conn(ctx, s.db).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

func (s *PostgresStore) ListByVault(ctx context.Context, vaultID id.VaultID) ([]*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries WHERE vault_id = $1 ORDER BY created_at, id`
	return s.list(ctx, "list beneficiaries", query, uuid.UUID(vaultID))
}

func (s *PostgresStore) ListDueUnlocks(ctx context.Context, now time.Time) ([]*models.Beneficiary, error) {
	query := `SELECT ` + beneficiaryColumns + ` FROM beneficiaries
		WHERE status = 'UNLOCK_REQUESTED' AND unlock_delay_until <= $1
		ORDER BY created_at, id`
	return s.list(ctx, "list due unlocks", query, now)
}

func (s *PostgresStore) list(ctx context.Context, op, query string, args ...any) ([]*models.Beneficiary, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*models.Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Transition is a compare-and-set on (version, status). Token replacement
// happens here, so at most one token is live per beneficiary.
func (s *PostgresStore) Transition(ctx context.Context, b *models.Beneficiary, from ...models.Status) error {
	query := `
		UPDATE beneficiaries SET
			status = $1,
			release_token_hash = $2,
			token_expires_at = $3,
			unlock_requested_at = $4,
			unlock_delay_until = $5,
			unlock_notification_sent = $6,
			updated_at = $7,
			version = version + 1
		WHERE id = $8 AND version = $9 AND status = ANY($10)
	`
	q := tx.Conn(ctx, s.db)
	res, err := q.ExecContext(ctx, query,
		string(b.Status), nullString(b.TokenHash), b.TokenExpiresAt,
		b.UnlockRequestedAt, b.UnlockDelayUntil, b.UnlockNotificationSent, b.UpdatedAt,
		uuid.UUID(b.ID), b.Version, pq.Array(statusStrings(from)),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("transition beneficiary: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition beneficiary rows affected: %w", err)
	}
	if rows == 0 {
		exists, err := s.exists(ctx, q, b.ID)
		if err != nil {
			return err
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	b.Version++
	return nil
}

// RecordSuccess runs the conditional increment and the history append in one
// transaction. The increment only applies while tokenHash is still the
// beneficiary's token and quota remains. The row lock taken by the UPDATE
// serializes concurrent attempts, so the count never exceeds limit + bonus.
func (s *PostgresStore) RecordSuccess(ctx context.Context, beneficiaryID id.BeneficiaryID, tokenHash string, a *models.DecryptionAttempt, now time.Time) (*models.Beneficiary, error) {
	var updated *models.Beneficiary
	err := tx.Run(ctx, s.db, func(ctx context.Context, q tx.DBTX) error {
		query := `
			UPDATE beneficiaries SET
				decryption_count = decryption_count + 1,
				status = 'RELEASED',
				unlock_requested_at = NULL,
				unlock_delay_until = NULL,
				unlock_notification_sent = FALSE,
				updated_at = $2,
				version = version + 1
			WHERE id = $1
				AND COALESCE(release_token_hash, '') = $3
				AND decryption_count < decryption_limit + bonus_decryptions
			RETURNING ` + beneficiaryColumns
		b, err := scanBeneficiary(q.QueryRowContext(ctx, query, uuid.UUID(beneficiaryID), now, tokenHash))
		if errors.Is(err, sql.ErrNoRows) {
			return s.whyNotIncremented(ctx, q, beneficiaryID, tokenHash)
		}
		if err != nil {
			return fmt.Errorf("increment decryption count: %w", err)
		}
		updated = b
		return appendAttempt(ctx, q, beneficiaryID, a)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// whyNotIncremented maps a RecordSuccess miss to ErrNotFound, ErrConflict
// (token replaced) or ErrExhausted.
func (s *PostgresStore) whyNotIncremented(ctx context.Context, q tx.DBTX, beneficiaryID id.BeneficiaryID, tokenHash string) error {
	var current sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT release_token_hash FROM beneficiaries WHERE id = $1`, uuid.UUID(beneficiaryID)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load beneficiary token: %w", err)
	}
	if current.String != tokenHash {
		return sentinel.ErrConflict
	}
	return sentinel.ErrExhausted
}

// RecordFailure locks the beneficiary row and appends a failed attempt.
func (s *PostgresStore) RecordFailure(ctx context.Context, beneficiaryID id.BeneficiaryID, a *models.DecryptionAttempt) error {
	return tx.Run(ctx, s.db, func(ctx context.Context, q tx.DBTX) error {
		var locked uuid.UUID
		err := q.QueryRowContext(ctx, `SELECT id FROM beneficiaries WHERE id = $1 FOR UPDATE`, uuid.UUID(beneficiaryID)).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock beneficiary: %w", err)
		}
		return appendAttempt(ctx, q, beneficiaryID, a)
	})
}

// appendAttempt must run while the beneficiary row is locked.
func appendAttempt(ctx context.Context, q tx.DBTX, beneficiaryID id.BeneficiaryID, a *models.DecryptionAttempt) error {
	query := `
		INSERT INTO decryption_attempts (beneficiary_id, seq, attempted_at, ip, device, success, reason)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4, $5, $6
		FROM decryption_attempts WHERE beneficiary_id = $1
		RETURNING seq
	`
	var seq int64
	err := q.QueryRowContext(ctx, query,
		uuid.UUID(beneficiaryID), a.At, a.IP, a.Device, a.Success, a.Reason,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("append decryption attempt: %w", err)
	}
	a.BeneficiaryID = beneficiaryID
	a.Seq = seq
	return nil
}

func (s *PostgresStore) Attempts(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]models.DecryptionAttempt, error) {
	query := `
		SELECT seq, attempted_at, ip, device, success, reason
		FROM decryption_attempts
		WHERE beneficiary_id = $1
		ORDER BY seq
	`
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, query, uuid.UUID(beneficiaryID))
	if err != nil {
		return nil, fmt.Errorf("list decryption attempts: %w", err)
	}
	defer rows.Close()

	var out []models.DecryptionAttempt
	for rows.Next() {
		a := models.DecryptionAttempt{BeneficiaryID: beneficiaryID}
		if err := rows.Scan(&a.Seq, &a.At, &a.IP, &a.Device, &a.Success, &a.Reason); err != nil {
			return nil, fmt.Errorf("scan decryption attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list decryption attempts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) exists(ctx context.Context, q tx.DBTX, beneficiaryID id.BeneficiaryID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM beneficiaries WHERE id = $1)`, uuid.UUID(beneficiaryID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check beneficiary exists: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBeneficiary(row rowScanner) (*models.Beneficiary, error) {
	var (
		b               models.Beneficiary
		beneficiaryID   uuid.UUID
		vaultID         uuid.UUID
		status          string
		tokenHash       sql.NullString
		tokenExpiresAt  sql.NullTime
		unlockRequested sql.NullTime
		unlockDelay     sql.NullTime
	)
	err := row.Scan(
		&beneficiaryID, &vaultID, &b.Name, &b.Email,
		&b.Address.Line1, &b.Address.Line2, &b.Address.City, &b.Address.PostalCode, &b.Address.Country,
		&status, &tokenHash, &tokenExpiresAt,
		&b.DecryptionCount, &b.DecryptionLimit, &b.BonusDecryptions,
		&unlockRequested, &unlockDelay, &b.UnlockNotificationSent,
		&b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.ID = id.BeneficiaryID(beneficiaryID)
	b.VaultID = id.VaultID(vaultID)
	b.Status = models.Status(status)
	b.TokenHash = tokenHash.String
	b.TokenExpiresAt = nullTime(tokenExpiresAt)
	b.UnlockRequestedAt = nullTime(unlockRequested)
	b.UnlockDelayUntil = nullTime(unlockDelay)
	return &b, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
