package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"keepsake/internal/release/models"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/sentinel"
	"keepsake/pkg/requestcontext"
)

const tokenBytes = 32

// newToken returns a raw URL-safe token and the hash that is stored.
func newToken() (raw, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate release token: %w", err)
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, hashToken(raw), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IssueReleaseToken replaces the beneficiary's token with a fresh one that
// expires after the token TTL. A PENDING beneficiary becomes NOTIFIED; any
// other status is kept, so a RELEASED beneficiary can get a re-download link.
// The raw token goes out in an inheritance notice and is never stored.
func (s *Service) IssueReleaseToken(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.TokenGrant, error) {
	for attempt := 1; ; attempt++ {
		b, err := s.loadBeneficiary(ctx, beneficiaryID)
		if err != nil {
			return nil, err
		}
		v, err := s.loadVault(ctx, b.VaultID)
		if err != nil {
			return nil, err
		}
		if v.IsRetired() {
			return nil, dErrors.New(dErrors.CodeConflict, "vault is retired")
		}

		next := b.Clone()
		if next.Status == models.StatusPending {
			next.Status = models.StatusNotified
		}
		grant, err := s.issue(ctx, next, b.Status)
		if errors.Is(err, sentinel.ErrConflict) && attempt < maxAttempts {
			continue
		}
		if err != nil {
			return nil, translate(err, "beneficiary")
		}
		attrs := []any{"vault_id", next.VaultID, "beneficiary_id", next.ID}
		if operator := requestcontext.OwnerID(ctx); !operator.IsNil() {
			attrs = append(attrs, "operator_id", operator)
		}
		s.logAudit(ctx, audit.EventReleaseTokenIssued, attrs...)
		s.sendNotice(ctx, next, grant, "")
		return grant, nil
	}
}

// issue stamps a new token on next and writes it in one conditional update
// guarded by from. next carries whatever status change the caller wants.
func (s *Service) issue(ctx context.Context, next *models.Beneficiary, from models.Status) (*models.TokenGrant, error) {
	raw, hash, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now()
	expires := now.Add(s.tokenTTL)
	next.TokenHash = hash
	next.TokenExpiresAt = &expires
	next.UpdatedAt = now

	if err := s.store.Transition(ctx, next, from); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementTokensIssued()
	}
	return &models.TokenGrant{
		BeneficiaryID: next.ID,
		VaultID:       next.VaultID,
		Token:         raw,
		ExpiresAt:     expires,
	}, nil
}

// ValidateToken looks a raw token up by hash and checks its expiry. It has no
// side effects. Beneficiary is set whenever the token matched, valid or not.
func (s *Service) ValidateToken(ctx context.Context, token string) (models.TokenValidation, error) {
	if token == "" {
		return models.TokenValidation{Reason: models.TokenNotFound}, nil
	}
	b, err := s.store.FindByTokenHash(ctx, hashToken(token))
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.TokenValidation{Reason: models.TokenNotFound}, nil
	}
	if err != nil {
		return models.TokenValidation{}, translate(err, "beneficiary")
	}
	if b.TokenExpiresAt == nil {
		return models.TokenValidation{Beneficiary: b, Reason: models.TokenNoExpiry}, nil
	}
	if !s.now().Before(*b.TokenExpiresAt) {
		return models.TokenValidation{Beneficiary: b, Reason: models.TokenExpired}, nil
	}
	return models.TokenValidation{Valid: true, Beneficiary: b}, nil
}

func tokenError(reason models.TokenReason) error {
	return dErrors.NewWithReason(dErrors.CodeInvalidToken, msgInvalidToken, string(reason))
}
