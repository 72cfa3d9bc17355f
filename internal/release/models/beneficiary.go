package models

import (
	"strings"
	"time"

	"keepsake/internal/shipment"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/email"
)

// Status tracks a beneficiary through release.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusNotified        Status = "NOTIFIED"
	StatusUnlockRequested Status = "UNLOCK_REQUESTED"
	StatusReleased        Status = "RELEASED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusNotified, StatusUnlockRequested, StatusReleased:
		return true
	}
	return false
}

// Beneficiary is a designated recipient of a vault. Only the SHA-256 hash of
// the release token is stored.
type Beneficiary struct {
	ID      id.BeneficiaryID
	VaultID id.VaultID
	Name    string
	Email   string
	Address shipment.Address
	Status  Status

	TokenHash      string
	TokenExpiresAt *time.Time

	DecryptionCount  int
	DecryptionLimit  int
	BonusDecryptions int

	UnlockRequestedAt      *time.Time
	UnlockDelayUntil       *time.Time
	UnlockNotificationSent bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Quota is the total number of successful decryptions allowed.
func (b *Beneficiary) Quota() int {
	return b.DecryptionLimit + b.BonusDecryptions
}

func (b *Beneficiary) HasQuota() bool {
	return b.DecryptionCount < b.Quota()
}

func (b *Beneficiary) Remaining() int {
	return max(b.Quota()-b.DecryptionCount, 0)
}

// UnlockDue reports whether a self-service unlock request has waited out its
// delay at now.
func (b *Beneficiary) UnlockDue(now time.Time) bool {
	return b.Status == StatusUnlockRequested &&
		b.UnlockDelayUntil != nil &&
		!now.Before(*b.UnlockDelayUntil)
}

func (b *Beneficiary) ClearUnlock() {
	b.UnlockRequestedAt = nil
	b.UnlockDelayUntil = nil
	b.UnlockNotificationSent = false
}

func (b *Beneficiary) Clone() *Beneficiary {
	c := *b
	c.TokenExpiresAt = cloneTime(b.TokenExpiresAt)
	c.UnlockRequestedAt = cloneTime(b.UnlockRequestedAt)
	c.UnlockDelayUntil = cloneTime(b.UnlockDelayUntil)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// NewBeneficiary validates input and builds a PENDING beneficiary with the
// given quota.
func NewBeneficiary(vaultID id.VaultID, name, addr string, postal shipment.Address, limit, bonus int, now time.Time) (*Beneficiary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	addr = email.Normalize(addr)
	if !email.Valid(addr) {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a valid email is required")
	}
	if limit < 1 || bonus < 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid decryption quota")
	}
	return &Beneficiary{
		ID:               id.NewBeneficiaryID(),
		VaultID:          vaultID,
		Name:             name,
		Email:            addr,
		Address:          postal,
		Status:           StatusPending,
		DecryptionLimit:  limit,
		BonusDecryptions: bonus,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}
