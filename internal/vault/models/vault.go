package models

import (
	"time"

	"keepsake/internal/plan"
	"keepsake/internal/vaultcrypto"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
)

// Status is the liveness state of a vault. Transitions are owned by the
// liveness service.
type Status string

const (
	StatusActive              Status = "ACTIVE"
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusTriggered           Status = "TRIGGERED"
	StatusReleased            Status = "RELEASED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPendingVerification, StatusTriggered, StatusReleased:
		return true
	}
	return false
}

// IsTerminal reports whether the vault can no longer return to ACTIVE.
func (s Status) IsTerminal() bool {
	return s == StatusTriggered || s == StatusReleased
}

// Vault holds a client-encrypted payload and the timers that decide when it
// is released. The server never sees the master password.
type Vault struct {
	ID                       id.VaultID
	OwnerID                  id.OwnerID
	Plan                     plan.Tier
	Payload                  vaultcrypto.Envelope
	Hint                     string
	RecoveryBackup           vaultcrypto.Envelope
	HeartbeatFrequencyDays   int
	GracePeriodDays          int
	DeadManSwitchEnabled     bool
	Status                   Status
	LastSeenAt               time.Time
	// WarnedAt is when the vault entered PENDING_VERIFICATION. The grace
	// window never ends before WarnedAt + grace.
	WarnedAt                 *time.Time
	DeadManSwitchActivatedAt *time.Time
	// Version increments on every write and guards conditional updates.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Days converts a day count to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// HeartbeatDeadline is when the owner is first considered overdue.
func (v *Vault) HeartbeatDeadline() time.Time {
	return v.LastSeenAt.Add(Days(v.HeartbeatFrequencyDays))
}

// GraceDeadline is when an overdue vault becomes eligible for release:
// lastSeenAt + frequency + grace, pushed back to WarnedAt + grace when the
// warning went out late.
func (v *Vault) GraceDeadline() time.Time {
	deadline := v.HeartbeatDeadline().Add(Days(v.GracePeriodDays))
	if v.WarnedAt != nil {
		if warned := v.WarnedAt.Add(Days(v.GracePeriodDays)); warned.After(deadline) {
			return warned
		}
	}
	return deadline
}

// IsRetired reports whether the owner retired the vault. A retired vault is
// RELEASED without ever having been triggered.
func (v *Vault) IsRetired() bool {
	return v.Status == StatusReleased && v.DeadManSwitchActivatedAt == nil
}

func (v *Vault) HasRecoveryBackup() bool {
	return !v.RecoveryBackup.IsZero()
}

// Clone returns a deep copy safe to hand across store boundaries.
func (v *Vault) Clone() *Vault {
	c := *v
	if v.WarnedAt != nil {
		t := *v.WarnedAt
		c.WarnedAt = &t
	}
	if v.DeadManSwitchActivatedAt != nil {
		t := *v.DeadManSwitchActivatedAt
		c.DeadManSwitchActivatedAt = &t
	}
	return &c
}

// ValidateSchedule enforces frequency >= 1 day and grace >= 0 days.
func ValidateSchedule(frequencyDays, graceDays int) error {
	if frequencyDays < 1 {
		return dErrors.New(dErrors.CodeBadRequest, "heartbeat_frequency_days must be at least 1")
	}
	if graceDays < 0 {
		return dErrors.New(dErrors.CodeBadRequest, "grace_period_days must not be negative")
	}
	return nil
}

// NewVault builds an ACTIVE vault with the switch enabled and lastSeenAt=now.
func NewVault(owner id.OwnerID, tier plan.Tier, payload, backup vaultcrypto.Envelope, hint string, frequencyDays, graceDays int, now time.Time) (*Vault, error) {
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner is required")
	}
	if payload.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payload is required")
	}
	if err := payload.Validate(); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "payload: "+err.Error())
	}
	if !backup.IsZero() {
		if err := backup.Validate(); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "recovery_backup: "+err.Error())
		}
	}
	if err := ValidateSchedule(frequencyDays, graceDays); err != nil {
		return nil, err
	}
	return &Vault{
		ID:                     id.NewVaultID(),
		OwnerID:                owner,
		Plan:                   tier,
		Payload:                payload,
		Hint:                   hint,
		RecoveryBackup:         backup,
		HeartbeatFrequencyDays: frequencyDays,
		GracePeriodDays:        graceDays,
		DeadManSwitchEnabled:   true,
		Status:                 StatusActive,
		LastSeenAt:             now,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}
