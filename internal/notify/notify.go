// Package notify hands owner and beneficiary messages to the delivery system.
// Delivery itself (mail, chat, SMS) happens outside this service.
package notify

import (
	"context"
	"time"

	id "keepsake/pkg/domain"
)

//go:generate mockgen -source=notify.go -destination=mocks/mocks.go -package=mocks Notifier

// Notifier is fire-and-forget from the caller's point of view: errors are
// logged and never roll back a state transition.
type Notifier interface {
	SendWarning(ctx context.Context, w Warning) error
	SendInheritanceNotice(ctx context.Context, n InheritanceNotice) error
	SendUnlockNotice(ctx context.Context, n UnlockNotice) error
}

// Warning asks an owner to check in before the grace period ends.
type Warning struct {
	VaultID     id.VaultID `json:"vault_id"`
	OwnerID     id.OwnerID `json:"owner_id"`
	MissedAt    time.Time  `json:"missed_at"`
	GraceEndsAt time.Time  `json:"grace_ends_at"`
}

// InheritanceNotice tells a beneficiary how to access a released vault.
// Token is the raw release token; it exists only in this message.
type InheritanceNotice struct {
	VaultID          id.VaultID       `json:"vault_id"`
	BeneficiaryID    id.BeneficiaryID `json:"beneficiary_id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Token            string           `json:"token"`
	ExpiresAt        time.Time        `json:"expires_at"`
	ShipmentTracking string           `json:"shipment_tracking,omitempty"`
}

// UnlockNotice tells an owner that a beneficiary asked for early access.
type UnlockNotice struct {
	VaultID         id.VaultID       `json:"vault_id"`
	OwnerID         id.OwnerID       `json:"owner_id"`
	BeneficiaryID   id.BeneficiaryID `json:"beneficiary_id"`
	BeneficiaryName string           `json:"beneficiary_name"`
	UnlockAt        time.Time        `json:"unlock_at"`
}
