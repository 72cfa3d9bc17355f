// Package domain holds typed identifiers shared across modules. Distinct types
// keep a vault ID from being passed where a beneficiary ID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "keepsake/pkg/domain-errors"
)

type (
	VaultID       uuid.UUID
	BeneficiaryID uuid.UUID
	OwnerID       uuid.UUID
	EventID       uuid.UUID
)

func NewVaultID() VaultID             { return VaultID(uuid.New()) }
func NewBeneficiaryID() BeneficiaryID { return BeneficiaryID(uuid.New()) }
func NewEventID() EventID             { return EventID(uuid.New()) }

func (id VaultID) String() string       { return uuid.UUID(id).String() }
func (id BeneficiaryID) String() string { return uuid.UUID(id).String() }
func (id OwnerID) String() string       { return uuid.UUID(id).String() }
func (id EventID) String() string       { return uuid.UUID(id).String() }

func (id VaultID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id BeneficiaryID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OwnerID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

func (id VaultID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id BeneficiaryID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id OwnerID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id EventID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }

func (id *VaultID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = VaultID(u)
	return nil
}

func (id *BeneficiaryID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = BeneficiaryID(u)
	return nil
}

func (id *OwnerID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = OwnerID(u)
	return nil
}

func (id *EventID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = EventID(u)
	return nil
}

// parseUUID enforces the trust-boundary invariant: IDs are valid, non-empty,
// non-nil UUIDs.
func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	return u, nil
}

func ParseVaultID(s string) (VaultID, error) {
	u, err := parseUUID(s, "vault_id")
	return VaultID(u), err
}

func ParseBeneficiaryID(s string) (BeneficiaryID, error) {
	u, err := parseUUID(s, "beneficiary_id")
	return BeneficiaryID(u), err
}

func ParseOwnerID(s string) (OwnerID, error) {
	u, err := parseUUID(s, "owner_id")
	return OwnerID(u), err
}
