package models

import (
	"time"

	id "keepsake/pkg/domain"
)

// Failure reasons recorded in the decryption history.
const (
	ReasonTokenExpired       = "token_expired"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonInvalidFragments   = "invalid_recovery_fragments"
	ReasonQuotaExceeded      = "quota_exceeded"
)

// DecryptionAttempt is one entry of a beneficiary's append-only history,
// keyed by (BeneficiaryID, Seq).
type DecryptionAttempt struct {
	BeneficiaryID id.BeneficiaryID
	Seq           int64
	At            time.Time
	IP            string
	Device        string
	Success       bool
	Reason        string
}

// TokenReason explains why a release token did not validate.
type TokenReason string

const (
	TokenNotFound TokenReason = "NOT_FOUND"
	TokenNoExpiry TokenReason = "NO_EXPIRY"
	TokenExpired  TokenReason = "EXPIRED"
)

// TokenGrant carries a freshly issued raw token. It is handed to the
// notifier and never stored.
type TokenGrant struct {
	BeneficiaryID id.BeneficiaryID
	VaultID       id.VaultID
	Token         string
	ExpiresAt     time.Time
}

type TokenValidation struct {
	Valid       bool
	Beneficiary *Beneficiary
	Reason      TokenReason
}

// DecryptRequest carries either MasterPassword or both recovery fragments.
type DecryptRequest struct {
	Token          string
	MasterPassword string
	FragmentA      string
	FragmentB      string
	IP             string
	UserAgent      string
}

func (r DecryptRequest) HasPassword() bool  { return r.MasterPassword != "" }
func (r DecryptRequest) HasFragments() bool { return r.FragmentA != "" || r.FragmentB != "" }

type DecryptResult struct {
	VaultID   id.VaultID
	Plaintext []byte
	Used      int
	Remaining int
}

// Delivery reports one beneficiary released by fan-out or a granted unlock.
type Delivery struct {
	VaultID          id.VaultID
	BeneficiaryID    id.BeneficiaryID
	ShipmentTracking string
}
