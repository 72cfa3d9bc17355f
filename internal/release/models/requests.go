package models

import (
	"encoding/base64"
	"strings"
	"time"

	"keepsake/internal/shipment"
	dErrors "keepsake/pkg/domain-errors"
)

type AddBeneficiaryRequest struct {
	Name    string           `json:"name"`
	Email   string           `json:"email"`
	Address shipment.Address `json:"address"`
}

func (r *AddBeneficiaryRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
}

// DecryptBody is the wire form of a decrypt call. The token travels in the
// body so it never lands in access logs.
type DecryptBody struct {
	Token          string `json:"token"`
	MasterPassword string `json:"master_password,omitempty"`
	FragmentA      string `json:"fragment_a,omitempty"`
	FragmentB      string `json:"fragment_b,omitempty"`
}

func (b DecryptBody) Validate() error {
	if strings.TrimSpace(b.Token) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token is required")
	}
	return nil
}

type UnlockBody struct {
	Email string `json:"email"`
}

func (b UnlockBody) Validate() error {
	if strings.TrimSpace(b.Email) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	return nil
}

type BeneficiaryResponse struct {
	ID               string           `json:"id"`
	VaultID          string           `json:"vault_id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	Address          shipment.Address `json:"address"`
	Status           string           `json:"status"`
	DecryptionCount  int              `json:"decryption_count"`
	DecryptionLimit  int              `json:"decryption_limit"`
	BonusDecryptions int              `json:"bonus_decryptions"`
	TokenExpiresAt   *string          `json:"token_expires_at,omitempty"`
	UnlockDelayUntil *string          `json:"unlock_delay_until,omitempty"`
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeFormat)
	return &s
}

func ToBeneficiaryResponse(b *Beneficiary) BeneficiaryResponse {
	return BeneficiaryResponse{
		ID:               b.ID.String(),
		VaultID:          b.VaultID.String(),
		Name:             b.Name,
		Email:            b.Email,
		Address:          b.Address,
		Status:           string(b.Status),
		DecryptionCount:  b.DecryptionCount,
		DecryptionLimit:  b.DecryptionLimit,
		BonusDecryptions: b.BonusDecryptions,
		TokenExpiresAt:   formatTime(b.TokenExpiresAt),
		UnlockDelayUntil: formatTime(b.UnlockDelayUntil),
	}
}

// TokenStatusResponse answers a token lookup without revealing whose token
// it is.
type TokenStatusResponse struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining_decryptions,omitempty"`
}

func ToTokenStatusResponse(v TokenValidation) TokenStatusResponse {
	resp := TokenStatusResponse{Valid: v.Valid, Reason: string(v.Reason)}
	if v.Valid && v.Beneficiary != nil {
		resp.Remaining = v.Beneficiary.Remaining()
	}
	return resp
}

type DecryptResponse struct {
	VaultID   string `json:"vault_id"`
	Plaintext string `json:"plaintext"`
	Used      int    `json:"decryptions_used"`
	Remaining int    `json:"decryptions_remaining"`
}

// ToDecryptResponse encodes the plaintext as standard base64.
func ToDecryptResponse(r *DecryptResult) DecryptResponse {
	return DecryptResponse{
		VaultID:   r.VaultID.String(),
		Plaintext: base64.StdEncoding.EncodeToString(r.Plaintext),
		Used:      r.Used,
		Remaining: r.Remaining,
	}
}

type TokenGrantResponse struct {
	BeneficiaryID string `json:"beneficiary_id"`
	ExpiresAt     string `json:"expires_at"`
}

// ToTokenGrantResponse leaves out the raw token, which reaches the
// beneficiary only through the notifier.
func ToTokenGrantResponse(g *TokenGrant) TokenGrantResponse {
	return TokenGrantResponse{
		BeneficiaryID: g.BeneficiaryID.String(),
		ExpiresAt:     g.ExpiresAt.UTC().Format(timeFormat),
	}
}

type AttemptResponse struct {
	Seq     int64  `json:"seq"`
	At      string `json:"at"`
	IP      string `json:"ip,omitempty"`
	Device  string `json:"device,omitempty"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

func ToAttemptResponses(attempts []DecryptionAttempt) []AttemptResponse {
	out := make([]AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, AttemptResponse{
			Seq:     a.Seq,
			At:      a.At.UTC().Format(timeFormat),
			IP:      a.IP,
			Device:  a.Device,
			Success: a.Success,
			Reason:  a.Reason,
		})
	}
	return out
}
