package models

import (
	"strings"

	"keepsake/internal/plan"
	"keepsake/internal/vaultcrypto"
)

// InitializeRequest carries a payload the client already sealed. Schedule
// fields are optional and default to the plan's values.
type InitializeRequest struct {
	Plan                   plan.Tier            `json:"plan"`
	Payload                vaultcrypto.Envelope `json:"payload"`
	Hint                   string               `json:"hint,omitempty"`
	RecoveryBackup         vaultcrypto.Envelope `json:"recovery_backup"`
	HeartbeatFrequencyDays *int                 `json:"heartbeat_frequency_days,omitempty"`
	GracePeriodDays        *int                 `json:"grace_period_days,omitempty"`
}

func (r *InitializeRequest) Normalize() {
	r.Plan = plan.Tier(strings.ToLower(strings.TrimSpace(string(r.Plan))))
	r.Hint = strings.TrimSpace(r.Hint)
}

// VaultResponse omits ciphertext; clients fetch the payload through the
// release gate only.
type VaultResponse struct {
	ID                       string  `json:"id"`
	Plan                     string  `json:"plan"`
	Status                   string  `json:"status"`
	Hint                     string  `json:"hint,omitempty"`
	HasRecoveryBackup        bool    `json:"has_recovery_backup"`
	HeartbeatFrequencyDays   int     `json:"heartbeat_frequency_days"`
	GracePeriodDays          int     `json:"grace_period_days"`
	DeadManSwitchEnabled     bool    `json:"dead_man_switch_enabled"`
	LastSeenAt               string  `json:"last_seen_at"`
	NextHeartbeatDue         string  `json:"next_heartbeat_due"`
	DeadManSwitchActivatedAt *string `json:"dead_man_switch_activated_at,omitempty"`
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func ToResponse(v *Vault) VaultResponse {
	resp := VaultResponse{
		ID:                     v.ID.String(),
		Plan:                   string(v.Plan),
		Status:                 string(v.Status),
		Hint:                   v.Hint,
		HasRecoveryBackup:      v.HasRecoveryBackup(),
		HeartbeatFrequencyDays: v.HeartbeatFrequencyDays,
		GracePeriodDays:        v.GracePeriodDays,
		DeadManSwitchEnabled:   v.DeadManSwitchEnabled,
		LastSeenAt:             v.LastSeenAt.UTC().Format(timeFormat),
		NextHeartbeatDue:       v.HeartbeatDeadline().UTC().Format(timeFormat),
	}
	if v.DeadManSwitchActivatedAt != nil {
		s := v.DeadManSwitchActivatedAt.UTC().Format(timeFormat)
		resp.DeadManSwitchActivatedAt = &s
	}
	return resp
}
