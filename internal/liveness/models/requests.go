package models

import dErrors "keepsake/pkg/domain-errors"

type ScheduleRequest struct {
	HeartbeatFrequencyDays *int `json:"heartbeat_frequency_days"`
	GracePeriodDays        *int `json:"grace_period_days"`
}

func (r ScheduleRequest) Validate() error {
	if r.HeartbeatFrequencyDays == nil || r.GracePeriodDays == nil {
		return dErrors.New(dErrors.CodeBadRequest, "heartbeat_frequency_days and grace_period_days are required")
	}
	return nil
}

type SwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r SwitchRequest) Validate() error {
	if r.Enabled == nil {
		return dErrors.New(dErrors.CodeBadRequest, "enabled is required")
	}
	return nil
}
