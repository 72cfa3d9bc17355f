package service

import (
	"time"

	"keepsake/internal/vault/models"
)

// Decision is the outcome of evaluating a vault's timers.
type Decision struct {
	From models.Status
	To   models.Status
}

func (d Decision) Changed() bool {
	return d.From != d.To
}

// Evaluate applies the timer rules to v at now. It is pure: the caller
// performs the conditional write.
//
// ACTIVE moves to PENDING_VERIFICATION once now is past the heartbeat
// deadline, even when the grace deadline has also passed, so every release is
// preceded by a warning. PENDING_VERIFICATION moves to TRIGGERED once now
// reaches the grace deadline. Disabled switches and terminal statuses never
// move.
func Evaluate(v *models.Vault, now time.Time) Decision {
	d := Decision{From: v.Status, To: v.Status}
	if !v.DeadManSwitchEnabled {
		return d
	}
	switch v.Status {
	case models.StatusActive:
		if now.After(v.HeartbeatDeadline()) {
			d.To = models.StatusPendingVerification
		}
	case models.StatusPendingVerification:
		if !now.Before(v.GraceDeadline()) {
			d.To = models.StatusTriggered
		}
	}
	return d
}
