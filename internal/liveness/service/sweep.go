package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	livemodels "keepsake/internal/liveness/models"
	"keepsake/internal/notify"
	"keepsake/internal/platform/tracing"
	"keepsake/internal/vault/models"
	"keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/sentinel"
)

// SweepReport summarizes one pass over the sweepable vaults.
type SweepReport struct {
	Examined       int `json:"examined"`
	Warned         int `json:"warned"`
	Triggered      int `json:"triggered"`
	Released       int `json:"released"`
	UnlocksGranted int `json:"unlocks_granted"`
	Conflicts      int `json:"conflicts"`
	Failures       int `json:"failures"`
}

// Sweep evaluates every switch-enabled, non-released vault once. Overlapping
// sweeps are safe: a transition lost to a concurrent writer is skipped and
// its side effects never fire. TRIGGERED vaults are re-driven, switch or not,
// so a fan-out interrupted by a crash completes on a later sweep.
func (s *Service) Sweep(ctx context.Context) (report SweepReport, err error) {
	ctx, span := tracing.Start(ctx, "liveness.sweep")
	defer func() {
		span.SetAttributes(
			attribute.Int("sweep.examined", report.Examined),
			attribute.Int("sweep.triggered", report.Triggered),
		)
		tracing.End(span, err)
	}()

	start := s.now()
	vaults, err := s.vaults.ListSweepable(ctx,
		models.StatusActive, models.StatusPendingVerification, models.StatusTriggered)
	if err != nil {
		return report, translate(err)
	}

	for _, v := range vaults {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++
		if v.Status == models.StatusTriggered {
			report.Released += s.fanOut(ctx, v)
			if err := s.CompleteRelease(ctx, v.ID); err != nil {
				report.Failures++
				s.logger.ErrorContext(ctx, "failed to complete release", "vault_id", v.ID, "error", err)
			}
			continue
		}
		s.advance(ctx, v, start, &report)
	}

	if s.releaser != nil {
		granted, err := s.releaser.ProcessDueUnlocks(ctx)
		if err != nil {
			report.Failures++
			s.logger.ErrorContext(ctx, "failed to process due unlocks", "error", err)
		}
		report.UnlocksGranted = len(granted)
		s.recordDeliveries(ctx, granted)
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(s.now().Sub(start).Seconds(), report.Examined)
	}
	s.logger.InfoContext(ctx, "liveness sweep finished",
		"examined", report.Examined,
		"warned", report.Warned,
		"triggered", report.Triggered,
		"released", report.Released,
		"unlocks_granted", report.UnlocksGranted,
		"conflicts", report.Conflicts,
		"failures", report.Failures,
	)
	return report, nil
}

// advance applies one Evaluate step to v. The write is guarded by v's status
// and version as read at the start of the sweep.
func (s *Service) advance(ctx context.Context, v *models.Vault, now time.Time, report *SweepReport) {
	d := Evaluate(v, now)
	if !d.Changed() {
		return
	}

	before := v.Clone()
	v.Status = d.To
	v.UpdatedAt = now
	switch d.To {
	case models.StatusPendingVerification:
		v.WarnedAt = &now
	case models.StatusTriggered:
		v.DeadManSwitchActivatedAt = &now
	}

	if err := s.vaults.Transition(ctx, v, d.From); err != nil {
		if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
			report.Conflicts++
			if s.metrics != nil {
				s.metrics.IncrementSweepConflicts()
			}
			s.logger.DebugContext(ctx, "sweep transition skipped", "vault_id", v.ID, "from", d.From, "to", d.To)
			return
		}
		report.Failures++
		s.logger.ErrorContext(ctx, "sweep transition failed", "vault_id", v.ID, "error", err)
		return
	}

	switch d.To {
	case models.StatusPendingVerification:
		report.Warned++
		s.onWarned(ctx, before, v)
	case models.StatusTriggered:
		report.Triggered++
		s.onTriggered(ctx, before, v, livemodels.SwitchActivated{AdminAction: false})
		s.logAudit(ctx, audit.EventSwitchActivated,
			"vault_id", v.ID,
			"actor", "system",
			"admin_action", false,
		)
		report.Released += s.fanOut(ctx, v)
	}
}

func (s *Service) onWarned(ctx context.Context, before, v *models.Vault) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(before.Status), string(v.Status))
	}
	missed := v.HeartbeatDeadline()
	graceEnds := v.GraceDeadline()
	s.appendEvent(ctx, v.ID, livemodels.WarningSent{Deadline: missed}, *v.WarnedAt)
	s.appendEvent(ctx, v.ID, livemodels.GracePeriodStarted{GraceEndsAt: graceEnds}, *v.WarnedAt)
	s.logAudit(ctx, audit.EventWarningSent,
		"vault_id", v.ID,
		"owner_id", v.OwnerID,
		"grace_ends_at", graceEnds,
	)

	if s.notifier == nil {
		return
	}
	err := s.notifier.SendWarning(ctx, notify.Warning{
		VaultID:     v.ID,
		OwnerID:     v.OwnerID,
		MissedAt:    missed,
		GraceEndsAt: graceEnds,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send liveness warning",
			"vault_id", v.ID,
			"error", err,
		)
	}
}
