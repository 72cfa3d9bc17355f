// Package service owns vault status. Every status write goes through a
// conditional update guarded by the expected prior status and version, so
// overlapping sweeps and racing heartbeats never double-fire side effects.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"keepsake/internal/liveness/metrics"
	livemodels "keepsake/internal/liveness/models"
	"keepsake/internal/notify"
	"keepsake/internal/platform/tracing"
	releasemodels "keepsake/internal/release/models"
	"keepsake/internal/vault/models"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/sentinel"
)

// maxAttempts bounds retries of owner writes that lose a race with the sweep.
const maxAttempts = 3

type VaultStore interface {
	FindByID(ctx context.Context, vaultID id.VaultID) (*models.Vault, error)
	ListSweepable(ctx context.Context, statuses ...models.Status) ([]*models.Vault, error)
	Transition(ctx context.Context, v *models.Vault, from ...models.Status) error
}

type EventStore interface {
	Append(ctx context.Context, e livemodels.Event) error
	ListByVault(ctx context.Context, vaultID id.VaultID) ([]livemodels.Event, error)
}

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Releaser

// Releaser is the release gate as seen from the liveness side.
type Releaser interface {
	FanOut(ctx context.Context, vaultID id.VaultID) ([]releasemodels.Delivery, error)
	ProcessDueUnlocks(ctx context.Context) ([]releasemodels.Delivery, error)
	CancelUnlocks(ctx context.Context, vaultID id.VaultID) (int, error)
	AllReleased(ctx context.Context, vaultID id.VaultID) (bool, error)
}

type Service struct {
	vaults         VaultStore
	events         EventStore
	releaser       Releaser
	notifier       notify.Notifier
	metrics        *metrics.Metrics
	logger         *slog.Logger
	auditPublisher audit.Publisher
	now            func() time.Time
}

type Option func(*Service)

func WithReleaser(r Releaser) Option {
	return func(s *Service) { s.releaser = r }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(vaults VaultStore, events EventStore, opts ...Option) (*Service, error) {
	if vaults == nil {
		return nil, errors.New("vault store is required")
	}
	if events == nil {
		return nil, errors.New("event store is required")
	}
	s := &Service{
		vaults: vaults,
		events: events,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// errUnchanged is returned by a mutation that has nothing to write.
var errUnchanged = errors.New("unchanged")

// mutation edits v in place and returns the statuses the write is guarded by.
type mutation func(v *models.Vault, now time.Time) (from []models.Status, err error)

// update loads a vault, applies fn and writes it back, reloading and
// reapplying when a concurrent writer wins. written is false when fn returned
// errUnchanged.
func (s *Service) update(ctx context.Context, load func(context.Context) (*models.Vault, error), fn mutation) (before, after *models.Vault, written bool, err error) {
	for attempt := 1; ; attempt++ {
		before, err = load(ctx)
		if err != nil {
			return nil, nil, false, err
		}
		after = before.Clone()
		now := s.now()
		from, err := fn(after, now)
		if errors.Is(err, errUnchanged) {
			return before, before, false, nil
		}
		if err != nil {
			return nil, nil, false, err
		}
		after.UpdatedAt = now

		err = s.vaults.Transition(ctx, after, from...)
		if err == nil {
			return before, after, true, nil
		}
		if errors.Is(err, sentinel.ErrConflict) && attempt < maxAttempts {
			continue
		}
		return nil, nil, false, translate(err)
	}
}

func (s *Service) loadOwned(owner id.OwnerID, vaultID id.VaultID) func(context.Context) (*models.Vault, error) {
	return func(ctx context.Context) (*models.Vault, error) {
		v, err := s.load(ctx, vaultID)
		if err != nil {
			return nil, err
		}
		if v.OwnerID != owner {
			return nil, dErrors.New(dErrors.CodeNotFound, "vault not found")
		}
		return v, nil
	}
}

func (s *Service) loadAny(vaultID id.VaultID) func(context.Context) (*models.Vault, error) {
	return func(ctx context.Context) (*models.Vault, error) {
		return s.load(ctx, vaultID)
	}
}

func (s *Service) load(ctx context.Context, vaultID id.VaultID) (*models.Vault, error) {
	v, err := s.vaults.FindByID(ctx, vaultID)
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "vault not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "vault was modified concurrently")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "vault store failure")
	}
}

func errTerminal(v *models.Vault) error {
	return dErrors.New(dErrors.CodeConflict, "vault is "+string(v.Status))
}

// Heartbeat records owner activity. PENDING_VERIFICATION returns to ACTIVE and
// any pending self-service unlock on the vault is cancelled. On a vault whose
// switch is off the timers are left alone but unlocks are still cancelled.
func (s *Service) Heartbeat(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) (*models.Vault, error) {
	before, after, written, err := s.update(ctx, s.loadOwned(owner, vaultID), func(v *models.Vault, now time.Time) ([]models.Status, error) {
		if v.Status.IsTerminal() {
			return nil, errTerminal(v)
		}
		if !v.DeadManSwitchEnabled {
			return nil, errUnchanged
		}
		v.Status = models.StatusActive
		v.LastSeenAt = now
		v.WarnedAt = nil
		return []models.Status{models.StatusActive, models.StatusPendingVerification}, nil
	})
	if err != nil {
		return nil, err
	}

	if written {
		if s.metrics != nil {
			s.metrics.IncrementHeartbeats()
			if before.Status != after.Status {
				s.metrics.IncrementTransition(string(before.Status), string(after.Status))
			}
		}
		s.appendEvent(ctx, after.ID, livemodels.HeartbeatReceived{PreviousStatus: string(before.Status)}, after.LastSeenAt)
		s.logAudit(ctx, audit.EventHeartbeatReceived,
			"vault_id", after.ID,
			"owner_id", owner,
			"previous_status", string(before.Status),
		)
	}

	s.cancelUnlocks(ctx, after.ID)
	return after, nil
}

// cancelUnlocks returns every UNLOCK_REQUESTED beneficiary of the vault to
// PENDING. Failures are logged; the heartbeat itself already succeeded.
func (s *Service) cancelUnlocks(ctx context.Context, vaultID id.VaultID) {
	if s.releaser == nil {
		return
	}
	n, err := s.releaser.CancelUnlocks(ctx, vaultID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to cancel unlock requests",
			"vault_id", vaultID,
			"error", err,
		)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "unlock requests cancelled by heartbeat",
			"vault_id", vaultID,
			"cancelled", n,
		)
	}
}

// UpdateSchedule changes the timers. The next sweep evaluates them against the
// existing lastSeenAt.
func (s *Service) UpdateSchedule(ctx context.Context, vaultID id.VaultID, owner id.OwnerID, frequencyDays, graceDays int) (*models.Vault, error) {
	if err := models.ValidateSchedule(frequencyDays, graceDays); err != nil {
		return nil, err
	}
	_, after, written, err := s.update(ctx, s.loadOwned(owner, vaultID), func(v *models.Vault, _ time.Time) ([]models.Status, error) {
		if v.Status.IsTerminal() {
			return nil, errTerminal(v)
		}
		if v.HeartbeatFrequencyDays == frequencyDays && v.GracePeriodDays == graceDays {
			return nil, errUnchanged
		}
		v.HeartbeatFrequencyDays = frequencyDays
		v.GracePeriodDays = graceDays
		return []models.Status{v.Status}, nil
	})
	if err != nil {
		return nil, err
	}
	if written {
		s.logAudit(ctx, audit.EventScheduleUpdated,
			"vault_id", after.ID,
			"owner_id", owner,
			"heartbeat_frequency_days", frequencyDays,
			"grace_period_days", graceDays,
		)
	}
	return after, nil
}

// SetSwitch turns the dead man's switch on or off. Disabling keeps the status
// and takes the vault out of the sweep; enabling counts as owner activity.
func (s *Service) SetSwitch(ctx context.Context, vaultID id.VaultID, owner id.OwnerID, enabled bool) (*models.Vault, error) {
	_, after, written, err := s.update(ctx, s.loadOwned(owner, vaultID), func(v *models.Vault, now time.Time) ([]models.Status, error) {
		if v.Status.IsTerminal() {
			return nil, errTerminal(v)
		}
		if v.DeadManSwitchEnabled == enabled {
			return nil, errUnchanged
		}
		from := []models.Status{v.Status}
		v.DeadManSwitchEnabled = enabled
		if enabled {
			v.Status = models.StatusActive
			v.LastSeenAt = now
			v.WarnedAt = nil
		}
		return from, nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		return after, nil
	}

	if enabled {
		s.logAudit(ctx, audit.EventSwitchEnabled, "vault_id", after.ID, "owner_id", owner)
	} else {
		s.appendEvent(ctx, after.ID, livemodels.SwitchDeactivated{Reason: "owner_disabled"}, after.UpdatedAt)
		s.logAudit(ctx, audit.EventSwitchDisabled, "vault_id", after.ID, "owner_id", owner, "reason", "owner_disabled")
	}
	return after, nil
}

// Retire soft-deletes a vault: it becomes RELEASED with the switch off and
// pending unlock requests are cancelled. A vault already in release cannot be
// retired.
func (s *Service) Retire(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) (*models.Vault, error) {
	_, after, written, err := s.update(ctx, s.loadOwned(owner, vaultID), func(v *models.Vault, _ time.Time) ([]models.Status, error) {
		switch v.Status {
		case models.StatusReleased:
			return nil, errUnchanged
		case models.StatusTriggered:
			return nil, errTerminal(v)
		}
		from := []models.Status{v.Status}
		v.Status = models.StatusReleased
		v.DeadManSwitchEnabled = false
		v.WarnedAt = nil
		return from, nil
	})
	if err != nil {
		return nil, err
	}
	if !written {
		return after, nil
	}

	s.appendEvent(ctx, after.ID, livemodels.SwitchDeactivated{Reason: "vault_retired"}, after.UpdatedAt)
	s.logAudit(ctx, audit.EventVaultRetired, "vault_id", after.ID, "owner_id", owner)
	if s.releaser != nil {
		if _, err := s.releaser.CancelUnlocks(ctx, after.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to cancel unlock requests on retire",
				"vault_id", after.ID,
				"error", err,
			)
		}
	}
	return after, nil
}

// TriggerNow forces an ACTIVE or PENDING_VERIFICATION vault into TRIGGERED,
// bypassing the timers.
func (s *Service) TriggerNow(ctx context.Context, vaultID id.VaultID, operator id.OwnerID) (*models.Vault, error) {
	ctx, span := tracing.Start(ctx, "liveness.trigger_now", attribute.String("vault_id", vaultID.String()))
	before, after, _, err := s.update(ctx, s.loadAny(vaultID), func(v *models.Vault, now time.Time) ([]models.Status, error) {
		if v.Status.IsTerminal() {
			return nil, errTerminal(v)
		}
		from := []models.Status{v.Status}
		v.Status = models.StatusTriggered
		v.DeadManSwitchActivatedAt = &now
		return from, nil
	})
	defer func() { tracing.End(span, err) }()
	if err != nil {
		return nil, err
	}

	s.onTriggered(ctx, before, after, livemodels.SwitchActivated{AdminAction: true, OperatorID: operator})
	s.logAudit(ctx, audit.EventSwitchActivated,
		"vault_id", after.ID,
		"operator_id", operator,
		"admin_action", true,
	)
	s.fanOut(ctx, after)
	return after, nil
}

// CompleteRelease moves a TRIGGERED vault to RELEASED once every beneficiary
// has been released. Other statuses are left alone.
func (s *Service) CompleteRelease(ctx context.Context, vaultID id.VaultID) error {
	if s.releaser == nil {
		return nil
	}
	v, err := s.load(ctx, vaultID)
	if err != nil {
		return err
	}
	if v.Status != models.StatusTriggered {
		return nil
	}
	done, err := s.releaser.AllReleased(ctx, vaultID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check beneficiaries")
	}
	if !done {
		return nil
	}

	v.Status = models.StatusReleased
	v.UpdatedAt = s.now()
	if err := s.vaults.Transition(ctx, v, models.StatusTriggered); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil
		}
		return translate(err)
	}
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(models.StatusTriggered), string(models.StatusReleased))
	}
	s.logAudit(ctx, audit.EventVaultReleased, "vault_id", v.ID, "actor", "system")
	return nil
}

// Events returns the owner's liveness history, oldest first.
func (s *Service) Events(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) ([]livemodels.Event, error) {
	if _, err := s.loadOwned(owner, vaultID)(ctx); err != nil {
		return nil, err
	}
	events, err := s.events.ListByVault(ctx, vaultID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return events, nil
}

func (s *Service) onTriggered(ctx context.Context, before, after *models.Vault, payload livemodels.SwitchActivated) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(before.Status), string(after.Status))
	}
	s.appendEvent(ctx, after.ID, payload, *after.DeadManSwitchActivatedAt)
}

// fanOut asks the release gate to notify every pending beneficiary and
// records each delivery. Failures are logged and retried by the next sweep.
func (s *Service) fanOut(ctx context.Context, v *models.Vault) int {
	if s.releaser == nil {
		return 0
	}
	deliveries, err := s.releaser.FanOut(ctx, v.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "release fan-out incomplete",
			"vault_id", v.ID,
			"error", err,
		)
	}
	s.recordDeliveries(ctx, deliveries)
	return len(deliveries)
}

func (s *Service) recordDeliveries(ctx context.Context, deliveries []releasemodels.Delivery) {
	now := s.now()
	for _, d := range deliveries {
		s.appendEvent(ctx, d.VaultID, livemodels.AssetsReleased{
			BeneficiaryID:    d.BeneficiaryID,
			ShipmentTracking: d.ShipmentTracking,
		}, now)
	}
}

func (s *Service) appendEvent(ctx context.Context, vaultID id.VaultID, payload livemodels.Payload, at time.Time) {
	if err := s.events.Append(ctx, livemodels.NewEvent(vaultID, payload, at)); err != nil {
		s.logger.ErrorContext(ctx, "failed to append liveness event",
			"vault_id", vaultID,
			"event_type", string(payload.Type()),
			"error", err,
		)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attrs ...any) {
	audit.LogAudit(ctx, s.logger, s.auditPublisher, event, attrs...)
}
