package service

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"keepsake/internal/notify"
	"keepsake/internal/platform/tracing"
	"keepsake/internal/release/models"
	"keepsake/internal/shipment"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/sentinel"
)

// FanOut releases a triggered vault to every beneficiary not yet notified,
// including those with an open unlock request: each gets a token, a shipment
// when their address is complete and an inheritance notice. Beneficiaries
// another sweep already served are skipped. Shipment and notification
// failures are logged and never undo the token.
func (s *Service) FanOut(ctx context.Context, vaultID id.VaultID) (deliveries []models.Delivery, err error) {
	ctx, span := tracing.Start(ctx, "release.fan_out", attribute.String("vault_id", vaultID.String()))
	defer func() { tracing.End(span, err) }()

	bs, err := s.store.ListByVault(ctx, vaultID)
	if err != nil {
		return nil, translate(err, "beneficiary")
	}
	var pending []*models.Beneficiary
	for _, b := range bs {
		if b.Status == models.StatusPending || b.Status == models.StatusUnlockRequested {
			pending = append(pending, b)
		}
	}
	deliveries, err = s.releaseAll(ctx, pending, audit.EventAssetsReleased)
	span.SetAttributes(attribute.Int("deliveries", len(deliveries)))
	return deliveries, err
}

// ProcessDueUnlocks grants every self-service unlock whose delay has passed
// without an owner heartbeat. Requests on a vault whose switch is off stay
// open until the owner turns it back on or checks in.
func (s *Service) ProcessDueUnlocks(ctx context.Context) ([]models.Delivery, error) {
	due, err := s.store.ListDueUnlocks(ctx, s.now())
	if err != nil {
		return nil, translate(err, "beneficiary")
	}
	due, err = s.armedOnly(ctx, due)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}
	return s.releaseAll(ctx, due, audit.EventUnlockGranted)
}

// armedOnly drops beneficiaries whose vault has its dead man's switch
// disabled. Each vault is read once.
func (s *Service) armedOnly(ctx context.Context, bs []*models.Beneficiary) ([]*models.Beneficiary, error) {
	armed := make(map[id.VaultID]bool)
	kept := bs[:0]
	for _, b := range bs {
		on, seen := armed[b.VaultID]
		if !seen {
			v, err := s.vaults.FindByID(ctx, b.VaultID)
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				on = false
			case err != nil:
				return nil, translate(err, "vault")
			default:
				on = v.DeadManSwitchEnabled
			}
			armed[b.VaultID] = on
			if !on {
				s.logger.DebugContext(ctx, "unlock held while switch is off",
					"vault_id", b.VaultID,
				)
			}
		}
		if on {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

// releaseAll runs release for each beneficiary with bounded concurrency.
// Deliveries keep the input order.
func (s *Service) releaseAll(ctx context.Context, bs []*models.Beneficiary, event audit.AuditEvent) ([]models.Delivery, error) {
	results := make([]*models.Delivery, len(bs))
	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(s.fanOutConcurrency)
	for i, b := range bs {
		g.Go(func() error {
			d, err := s.release(ctx, b, event)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = d
			return nil
		})
	}
	_ = g.Wait()

	var deliveries []models.Delivery
	for _, d := range results {
		if d != nil {
			deliveries = append(deliveries, *d)
		}
	}
	return deliveries, errors.Join(errs...)
}

// release issues a token to b, guarded by the status and version it was read
// with, and delivers it. A nil delivery with a nil error means another writer
// got there first.
func (s *Service) release(ctx context.Context, b *models.Beneficiary, event audit.AuditEvent) (*models.Delivery, error) {
	next := b.Clone()
	next.Status = models.StatusNotified
	next.ClearUnlock()
	grant, err := s.issue(ctx, next, b.Status)
	if errors.Is(err, sentinel.ErrConflict) || errors.Is(err, sentinel.ErrNotFound) {
		s.logger.DebugContext(ctx, "beneficiary already handled",
			"beneficiary_id", b.ID,
			"expected_status", string(b.Status),
		)
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue release token")
	}

	tracking := s.ship(ctx, next)
	s.sendNotice(ctx, next, grant, tracking)
	s.logAudit(ctx, event,
		"vault_id", next.VaultID,
		"beneficiary_id", next.ID,
		"actor", "system",
	)
	return &models.Delivery{
		VaultID:          next.VaultID,
		BeneficiaryID:    next.ID,
		ShipmentTracking: tracking,
	}, nil
}

// ship requests a physical kit when the postal address is complete and
// returns the tracking number, if any.
func (s *Service) ship(ctx context.Context, b *models.Beneficiary) string {
	if !b.Address.Complete() {
		return ""
	}
	sh, err := s.carrier.CreateShipment(ctx,
		shipment.Recipient{Name: b.Name, Address: b.Address},
		"Keepsake access kit for vault "+b.VaultID.String(),
	)
	if err != nil {
		s.fanOutFailure(ctx, "shipment", b, err)
		return ""
	}
	return sh.Tracking
}

func (s *Service) sendNotice(ctx context.Context, b *models.Beneficiary, grant *models.TokenGrant, tracking string) {
	err := s.notifier.SendInheritanceNotice(ctx, notify.InheritanceNotice{
		VaultID:          b.VaultID,
		BeneficiaryID:    b.ID,
		Name:             b.Name,
		Email:            b.Email,
		Token:            grant.Token,
		ExpiresAt:        grant.ExpiresAt,
		ShipmentTracking: tracking,
	})
	if err != nil {
		s.fanOutFailure(ctx, "notification", b, err)
	}
}

func (s *Service) fanOutFailure(ctx context.Context, step string, b *models.Beneficiary, err error) {
	if s.metrics != nil {
		s.metrics.IncrementFanOutFailures()
	}
	s.logger.ErrorContext(ctx, "release delivery step failed",
		"step", step,
		"vault_id", b.VaultID,
		"beneficiary_id", b.ID,
		"error", err,
	)
}

// CancelUnlocks returns every UNLOCK_REQUESTED beneficiary of the vault to
// PENDING. It reports how many requests were cancelled.
func (s *Service) CancelUnlocks(ctx context.Context, vaultID id.VaultID) (int, error) {
	bs, err := s.store.ListByVault(ctx, vaultID)
	if err != nil {
		return 0, translate(err, "beneficiary")
	}
	cancelled := 0
	var errs []error
	for _, b := range bs {
		if b.Status != models.StatusUnlockRequested {
			continue
		}
		next := b.Clone()
		next.Status = models.StatusPending
		next.ClearUnlock()
		next.UpdatedAt = s.now()
		err := s.store.Transition(ctx, next, models.StatusUnlockRequested)
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cancelled++
		s.logAudit(ctx, audit.EventUnlockCancelled,
			"vault_id", vaultID,
			"beneficiary_id", b.ID,
			"actor", "system",
			"reason", "owner_active",
		)
	}
	return cancelled, errors.Join(errs...)
}

// AllReleased reports whether the vault has beneficiaries and every one of
// them has decrypted at least once.
func (s *Service) AllReleased(ctx context.Context, vaultID id.VaultID) (bool, error) {
	bs, err := s.store.ListByVault(ctx, vaultID)
	if err != nil {
		return false, translate(err, "beneficiary")
	}
	if len(bs) == 0 {
		return false, nil
	}
	for _, b := range bs {
		if b.Status != models.StatusReleased {
			return false, nil
		}
	}
	return true, nil
}
