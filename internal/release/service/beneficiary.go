package service

import (
	"context"
	"errors"

	"keepsake/internal/notify"
	"keepsake/internal/release/models"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/email"
	"keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/sentinel"
)

// AddBeneficiary designates a recipient on an owner's vault. The decryption
// quota comes from the vault's plan. Without a name, one is derived from the
// email address.
func (s *Service) AddBeneficiary(ctx context.Context, vaultID id.VaultID, owner id.OwnerID, req models.AddBeneficiaryRequest) (*models.Beneficiary, error) {
	req.Normalize()
	if req.Name == "" {
		req.Name = email.DisplayName(email.Normalize(req.Email))
	}
	v, err := s.loadOwnedVault(ctx, vaultID, owner)
	if err != nil {
		return nil, err
	}
	if v.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeConflict, "vault is "+string(v.Status))
	}
	limits, err := s.plans.Lookup(v.Plan)
	if err != nil {
		return nil, err
	}
	b, err := models.NewBeneficiary(v.ID, req.Name, req.Email, req.Address, limits.DecryptionLimit, limits.BonusDecryptions, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, translate(err, "beneficiary")
	}
	s.logAudit(ctx, audit.EventBeneficiaryAdded,
		"vault_id", v.ID,
		"beneficiary_id", b.ID,
		"owner_id", owner,
	)
	return b, nil
}

func (s *Service) ListBeneficiaries(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) ([]*models.Beneficiary, error) {
	if _, err := s.loadOwnedVault(ctx, vaultID, owner); err != nil {
		return nil, err
	}
	bs, err := s.store.ListByVault(ctx, vaultID)
	if err != nil {
		return nil, translate(err, "beneficiary")
	}
	return bs, nil
}

// History returns a beneficiary's decryption attempts for the vault owner.
func (s *Service) History(ctx context.Context, vaultID id.VaultID, beneficiaryID id.BeneficiaryID, owner id.OwnerID) ([]models.DecryptionAttempt, error) {
	if _, err := s.loadOwnedVault(ctx, vaultID, owner); err != nil {
		return nil, err
	}
	b, err := s.loadBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	if b.VaultID != vaultID {
		return nil, dErrors.New(dErrors.CodeNotFound, "beneficiary not found")
	}
	return s.attempts(ctx, b.ID)
}

// HistoryForToken returns the attempts of the token's holder. An expired
// token still reads its history, so a caller whose decrypt timed out can
// check whether it was counted before retrying.
func (s *Service) HistoryForToken(ctx context.Context, token string) ([]models.DecryptionAttempt, error) {
	validation, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if validation.Beneficiary == nil {
		return nil, tokenError(validation.Reason)
	}
	return s.attempts(ctx, validation.Beneficiary.ID)
}

func (s *Service) attempts(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]models.DecryptionAttempt, error) {
	attempts, err := s.store.Attempts(ctx, beneficiaryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load decryption history")
	}
	return attempts, nil
}

// RequestUnlock starts a self-service unlock. The owner is told and has the
// unlock delay to check in; a heartbeat in that window cancels the request.
// Requests for an unknown beneficiary and requests with the wrong email look
// the same. Repeating a request returns the open one unchanged. A vault whose
// switch is off refuses new requests.
func (s *Service) RequestUnlock(ctx context.Context, beneficiaryID id.BeneficiaryID, addr string) (*models.Beneficiary, error) {
	b, err := s.loadBeneficiary(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	if b.Email != email.Normalize(addr) {
		return nil, dErrors.New(dErrors.CodeNotFound, "beneficiary not found")
	}
	switch b.Status {
	case models.StatusUnlockRequested:
		return b, nil
	case models.StatusPending:
	default:
		return nil, dErrors.New(dErrors.CodeConflict, "release link already issued")
	}

	v, err := s.loadVault(ctx, b.VaultID)
	if err != nil {
		return nil, err
	}
	if v.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeConflict, "vault is "+string(v.Status))
	}
	if !v.DeadManSwitchEnabled {
		return nil, dErrors.New(dErrors.CodeConflict, "vault release is paused by its owner")
	}

	now := s.now()
	until := now.Add(s.unlockDelay)
	next := b.Clone()
	next.Status = models.StatusUnlockRequested
	next.UnlockRequestedAt = &now
	next.UnlockDelayUntil = &until
	next.UnlockNotificationSent = false
	next.UpdatedAt = now
	if err := s.store.Transition(ctx, next, models.StatusPending); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "beneficiary was modified concurrently")
		}
		return nil, translate(err, "beneficiary")
	}

	if s.metrics != nil {
		s.metrics.IncrementUnlocksRequested()
	}
	s.logAudit(ctx, audit.EventUnlockRequested,
		"vault_id", next.VaultID,
		"beneficiary_id", next.ID,
		"actor", "beneficiary",
		"unlock_at", until,
	)

	err = s.notifier.SendUnlockNotice(ctx, notify.UnlockNotice{
		VaultID:         v.ID,
		OwnerID:         v.OwnerID,
		BeneficiaryID:   next.ID,
		BeneficiaryName: next.Name,
		UnlockAt:        until,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to notify owner of unlock request",
			"vault_id", v.ID,
			"beneficiary_id", next.ID,
			"error", err,
		)
		return next, nil
	}

	sent := next.Clone()
	sent.UnlockNotificationSent = true
	if err := s.store.Transition(ctx, sent, models.StatusUnlockRequested); err != nil {
		s.logger.WarnContext(ctx, "failed to mark unlock notice sent",
			"beneficiary_id", next.ID,
			"error", err,
		)
		return next, nil
	}
	return sent, nil
}
