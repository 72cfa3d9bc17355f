package service

import (
	"context"
	"errors"
	"time"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel/attribute"

	"keepsake/internal/platform/tracing"
	"keepsake/internal/recovery"
	"keepsake/internal/release/models"
	vaultmodels "keepsake/internal/vault/models"
	"keepsake/internal/vaultcrypto"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/sentinel"
)

var errNoRecoveryBackup = errors.New("vault has no recovery backup")

// Decrypt opens a vault for the holder of a valid release token. The caller
// supplies either the master password or both recovery fragments. The quota
// is checked before any key derivation and enforced again by the conditional
// increment, so concurrent callers never exceed it. Plaintext is returned
// only after the success is recorded.
func (s *Service) Decrypt(ctx context.Context, req models.DecryptRequest) (result *models.DecryptResult, err error) {
	ctx, span := tracing.Start(ctx, "release.decrypt")
	start := time.Now()
	defer func() {
		tracing.End(span, err)
		if s.metrics != nil {
			s.metrics.ObserveDecryptDuration(time.Since(start).Seconds())
		}
	}()

	if req.HasPassword() == req.HasFragments() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "provide either the master password or both recovery fragments")
	}
	if req.HasFragments() && (req.FragmentA == "" || req.FragmentB == "") {
		return nil, dErrors.New(dErrors.CodeBadRequest, "both recovery fragments are required")
	}

	attempt := models.DecryptionAttempt{
		At:     s.now(),
		IP:     req.IP,
		Device: device(req.UserAgent),
	}

	validation, err := s.ValidateToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		s.fail(ctx, validation.Beneficiary, attempt, models.ReasonTokenExpired)
		return nil, tokenError(validation.Reason)
	}
	b := validation.Beneficiary
	span.SetAttributes(
		attribute.String("vault_id", b.VaultID.String()),
		attribute.String("beneficiary_id", b.ID.String()),
	)

	if !b.HasQuota() {
		s.fail(ctx, b, attempt, models.ReasonQuotaExceeded)
		return nil, dErrors.New(dErrors.CodeQuotaExceeded, msgQuotaExceeded)
	}

	v, err := s.vaults.FindByID(ctx, b.VaultID)
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && v.IsRetired()) {
		s.fail(ctx, b, attempt, models.ReasonTokenExpired)
		return nil, tokenError(models.TokenNotFound)
	}
	if err != nil {
		return nil, translate(err, "vault")
	}

	plaintext, reason, err := s.open(ctx, v, req)
	if err != nil {
		if reason == "" {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decryption did not complete")
		}
		s.fail(ctx, b, attempt, reason)
		return nil, dErrors.New(dErrors.CodeInvalidCredentials, msgInvalidCredentials)
	}

	attempt.Success = true
	updated, err := s.store.RecordSuccess(ctx, b.ID, b.TokenHash, &attempt, s.now())
	if err != nil {
		vaultcrypto.Wipe(plaintext)
		attempt.Success = false
		switch {
		case errors.Is(err, sentinel.ErrExhausted):
			s.fail(ctx, b, attempt, models.ReasonQuotaExceeded)
			return nil, dErrors.New(dErrors.CodeQuotaExceeded, msgQuotaExceeded)
		case errors.Is(err, sentinel.ErrConflict):
			// The link was reissued while this attempt was decrypting.
			s.fail(ctx, b, attempt, models.ReasonTokenExpired)
			return nil, tokenError(models.TokenNotFound)
		}
		return nil, translate(err, "beneficiary")
	}

	if s.metrics != nil {
		s.metrics.IncrementDecrypt("success")
	}
	s.logAudit(ctx, audit.EventDecryptSucceeded,
		"vault_id", updated.VaultID,
		"beneficiary_id", updated.ID,
		"actor", "beneficiary",
		"ip", req.IP,
		"decryptions_used", updated.DecryptionCount,
	)
	if s.completer != nil {
		if err := s.completer.CompleteRelease(ctx, updated.VaultID); err != nil {
			s.logger.ErrorContext(ctx, "failed to complete vault release",
				"vault_id", updated.VaultID,
				"error", err,
			)
		}
	}

	return &models.DecryptResult{
		VaultID:   updated.VaultID,
		Plaintext: plaintext,
		Used:      updated.DecryptionCount,
		Remaining: updated.Remaining(),
	}, nil
}

// open runs the key derivations on the crypto pool. reason is set when the
// supplied secret material was wrong; an empty reason with a non-nil error
// means the attempt never completed.
func (s *Service) open(ctx context.Context, v *vaultmodels.Vault, req models.DecryptRequest) (plaintext []byte, reason string, err error) {
	if req.HasPassword() {
		plaintext, err = s.pool.Open(ctx, []byte(req.MasterPassword), v.Payload)
		if errors.Is(err, vaultcrypto.ErrAuthentication) {
			return nil, models.ReasonInvalidCredentials, err
		}
		return plaintext, "", err
	}

	if !v.HasRecoveryBackup() {
		return nil, models.ReasonInvalidFragments, errNoRecoveryBackup
	}
	merged := recovery.Merge(recovery.Fragment(req.FragmentA), recovery.Fragment(req.FragmentB))
	if !merged.Valid {
		return nil, models.ReasonInvalidFragments, errors.Join(merged.Errors...)
	}
	err = s.pool.Do(ctx, func() error {
		password, err := recovery.RecoverMasterPassword(merged.Mnemonic, v.RecoveryBackup)
		if err != nil {
			return err
		}
		defer vaultcrypto.Wipe(password)
		plaintext, err = vaultcrypto.Open(password, v.Payload)
		return err
	})
	if errors.Is(err, vaultcrypto.ErrAuthentication) {
		return nil, models.ReasonInvalidFragments, err
	}
	if err != nil {
		return nil, "", err
	}
	return plaintext, "", nil
}

// fail records a failed attempt. b is nil when the token matched nobody, in
// which case only the audit trail and the anomaly counter see it.
func (s *Service) fail(ctx context.Context, b *models.Beneficiary, attempt models.DecryptionAttempt, reason string) {
	attempt.Reason = reason
	attrs := []any{"actor", "beneficiary", "ip", attempt.IP, "reason", reason}
	if b != nil {
		attrs = append(attrs, "vault_id", b.VaultID, "beneficiary_id", b.ID)
		if err := s.store.RecordFailure(ctx, b.ID, &attempt); err != nil {
			s.logger.ErrorContext(ctx, "failed to record decryption attempt",
				"beneficiary_id", b.ID,
				"reason", reason,
				"error", err,
			)
		}
	}
	if s.metrics != nil {
		s.metrics.IncrementDecrypt(reason)
	}

	event := audit.EventDecryptFailed
	if reason == models.ReasonQuotaExceeded {
		event = audit.EventDecryptQuotaExceeded
	}
	s.logAudit(ctx, event, attrs...)

	if reason != models.ReasonQuotaExceeded {
		s.trackAnomaly(ctx, attempt.IP)
	}
}

func (s *Service) trackAnomaly(ctx context.Context, ip string) {
	res, err := s.anomalies.RecordFailure(ctx, ip)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to count decryption failure", "ip", ip, "error", err)
		return
	}
	if !res.Crossed {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementAnomalies()
	}
	s.logAudit(ctx, audit.EventDecryptAnomaly,
		"actor", "system",
		"ip", ip,
		"reason", "failed_decryption_threshold",
		"failures", res.Count,
		"severity", string(audit.SeverityCritical),
	)
}

// device summarizes a User-Agent header for the attempt history.
func device(ua string) string {
	if ua == "" {
		return ""
	}
	u := useragent.New(ua)
	if u.Bot() {
		return "bot"
	}
	name, version := u.Browser()
	out := name
	if version != "" {
		out += " " + version
	}
	if os := u.OS(); os != "" {
		out += " on " + os
	}
	if u.Mobile() {
		out += " (mobile)"
	}
	return out
}
