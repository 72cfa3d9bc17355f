package notify

import (
	"context"
	"log/slog"

	"keepsake/pkg/email"
)

// LogNotifier writes notifications to the log. Release tokens are never
// logged.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendWarning(ctx context.Context, w Warning) error {
	n.logger.InfoContext(ctx, "liveness warning",
		"vault_id", w.VaultID.String(),
		"owner_id", w.OwnerID.String(),
		"grace_ends_at", w.GraceEndsAt,
	)
	return nil
}

func (n *LogNotifier) SendInheritanceNotice(ctx context.Context, in InheritanceNotice) error {
	n.logger.InfoContext(ctx, "inheritance notice",
		"vault_id", in.VaultID.String(),
		"beneficiary_id", in.BeneficiaryID.String(),
		"email", email.Mask(in.Email),
		"expires_at", in.ExpiresAt,
		"shipment_tracking", in.ShipmentTracking,
	)
	return nil
}

func (n *LogNotifier) SendUnlockNotice(ctx context.Context, u UnlockNotice) error {
	n.logger.InfoContext(ctx, "unlock request notice",
		"vault_id", u.VaultID.String(),
		"owner_id", u.OwnerID.String(),
		"beneficiary_id", u.BeneficiaryID.String(),
		"unlock_at", u.UnlockAt,
	)
	return nil
}
