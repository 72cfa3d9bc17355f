// Package service is the release authorization gate. It issues release
// tokens, decides every decryption attempt and owns beneficiary status.
// Quota is enforced by an atomic conditional increment in the store; every
// attempt, successful or not, lands in the beneficiary's history.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"keepsake/internal/notify"
	"keepsake/internal/plan"
	"keepsake/internal/release/anomaly"
	"keepsake/internal/release/metrics"
	"keepsake/internal/release/models"
	"keepsake/internal/shipment"
	vaultmodels "keepsake/internal/vault/models"
	"keepsake/internal/vaultcrypto"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/audit"
	"keepsake/pkg/platform/sentinel"
)

const (
	DefaultTokenTTL          = 24 * time.Hour
	DefaultUnlockDelay       = 24 * time.Hour
	DefaultFanOutConcurrency = 4

	// maxAttempts bounds retries of token writes that lose a race.
	maxAttempts = 3
)

// User-visible messages.
const (
	msgInvalidToken       = "link invalid or expired"
	msgInvalidCredentials = "invalid credentials or recovery material"
	msgQuotaExceeded      = "decryption limit reached; upgrade your plan for more downloads"
)

type Store interface {
	Create(ctx context.Context, b *models.Beneficiary) error
	FindByID(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error)
	FindByTokenHash(ctx context.Context, hash string) (*models.Beneficiary, error)
	ListByVault(ctx context.Context, vaultID id.VaultID) ([]*models.Beneficiary, error)
	ListDueUnlocks(ctx context.Context, now time.Time) ([]*models.Beneficiary, error)
	Transition(ctx context.Context, b *models.Beneficiary, from ...models.Status) error
	RecordSuccess(ctx context.Context, beneficiaryID id.BeneficiaryID, tokenHash string, a *models.DecryptionAttempt, now time.Time) (*models.Beneficiary, error)
	RecordFailure(ctx context.Context, beneficiaryID id.BeneficiaryID, a *models.DecryptionAttempt) error
	Attempts(ctx context.Context, beneficiaryID id.BeneficiaryID) ([]models.DecryptionAttempt, error)
}

// VaultReader is the read side of the vault store.
type VaultReader interface {
	FindByID(ctx context.Context, vaultID id.VaultID) (*vaultmodels.Vault, error)
}

// Completer moves a triggered vault to RELEASED once every beneficiary has
// been served. The liveness service implements it.
type Completer interface {
	CompleteRelease(ctx context.Context, vaultID id.VaultID) error
}

// CompleterFunc adapts a function to Completer, which lets the server wire
// the liveness service in after both services exist.
type CompleterFunc func(ctx context.Context, vaultID id.VaultID) error

func (f CompleterFunc) CompleteRelease(ctx context.Context, vaultID id.VaultID) error {
	return f(ctx, vaultID)
}

type Service struct {
	store             Store
	vaults            VaultReader
	plans             *plan.Catalog
	pool              *vaultcrypto.Pool
	notifier          notify.Notifier
	carrier           shipment.Carrier
	anomalies         *anomaly.Tracker
	completer         Completer
	metrics           *metrics.Metrics
	logger            *slog.Logger
	auditPublisher    audit.Publisher
	now               func() time.Time
	tokenTTL          time.Duration
	unlockDelay       time.Duration
	fanOutConcurrency int
}

type Option func(*Service)

func WithPlans(c *plan.Catalog) Option {
	return func(s *Service) { s.plans = c }
}

func WithPool(p *vaultcrypto.Pool) Option {
	return func(s *Service) { s.pool = p }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithCarrier(c shipment.Carrier) Option {
	return func(s *Service) { s.carrier = c }
}

func WithAnomalyTracker(t *anomaly.Tracker) Option {
	return func(s *Service) { s.anomalies = t }
}

func WithCompleter(c Completer) Option {
	return func(s *Service) { s.completer = c }
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

func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

func WithUnlockDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.unlockDelay = d
		}
	}
}

func WithFanOutConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.fanOutConcurrency = n
		}
	}
}

func New(store Store, vaults VaultReader, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("beneficiary store is required")
	}
	if vaults == nil {
		return nil, errors.New("vault reader is required")
	}
	s := &Service{
		store:             store,
		vaults:            vaults,
		plans:             plan.DefaultCatalog(),
		pool:              vaultcrypto.NewPool(2),
		carrier:           shipment.NoopCarrier{},
		logger:            slog.Default(),
		now:               time.Now,
		tokenTTL:          DefaultTokenTTL,
		unlockDelay:       DefaultUnlockDelay,
		fanOutConcurrency: DefaultFanOutConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.logger)
	}
	if s.anomalies == nil {
		s.anomalies = anomaly.New(nil, 10, 15*time.Minute, anomaly.WithLogger(s.logger), anomaly.WithClock(s.now))
	}
	return s, nil
}

func (s *Service) loadBeneficiary(ctx context.Context, beneficiaryID id.BeneficiaryID) (*models.Beneficiary, error) {
	b, err := s.store.FindByID(ctx, beneficiaryID)
	if err != nil {
		return nil, translate(err, "beneficiary")
	}
	return b, nil
}

func (s *Service) loadVault(ctx context.Context, vaultID id.VaultID) (*vaultmodels.Vault, error) {
	v, err := s.vaults.FindByID(ctx, vaultID)
	if err != nil {
		return nil, translate(err, "vault")
	}
	return v, nil
}

// loadOwnedVault hides other owners' vaults behind not_found.
func (s *Service) loadOwnedVault(ctx context.Context, vaultID id.VaultID, owner id.OwnerID) (*vaultmodels.Vault, error) {
	v, err := s.loadVault(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if v.OwnerID != owner {
		return nil, dErrors.New(dErrors.CodeNotFound, "vault not found")
	}
	return v, nil
}

func translate(err error, entity string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, entity+" not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, entity+" was modified concurrently")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, entity+" store failure")
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, attrs ...any) {
	audit.LogAudit(ctx, s.logger, s.auditPublisher, event, attrs...)
}
