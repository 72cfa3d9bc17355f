package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"keepsake/internal/notify"
	notifymocks "keepsake/internal/notify/mocks"
	"keepsake/internal/plan"
	"keepsake/internal/recovery"
	"keepsake/internal/release/anomaly"
	"keepsake/internal/release/metrics"
	"keepsake/internal/release/models"
	"keepsake/internal/release/store"
	"keepsake/internal/shipment"
	shipmentmocks "keepsake/internal/shipment/mocks"
	vaultmodels "keepsake/internal/vault/models"
	vaultstore "keepsake/internal/vault/store"
	"keepsake/internal/vaultcrypto"
	id "keepsake/pkg/domain"
	dErrors "keepsake/pkg/domain-errors"
	"keepsake/pkg/platform/audit"
	auditpublisher "keepsake/pkg/platform/audit/publisher"
	auditmemory "keepsake/pkg/platform/audit/store/memory"
	"keepsake/pkg/testutil"
)

// =============================================================================
// Release Gate Test Suite
// =============================================================================
// Justification for unit tests: token lifecycle, quota enforcement and the
// attempt history are the security boundary of the system. Stores are the
// in-memory implementations and crypto is real; the notifier and the carrier
// are mocked.

const (
	masterPassword = "correct horse battery staple"
	secretPayload  = "the safe combination is 12-34-56"
	chromeUA       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type ReleaseServiceSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *testutil.StubClock
	store     *store.InMemory
	vaults    *vaultstore.InMemory
	auditLog  *auditmemory.InMemoryStore
	notifier  *notifymocks.MockNotifier
	carrier   *shipmentmocks.MockCarrier
	completed []id.VaultID
	mu        sync.Mutex
	service   *Service
	owner     id.OwnerID
	kit       *recovery.Kit
	backup    vaultcrypto.Envelope
	payload   vaultcrypto.Envelope
}

func TestReleaseServiceSuite(t *testing.T) {
	suite.Run(t, new(ReleaseServiceSuite))
}

func (s *ReleaseServiceSuite) SetupSuite() {
	var err error
	s.payload, err = vaultcrypto.Seal([]byte(masterPassword), []byte(secretPayload))
	s.Require().NoError(err)
	s.kit, s.backup, err = recovery.NewKit([]byte(masterPassword))
	s.Require().NoError(err)
}

func (s *ReleaseServiceSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.ctx = context.Background()
	s.clock = testutil.FixedClock()
	s.store = store.NewInMemory()
	s.vaults = vaultstore.NewInMemory()
	s.auditLog = auditmemory.NewInMemoryStore()
	s.notifier = notifymocks.NewMockNotifier(ctrl)
	s.carrier = shipmentmocks.NewMockCarrier(ctrl)
	s.completed = nil
	s.owner = id.OwnerID(uuid.New())
	s.service = s.newService(anomaly.New(nil, 3, time.Hour, anomaly.WithClock(s.clock.Now)))
}

func (s *ReleaseServiceSuite) newService(tracker *anomaly.Tracker) *Service {
	return s.newServiceWithStore(s.store, tracker)
}

func (s *ReleaseServiceSuite) newServiceWithStore(st Store, tracker *anomaly.Tracker) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := New(st, s.vaults,
		WithPlans(plan.DefaultCatalog()),
		WithPool(vaultcrypto.NewPool(2)),
		WithNotifier(s.notifier),
		WithCarrier(s.carrier),
		WithAnomalyTracker(tracker),
		WithCompleter(CompleterFunc(func(_ context.Context, vaultID id.VaultID) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.completed = append(s.completed, vaultID)
			return nil
		})),
		WithMetrics(metrics.NewWithRegistry(prometheus.NewRegistry())),
		WithClock(s.clock.Now),
		WithLogger(logger),
		WithAuditPublisher(auditpublisher.NewPublisher(s.auditLog)),
	)
	s.Require().NoError(err)
	return svc
}

// createVault stores an ACTIVE vault and then moves it to status, the way a
// real vault only reaches TRIGGERED through a transition.
func (s *ReleaseServiceSuite) createVault(tier plan.Tier, status vaultmodels.Status) *vaultmodels.Vault {
	v, err := vaultmodels.NewVault(s.owner, tier, s.payload, s.backup, "", 90, 7, s.clock.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.vaults.Create(s.ctx, v))
	if status == vaultmodels.StatusActive {
		return v
	}
	return s.setVaultStatus(v.ID, status)
}

// setVaultStatus forces the stored vault into status regardless of the
// current one.
func (s *ReleaseServiceSuite) setVaultStatus(vaultID id.VaultID, status vaultmodels.Status) *vaultmodels.Vault {
	cur, err := s.vaults.FindByID(s.ctx, vaultID)
	s.Require().NoError(err)
	from := cur.Status
	cur.Status = status
	cur.DeadManSwitchActivatedAt = nil
	if status == vaultmodels.StatusTriggered {
		at := s.clock.Now()
		cur.DeadManSwitchActivatedAt = &at
	}
	s.Require().NoError(s.vaults.Transition(s.ctx, cur, from))
	return cur
}

// addBeneficiary enrols a beneficiary as the owner would have while the vault
// was still ACTIVE, then restores the vault's status.
func (s *ReleaseServiceSuite) addBeneficiary(v *vaultmodels.Vault, addr shipment.Address) *models.Beneficiary {
	cur, err := s.vaults.FindByID(s.ctx, v.ID)
	s.Require().NoError(err)
	status := cur.Status
	if status != vaultmodels.StatusActive {
		s.setVaultStatus(v.ID, vaultmodels.StatusActive)
	}
	b, err := s.service.AddBeneficiary(s.ctx, v.ID, s.owner, models.AddBeneficiaryRequest{
		Name:    "Alice",
		Email:   "alice@example.com",
		Address: addr,
	})
	s.Require().NoError(err)
	if status != vaultmodels.StatusActive {
		s.setVaultStatus(v.ID, status)
	}
	return b
}

// issueToken issues a token through the admin path and returns the raw
// value the notifier received.
func (s *ReleaseServiceSuite) issueToken(b *models.Beneficiary) string {
	s.notifier.EXPECT().SendInheritanceNotice(gomock.Any(), gomock.Any()).Return(nil)
	grant, err := s.service.IssueReleaseToken(s.ctx, b.ID)
	s.Require().NoError(err)
	return grant.Token
}

func (s *ReleaseServiceSuite) reload(b *models.Beneficiary) *models.Beneficiary {
	found, err := s.store.FindByID(s.ctx, b.ID)
	s.Require().NoError(err)
	return found
}

func (s *ReleaseServiceSuite) history(b *models.Beneficiary) []models.DecryptionAttempt {
	attempts, err := s.store.Attempts(s.ctx, b.ID)
	s.Require().NoError(err)
	return attempts
}

func (s *ReleaseServiceSuite) decryptWithPassword(token, password string) (*models.DecryptResult, error) {
	return s.service.Decrypt(s.ctx, models.DecryptRequest{
		Token:          token,
		MasterPassword: password,
		IP:             "203.0.113.7",
		UserAgent:      chromeUA,
	})
}

func (s *ReleaseServiceSuite) TestIssueReleaseToken() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})

	var notice notify.InheritanceNotice
	s.notifier.EXPECT().SendInheritanceNotice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n notify.InheritanceNotice) error {
			notice = n
			return nil
		})
	grant, err := s.service.IssueReleaseToken(s.ctx, b.ID)
	s.Require().NoError(err)

	s.Equal(grant.Token, notice.Token)
	s.Equal(s.clock.Now().Add(24*time.Hour), grant.ExpiresAt)
	s.Len(grant.Token, 43, "32 bytes, unpadded base64url")

	stored := s.reload(b)
	s.Equal(models.StatusNotified, stored.Status)
	s.Equal(hashToken(grant.Token), stored.TokenHash)
	s.NotEqual(grant.Token, stored.TokenHash)
	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventReleaseTokenIssued), 1)

	s.Run("reissue replaces the previous token", func() {
		second := s.issueToken(b)
		old, err := s.service.ValidateToken(s.ctx, grant.Token)
		s.Require().NoError(err)
		s.False(old.Valid)
		s.Equal(models.TokenNotFound, old.Reason)

		fresh, err := s.service.ValidateToken(s.ctx, second)
		s.Require().NoError(err)
		s.True(fresh.Valid)
		s.Equal(models.StatusNotified, fresh.Beneficiary.Status)
	})

	s.Run("unknown beneficiary", func() {
		_, err := s.service.IssueReleaseToken(s.ctx, id.NewBeneficiaryID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("retired vault", func() {
		retired := s.createVault(plan.TierFree, vaultmodels.StatusActive)
		rb := s.addBeneficiary(retired, shipment.Address{})
		cur, err := s.vaults.FindByID(s.ctx, retired.ID)
		s.Require().NoError(err)
		cur.Status = vaultmodels.StatusReleased
		s.Require().NoError(s.vaults.Transition(s.ctx, cur, vaultmodels.StatusActive))

		_, err = s.service.IssueReleaseToken(s.ctx, rb.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ReleaseServiceSuite) TestValidateToken() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)

	s.clock.Advance(23*time.Hour + 59*time.Minute)
	res, err := s.service.ValidateToken(s.ctx, token)
	s.Require().NoError(err)
	s.True(res.Valid)

	s.clock.Advance(2 * time.Minute)
	res, err = s.service.ValidateToken(s.ctx, token)
	s.Require().NoError(err)
	s.False(res.Valid)
	s.Equal(models.TokenExpired, res.Reason)
	s.Equal(b.ID, res.Beneficiary.ID)

	for _, raw := range []string{"", "not-a-token"} {
		res, err := s.service.ValidateToken(s.ctx, raw)
		s.Require().NoError(err)
		s.False(res.Valid)
		s.Equal(models.TokenNotFound, res.Reason)
		s.Nil(res.Beneficiary)
	}
}

// TestDecrypt_QuotaOfOne walks the single-download plan: the first decrypt
// succeeds and the second is refused without decrypting.
func (s *ReleaseServiceSuite) TestDecrypt_QuotaOfOne() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)

	res, err := s.decryptWithPassword(token, masterPassword)
	s.Require().NoError(err)
	s.Equal(secretPayload, string(res.Plaintext))
	s.Equal(1, res.Used)
	s.Equal(0, res.Remaining)
	s.Equal([]id.VaultID{v.ID}, s.completed)

	stored := s.reload(b)
	s.Equal(1, stored.DecryptionCount)
	s.Equal(models.StatusReleased, stored.Status)

	_, err = s.decryptWithPassword(token, masterPassword)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeQuotaExceeded))
	s.Equal(msgQuotaExceeded, err.Error())
	s.Equal(1, s.reload(b).DecryptionCount)

	attempts := s.history(b)
	s.Require().Len(attempts, 2)
	s.True(attempts[0].Success)
	s.Equal("Chrome 120.0.0.0 on Windows 10", attempts[0].Device)
	s.Equal("203.0.113.7", attempts[0].IP)
	s.False(attempts[1].Success)
	s.Equal(models.ReasonQuotaExceeded, attempts[1].Reason)

	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventDecryptSucceeded), 1)
	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventDecryptQuotaExceeded), 1)
}

func (s *ReleaseServiceSuite) TestDecrypt_Failures() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)

	s.Run("needs exactly one kind of secret", func() {
		for _, req := range []models.DecryptRequest{
			{Token: token},
			{Token: token, MasterPassword: "x", FragmentA: "a", FragmentB: "b"},
			{Token: token, FragmentA: string(s.kit.FragmentA)},
		} {
			_, err := s.service.Decrypt(s.ctx, req)
			s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		}
		s.Empty(s.history(b), "malformed requests are not attempts")
	})

	s.Run("wrong password", func() {
		_, err := s.decryptWithPassword(token, "wrong")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
		s.Equal(msgInvalidCredentials, err.Error())
	})

	s.Run("swapped fragments", func() {
		_, err := s.service.Decrypt(s.ctx, models.DecryptRequest{
			Token:     token,
			FragmentA: string(s.kit.FragmentB),
			FragmentB: string(s.kit.FragmentA),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("unknown token", func() {
		_, err := s.decryptWithPassword("unknown", masterPassword)
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal(dErrors.CodeInvalidToken, de.Code)
		s.Equal(string(models.TokenNotFound), de.Reason)
	})

	s.Run("expired token", func() {
		s.clock.Advance(25 * time.Hour)
		_, err := s.decryptWithPassword(token, masterPassword)
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal(dErrors.CodeInvalidToken, de.Code)
		s.Equal(string(models.TokenExpired), de.Reason)
		s.Equal(msgInvalidToken, de.Message)
	})

	attempts := s.history(b)
	s.Require().Len(attempts, 3)
	s.Equal(models.ReasonInvalidCredentials, attempts[0].Reason)
	s.Equal(models.ReasonInvalidFragments, attempts[1].Reason)
	s.Equal(models.ReasonTokenExpired, attempts[2].Reason)
	s.Zero(s.reload(b).DecryptionCount)
	s.Empty(s.completed)
}

func (s *ReleaseServiceSuite) TestDecrypt_RecoveryFragments() {
	v := s.createVault(plan.TierPremium, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)

	res, err := s.service.Decrypt(s.ctx, models.DecryptRequest{
		Token:     token,
		FragmentA: string(s.kit.FragmentA),
		FragmentB: string(s.kit.FragmentB),
	})
	s.Require().NoError(err)
	s.Equal(secretPayload, string(res.Plaintext))
	s.Equal(4, res.Remaining, "premium allows three downloads plus two bonus")
}

// reissuingStore replaces the beneficiary's token just before a success is
// recorded, as a concurrent IssueReleaseToken would.
type reissuingStore struct {
	*store.InMemory
}

func (r reissuingStore) RecordSuccess(ctx context.Context, beneficiaryID id.BeneficiaryID, tokenHash string, a *models.DecryptionAttempt, now time.Time) (*models.Beneficiary, error) {
	cur, err := r.FindByID(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	cur.TokenHash = "reissued"
	if err := r.Transition(ctx, cur, cur.Status); err != nil {
		return nil, err
	}
	return r.InMemory.RecordSuccess(ctx, beneficiaryID, tokenHash, a, now)
}

func (s *ReleaseServiceSuite) TestDecrypt_TokenReissuedMidAttempt() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)

	svc := s.newServiceWithStore(reissuingStore{s.store}, anomaly.New(nil, 3, time.Hour, anomaly.WithClock(s.clock.Now)))
	res, err := svc.Decrypt(s.ctx, models.DecryptRequest{
		Token:          token,
		MasterPassword: masterPassword,
		IP:             "203.0.113.7",
		UserAgent:      chromeUA,
	})
	s.Nil(res)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))

	cur := s.reload(b)
	s.Zero(cur.DecryptionCount, "the replaced token must not spend quota")
	s.Equal("reissued", cur.TokenHash)
	attempts := s.history(b)
	s.Require().Len(attempts, 1)
	s.False(attempts[0].Success)
	s.Equal(models.ReasonTokenExpired, attempts[0].Reason)
}

func (s *ReleaseServiceSuite) TestDecrypt_RetiredVault() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusActive)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)

	cur, err := s.vaults.FindByID(s.ctx, v.ID)
	s.Require().NoError(err)
	cur.Status = vaultmodels.StatusReleased
	s.Require().NoError(s.vaults.Transition(s.ctx, cur, vaultmodels.StatusActive))

	_, err = s.decryptWithPassword(token, masterPassword)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
	s.Zero(s.reload(b).DecryptionCount)
}

// TestDecrypt_ConcurrentLastDownload verifies that racing callers with one
// download left get exactly one plaintext between them.
func (s *ReleaseServiceSuite) TestDecrypt_ConcurrentLastDownload() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)

	const callers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		quota     int
	)
	for range callers {
		wg.Go(func() {
			_, err := s.decryptWithPassword(token, masterPassword)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case dErrors.HasCode(err, dErrors.CodeQuotaExceeded):
				quota++
			}
		})
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Equal(callers-1, quota)
	s.Equal(1, s.reload(b).DecryptionCount)
}

func (s *ReleaseServiceSuite) TestDecrypt_AnomalyThreshold() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)

	for range 4 {
		_, err := s.service.Decrypt(s.ctx, models.DecryptRequest{
			Token:     token,
			FragmentA: "not a fragment",
			FragmentB: "not a fragment",
			IP:        "198.51.100.9",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	}

	anomalies := s.auditLog.ListByAction(s.ctx, audit.EventDecryptAnomaly)
	s.Require().Len(anomalies, 1, "raised once, when the threshold is reached")
	s.Equal(audit.SeverityCritical, anomalies[0].Severity)
	s.Equal("198.51.100.9", anomalies[0].Subject)
	s.Equal(audit.CategorySecurity, anomalies[0].Category)
	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventDecryptFailed), 4)
}

func (s *ReleaseServiceSuite) TestFanOut() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	postal := shipment.Address{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
	withAddress := s.addBeneficiary(v, postal)
	withoutAddress := s.addBeneficiary(v, shipment.Address{City: "Springfield"})

	s.carrier.EXPECT().
		CreateShipment(gomock.Any(), shipment.Recipient{Name: "Alice", Address: postal}, gomock.Any()).
		Return(&shipment.Shipment{ID: "sh-1", Tracking: "KS123"}, nil)
	tokens := make(map[id.BeneficiaryID]string)
	var mu sync.Mutex
	s.notifier.EXPECT().SendInheritanceNotice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n notify.InheritanceNotice) error {
			mu.Lock()
			defer mu.Unlock()
			tokens[n.BeneficiaryID] = n.Token
			return nil
		}).Times(2)

	deliveries, err := s.service.FanOut(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Require().Len(deliveries, 2)
	byID := map[id.BeneficiaryID]models.Delivery{}
	for _, d := range deliveries {
		byID[d.BeneficiaryID] = d
	}
	s.Equal("KS123", byID[withAddress.ID].ShipmentTracking)
	s.Empty(byID[withoutAddress.ID].ShipmentTracking)

	for _, b := range []*models.Beneficiary{withAddress, withoutAddress} {
		s.Equal(models.StatusNotified, s.reload(b).Status)
		res, err := s.service.ValidateToken(s.ctx, tokens[b.ID])
		s.Require().NoError(err)
		s.True(res.Valid)
	}
	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventAssetsReleased), 2)

	s.Run("second fan-out finds nothing to do", func() {
		again, err := s.service.FanOut(s.ctx, v.ID)
		s.Require().NoError(err)
		s.Empty(again)
	})
}

func (s *ReleaseServiceSuite) TestFanOut_DeliveryFailuresKeepToken() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	postal := shipment.Address{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
	b := s.addBeneficiary(v, postal)

	s.carrier.EXPECT().CreateShipment(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("carrier down"))
	s.notifier.EXPECT().SendInheritanceNotice(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	deliveries, err := s.service.FanOut(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Require().Len(deliveries, 1)
	s.Empty(deliveries[0].ShipmentTracking)
	s.Equal(models.StatusNotified, s.reload(b).Status)
}

func (s *ReleaseServiceSuite) TestSelfServiceUnlock() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusActive)
	b := s.addBeneficiary(v, shipment.Address{})

	var notice notify.UnlockNotice
	s.notifier.EXPECT().SendUnlockNotice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n notify.UnlockNotice) error {
			notice = n
			return nil
		})
	got, err := s.service.RequestUnlock(s.ctx, b.ID, " Alice@Example.com ")
	s.Require().NoError(err)
	s.Equal(models.StatusUnlockRequested, got.Status)
	s.True(got.UnlockNotificationSent)
	s.Equal(s.owner, notice.OwnerID)
	s.Equal(s.clock.Now().Add(24*time.Hour), notice.UnlockAt)

	s.Run("repeat is idempotent", func() {
		again, err := s.service.RequestUnlock(s.ctx, b.ID, "alice@example.com")
		s.Require().NoError(err)
		s.Equal(got.UnlockDelayUntil, again.UnlockDelayUntil)
	})

	s.Run("wrong email looks like an unknown beneficiary", func() {
		_, err := s.service.RequestUnlock(s.ctx, b.ID, "mallory@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("not due before the delay", func() {
		s.clock.Advance(23 * time.Hour)
		deliveries, err := s.service.ProcessDueUnlocks(s.ctx)
		s.Require().NoError(err)
		s.Empty(deliveries)
	})

	s.Run("granted once the delay passes", func() {
		s.clock.Advance(time.Hour)
		s.notifier.EXPECT().SendInheritanceNotice(gomock.Any(), gomock.Any()).Return(nil)
		deliveries, err := s.service.ProcessDueUnlocks(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(deliveries, 1)
		s.Equal(b.ID, deliveries[0].BeneficiaryID)

		stored := s.reload(b)
		s.Equal(models.StatusNotified, stored.Status)
		s.Nil(stored.UnlockDelayUntil)
		s.NotEmpty(stored.TokenHash)
		s.Len(s.auditLog.ListByAction(s.ctx, audit.EventUnlockGranted), 1)
	})

	s.Run("a notified beneficiary cannot request again", func() {
		_, err := s.service.RequestUnlock(s.ctx, b.ID, "alice@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ReleaseServiceSuite) setSwitch(vaultID id.VaultID, enabled bool) {
	cur, err := s.vaults.FindByID(s.ctx, vaultID)
	s.Require().NoError(err)
	cur.DeadManSwitchEnabled = enabled
	s.Require().NoError(s.vaults.Transition(s.ctx, cur, cur.Status))
}

func (s *ReleaseServiceSuite) TestSelfServiceUnlock_SwitchOff() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusActive)
	b := s.addBeneficiary(v, shipment.Address{})
	other := s.addBeneficiary(v, shipment.Address{})

	s.notifier.EXPECT().SendUnlockNotice(gomock.Any(), gomock.Any()).Return(nil)
	_, err := s.service.RequestUnlock(s.ctx, b.ID, "alice@example.com")
	s.Require().NoError(err)
	s.setSwitch(v.ID, false)

	s.Run("new requests are refused", func() {
		_, err := s.service.RequestUnlock(s.ctx, other.ID, "alice@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(models.StatusPending, s.reload(other).Status)
	})

	s.Run("open requests are held past the delay", func() {
		s.clock.Advance(25 * time.Hour)
		deliveries, err := s.service.ProcessDueUnlocks(s.ctx)
		s.Require().NoError(err)
		s.Empty(deliveries)

		stored := s.reload(b)
		s.Equal(models.StatusUnlockRequested, stored.Status)
		s.Empty(stored.TokenHash)
	})

	s.Run("granted once the switch is back on", func() {
		s.setSwitch(v.ID, true)
		s.notifier.EXPECT().SendInheritanceNotice(gomock.Any(), gomock.Any()).Return(nil)
		deliveries, err := s.service.ProcessDueUnlocks(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(deliveries, 1)
		s.Equal(b.ID, deliveries[0].BeneficiaryID)
	})
}

func (s *ReleaseServiceSuite) TestCancelUnlocks() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusActive)
	b := s.addBeneficiary(v, shipment.Address{})
	other := s.addBeneficiary(v, shipment.Address{})

	s.notifier.EXPECT().SendUnlockNotice(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	got, err := s.service.RequestUnlock(s.ctx, b.ID, "alice@example.com")
	s.Require().NoError(err)
	s.False(got.UnlockNotificationSent)

	n, err := s.service.CancelUnlocks(s.ctx, v.ID)
	s.Require().NoError(err)
	s.Equal(1, n)

	stored := s.reload(b)
	s.Equal(models.StatusPending, stored.Status)
	s.Nil(stored.UnlockRequestedAt)
	s.Equal(models.StatusPending, s.reload(other).Status)
	s.Len(s.auditLog.ListByAction(s.ctx, audit.EventUnlockCancelled), 1)

	s.clock.Advance(48 * time.Hour)
	deliveries, err := s.service.ProcessDueUnlocks(s.ctx)
	s.Require().NoError(err)
	s.Empty(deliveries)
}

func (s *ReleaseServiceSuite) TestAllReleased() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)

	done, err := s.service.AllReleased(s.ctx, v.ID)
	s.Require().NoError(err)
	s.False(done, "a vault without beneficiaries is never complete")

	first := s.addBeneficiary(v, shipment.Address{})
	second := s.addBeneficiary(v, shipment.Address{})
	for _, b := range []*models.Beneficiary{first, second} {
		_, err := s.store.RecordSuccess(s.ctx, b.ID, b.TokenHash, &models.DecryptionAttempt{Success: true}, s.clock.Now())
		s.Require().NoError(err)
		done, err = s.service.AllReleased(s.ctx, v.ID)
		s.Require().NoError(err)
	}
	s.True(done)
}

func (s *ReleaseServiceSuite) TestAddBeneficiary() {
	s.Run("quota follows the plan", func() {
		v := s.createVault(plan.TierLifetime, vaultmodels.StatusActive)
		b := s.addBeneficiary(v, shipment.Address{})
		s.Equal(10, b.DecryptionLimit)
		s.Equal(5, b.BonusDecryptions)
		s.Equal(models.StatusPending, b.Status)
		s.Len(s.auditLog.ListByAction(s.ctx, audit.EventBeneficiaryAdded), 1)
	})

	s.Run("other owner sees not found", func() {
		v := s.createVault(plan.TierFree, vaultmodels.StatusActive)
		_, err := s.service.AddBeneficiary(s.ctx, v.ID, id.OwnerID(uuid.New()), models.AddBeneficiaryRequest{
			Name: "Bob", Email: "bob@example.com",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("released vault is closed", func() {
		v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
		_, err := s.service.AddBeneficiary(s.ctx, v.ID, s.owner, models.AddBeneficiaryRequest{
			Name: "Bob", Email: "bob@example.com",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("name defaults from email", func() {
		v := s.createVault(plan.TierFree, vaultmodels.StatusActive)
		b, err := s.service.AddBeneficiary(s.ctx, v.ID, s.owner, models.AddBeneficiaryRequest{
			Email: "jane.doe@example.com",
		})
		s.Require().NoError(err)
		s.Equal("Jane Doe", b.Name)
	})

	s.Run("invalid email", func() {
		v := s.createVault(plan.TierFree, vaultmodels.StatusActive)
		_, err := s.service.AddBeneficiary(s.ctx, v.ID, s.owner, models.AddBeneficiaryRequest{
			Name: "Bob", Email: "not-an-email",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ReleaseServiceSuite) TestHistory() {
	v := s.createVault(plan.TierFree, vaultmodels.StatusTriggered)
	b := s.addBeneficiary(v, shipment.Address{})
	token := s.issueToken(b)
	_, err := s.decryptWithPassword(token, "wrong")
	s.Require().Error(err)

	s.Run("owner view", func() {
		attempts, err := s.service.History(s.ctx, v.ID, b.ID, s.owner)
		s.Require().NoError(err)
		s.Len(attempts, 1)

		_, err = s.service.History(s.ctx, v.ID, b.ID, id.OwnerID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		other := s.createVault(plan.TierFree, vaultmodels.StatusActive)
		_, err = s.service.History(s.ctx, other.ID, b.ID, s.owner)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("token holder view survives expiry", func() {
		s.clock.Advance(48 * time.Hour)
		attempts, err := s.service.HistoryForToken(s.ctx, token)
		s.Require().NoError(err)
		s.Len(attempts, 1)

		_, err = s.service.HistoryForToken(s.ctx, "unknown")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
	})
}
