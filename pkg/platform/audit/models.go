package audit

import (
	"context"
	"time"

	id "keepsake/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance for the estate:
	// who released what to whom, and when.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and forensics.
	// Examples: failed decryptions, quota exhaustion, anomaly alerts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	VaultID   id.VaultID
	// Subject is the entity acted on when it is not the vault itself
	// (beneficiary ID, client IP).
	Subject string
	Action  string
	Reason  string
	// ActorID tracks who performed the action: the owner, an operator, or
	// "system" for the sweep.
	ActorID   string
	IP        string
	RequestID string
	Severity  Severity
}

type AuditEvent string

const (
	// Vault lifecycle
	EventVaultInitialized  AuditEvent = "vault_initialized"
	EventHeartbeatReceived AuditEvent = "heartbeat_received"
	EventScheduleUpdated   AuditEvent = "schedule_updated"
	EventSwitchEnabled     AuditEvent = "switch_enabled"
	EventSwitchDisabled    AuditEvent = "switch_deactivated"
	EventVaultRetired      AuditEvent = "vault_retired"

	// Liveness transitions
	EventWarningSent     AuditEvent = "warning_sent"
	EventSwitchActivated AuditEvent = "switch_activated"
	EventVaultReleased   AuditEvent = "vault_released"

	// Release gate
	EventBeneficiaryAdded     AuditEvent = "beneficiary_added"
	EventReleaseTokenIssued   AuditEvent = "release_token_issued"
	EventDecryptSucceeded     AuditEvent = "decrypt_succeeded"
	EventDecryptFailed        AuditEvent = "decrypt_failed"
	EventDecryptQuotaExceeded AuditEvent = "decrypt_quota_exceeded"
	EventDecryptAnomaly       AuditEvent = "decrypt_anomaly_detected"
	EventUnlockRequested      AuditEvent = "unlock_requested"
	EventUnlockCancelled      AuditEvent = "unlock_cancelled"
	EventUnlockGranted        AuditEvent = "unlock_granted"
	EventAssetsReleased       AuditEvent = "assets_released"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVaultInitialized:   CategoryCompliance,
	EventSwitchActivated:    CategoryCompliance,
	EventVaultReleased:      CategoryCompliance,
	EventVaultRetired:       CategoryCompliance,
	EventDecryptSucceeded:   CategoryCompliance,
	EventAssetsReleased:     CategoryCompliance,
	EventUnlockGranted:      CategoryCompliance,
	EventReleaseTokenIssued: CategoryCompliance,

	EventDecryptFailed:        CategorySecurity,
	EventDecryptQuotaExceeded: CategorySecurity,
	EventDecryptAnomaly:       CategorySecurity,
	EventUnlockRequested:      CategorySecurity,
	EventSwitchDisabled:       CategorySecurity,

	EventHeartbeatReceived: CategoryOperations,
	EventScheduleUpdated:   CategoryOperations,
	EventSwitchEnabled:     CategoryOperations,
	EventWarningSent:       CategoryOperations,
	EventBeneficiaryAdded:  CategoryOperations,
	EventUnlockCancelled:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Sink receives audit events. Kafka and log sinks implement only this.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Store is a queryable Sink.
type Store interface {
	Sink
	ListByVault(ctx context.Context, vaultID id.VaultID) ([]Event, error)
}

// Publisher emits audit events for security-relevant operations.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
